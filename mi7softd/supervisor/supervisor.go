// Copyright 2024 The mi7soft-daemon Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package supervisor owns the supervision loop: it launches the configured
// processes, reconciles the registry against observed liveness on a
// periodic tick, reacts to signals, and drives orderly shutdown.
package supervisor

import (
	"errors"
	"sync"
	"time"

	"github.com/gx1727/mi7soft-daemon/mi7softd/config"
	"github.com/gx1727/mi7soft-daemon/mi7softd/registry"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"github.com/gx1727/mi7soft-daemon/pkg/history"
	"github.com/gx1727/mi7soft-daemon/pkg/pidfile"
	"github.com/gx1727/mi7soft-daemon/pkg/signals"
	"github.com/sirupsen/logrus"
)

// Supervisor drives a set of child processes toward the configured state.
// The loop in Run is the sole mutator of the registry; command methods
// invoked from the CLI operate on a supervisor that never entered Run, so
// the single-mutator rule holds in every process.
type Supervisor struct {
	configPath string
	cfg        *config.Config
	stateFile  string
	reg        *registry.Registry
	lock       *pidfile.PidFile
	hist       *history.Store

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// New builds a supervisor from the configuration at configPath,
// rehydrating the registry from the state file. The PID lock is not taken;
// call AcquireLock before Run.
func New(configPath string, cfg *config.Config) (*Supervisor, error) {
	reg := registry.New()
	if err := reg.Load(cfg.StateFile()); err != nil {
		return nil, err
	}

	hist, err := history.Open(history.DefaultPath())
	if err != nil {
		// Diagnostics must not keep the supervisor down.
		logrus.Warnf("History store unavailable: %v", err)
		hist = nil
	}

	return &Supervisor{
		configPath: configPath,
		cfg:        cfg,
		stateFile:  cfg.StateFile(),
		reg:        reg,
		hist:       hist,
		shutdownCh: make(chan struct{}),
	}, nil
}

// AcquireLock takes the daemon's single-instance lock. Fatal at startup
// when another supervisor holds it.
func (s *Supervisor) AcquireLock() error {
	lock := pidfile.New(s.cfg.PidFile())
	if err := lock.Acquire(); err != nil {
		return err
	}
	s.lock = lock
	return nil
}

// Close releases resources held outside Run. Run performs its own release
// on shutdown.
func (s *Supervisor) Close() {
	if s.hist != nil {
		s.hist.Close()
		s.hist = nil
	}
	if s.lock != nil {
		s.lock.Release()
		s.lock = nil
	}
}

// RequestShutdown asks a running loop to exit. Idempotent; safe from any
// goroutine.
func (s *Supervisor) RequestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Run enters the supervision loop and blocks until shutdown. The PID lock
// must be held.
func (s *Supervisor) Run() error {
	logrus.Info("Starting daemon")

	// Nothing survived the previous instance: launch the declared set, in
	// declaration order. Individual failures are logged, not fatal.
	if s.reg.Len() == 0 {
		for _, pc := range s.cfg.Processes {
			if _, err := s.spawn(pc, true); err != nil {
				logrus.WithField("process", pc.Name).Errorf("Failed to start process: %v", err)
			}
		}
	}
	s.saveState()

	bridge := signals.New()
	defer bridge.Close()

	interval := time.Duration(s.cfg.CheckInterval()) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.WithField("check_interval", s.cfg.CheckInterval()).Info("Daemon started, monitoring processes")

	for {
		select {
		case ev, ok := <-bridge.Events():
			if !ok || ev == signals.Shutdown {
				logrus.Info("Received shutdown signal")
				return s.shutdown()
			}
			logrus.Info("Received reload config signal")
			s.reload()
		case <-s.shutdownCh:
			logrus.Info("Received shutdown request")
			return s.shutdown()
		case <-ticker.C:
			s.reconcile()
			s.saveState()
		}
	}
}

// reconcile removes records whose PID no longer answers the null signal
// and respawns the ones whose current config asks for auto_restart.
func (s *Supervisor) reconcile() {
	var dead []*registry.Record
	for _, rec := range s.reg.All() {
		if !pidfile.Alive(rec.Pid) {
			dead = append(dead, rec)
		}
	}

	for _, rec := range dead {
		s.reg.Remove(rec.Name, rec.Pid)
		// No-op for children our reaper already closed out; records the
		// death of rehydrated children we never held a handle for.
		if s.hist != nil {
			if err := s.hist.RecordEnd(rec.Name, rec.Pid, nil); err != nil {
				logrus.WithField("process", rec.Name).Warnf("Failed to record end: %v", err)
			}
		}

		pc := s.cfg.Find(rec.Name)
		if pc == nil || !pc.AutoRestart {
			continue
		}
		logrus.WithField("process", rec.Name).Warn("Auto-restarting dead process")
		if _, err := s.spawn(*pc, true); err != nil {
			logrus.WithField("process", rec.Name).Errorf("Failed to restart process: %v", err)
			continue
		}
		if s.hist != nil {
			if err := s.hist.RecordRestart(rec.Name); err != nil {
				logrus.WithField("process", rec.Name).Warnf("Failed to record restart: %v", err)
			}
		}
	}
}

// reload reparses the config file and applies the difference. A parse
// failure keeps the old config.
func (s *Supervisor) reload() {
	logrus.Info("Reloading configuration")

	newCfg, err := config.Load(s.configPath)
	if err != nil {
		logrus.Errorf("Config reload failed, keeping previous config: %v", err)
		return
	}

	// Names removed from the config: stop and evict.
	for _, pc := range s.cfg.Processes {
		if newCfg.Find(pc.Name) != nil {
			continue
		}
		logrus.WithField("process", pc.Name).Info("Removing process")
		s.stopAll(pc.Name)
	}

	for i := range newCfg.Processes {
		pc := &newCfg.Processes[i]
		old := s.cfg.Find(pc.Name)
		switch {
		case old == nil:
			// Newly declared.
			logrus.WithField("process", pc.Name).Info("Adding new process")
			if _, err := s.spawn(*pc, true); err != nil {
				logrus.WithField("process", pc.Name).Errorf("Failed to start process: %v", err)
			}
		case old.Command != pc.Command || !equalArgs(old.Args, pc.Args):
			// Relaunch under the new command line. Other fields
			// (max_instances, auto_restart, environment) apply lazily at
			// the next spawn.
			logrus.WithField("process", pc.Name).Info("Command changed, restarting process")
			s.stopAll(pc.Name)
			if _, err := s.spawn(*pc, true); err != nil {
				logrus.WithField("process", pc.Name).Errorf("Failed to restart process: %v", err)
			}
		}
	}

	s.cfg = newCfg
	s.saveState()
	logrus.Info("Configuration reloaded")
}

// shutdown terminates every tracked child, persists the empty registry,
// and releases the lock.
func (s *Supervisor) shutdown() error {
	logrus.Info("Shutting down daemon")

	for _, name := range s.reg.Names() {
		logrus.WithField("process", name).Info("Stopping process")
		s.stopAll(name)
	}
	s.saveState()

	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			logrus.Warnf("Failed to release PID file: %v", err)
		}
		s.lock = nil
	}
	if s.hist != nil {
		s.hist.Close()
		s.hist = nil
	}
	logrus.Info("Daemon shutdown complete")
	return nil
}

// stopAll terminates and evicts every record for name. Termination
// failures are logged; eviction happens regardless.
func (s *Supervisor) stopAll(name string) []int {
	records := s.reg.RemoveAll(name)
	var stopped []int
	for _, rec := range records {
		if err := Terminate(rec.Pid); err != nil {
			logrus.WithFields(logrus.Fields{"process": name, "pid": rec.Pid}).
				Errorf("Failed to stop process: %v", err)
			continue
		}
		stopped = append(stopped, rec.Pid)
		if s.hist != nil {
			if err := s.hist.RecordEnd(rec.Name, rec.Pid, nil); err != nil {
				logrus.WithField("process", name).Warnf("Failed to record end: %v", err)
			}
		}
	}
	return stopped
}

// saveState snapshots the registry; the loop must survive a failed save.
func (s *Supervisor) saveState() {
	if err := s.reg.Save(s.stateFile); err != nil {
		logrus.Errorf("Failed to save state: %v", err)
	}
}

// StartProcess spawns one instance of the named config. Used by the
// start-process verb; output is not captured because the CLI process does
// not stay around to drain pipes.
func (s *Supervisor) StartProcess(name string) (int, error) {
	pc := s.cfg.Find(name)
	if pc == nil {
		return 0, errdefs.Config("process %q not found in config", name)
	}
	pid, err := s.spawn(*pc, false)
	if err != nil {
		return 0, err
	}
	s.saveState()
	return pid, nil
}

// StopProcess terminates every instance of name. Returns NotRunning when
// there is nothing to stop.
func (s *Supervisor) StopProcess(name string) ([]int, error) {
	if len(s.reg.Get(name)) == 0 {
		return nil, errdefs.NotRunning(name)
	}
	stopped := s.stopAll(name)
	s.saveState()
	return stopped, nil
}

// RestartProcess stops every instance of name, settles briefly, and
// spawns a single fresh instance.
func (s *Supervisor) RestartProcess(name string) ([]int, error) {
	pc := s.cfg.Find(name)
	if pc == nil {
		return nil, errdefs.Config("process %q not found in config", name)
	}

	if _, err := s.StopProcess(name); err != nil && !isNotRunning(err) {
		return nil, errdefs.RestartFailed(name, err.Error())
	}
	time.Sleep(100 * time.Millisecond)

	pid, err := s.spawn(*pc, false)
	if err != nil {
		return nil, errdefs.RestartFailed(name, err.Error())
	}
	if s.hist != nil {
		if err := s.hist.RecordRestart(name); err != nil {
			logrus.WithField("process", name).Warnf("Failed to record restart: %v", err)
		}
	}
	s.saveState()
	return []int{pid}, nil
}

// Registry exposes read-only views for status rendering.
func (s *Supervisor) Registry() *registry.Registry {
	return s.reg
}

func isNotRunning(err error) bool {
	var e *errdefs.Error
	return errors.As(err, &e) && e.Kind == errdefs.KindNotRunning
}

func equalArgs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
