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

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/gx1727/mi7soft-daemon/mi7softd/config"
	"github.com/gx1727/mi7soft-daemon/mi7softd/registry"
	"github.com/gx1727/mi7soft-daemon/pkg/capture"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"github.com/sirupsen/logrus"
)

// spawn launches one child from cfg, inserts its record, and commits the
// start event to the history store before returning the PID.
//
// withCapture selects the supervisor-owned output capture; out-of-band
// spawns inherit stdio instead, because their pipes would not outlive the
// CLI process.
func (s *Supervisor) spawn(cfg config.ProcessConfig, withCapture bool) (int, error) {
	if max := cfg.MaxInstances; max > 0 && len(s.reg.Get(cfg.Name)) >= max {
		return 0, errdefs.StartFailed(cfg.Name, fmt.Sprintf("Max instances (%d) reached", max))
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	if cfg.WorkingDirectory != "" {
		cmd.Dir = cfg.WorkingDirectory
	}
	cmd.Env = mergeEnv(os.Environ(), cfg.Environment)

	// Children run in their own process group: terminal signals aimed at
	// the supervisor must not fan out to them, and they are expected to
	// outlive a supervisor restart.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Stdin stays on the null device (exec's default for a nil Stdin).
	var outCap *capture.Capture
	if withCapture && cfg.Captures() && cfg.LogFile != "" {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return 0, errdefs.StartFailed(cfg.Name, err.Error())
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return 0, errdefs.StartFailed(cfg.Name, err.Error())
		}
		outCap = capture.New(cfg.Name, cfg.LogFile, cfg.MaxLogSize)
		if err := cmd.Start(); err != nil {
			return 0, errdefs.StartFailed(cfg.Name, err.Error())
		}
		outCap.Start(stdout, stderr)
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return 0, errdefs.StartFailed(cfg.Name, err.Error())
		}
	}

	pid := cmd.Process.Pid
	rec := registry.NewRecord(cfg, pid)
	if err := s.reg.Insert(rec); err != nil {
		// Lost a race against the instance cap; undo the launch.
		_ = cmd.Process.Kill()
		go cmd.Wait()
		return 0, err
	}

	if s.hist != nil {
		if _, err := s.hist.RecordStart(cfg.Name, pid, cfg.AutoRestart); err != nil {
			logrus.WithField("process", cfg.Name).Warnf("Failed to record start: %v", err)
		}
	}

	go s.reap(rec, cmd, outCap)

	logrus.WithFields(logrus.Fields{"process": cfg.Name, "pid": pid}).Info("Process started")
	return pid, nil
}

// reap waits for the child to exit so the kernel can release it, then
// closes the history row with the real exit code. Capture must drain
// before Wait because Wait tears down the pipes.
func (s *Supervisor) reap(rec *registry.Record, cmd *exec.Cmd, outCap *capture.Capture) {
	if outCap != nil {
		<-outCap.Done()
	}
	err := cmd.Wait()

	code := exitCode(cmd, err)
	if s.hist != nil {
		if err := s.hist.RecordEnd(rec.Name, rec.Pid, &code); err != nil {
			logrus.WithField("process", rec.Name).Warnf("Failed to record end: %v", err)
		}
		if err := s.hist.UpdateUptime(rec.Name, rec.Uptime()); err != nil {
			logrus.WithField("process", rec.Name).Warnf("Failed to record uptime: %v", err)
		}
	}
	logrus.WithFields(logrus.Fields{
		"process": rec.Name,
		"pid":     rec.Pid,
		"code":    code,
	}).Debug("Process reaped")
}

// exitCode extracts the child's exit code, mapping signal deaths to
// 128+signo the way the shell does.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	state := cmd.ProcessState
	if state == nil {
		if waitErr != nil {
			return 1
		}
		return 0
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// mergeEnv returns the inherited environment updated, not replaced, by the
// per-process overrides.
func mergeEnv(inherited []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return inherited
	}
	env := make([]string, 0, len(inherited)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range inherited {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if v, ok := overrides[key]; ok {
			env = append(env, key+"="+v)
			seen[key] = true
			continue
		}
		env = append(env, kv)
	}
	for k, v := range overrides {
		if !seen[k] {
			env = append(env, k+"="+v)
		}
	}
	return env
}
