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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gx1727/mi7soft-daemon/mi7softd/config"
	"github.com/gx1727/mi7soft-daemon/mi7softd/registry"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"github.com/gx1727/mi7soft-daemon/pkg/pidfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newTestSupervisor writes tomlBody to a fresh config file rooted in a
// temp dir, loads it and builds a supervisor over it. The PID file (and
// hence the state file) also live in the temp dir.
func newTestSupervisor(t *testing.T, tomlBody string) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	// Keep the history database out of the user's real config dir.
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	header := `
[daemon]
pid_file = "` + filepath.Join(dir, "daemon.pid") + `"
log_file = "` + filepath.Join(dir, "daemon.log") + `"
check_interval = 1
`
	configPath := filepath.Join(dir, "daemon.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(header+tomlBody), 0644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	sup, err := New(configPath, cfg)
	require.NoError(t, err)
	t.Cleanup(sup.Close)
	return sup, configPath
}

// loadState reads the on-disk registry snapshot the loop maintains. Going
// through the file keeps the test off the loop's in-memory state.
func loadState(t *testing.T, sup *Supervisor) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, r.Load(sup.stateFile))
	return r
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal(msg)
}

const sleeperConfig = `
[[processes]]
name = "sleeper"
command = "/bin/sleep"
args = ["300"]
auto_restart = true
`

func TestStartAndStopProcess(t *testing.T) {
	sup, _ := newTestSupervisor(t, `
[[processes]]
name = "web"
command = "/bin/sleep"
args = ["300"]
`)

	pid, err := sup.StartProcess("web")
	require.NoError(t, err)
	assert.True(t, pidfile.Alive(pid))

	// The state file reflects the mutation.
	assert.Len(t, loadState(t, sup).Get("web"), 1)

	stopped, err := sup.StopProcess("web")
	require.NoError(t, err)
	require.Equal(t, []int{pid}, stopped)
	assert.False(t, pidfile.Alive(pid))

	// Second stop reports NotRunning.
	_, err = sup.StopProcess("web")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.NotRunning("web")))
}

func TestStartProcessUnknownName(t *testing.T) {
	sup, _ := newTestSupervisor(t, sleeperConfig)

	_, err := sup.StartProcess("ghost")
	require.Error(t, err)
	var e *errdefs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errdefs.KindConfig, e.Kind)
}

func TestMaxInstancesEnforced(t *testing.T) {
	sup, _ := newTestSupervisor(t, `
[[processes]]
name = "worker"
command = "/bin/sleep"
args = ["300"]
max_instances = 2
`)

	pid1, err := sup.StartProcess("worker")
	require.NoError(t, err)
	pid2, err := sup.StartProcess("worker")
	require.NoError(t, err)
	assert.NotEqual(t, pid1, pid2)

	_, err = sup.StartProcess("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Max instances")

	_, err = sup.StopProcess("worker")
	require.NoError(t, err)
}

func TestRestartProcess(t *testing.T) {
	sup, _ := newTestSupervisor(t, `
[[processes]]
name = "web"
command = "/bin/sleep"
args = ["300"]
`)

	oldPid, err := sup.StartProcess("web")
	require.NoError(t, err)

	pids, err := sup.RestartProcess("web")
	require.NoError(t, err)
	require.Len(t, pids, 1)
	assert.NotEqual(t, oldPid, pids[0])
	assert.False(t, pidfile.Alive(oldPid))
	assert.True(t, pidfile.Alive(pids[0]))

	_, err = sup.StopProcess("web")
	require.NoError(t, err)
}

func TestRestartWithoutLiveInstances(t *testing.T) {
	sup, _ := newTestSupervisor(t, `
[[processes]]
name = "web"
command = "/bin/sleep"
args = ["300"]
`)

	// Nothing running: restart degenerates to a start.
	pids, err := sup.RestartProcess("web")
	require.NoError(t, err)
	require.Len(t, pids, 1)

	_, err = sup.StopProcess("web")
	require.NoError(t, err)
}

func TestStatusReportsRunning(t *testing.T) {
	sup, _ := newTestSupervisor(t, `
[[processes]]
name = "web"
command = "/bin/sleep"
args = ["300"]
`)

	pid, err := sup.StartProcess("web")
	require.NoError(t, err)

	statuses, err := sup.Status("web")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, pid, statuses[0].Pid)
	assert.Equal(t, Running, statuses[0].State)
	assert.GreaterOrEqual(t, statuses[0].UptimeSeconds, int64(0))

	_, err = sup.Status("ghost")
	require.Error(t, err)

	_, err = sup.StopProcess("web")
	require.NoError(t, err)
}

// The S1 scenario: a SIGKILLed auto_restart child is respawned within two
// reconciliation ticks, and shutdown terminates the replacement.
func TestRunAutoRestartAndShutdown(t *testing.T) {
	sup, _ := newTestSupervisor(t, sleeperConfig)
	require.NoError(t, sup.AcquireLock())

	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run() }()

	var firstPid int
	waitFor(t, 5*time.Second, func() bool {
		recs := loadState(t, sup).Get("sleeper")
		if len(recs) == 1 {
			firstPid = recs[0].Pid
			return true
		}
		return false
	}, "initial sleeper never appeared in the state file")

	require.NoError(t, unix.Kill(firstPid, unix.SIGKILL))

	waitFor(t, 5*time.Second, func() bool {
		recs := loadState(t, sup).Get("sleeper")
		return len(recs) == 1 && recs[0].Pid != firstPid
	}, "sleeper was not respawned after SIGKILL")

	replacement := loadState(t, sup).Get("sleeper")[0].Pid

	sup.RequestShutdown()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not shut down")
	}

	assert.False(t, pidfile.Alive(replacement))
	// The PID file is removed on the way out.
	_, err := os.Stat(sup.cfg.PidFile())
	assert.True(t, os.IsNotExist(err))
	// Shutdown left an empty registry behind.
	assert.Zero(t, loadState(t, sup).Len())
}

// The S4 scenario: a SIGHUP reload stops removed names and starts added
// ones.
func TestRunReloadAppliesNameDiff(t *testing.T) {
	sup, configPath := newTestSupervisor(t, `
[[processes]]
name = "web"
command = "/bin/sleep"
args = ["300"]
`)
	require.NoError(t, sup.AcquireLock())

	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run() }()

	var webPid int
	waitFor(t, 5*time.Second, func() bool {
		recs := loadState(t, sup).Get("web")
		if len(recs) == 1 {
			webPid = recs[0].Pid
			return true
		}
		return false
	}, "web never appeared in the state file")

	// Replace web with db and reload.
	newBody := `
[daemon]
pid_file = "` + sup.cfg.PidFile() + `"
check_interval = 1

[[processes]]
name = "db"
command = "/bin/sleep"
args = ["300"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(newBody), 0644))
	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGHUP))

	waitFor(t, 10*time.Second, func() bool {
		st := loadState(t, sup)
		return len(st.Get("db")) == 1 && len(st.Get("web")) == 0
	}, "reload did not swap web for db")

	assert.False(t, pidfile.Alive(webPid))

	sup.RequestShutdown()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}

// The S5 flavor observable in one process: the second lock acquisition
// fails while the first is held.
func TestSecondSupervisorRefused(t *testing.T) {
	sup, _ := newTestSupervisor(t, sleeperConfig)
	require.NoError(t, sup.AcquireLock())

	other := pidfile.New(sup.cfg.PidFile())
	err := other.Acquire()
	require.Error(t, err)
}
