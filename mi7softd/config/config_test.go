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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daemon.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[daemon]
pid_file = "/var/run/test.pid"
log_file = "/var/log/test.log"
check_interval = 10

[[processes]]
name = "test-process"
command = "/bin/sleep"
args = ["100"]
working_directory = "/tmp"
auto_restart = true
capture_output = true

[[processes]]
name = "another-process"
command = "/bin/echo"
args = ["hello"]
`)

	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.Processes, 2)
	assert.Equal(t, "test-process", c.Processes[0].Name)
	assert.Equal(t, "another-process", c.Processes[1].Name)
	assert.Equal(t, uint64(10), c.CheckInterval())
	assert.Equal(t, "/var/run/test.pid", c.PidFile())
	assert.True(t, c.Processes[0].Captures())
	assert.True(t, c.Processes[0].AutoRestart)
	assert.Equal(t, []string{"100"}, c.Processes[0].Args)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[[processes]]
name = "p"
command = "/bin/true"
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPidFile, c.PidFile())
	assert.Equal(t, uint64(DefaultCheckInterval), c.CheckInterval())
	// capture_output defaults to true when absent.
	assert.True(t, c.Processes[0].Captures())
	assert.False(t, c.Processes[0].AutoRestart)
}

func TestCaptureOutputDisabled(t *testing.T) {
	path := writeConfig(t, `
[[processes]]
name = "p"
command = "/bin/true"
capture_output = false
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.Processes[0].Captures())
}

func TestInvalidTOML(t *testing.T) {
	path := writeConfig(t, `
[daemon
pid_file = "/var/run/test.pid"
`)

	_, err := Load(path)
	require.Error(t, err)
	var e *errdefs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errdefs.KindTOMLParse, e.Kind)
}

func TestDuplicateProcessNames(t *testing.T) {
	path := writeConfig(t, `
[[processes]]
name = "test"
command = "/bin/sleep"

[[processes]]
name = "test"
command = "/bin/echo"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate process name")
}

func TestEmptyProcesses(t *testing.T) {
	path := writeConfig(t, `
[daemon]
pid_file = "/var/run/test.pid"
`)

	_, err := Load(path)
	require.Error(t, err)
	var e *errdefs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errdefs.KindConfig, e.Kind)
}

func TestMissingCommand(t *testing.T) {
	path := writeConfig(t, `
[[processes]]
name = "test"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command")
}

func TestStateFileDerivation(t *testing.T) {
	assert.Equal(t, "/var/run/mi7soft-daemon.state", StateFileFor("/var/run/mi7soft-daemon.pid"))
	assert.Equal(t, "/tmp/daemon.state", StateFileFor("/tmp/daemon.pid"))
}

func TestLogFileEnvOverride(t *testing.T) {
	t.Setenv("MI7SOFT_LOG_FILE", "/tmp/override.log")
	c := &Config{Daemon: &DaemonSettings{LogFile: "/var/log/configured.log"}}
	assert.Equal(t, "/tmp/override.log", c.LogFile())
}

func TestResolvePathCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	path := ResolvePath("")
	assert.Equal(t, filepath.Join(dir, "daemon.toml"), path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[daemon]")
}

func TestFind(t *testing.T) {
	c := &Config{Processes: []ProcessConfig{
		{Name: "web", Command: "/usr/bin/myapp"},
		{Name: "db", Command: "/usr/bin/db"},
	}}
	require.NotNil(t, c.Find("db"))
	assert.Equal(t, "/usr/bin/db", c.Find("db").Command)
	assert.Nil(t, c.Find("missing"))
}
