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

// Package config holds the TOML configuration for mi7softd: daemon-wide
// settings plus the declared set of managed processes.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
)

// Defaults for [daemon].
const (
	DefaultPidFile       = "/var/run/mi7soft-daemon.pid"
	DefaultLogFile       = "/var/log/mi7soft-daemon.log"
	DefaultCheckInterval = 5
)

// Config is the parsed configuration file.
type Config struct {
	Daemon    *DaemonSettings `toml:"daemon"`
	Processes []ProcessConfig `toml:"processes"`
}

// DaemonSettings configures the supervisor itself.
type DaemonSettings struct {
	PidFile       string `toml:"pid_file"`
	LogFile       string `toml:"log_file"`
	CheckInterval uint64 `toml:"check_interval"`
}

// ProcessConfig is the declared intent for one logical process. Immutable
// once loaded.
type ProcessConfig struct {
	Name             string            `toml:"name" json:"name"`
	Command          string            `toml:"command" json:"command"`
	Args             []string          `toml:"args" json:"args"`
	WorkingDirectory string            `toml:"working_directory" json:"working_directory,omitempty"`
	Environment      map[string]string `toml:"environment" json:"environment,omitempty"`
	AutoRestart      bool              `toml:"auto_restart" json:"auto_restart"`
	LogFile          string            `toml:"log_file" json:"log_file,omitempty"`
	MaxInstances     int               `toml:"max_instances" json:"max_instances,omitempty"`
	CaptureOutput    *bool             `toml:"capture_output" json:"capture_output,omitempty"`
	MaxLogSize       int64             `toml:"max_log_size" json:"max_log_size,omitempty"`
}

// Captures reports whether child output should be captured. Defaults to
// true when the field is absent from the file.
func (p *ProcessConfig) Captures() bool {
	return p.CaptureOutput == nil || *p.CaptureOutput
}

// PidFile returns the configured PID file path or the default.
func (c *Config) PidFile() string {
	if c.Daemon != nil && c.Daemon.PidFile != "" {
		return c.Daemon.PidFile
	}
	return DefaultPidFile
}

// LogFile returns the supervisor's own log destination. The
// MI7SOFT_LOG_FILE environment variable overrides the configured path.
func (c *Config) LogFile() string {
	if env := os.Getenv("MI7SOFT_LOG_FILE"); env != "" {
		return env
	}
	if c.Daemon != nil && c.Daemon.LogFile != "" {
		return c.Daemon.LogFile
	}
	return DefaultLogFile
}

// CheckInterval returns the reconciliation period in seconds.
func (c *Config) CheckInterval() uint64 {
	if c.Daemon != nil && c.Daemon.CheckInterval > 0 {
		return c.Daemon.CheckInterval
	}
	return DefaultCheckInterval
}

// StateFile derives the registry snapshot path from the PID file path by
// replacing its extension with ".state".
func (c *Config) StateFile() string {
	return StateFileFor(c.PidFile())
}

// StateFileFor derives the state file path for a given PID file path.
func StateFileFor(pidFile string) string {
	ext := filepath.Ext(pidFile)
	return pidFile[:len(pidFile)-len(ext)] + ".state"
}

// Find returns the declared config for name, or nil.
func (c *Config) Find(name string) *ProcessConfig {
	for i := range c.Processes {
		if c.Processes[i].Name == name {
			return &c.Processes[i]
		}
	}
	return nil
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Config("failed to read config file: %v", err)
	}
	var c Config
	if err := toml.Unmarshal(content, &c); err != nil {
		return nil, errdefs.TOMLParse(err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if len(c.Processes) == 0 {
		return errdefs.Config("no processes defined")
	}
	seen := make(map[string]bool, len(c.Processes))
	for i := range c.Processes {
		p := &c.Processes[i]
		if p.Name == "" {
			return errdefs.Config("process #%d has no name", i+1)
		}
		if seen[p.Name] {
			return errdefs.Config("duplicate process name: %s", p.Name)
		}
		seen[p.Name] = true
		if p.Command == "" {
			return errdefs.Config("process %q has no command", p.Name)
		}
		if p.MaxInstances < 0 {
			return errdefs.Config("process %q: max_instances must be positive", p.Name)
		}
	}
	return nil
}

// DefaultConfig is written to daemon.toml when no configuration exists.
const DefaultConfig = `# mi7soft-daemon configuration
# Edit this file to manage your processes

[daemon]
check_interval = 5

# Example process - uncomment and modify as needed
[[processes]]
name = "example"
command = "echo"
args = ["hello"]
`

// ResolvePath picks the configuration file to use: the explicit flag value
// if given, else ./daemon.toml, which is created with a commented default
// when missing.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	local := filepath.Join(cwd, "daemon.toml")
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if err := os.WriteFile(local, []byte(DefaultConfig), 0644); err == nil {
		os.Stderr.WriteString("Created default config: " + local + "\n")
	}
	return local
}
