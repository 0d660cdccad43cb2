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

// Package cmd holds the verb implementations of the mi7softd command line.
package cmd

import (
	"github.com/gx1727/mi7soft-daemon/mi7softd/cmd/util"
	"github.com/gx1727/mi7soft-daemon/mi7softd/config"
	"github.com/gx1727/mi7soft-daemon/mi7softd/supervisor"
)

// Globals carries the resolved configuration into every verb. It is passed
// as the first Execute argument by cli.Main.
type Globals struct {
	// ConfigPath is the resolved configuration file location.
	ConfigPath string
	// Config is the parsed, validated configuration.
	Config *config.Config
}

// newSupervisor builds an out-of-band supervisor (no PID lock) over the
// shared state file, for verbs that act on the daemon's children from a
// separate process.
func newSupervisor(g *Globals) *supervisor.Supervisor {
	sup, err := supervisor.New(g.ConfigPath, g.Config)
	if err != nil {
		util.FatalErr(err)
	}
	return sup
}
