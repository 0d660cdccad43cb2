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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/google/subcommands"
	"github.com/gx1727/mi7soft-daemon/mi7softd/cmd/util"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
)

// Start implements subcommands.Command for the "start" command.
type Start struct {
	daemonize bool
}

// Name implements subcommands.Command.Name.
func (*Start) Name() string {
	return "start"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Start) Synopsis() string {
	return "start the daemon and supervise all configured processes"
}

// Usage implements subcommands.Command.Usage.
func (*Start) Usage() string {
	return `start [flags] - start the daemon and supervise all configured processes
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Start) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.daemonize, "daemonize", false, "detach from the terminal and run in the background")
}

// Execute implements subcommands.Command.Execute.
func (s *Start) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	g := args[0].(*Globals)

	// MI7SOFT_NO_DAEMON inhibits the detach; the re-exec'd child carries
	// it so the recursion stops after one hop.
	if s.daemonize && os.Getenv("MI7SOFT_NO_DAEMON") == "" {
		if err := detach(g.ConfigPath); err != nil {
			util.FatalErr(errdefs.Daemonize(err))
		}
		return subcommands.ExitSuccess
	}

	sup := newSupervisor(g)
	if err := sup.AcquireLock(); err != nil {
		util.FatalErr(err)
	}
	if err := sup.Run(); err != nil {
		sup.Close()
		util.FatalErr(err)
	}
	return subcommands.ExitSuccess
}

// detach re-executes the binary in a new session with stdio on the null
// device and leaves it running.
func detach(configPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	child := exec.Command(exe, "-config", configPath, "start")
	child.Env = append(os.Environ(), "MI7SOFT_NO_DAEMON=1")
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return err
	}
	fmt.Printf("Daemon started with PID: %d\n", child.Process.Pid)
	// The child is adopted by init once we exit; no Wait needed.
	return nil
}
