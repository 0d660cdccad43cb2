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

	"github.com/google/subcommands"
	"github.com/gx1727/mi7soft-daemon/mi7softd/cmd/util"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"github.com/gx1727/mi7soft-daemon/pkg/pidfile"
	"golang.org/x/sys/unix"
)

// Shutdown implements subcommands.Command for the "shutdown" command.
type Shutdown struct{}

// Name implements subcommands.Command.Name.
func (*Shutdown) Name() string {
	return "shutdown"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Shutdown) Synopsis() string {
	return "request the running daemon to exit"
}

// Usage implements subcommands.Command.Usage.
func (*Shutdown) Usage() string {
	return `shutdown - send SIGTERM to the daemon recorded in the PID file
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Shutdown) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Shutdown) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	g := args[0].(*Globals)
	path := g.Config.PidFile()

	pid, err := pidfile.ReadPid(path)
	if err != nil || pid == 0 || !pidfile.Alive(pid) {
		// Fall back to telling the operator what to do by hand.
		fmt.Printf("To shutdown the daemon, use: kill $(cat %s)\n", path)
		if err != nil {
			util.FatalErr(err)
		}
		return subcommands.ExitSuccess
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		util.FatalErr(errdefs.Signal("failed to signal daemon (PID %d): %v", pid, err))
	}
	fmt.Printf("Sent SIGTERM to daemon (PID %d)\n", pid)
	return subcommands.ExitSuccess
}
