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
)

// Restart implements subcommands.Command for the "restart" command.
type Restart struct{}

// Name implements subcommands.Command.Name.
func (*Restart) Name() string {
	return "restart"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Restart) Synopsis() string {
	return "stop and start a process"
}

// Usage implements subcommands.Command.Usage.
func (*Restart) Usage() string {
	return `restart <name> - stop every instance of a process, then start a fresh one
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Restart) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Restart) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)
	g := args[0].(*Globals)

	sup := newSupervisor(g)
	defer sup.Close()

	pids, err := sup.RestartProcess(name)
	if err != nil {
		util.FatalErr(err)
	}
	fmt.Printf("Restarted process %s with %d instance(s)\n", name, len(pids))
	for _, pid := range pids {
		fmt.Printf("  - PID %d\n", pid)
	}
	return subcommands.ExitSuccess
}
