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

// Stop implements subcommands.Command for the "stop" command.
type Stop struct{}

// Name implements subcommands.Command.Name.
func (*Stop) Name() string {
	return "stop"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stop) Synopsis() string {
	return "stop every instance of a process"
}

// Usage implements subcommands.Command.Usage.
func (*Stop) Usage() string {
	return `stop <name> - stop every instance of a process
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Stop) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Stop) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)
	g := args[0].(*Globals)

	sup := newSupervisor(g)
	defer sup.Close()

	stopped, err := sup.StopProcess(name)
	if err != nil {
		util.FatalErr(err)
	}
	fmt.Printf("Stopped process %s: %d instance(s)\n", name, len(stopped))
	for _, pid := range stopped {
		fmt.Printf("  - PID %d\n", pid)
	}
	return subcommands.ExitSuccess
}
