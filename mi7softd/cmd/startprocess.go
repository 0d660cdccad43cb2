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

// StartProcess implements subcommands.Command for the "start-process"
// command.
type StartProcess struct{}

// Name implements subcommands.Command.Name.
func (*StartProcess) Name() string {
	return "start-process"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*StartProcess) Synopsis() string {
	return "start one instance of a configured process"
}

// Usage implements subcommands.Command.Usage.
func (*StartProcess) Usage() string {
	return `start-process <name> - start one instance of a configured process
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*StartProcess) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*StartProcess) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)
	g := args[0].(*Globals)

	sup := newSupervisor(g)
	defer sup.Close()

	pid, err := sup.StartProcess(name)
	if err != nil {
		util.FatalErr(err)
	}
	fmt.Printf("Started process %s with PID %d\n", name, pid)
	return subcommands.ExitSuccess
}
