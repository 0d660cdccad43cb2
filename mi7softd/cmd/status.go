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
	"errors"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/gx1727/mi7soft-daemon/mi7softd/cmd/util"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
)

// Status implements subcommands.Command for the "status" command.
type Status struct{}

// Name implements subcommands.Command.Name.
func (*Status) Name() string {
	return "status"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Status) Synopsis() string {
	return "show process status"
}

// Usage implements subcommands.Command.Usage.
func (*Status) Usage() string {
	return `status [name] - show status for one process, or for all when no name is given
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Status) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Status) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() > 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	g := args[0].(*Globals)

	sup := newSupervisor(g)
	defer sup.Close()

	if f.NArg() == 1 {
		name := f.Arg(0)
		statuses, err := sup.Status(name)
		if err != nil {
			// Configured but idle is not an error worth an exit code.
			if errors.Is(err, errdefs.NotRunning(name)) && g.Config.Find(name) != nil {
				fmt.Printf("Process %s is configured but has no live instances\n", name)
				return subcommands.ExitSuccess
			}
			util.FatalErr(err)
		}
		fmt.Printf("Status for process %s:\n", name)
		for _, st := range statuses {
			fmt.Printf("  %s\n", st)
		}
		return subcommands.ExitSuccess
	}

	fmt.Println("Status for all processes:")
	for _, st := range sup.StatusAll() {
		fmt.Printf("  %s\n", st)
	}
	return subcommands.ExitSuccess
}
