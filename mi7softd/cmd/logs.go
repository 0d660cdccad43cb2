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
	"os/signal"

	"github.com/google/subcommands"
	"github.com/gx1727/mi7soft-daemon/mi7softd/cmd/util"
	"github.com/gx1727/mi7soft-daemon/pkg/capture"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"golang.org/x/sys/unix"
)

// Logs implements subcommands.Command for the "logs" command.
type Logs struct {
	lines  int
	follow bool
	since  int64
}

// Name implements subcommands.Command.Name.
func (*Logs) Name() string {
	return "logs"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Logs) Synopsis() string {
	return "show captured output of a process"
}

// Usage implements subcommands.Command.Usage.
func (*Logs) Usage() string {
	return `logs [flags] <name> - show captured output of a process
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Logs) SetFlags(f *flag.FlagSet) {
	f.IntVar(&l.lines, "lines", 50, "number of trailing lines to show")
	f.BoolVar(&l.follow, "follow", false, "keep the stream open and print new lines as they appear")
	f.Int64Var(&l.since, "since", 0, "only show lines from the last N seconds")
}

// Execute implements subcommands.Command.Execute.
func (l *Logs) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)
	g := args[0].(*Globals)

	pc := g.Config.Find(name)
	if pc == nil {
		util.FatalErr(errdefs.Config("process %q not found in config", name))
	}
	if pc.LogFile == "" {
		util.FatalErr(errdefs.Config("process %q has no log_file configured", name))
	}
	viewer := capture.NewViewer(pc.LogFile)

	switch {
	case l.follow:
		lines, stop, err := viewer.Follow()
		if err != nil {
			util.FatalErr(errdefs.IO(err))
		}
		defer stop()

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, unix.SIGINT, unix.SIGTERM)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return subcommands.ExitSuccess
				}
				fmt.Println(line)
			case <-interrupt:
				return subcommands.ExitSuccess
			}
		}
	case l.since > 0:
		lines, err := viewer.Since(l.since)
		if err != nil {
			util.FatalErr(errdefs.IO(err))
		}
		printLines(lines)
	default:
		lines, err := viewer.Tail(l.lines)
		if err != nil {
			util.FatalErr(errdefs.IO(err))
		}
		printLines(lines)
	}
	return subcommands.ExitSuccess
}

func printLines(lines []string) {
	for _, line := range lines {
		fmt.Println(line)
	}
}
