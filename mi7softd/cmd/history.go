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
	"time"

	"github.com/google/subcommands"
	"github.com/gx1727/mi7soft-daemon/mi7softd/cmd/util"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"github.com/gx1727/mi7soft-daemon/pkg/history"
)

// History implements subcommands.Command for the "history" command.
type History struct {
	number int
	stats  bool
}

// Name implements subcommands.Command.Name.
func (*History) Name() string {
	return "history"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*History) Synopsis() string {
	return "show start/end history of a process"
}

// Usage implements subcommands.Command.Usage.
func (*History) Usage() string {
	return `history [flags] <name> - show start/end history of a process
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (h *History) SetFlags(f *flag.FlagSet) {
	f.IntVar(&h.number, "number", 10, "number of records to show")
	f.BoolVar(&h.stats, "stats", false, "show aggregate statistics instead of raw records")
}

// Execute implements subcommands.Command.Execute.
func (h *History) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)

	store, err := history.Open(history.DefaultPath())
	if err != nil {
		util.FatalErr(errdefs.IO(err))
	}
	defer store.Close()

	if h.stats {
		st, err := store.GetStats(name)
		if err != nil {
			util.FatalErr(errdefs.IO(err))
		}
		if st == nil {
			fmt.Printf("No history for process %s\n", name)
			return subcommands.ExitSuccess
		}
		fmt.Printf("Stats for process %s:\n", name)
		fmt.Printf("  starts: %d, restarts: %d, failures: %d\n",
			st.TotalStarts, st.TotalRestarts, st.TotalFailures)
		fmt.Printf("  average uptime: %.1fs\n", st.AvgUptimeSeconds)
		if st.LastStartTime != nil {
			fmt.Printf("  last start: %s\n", st.LastStartTime.Format(time.RFC3339))
		}
		if st.LastExitCode != nil {
			fmt.Printf("  last exit code: %d\n", *st.LastExitCode)
		}
		return subcommands.ExitSuccess
	}

	records, err := store.GetHistory(name, h.number)
	if err != nil {
		util.FatalErr(errdefs.IO(err))
	}
	if len(records) == 0 {
		fmt.Printf("No history for process %s\n", name)
		return subcommands.ExitSuccess
	}
	fmt.Printf("History for process %s:\n", name)
	for _, rec := range records {
		end := "still running"
		if rec.EndTime != nil {
			end = rec.EndTime.Format(time.RFC3339)
			if rec.ExitCode != nil {
				end = fmt.Sprintf("%s (exit %d)", end, *rec.ExitCode)
			}
		}
		fmt.Printf("  #%d PID %d started %s, ended %s\n",
			rec.ID, rec.Pid, rec.StartTime.Format(time.RFC3339), end)
	}
	return subcommands.ExitSuccess
}
