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

package supervisor

import (
	"fmt"

	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"github.com/gx1727/mi7soft-daemon/pkg/pidfile"
	"github.com/shirou/gopsutil/v3/process"
)

// State is the observed condition of one child.
type State int

const (
	// Running means the PID answered the null signal.
	Running State = iota
	// Stopped means the child was deliberately terminated.
	Stopped
	// Dead means the PID no longer answers.
	Dead
	// Unknown covers probe failures.
	Unknown
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Dead:
		return "Dead"
	}
	return "Unknown"
}

// ChildStatus is the transient view rendered by the status command. It is
// derived on demand and never stored.
type ChildStatus struct {
	Name          string
	Pid           int
	State         State
	UptimeSeconds int64
	RSSBytes      uint64
}

// String renders the one-line human form.
func (c ChildStatus) String() string {
	if c.RSSBytes > 0 {
		return fmt.Sprintf("%s (PID: %d, State: %s, Uptime: %ds, RSS: %d bytes)",
			c.Name, c.Pid, c.State, c.UptimeSeconds, c.RSSBytes)
	}
	return fmt.Sprintf("%s (PID: %d, State: %s, Uptime: %ds)",
		c.Name, c.Pid, c.State, c.UptimeSeconds)
}

// Status derives the status of every instance of name. A name in the
// config but with no live instances is reported gracefully by the caller;
// a name with no records at all yields NotRunning.
func (s *Supervisor) Status(name string) ([]ChildStatus, error) {
	records := s.reg.Get(name)
	if len(records) == 0 {
		return nil, errdefs.NotRunning(name)
	}

	statuses := make([]ChildStatus, 0, len(records))
	for _, rec := range records {
		state := Dead
		if pidfile.Alive(rec.Pid) {
			state = Running
		}
		statuses = append(statuses, ChildStatus{
			Name:          rec.Name,
			Pid:           rec.Pid,
			State:         state,
			UptimeSeconds: rec.Uptime(),
			RSSBytes:      rssBytes(rec.Pid),
		})
	}
	return statuses, nil
}

// StatusAll derives the status of every tracked instance.
func (s *Supervisor) StatusAll() []ChildStatus {
	var all []ChildStatus
	for _, name := range s.reg.Names() {
		statuses, err := s.Status(name)
		if err != nil {
			continue
		}
		all = append(all, statuses...)
	}
	return all
}

// rssBytes returns the resident set size of pid, or 0 when it cannot be
// read.
func rssBytes(pid int) uint64 {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
