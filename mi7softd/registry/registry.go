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

// Package registry tracks the live children of the supervisor, keyed by
// logical process name, and serializes that table to the state file so a
// restarted supervisor can reattach to surviving children.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gx1727/mi7soft-daemon/mi7softd/config"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"github.com/gx1727/mi7soft-daemon/pkg/pidfile"
	"github.com/sirupsen/logrus"
)

// Record is one live child: the tuple the supervisor needs to find, probe
// and terminate it, plus the config it was spawned under.
type Record struct {
	Name      string               `json:"name"`
	Pid       int                  `json:"pid"`
	StartTime int64                `json:"start_time"`
	Config    config.ProcessConfig `json:"config"`
}

// NewRecord builds a record for a child spawned now.
func NewRecord(cfg config.ProcessConfig, pid int) *Record {
	return &Record{
		Name:      cfg.Name,
		Pid:       pid,
		StartTime: time.Now().Unix(),
		Config:    cfg,
	}
}

// Uptime returns seconds since the child started.
func (r *Record) Uptime() int64 {
	up := time.Now().Unix() - r.StartTime
	if up < 0 {
		return 0
	}
	return up
}

// Registry is the in-memory child table. It is not internally locked: the
// supervisor loop is its only mutator, per the concurrency model.
type Registry struct {
	table map[string][]*Record
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{table: make(map[string][]*Record)}
}

// Insert adds a record, enforcing the per-name instance cap and rejecting
// duplicate (name, pid) pairs.
func (r *Registry) Insert(rec *Record) error {
	entries := r.table[rec.Name]
	for _, e := range entries {
		if e.Pid == rec.Pid {
			return errdefs.StartFailed(rec.Name, fmt.Sprintf("PID %d already registered", rec.Pid))
		}
	}
	if max := rec.Config.MaxInstances; max > 0 && len(entries) >= max {
		return errdefs.StartFailed(rec.Name, fmt.Sprintf("Max instances (%d) reached", max))
	}
	r.table[rec.Name] = append(entries, rec)
	return nil
}

// Get returns the records for name, in insertion order.
func (r *Registry) Get(name string) []*Record {
	return r.table[name]
}

// RemoveAll evicts and returns every record for name.
func (r *Registry) RemoveAll(name string) []*Record {
	entries := r.table[name]
	delete(r.table, name)
	return entries
}

// Remove evicts the record for (name, pid), if present.
func (r *Registry) Remove(name string, pid int) {
	entries := r.table[name]
	kept := entries[:0]
	for _, e := range entries {
		if e.Pid != pid {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(r.table, name)
		return
	}
	r.table[name] = kept
}

// Names returns the tracked process names, sorted for stable output.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.table))
	for name := range r.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every record, grouped by name in sorted-name order.
func (r *Registry) All() []*Record {
	var all []*Record
	for _, name := range r.Names() {
		all = append(all, r.table[name]...)
	}
	return all
}

// Len returns the total number of records.
func (r *Registry) Len() int {
	n := 0
	for _, entries := range r.table {
		n += len(entries)
	}
	return n
}

// snapshot is the on-disk form of the registry. The format is stable for
// one daemon version only.
type snapshot struct {
	SavedAt int64     `json:"saved_at"`
	Records []*Record `json:"records"`
}

// Save writes the registry atomically to path: temp sibling, fsync,
// rename.
func (r *Registry) Save(path string) error {
	snap := snapshot{SavedAt: time.Now().Unix(), Records: r.All()}
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return errdefs.IO(err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errdefs.IO(err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errdefs.IO(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errdefs.IO(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errdefs.IO(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errdefs.IO(err)
	}
	return nil
}

// Load replaces the table with the snapshot at path, discarding records
// whose PID is no longer alive. A missing state file yields an empty
// registry.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.table = make(map[string][]*Record)
			return nil
		}
		return errdefs.IO(err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errdefs.IO(fmt.Errorf("corrupt state file %s: %w", filepath.Base(path), err))
	}

	r.table = make(map[string][]*Record)
	for _, rec := range snap.Records {
		if rec.Name == "" || rec.Pid <= 0 {
			continue
		}
		if !pidfile.Alive(rec.Pid) {
			logrus.WithFields(logrus.Fields{
				"process": rec.Name,
				"pid":     rec.Pid,
			}).Debug("Dropping dead record from state file")
			continue
		}
		// Insertion-time invariants still apply to rehydrated records.
		if err := r.Insert(rec); err != nil {
			logrus.WithField("process", rec.Name).Warnf("Discarding state record: %v", err)
		}
	}
	return nil
}
