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

// Package pidfile implements the daemon's single-instance lock: an
// exclusively-created PID file whose holder is verified to be alive, with
// a flock(2) lock held on the open descriptor for the lifetime of the
// process.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"golang.org/x/sys/unix"
)

const fileMode = 0644

// PidFile owns the daemon's lock file. The zero value is not usable; call
// New.
type PidFile struct {
	path    string
	file    *os.File
	flock   *flock.Flock
	created bool
}

// New returns a manager for the lock file at path. No filesystem access
// happens until Acquire.
func New(path string) *PidFile {
	return &PidFile{path: path}
}

// Path returns the lock file path.
func (p *PidFile) Path() string {
	return p.path
}

// Acquire takes the single-instance lock and writes the current PID.
//
// If the file already exists and its recorded PID is alive, an
// AlreadyRunning error naming that PID is returned. A file with a dead,
// empty, or malformed PID is treated as stale: it is unlinked and the
// exclusive create is retried once. A PID recycled onto an unrelated live
// process is an accepted false positive.
func (p *PidFile) Acquire() error {
	// Best effort; the create below reports the real failure.
	_ = os.MkdirAll(filepath.Dir(p.path), 0755)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
		if err == nil {
			return p.claim(f)
		}
		if !os.IsExist(err) {
			return errdefs.PidFile("failed to create PID file %s: %v", p.path, err)
		}

		pid, readErr := ReadPid(p.path)
		if readErr == nil && pid > 0 && Alive(pid) {
			return errdefs.AlreadyRunning("daemon", pid)
		}
		// Stale or unreadable. Unlink and retry the exclusive create.
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			return errdefs.LockFile("failed to remove stale PID file %s: %v", p.path, err)
		}
	}
	return errdefs.LockFile("could not acquire %s: another instance is starting", p.path)
}

// claim writes our PID into the freshly created file and locks it.
func (p *PidFile) claim(f *os.File) error {
	fl := flock.New(p.path)
	locked, err := fl.TryLock()
	if err != nil {
		f.Close()
		return errdefs.LockFile("failed to lock %s: %v", p.path, err)
	}
	if !locked {
		// Another starter won the window between stat and create.
		f.Close()
		return errdefs.LockFile("PID file %s is locked by another instance", p.path)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		fl.Unlock()
		f.Close()
		return errdefs.PidFile("failed to write PID: %v", err)
	}
	if err := f.Sync(); err != nil {
		fl.Unlock()
		f.Close()
		return errdefs.PidFile("failed to sync PID file: %v", err)
	}

	// Hold both handles for the lifetime of the process.
	p.file = f
	p.flock = fl
	p.created = true
	return nil
}

// Release drops the lock and removes the file. Idempotent; the file is
// removed only if this instance created it.
func (p *PidFile) Release() error {
	if !p.created {
		return nil
	}
	if p.flock != nil {
		_ = p.flock.Unlock()
		p.flock = nil
	}
	if p.file != nil {
		_ = p.file.Close()
		p.file = nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errdefs.PidFile("failed to remove PID file: %v", err)
	}
	p.created = false
	return nil
}

// ReadPid reads the PID recorded at path. Returns 0 with no error if the
// file does not exist.
func ReadPid(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errdefs.PidFile("failed to read PID file: %v", err)
	}
	s := strings.TrimSpace(string(content))
	if s == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, errdefs.PidFile("invalid PID in %s: %q", path, s)
	}
	return pid, nil
}

// Alive reports whether pid names a process we could signal, using the
// null signal.
func Alive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
