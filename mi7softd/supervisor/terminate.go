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
	"time"

	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
	"github.com/gx1727/mi7soft-daemon/pkg/pidfile"
	"golang.org/x/sys/unix"
)

const (
	// termPollInterval is the liveness poll period between SIGTERM and the
	// SIGKILL fallback.
	termPollInterval = 100 * time.Millisecond
	// termPollCount bounds the graceful wait at 5 seconds.
	termPollCount = 50
)

// Terminate implements the two-phase stop: SIGTERM, a bounded liveness
// poll, then SIGKILL. A failed SIGTERM is tolerated (the process may
// already be gone); a failed SIGKILL against a still-live process is not.
func Terminate(pid int) error {
	_ = unix.Kill(pid, unix.SIGTERM)

	for i := 0; i < termPollCount; i++ {
		time.Sleep(termPollInterval)
		if !pidfile.Alive(pid) {
			return nil
		}
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && pidfile.Alive(pid) {
		return errdefs.StopFailed(fmt.Sprintf("PID %d", pid), fmt.Sprintf("SIGKILL failed: %v", err))
	}
	time.Sleep(termPollInterval)
	return nil
}
