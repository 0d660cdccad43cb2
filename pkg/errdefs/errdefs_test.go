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

package errdefs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodes(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{Config("bad"), 78},
		{AlreadyRunning("daemon", 1234), 1},
		{NotRunning("web"), 1},
		{StartFailed("web", "no such file"), 71},
		{StopFailed("web", "kill failed"), 71},
		{RestartFailed("web", "spawn failed"), 71},
		{LockFile("held"), 75},
		{PidFile("unwritable"), 75},
		{Daemonize(errors.New("fork failed")), 75},
		{IO(io.ErrUnexpectedEOF), 74},
		{TOMLParse(errors.New("bad syntax")), 65},
		{Signal("undeliverable"), 70},
		{ProcessNotFound(), 1},
		{errors.New("plain"), 1},
	} {
		assert.Equal(t, tc.code, ExitCode(tc.err), "error: %v", tc.err)
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, `process "web" is already running (PID: 42)`, AlreadyRunning("web", 42).Error())
	assert.Equal(t, `process "web" is not running`, NotRunning("web").Error())
	assert.Equal(t, `failed to start process "web": Max instances (2) reached`,
		StartFailed("web", "Max instances (2) reached").Error())
}

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotRunning("web"))
	assert.True(t, errors.Is(err, NotRunning("anything")))
	assert.False(t, errors.Is(err, StartFailed("web", "x")))
}

func TestUnwrap(t *testing.T) {
	cause := io.ErrClosedPipe
	assert.True(t, errors.Is(IO(cause), io.ErrClosedPipe))
}
