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

// Package errdefs defines the daemon's error kinds and their mapping to
// process exit codes, loosely following sysexits(3).
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for exit-code mapping and matching with errors.Is.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindConfig
	KindAlreadyRunning
	KindNotRunning
	KindStartFailed
	KindStopFailed
	KindRestartFailed
	KindLockFile
	KindPidFile
	KindIO
	KindTOMLParse
	KindDaemonize
	KindSignal
	KindProcessNotFound
)

// Exit codes, approximately sysexits(3).
const (
	codeGeneric  = 1
	codeData     = 65 // EX_DATAERR
	codeSoftware = 70 // EX_SOFTWARE
	codeInternal = 71 // EX_OSERR, used for start/stop/restart failures
	codeIO       = 74 // EX_IOERR
	codeTempFail = 75 // EX_TEMPFAIL
	codeConfig   = 78 // EX_CONFIG
)

// Error is the daemon error type. Name and PID are set for kinds that carry
// them; Reason or Err holds detail.
type Error struct {
	Kind   Kind
	Name   string
	PID    int
	Reason string
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	switch e.Kind {
	case KindConfig:
		return fmt.Sprintf("configuration error: %s", e.detail())
	case KindAlreadyRunning:
		return fmt.Sprintf("process %q is already running (PID: %d)", e.Name, e.PID)
	case KindNotRunning:
		return fmt.Sprintf("process %q is not running", e.Name)
	case KindStartFailed:
		return fmt.Sprintf("failed to start process %q: %s", e.Name, e.detail())
	case KindStopFailed:
		return fmt.Sprintf("failed to stop process %q: %s", e.Name, e.detail())
	case KindRestartFailed:
		return fmt.Sprintf("failed to restart process %q: %s", e.Name, e.detail())
	case KindLockFile:
		return fmt.Sprintf("lock file error: %s", e.detail())
	case KindPidFile:
		return fmt.Sprintf("PID file error: %s", e.detail())
	case KindIO:
		return fmt.Sprintf("I/O error: %s", e.detail())
	case KindTOMLParse:
		return fmt.Sprintf("TOML parse error: %s", e.detail())
	case KindDaemonize:
		return fmt.Sprintf("daemonization error: %s", e.detail())
	case KindSignal:
		return fmt.Sprintf("signal error: %s", e.detail())
	case KindProcessNotFound:
		return "process not found"
	}
	return e.detail()
}

func (e *Error) detail() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches against another *Error by kind, so that
// errors.Is(err, errdefs.NotRunning("")) works regardless of detail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Config returns a configuration error.
func Config(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Reason: fmt.Sprintf(format, args...)}
}

// AlreadyRunning reports that name is already running under pid.
func AlreadyRunning(name string, pid int) *Error {
	return &Error{Kind: KindAlreadyRunning, Name: name, PID: pid}
}

// NotRunning reports that name has no live instances.
func NotRunning(name string) *Error {
	return &Error{Kind: KindNotRunning, Name: name}
}

// StartFailed reports a spawn failure.
func StartFailed(name, reason string) *Error {
	return &Error{Kind: KindStartFailed, Name: name, Reason: reason}
}

// StopFailed reports a termination failure.
func StopFailed(name, reason string) *Error {
	return &Error{Kind: KindStopFailed, Name: name, Reason: reason}
}

// RestartFailed reports a restart failure.
func RestartFailed(name, reason string) *Error {
	return &Error{Kind: KindRestartFailed, Name: name, Reason: reason}
}

// LockFile reports a lock-file problem.
func LockFile(format string, args ...any) *Error {
	return &Error{Kind: KindLockFile, Reason: fmt.Sprintf(format, args...)}
}

// PidFile reports a PID-file problem.
func PidFile(format string, args ...any) *Error {
	return &Error{Kind: KindPidFile, Reason: fmt.Sprintf(format, args...)}
}

// IO wraps an I/O error.
func IO(err error) *Error {
	return &Error{Kind: KindIO, Err: err}
}

// TOMLParse reports a config syntax error.
func TOMLParse(err error) *Error {
	return &Error{Kind: KindTOMLParse, Err: err}
}

// Daemonize reports a detach failure.
func Daemonize(err error) *Error {
	return &Error{Kind: KindDaemonize, Err: err}
}

// Signal reports a signal-delivery problem.
func Signal(format string, args ...any) *Error {
	return &Error{Kind: KindSignal, Reason: fmt.Sprintf(format, args...)}
}

// ProcessNotFound reports a name absent from the configuration.
func ProcessNotFound() *Error {
	return &Error{Kind: KindProcessNotFound}
}

// ExitCode maps err to the exit code the CLI should terminate with.
func ExitCode(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return codeGeneric
	}
	switch e.Kind {
	case KindConfig:
		return codeConfig
	case KindStartFailed, KindStopFailed, KindRestartFailed:
		return codeInternal
	case KindLockFile, KindPidFile, KindDaemonize:
		return codeTempFail
	case KindIO:
		return codeIO
	case KindTOMLParse:
		return codeData
	case KindSignal:
		return codeSoftware
	default:
		return codeGeneric
	}
}
