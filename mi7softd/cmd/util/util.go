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

// Package util groups miscellaneous common helpers for the command
// implementations.
package util

import (
	"fmt"
	"io"
	"os"

	"github.com/gx1727/mi7soft-daemon/pkg/errdefs"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the operator's terminal and, when set, by the daemon's
// own log file.
var ErrorLogger io.Writer

// Fatalf logs a message to stderr and exits with a generic failure code.
func Fatalf(format string, args ...any) {
	writeError(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// FatalErr logs err and exits with the exit code mapped from its kind.
func FatalErr(err error) {
	writeError(err.Error())
	os.Exit(errdefs.ExitCode(err))
}

func writeError(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	if ErrorLogger != nil {
		fmt.Fprintf(ErrorLogger, "Error: %s\n", msg)
	}
}
