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

package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formatLine(ts time.Time, stream Stream, content string) string {
	return fmt.Sprintf("[%s] [%s] %s", ts.UTC().Format(TimeLayout), stream, content)
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "p.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestTail(t *testing.T) {
	now := time.Now()
	path := writeLog(t,
		formatLine(now, Out, "one"),
		formatLine(now, Out, "two"),
		formatLine(now, Err, "three"),
	)

	v := NewViewer(path)
	lines, err := v.Tail(2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "two")
	assert.Contains(t, lines[1], "three")

	// Asking for more than exists returns everything.
	lines, err = v.Tail(100)
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestTailMissingFile(t *testing.T) {
	v := NewViewer(filepath.Join(t.TempDir(), "nope.log"))
	_, err := v.Tail(10)
	require.Error(t, err)
}

func TestSinceFiltersByTimestamp(t *testing.T) {
	now := time.Now()
	path := writeLog(t,
		formatLine(now.Add(-2*time.Hour), Out, "old"),
		formatLine(now.Add(-30*time.Second), Out, "recent"),
		formatLine(now, Err, "fresh"),
	)

	v := NewViewer(path)
	lines, err := v.Since(60)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "recent")
	assert.Contains(t, lines[1], "fresh")
}

func TestSinceSkipsUnparsableLines(t *testing.T) {
	now := time.Now()
	path := writeLog(t,
		"garbage without a timestamp",
		formatLine(now, Out, "fresh"),
	)

	v := NewViewer(path)
	lines, err := v.Since(60)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "fresh")
}

func TestFollowDeliversExistingLines(t *testing.T) {
	now := time.Now()
	path := writeLog(t,
		formatLine(now, Out, "first"),
		formatLine(now, Out, "second"),
	)

	v := NewViewer(path)
	lines, stop, err := v.Follow()
	require.NoError(t, err)
	defer stop()

	var got []string
	timeout := time.After(10 * time.Second)
	for len(got) < 2 {
		select {
		case line := <-lines:
			got = append(got, line)
		case <-timeout:
			t.Fatalf("only received %d lines", len(got))
		}
	}
	assert.Contains(t, got[0], "first")
	assert.Contains(t, got[1], "second")
}

func TestParseLineTime(t *testing.T) {
	ts, ok := parseLineTime("[2024-03-01 10:20:30] [OUT] hi")
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())
	assert.Equal(t, 30, ts.Second())

	_, ok = parseLineTime("no brackets here")
	assert.False(t, ok)
	_, ok = parseLineTime("[not a time] x")
	assert.False(t, ok)
}
