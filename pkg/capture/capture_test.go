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
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lineRe = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[(OUT|ERR)\] (hello|oops)$`)

func waitDone(t *testing.T, c *Capture) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not drain")
	}
}

func TestCaptureFormatsLines(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "chatty.log")

	c := New("chatty", logFile, 0)
	c.Start(strings.NewReader("hello\n"), strings.NewReader("oops\n"))
	waitDone(t, c)

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Regexp(t, lineRe, line)
	}
}

func TestCaptureSeparatesStreams(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "p.log")

	c := New("p", logFile, 0)
	c.Start(strings.NewReader("hello\n"), strings.NewReader("oops\n"))
	waitDone(t, c)

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[OUT] hello")
	assert.Contains(t, string(content), "[ERR] oops")
}

func TestCaptureAppends(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "p.log")
	require.NoError(t, os.WriteFile(logFile, []byte("existing\n"), 0644))

	c := New("p", logFile, 0)
	c.Start(strings.NewReader("hello\n"), strings.NewReader(""))
	waitDone(t, c)

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "existing\n"))
	assert.Contains(t, string(content), "hello")
}

func TestCaptureEmptyStreams(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "p.log")

	c := New("p", logFile, 0)
	c.Start(strings.NewReader(""), strings.NewReader(""))
	waitDone(t, c)

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestCaptureManyLines(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "p.log")

	var sb strings.Builder
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	c := New("p", logFile, 0)
	c.Start(strings.NewReader(sb.String()), strings.NewReader(""))
	waitDone(t, c)

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, 5000, strings.Count(string(content), "\n"))
}

func TestStreamString(t *testing.T) {
	assert.Equal(t, "OUT", Out.String())
	assert.Equal(t, "ERR", Err.String())
}
