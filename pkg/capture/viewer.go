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
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/hpcloud/tail"
)

// Viewer reads a per-process log file written by Capture.
type Viewer struct {
	logFile string
}

// NewViewer returns a viewer over logFile.
func NewViewer(logFile string) *Viewer {
	return &Viewer{logFile: logFile}
}

// Tail returns the last n lines of the log file.
func (v *Viewer) Tail(n int) ([]string, error) {
	lines, err := v.readAll()
	if err != nil {
		return nil, err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Follow yields lines as they are appended. The returned stop function
// ends the stream and closes the channel. If the file does not exist yet,
// Follow waits for it by polling once per second.
func (v *Viewer) Follow() (<-chan string, func(), error) {
	out := make(chan string, 64)
	stop := make(chan struct{})

	go func() {
		defer close(out)

		// Wait for the file to appear.
		wait := backoff.NewConstantBackOff(time.Second)
		for {
			if _, err := os.Stat(v.logFile); err == nil {
				break
			}
			select {
			case <-stop:
				return
			case <-time.After(wait.NextBackOff()):
			}
		}

		t, err := tail.TailFile(v.logFile, tail.Config{
			Follow: true,
			ReOpen: true,
			Logger: tail.DiscardingLogger,
		})
		if err != nil {
			return
		}
		defer t.Cleanup()
		for {
			select {
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					continue
				}
				select {
				case out <- line.Text:
				case <-stop:
					t.Stop()
					return
				}
			case <-stop:
				t.Stop()
				return
			}
		}
	}()

	var once bool
	return out, func() {
		if !once {
			once = true
			close(stop)
		}
	}, nil
}

// Since returns the lines whose timestamp is at or after now minus the
// given number of seconds. Lines without a parsable timestamp prefix are
// excluded.
func (v *Viewer) Since(seconds int64) ([]string, error) {
	lines, err := v.readAll()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-time.Duration(seconds) * time.Second)

	var filtered []string
	for _, line := range lines {
		ts, ok := parseLineTime(line)
		if !ok {
			continue
		}
		if !ts.Before(cutoff) {
			filtered = append(filtered, line)
		}
	}
	return filtered, nil
}

func (v *Viewer) readAll() ([]string, error) {
	f, err := os.Open(v.logFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// parseLineTime extracts the "[YYYY-MM-DD HH:MM:SS]" prefix.
func parseLineTime(line string) (time.Time, bool) {
	if !strings.HasPrefix(line, "[") {
		return time.Time{}, false
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(TimeLayout, line[1:end])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
