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

// Package capture drains a child's stdout/stderr into a timestamped
// per-process log file, and provides the viewer used by the logs command.
package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TimeLayout is the timestamp prefix format of every captured line.
const TimeLayout = "2006-01-02 15:04:05"

// Stream identifies which pipe a line came from.
type Stream int

const (
	// Out is the child's stdout.
	Out Stream = iota
	// Err is the child's stderr.
	Err
)

// String implements fmt.Stringer.
func (s Stream) String() string {
	if s == Err {
		return "ERR"
	}
	return "OUT"
}

// Line is one decoded line of child output.
type Line struct {
	Timestamp int64
	Stream    Stream
	Content   string
}

// lineQueueDepth bounds the in-process queue between the pipe readers and
// the file writer. The writer drains continuously, so the bound only
// matters if the log file stalls.
const lineQueueDepth = 1024

// Capture owns the reader and writer tasks for one child. Create with New,
// then call Start with the child's pipes.
type Capture struct {
	name    string
	logFile string
	maxSize int64

	lines chan Line
	done  chan struct{}
	log   *logrus.Entry
}

// New returns a capture writing to logFile. maxSize of 0 disables the size
// warning.
func New(name, logFile string, maxSize int64) *Capture {
	return &Capture{
		name:    name,
		logFile: logFile,
		maxSize: maxSize,
		lines:   make(chan Line, lineQueueDepth),
		done:    make(chan struct{}),
		log:     logrus.WithField("process", name),
	}
}

// Start launches the two pipe readers and the file writer. It returns
// immediately; Done is closed once both pipes have reached EOF and the
// writer has drained the queue.
func (c *Capture) Start(stdout, stderr io.Reader) {
	var g errgroup.Group
	g.Go(func() error { return c.read(stdout, Out) })
	g.Go(func() error { return c.read(stderr, Err) })

	go func() {
		// Both pipes at EOF means the child has closed its output.
		_ = g.Wait()
		close(c.lines)
	}()
	go c.write()
}

// Done is closed when capture has fully drained.
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

func (c *Capture) read(r io.Reader, stream Stream) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		c.lines <- Line{
			Timestamp: time.Now().Unix(),
			Stream:    stream,
			Content:   scanner.Text(),
		}
	}
	return scanner.Err()
}

func (c *Capture) write() {
	defer close(c.done)

	f, err := os.OpenFile(c.logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		c.log.WithField("path", c.logFile).Errorf("Failed to open log file: %v", err)
		// Drain so the readers never block on a full queue.
		for range c.lines {
		}
		return
	}
	defer f.Close()

	c.log.WithField("path", c.logFile).Debug("Log writer started")
	warned := false
	for line := range c.lines {
		formatted := fmt.Sprintf("[%s] [%s] %s\n",
			time.Unix(line.Timestamp, 0).UTC().Format(TimeLayout),
			line.Stream, line.Content)
		if _, err := f.WriteString(formatted); err != nil {
			c.log.Errorf("Failed to write log: %v", err)
			continue
		}
		if c.maxSize > 0 && !warned {
			if info, err := f.Stat(); err == nil && info.Size() > c.maxSize {
				c.log.WithFields(logrus.Fields{
					"size": info.Size(),
					"max":  c.maxSize,
				}).Warn("Log file size exceeded")
				warned = true
			}
		}
	}
	c.log.Debug("Log writer stopped")
}
