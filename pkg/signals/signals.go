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

// Package signals translates POSIX signals into the supervisor's domain
// events.
package signals

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Event is a domain event derived from a delivered signal.
type Event int

const (
	// Shutdown requests orderly termination. SIGTERM and SIGINT map here.
	Shutdown Event = iota
	// ReloadConfig requests a config reparse. SIGHUP maps here.
	ReloadConfig
)

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e {
	case Shutdown:
		return "shutdown"
	case ReloadConfig:
		return "reload-config"
	}
	return "unknown"
}

// Bridge forwards translated signal events to a single receiver. Delivery
// is at-least-once; consumers must treat duplicate Shutdown events as
// idempotent.
type Bridge struct {
	events chan Event
	raw    chan os.Signal
	done   chan struct{}
}

// New installs handlers for SIGTERM, SIGINT and SIGHUP and starts
// forwarding. Any other delivered signal is dropped by the translator.
func New() *Bridge {
	b := &Bridge{
		events: make(chan Event, 8),
		raw:    make(chan os.Signal, 8),
		done:   make(chan struct{}),
	}
	signal.Notify(b.raw, unix.SIGTERM, unix.SIGINT, unix.SIGHUP)
	go b.translate()
	return b
}

func (b *Bridge) translate() {
	defer close(b.events)
	for {
		select {
		case sig := <-b.raw:
			var ev Event
			switch sig {
			case unix.SIGTERM, unix.SIGINT:
				ev = Shutdown
			case unix.SIGHUP:
				ev = ReloadConfig
			default:
				continue
			}
			select {
			case b.events <- ev:
			case <-b.done:
				return
			}
		case <-b.done:
			return
		}
	}
}

// Events returns the receiver the supervisor selects on. The channel is
// closed when the bridge is closed; consumers observe end-of-stream.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Close uninstalls the handlers and closes the event stream. Safe to call
// once.
func (b *Bridge) Close() {
	signal.Stop(b.raw)
	close(b.done)
}
