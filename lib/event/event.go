// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package event emits structured JSON line events for external
// integrations. Emission is best effort: a broken sink never fails
// the operation that produced the event.
package event

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sv-project/sv/lib/clock"
	"github.com/sv-project/sv/lib/sverr"
)

// SchemaVersion tags every emitted event.
const SchemaVersion = "sv.event.v1"

// Kind names what happened.
type Kind string

const (
	LeaseCreated     Kind = "lease_created"
	LeaseReleased    Kind = "lease_released"
	WorkspaceCreated Kind = "workspace_created"
	WorkspaceRemoved Kind = "workspace_removed"
	CommitBlocked    Kind = "commit_blocked"
	CommitCreated    Kind = "commit_created"
)

// Event is one emitted record.
type Event struct {
	SchemaVersion string          `json:"schema_version"`
	Event         Kind            `json:"event"`
	Timestamp     time.Time       `json:"timestamp"`
	Actor         string          `json:"actor,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// New stamps an event with the current time.
func New(clk clock.Clock, kind Kind, actor string) *Event {
	return &Event{
		SchemaVersion: SchemaVersion,
		Event:         kind,
		Timestamp:     clk.Now().UTC(),
		Actor:         actor,
	}
}

// WithData attaches a JSON payload.
func (e *Event) WithData(data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, sverr.Wrap(sverr.Internal, err, "encoding event payload")
	}
	e.Data = raw
	return e, nil
}

// Destination is where events go: stdout ("-") or an append-only
// file. A nil destination means events are disabled.
type Destination struct {
	stdout bool
	path   string
}

// ParseDestination interprets the configured sink value. Empty or
// whitespace disables events.
func ParseDestination(raw string) *Destination {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if trimmed == "-" {
		return &Destination{stdout: true}
	}
	return &Destination{path: trimmed}
}

// Open returns a ready sink for the destination.
func (d *Destination) Open() (*Sink, error) {
	if d.stdout {
		return &Sink{w: os.Stdout}, nil
	}
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, sverr.Wrap(sverr.Internal, err, "opening event sink %s", d.path)
	}
	return &Sink{w: f, closer: f}, nil
}

// Sink writes events as JSON lines.
type Sink struct {
	w      io.Writer
	closer io.Closer
}

// NewSink wraps an arbitrary writer, for tests and embedding.
func NewSink(w io.Writer) *Sink { return &Sink{w: w} }

// Emit writes one event followed by a newline.
func (s *Sink) Emit(e *Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return sverr.Wrap(sverr.Internal, err, "encoding event")
	}
	if _, err := s.w.Write(append(raw, '\n')); err != nil {
		return sverr.Wrap(sverr.Internal, err, "writing event")
	}
	return nil
}

// Close releases the underlying file, when there is one.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Emitter binds a destination, clock, and actor so call sites emit in
// one line. A nil emitter silently drops events.
type Emitter struct {
	dest  *Destination
	clk   clock.Clock
	actor string
}

// NewEmitter builds an emitter, nil when the destination is disabled.
func NewEmitter(dest *Destination, clk clock.Clock, actor string) *Emitter {
	if dest == nil {
		return nil
	}
	return &Emitter{dest: dest, clk: clk, actor: actor}
}

// Emit opens the sink, writes one event with the payload, and closes
// it. Errors are returned but callers are expected to ignore them.
func (em *Emitter) Emit(kind Kind, data any) error {
	if em == nil {
		return nil
	}
	e := New(em.clk, kind, em.actor)
	if data != nil {
		if _, err := e.WithData(data); err != nil {
			return err
		}
	}
	sink, err := em.dest.Open()
	if err != nil {
		return err
	}
	defer sink.Close()
	return sink.Emit(e)
}
