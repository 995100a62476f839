// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package event_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sv-project/sv/lib/clock"
	"github.com/sv-project/sv/lib/event"
)

func TestParseDestination(t *testing.T) {
	if event.ParseDestination("") != nil {
		t.Fatal("empty value should disable events")
	}
	if event.ParseDestination("   ") != nil {
		t.Fatal("whitespace value should disable events")
	}
	if event.ParseDestination("-") == nil {
		t.Fatal("dash should mean stdout")
	}
	if event.ParseDestination("events.jsonl") == nil {
		t.Fatal("path should mean file sink")
	}
}

func TestSinkEmitsJSONLines(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	var buf bytes.Buffer
	sink := event.NewSink(&buf)

	e := event.New(clk, event.LeaseCreated, "agent1")
	if _, err := e.WithData(map[string]string{"lease_id": "abc"}); err != nil {
		t.Fatalf("WithData: %v", err)
	}
	if err := sink.Emit(e); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	var decoded struct {
		SchemaVersion string    `json:"schema_version"`
		Event         string    `json:"event"`
		Timestamp     time.Time `json:"timestamp"`
		Actor         string    `json:"actor"`
		Data          struct {
			LeaseID string `json:"lease_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if decoded.SchemaVersion != event.SchemaVersion {
		t.Fatalf("schema = %s", decoded.SchemaVersion)
	}
	if decoded.Event != "lease_created" || decoded.Actor != "agent1" {
		t.Fatalf("event = %+v", decoded)
	}
	if decoded.Data.LeaseID != "abc" {
		t.Fatalf("data = %+v", decoded.Data)
	}
}

func TestEmitterAppendsToFile(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "events.jsonl")
	em := event.NewEmitter(event.ParseDestination(path), clk, "agent1")

	if err := em.Emit(event.CommitCreated, map[string]string{"commit": "abc123"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := em.Emit(event.CommitBlocked, nil); err != nil {
		t.Fatalf("Emit second: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading sink: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "commit_created") || !strings.Contains(lines[1], "commit_blocked") {
		t.Fatalf("lines = %v", lines)
	}
}

func TestNilEmitterDropsEvents(t *testing.T) {
	var em *event.Emitter
	if err := em.Emit(event.LeaseReleased, nil); err != nil {
		t.Fatalf("nil emitter errored: %v", err)
	}
}
