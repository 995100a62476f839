// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package oplog stores append-only operation records under the
// shared sv directory. Each record is one JSON file named by
// timestamp and operation id so a directory listing reads in order.
package oplog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sv-project/sv/lib/clock"
	"github.com/sv-project/sv/lib/lockfile"
	"github.com/sv-project/sv/lib/sverr"
)

// Record is one logged operation.
type Record struct {
	OpID               string    `json:"op_id"`
	Timestamp          time.Time `json:"timestamp"`
	Actor              string    `json:"actor,omitempty"`
	Command            string    `json:"command"`
	AffectedRefs       []string  `json:"affected_refs,omitempty"`
	AffectedWorkspaces []string  `json:"affected_workspaces,omitempty"`
	Outcome            Outcome   `json:"outcome"`
	Details            *Details  `json:"details,omitempty"`
	UndoData           *UndoData `json:"undo_data,omitempty"`
}

// Outcome summarizes how the operation ended.
type Outcome struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Success is the default outcome.
func Success() Outcome { return Outcome{Status: "success"} }

// Failed records a failure with its message.
func Failed(message string) Outcome {
	return Outcome{Status: "failed", Message: message}
}

// Details carries operation-specific context.
type Details struct {
	Commit *CommitDetails `json:"commit,omitempty"`
}

// CommitDetails describes a gated commit.
type CommitDetails struct {
	CommitHash     string   `json:"commit_hash"`
	ChangeID       string   `json:"change_id,omitempty"`
	Files          []string `json:"files,omitempty"`
	AllowProtected bool     `json:"allow_protected,omitempty"`
	ForceLease     bool     `json:"force_lease,omitempty"`
}

// UndoData captures what an operation changed, enough to reverse it.
type UndoData struct {
	RefUpdates       []RefUpdate       `json:"ref_updates,omitempty"`
	CreatedPaths     []string          `json:"created_paths,omitempty"`
	DeletedPaths     []string          `json:"deleted_paths,omitempty"`
	LeaseChanges     []LeaseChange     `json:"lease_changes,omitempty"`
	WorkspaceChanges []WorkspaceChange `json:"workspace_changes,omitempty"`
}

// RefUpdate records a ref move. A nil-equivalent empty Old means the
// ref was created; an empty New means it was deleted.
type RefUpdate struct {
	Name string `json:"name"`
	Old  string `json:"old,omitempty"`
	New  string `json:"new,omitempty"`
}

// LeaseChange records a lease status transition for undo.
type LeaseChange struct {
	LeaseID string `json:"lease_id"`
	Action  string `json:"action"`
}

// WorkspaceChange records a registry mutation for undo.
type WorkspaceChange struct {
	Name   string `json:"name"`
	Action string `json:"action"`
	Path   string `json:"path,omitempty"`
	Branch string `json:"branch,omitempty"`
	Base   string `json:"base,omitempty"`
}

// NewRecord builds a record stamped with a fresh op id.
func NewRecord(clk clock.Clock, command, actor string) *Record {
	return &Record{
		OpID:      uuid.NewString(),
		Timestamp: clk.Now().UTC(),
		Actor:     actor,
		Command:   command,
		Outcome:   Success(),
	}
}

// Log is an append-only record store rooted at a directory.
type Log struct {
	dir string
	clk clock.Clock
}

// New opens a log at dir. The directory is created on first append.
func New(dir string, clk clock.Clock) *Log {
	return &Log{dir: dir, clk: clk}
}

func (l *Log) lockPath() string { return filepath.Join(l.dir, "oplog.lock") }

// Append writes a record as its own file under the log lock,
// returning the file path. Appending over an existing entry is an
// error.
func (l *Log) Append(record *Record) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", sverr.Wrap(sverr.Internal, err, "creating %s", l.dir)
	}
	path := filepath.Join(l.dir, recordFilename(record))
	err := lockfile.WithLock(l.clk, l.lockPath(), func() error {
		if _, err := os.Stat(path); err == nil {
			return sverr.Internalf("oplog entry already exists: %s", path)
		}
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return sverr.Wrap(sverr.Internal, err, "encoding op record")
		}
		return lockfile.WriteAtomic(path, append(data, '\n'))
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// ReadAll returns every record in filename order (oldest first).
func (l *Log) ReadAll() ([]Record, error) {
	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return nil, nil
	}
	var records []Record
	err := lockfile.WithLock(l.clk, l.lockPath(), func() error {
		entries, err := os.ReadDir(l.dir)
		if err != nil {
			return sverr.Wrap(sverr.Internal, err, "listing %s", l.dir)
		}
		var names []string
		for _, entry := range entries {
			if filepath.Ext(entry.Name()) == ".json" {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			path := filepath.Join(l.dir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				return sverr.Wrap(sverr.Internal, err, "reading %s", path)
			}
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return sverr.Wrap(sverr.Internal, err, "decoding %s", path)
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

// Filter selects records when listing.
type Filter struct {
	Actor     string
	Since     time.Time
	Until     time.Time
	Operation string
}

// Matches reports whether a record passes the filter.
func (f *Filter) Matches(record *Record) bool {
	if f.Actor != "" && record.Actor != f.Actor {
		return false
	}
	if !f.Since.IsZero() && record.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && record.Timestamp.After(f.Until) {
		return false
	}
	if f.Operation != "" && operationFromCommand(record.Command) != f.Operation {
		return false
	}
	return true
}

// ReadFiltered returns matching records newest first, truncated to
// limit when limit is positive.
func (l *Log) ReadFiltered(filter Filter, limit int) ([]Record, error) {
	records, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[j].Timestamp.Before(records[i].Timestamp)
	})
	var filtered []Record
	for i := range records {
		if filter.Matches(&records[i]) {
			filtered = append(filtered, records[i])
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// Find returns the record whose op id matches exactly or by unique
// prefix. No match or an ambiguous prefix is a validation error.
func (l *Log) Find(idOrPrefix string) (*Record, error) {
	records, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	var matches []*Record
	for i := range records {
		if records[i].OpID == idOrPrefix {
			return &records[i], nil
		}
		if strings.HasPrefix(records[i].OpID, idOrPrefix) {
			matches = append(matches, &records[i])
		}
	}
	switch len(matches) {
	case 0:
		return nil, sverr.Validationf("no operation matching %q", idOrPrefix)
	case 1:
		return matches[0], nil
	}
	return nil, sverr.Validationf("operation id %q is ambiguous (%d matches)", idOrPrefix, len(matches))
}

// Latest returns the most recent record, or nil when the log is empty.
func (l *Log) Latest() (*Record, error) {
	records, err := l.ReadFiltered(Filter{}, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// FormatRecord renders one record as a single log line.
func FormatRecord(record *Record) string {
	actor := record.Actor
	if actor == "" {
		actor = "-"
	}
	refs := "-"
	if len(record.AffectedRefs) > 0 {
		refs = strings.Join(record.AffectedRefs, ",")
	}
	workspaces := "-"
	if len(record.AffectedWorkspaces) > 0 {
		workspaces = strings.Join(record.AffectedWorkspaces, ",")
	}
	outcome := record.Outcome.Status
	if record.Outcome.Message != "" {
		outcome = fmt.Sprintf("%s (%s)", record.Outcome.Status, record.Outcome.Message)
	}
	line := fmt.Sprintf("%s %s actor=%s outcome=%s command=%q refs=[%s] workspaces=[%s]",
		record.Timestamp.Format(time.RFC3339), record.OpID, actor, outcome,
		record.Command, refs, workspaces)
	return line + formatDetails(record)
}

func formatDetails(record *Record) string {
	if record.Details == nil || record.Details.Commit == nil {
		return ""
	}
	commit := record.Details.Commit
	parts := []string{"commit=" + commit.CommitHash}
	if commit.ChangeID != "" {
		parts = append(parts, "change_id="+commit.ChangeID)
	}
	if len(commit.Files) > 0 {
		parts = append(parts, fmt.Sprintf("files=%d", len(commit.Files)))
	}
	var overrides []string
	if commit.AllowProtected {
		overrides = append(overrides, "allow_protected")
	}
	if commit.ForceLease {
		overrides = append(overrides, "force_lease")
	}
	if len(overrides) > 0 {
		parts = append(parts, "overrides="+strings.Join(overrides, ","))
	}
	return " details=[" + strings.Join(parts, " ") + "]"
}

func operationFromCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	if fields[0] == "sv" && len(fields) > 1 {
		return fields[1]
	}
	return fields[0]
}

func recordFilename(record *Record) string {
	ts := record.Timestamp.UTC().Format("20060102T150405.000Z")
	return fmt.Sprintf("%s-%s.json", ts, record.OpID)
}
