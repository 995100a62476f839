// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"time"

	"github.com/sv-project/sv/lib/lockfile"
	"github.com/sv-project/sv/lib/sverr"
)

// ConflictRecord is a persisted replay conflict.
type ConflictRecord struct {
	CommitID     string     `json:"commit_id"`
	Files        []string   `json:"files"`
	HoistID      string     `json:"hoist_id,omitempty"`
	SourceCommit string     `json:"source_commit,omitempty"`
	Note         string     `json:"note,omitempty"`
	RecordedAt   time.Time  `json:"recorded_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether the record has been marked resolved.
func (c *ConflictRecord) Resolved() bool { return c.ResolvedAt != nil }

// AppendConflict records a conflict in the shared conflict log.
func (s *Storage) AppendConflict(record ConflictRecord) error {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = s.clk.Now().UTC()
	}
	return s.AppendJSONL(s.ConflictsFile(), record)
}

// LoadConflicts reads every conflict record, oldest first.
func (s *Storage) LoadConflicts() ([]ConflictRecord, error) {
	var records []ConflictRecord
	err := lockfile.WithLock(s.clk, LockFor(s.ConflictsFile()), func() error {
		var err error
		records, err = ReadJSONL[ConflictRecord](s.ConflictsFile())
		return err
	})
	return records, err
}

// UnresolvedConflicts returns records not yet marked resolved.
func (s *Storage) UnresolvedConflicts() ([]ConflictRecord, error) {
	records, err := s.LoadConflicts()
	if err != nil {
		return nil, err
	}
	var open []ConflictRecord
	for _, record := range records {
		if !record.Resolved() {
			open = append(open, record)
		}
	}
	return open, nil
}

// MarkConflictResolved stamps every unresolved record for a commit.
func (s *Storage) MarkConflictResolved(commitID string) error {
	return lockfile.WithLock(s.clk, LockFor(s.ConflictsFile()), func() error {
		records, err := ReadJSONL[ConflictRecord](s.ConflictsFile())
		if err != nil {
			return err
		}
		now := s.clk.Now().UTC()
		found := false
		for i := range records {
			if records[i].CommitID == commitID && !records[i].Resolved() {
				records[i].ResolvedAt = &now
				found = true
			}
		}
		if !found {
			return sverr.Validationf("no unresolved conflict for commit %s", commitID)
		}
		return WriteJSONL(s.ConflictsFile(), records)
	})
}
