// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package hoist integrates commits from many workspace branches onto
// a single integration branch, deduplicating by Change-Id and
// replaying entirely in the object database.
package hoist

import (
	"os"
	"time"

	"github.com/sv-project/sv/lib/lockfile"
	"github.com/sv-project/sv/lib/store"
	"github.com/sv-project/sv/lib/sverr"
)

// Status is the lifecycle of a hoist run.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CommitStatus tracks one commit through a hoist run.
type CommitStatus string

const (
	CommitPending CommitStatus = "pending"
	CommitApplied CommitStatus = "applied"
	CommitSkipped CommitStatus = "skipped"
	// CommitConflict stopped the replay.
	CommitConflict CommitStatus = "conflict"
	// CommitInConflict was recorded and stepped over.
	CommitInConflict CommitStatus = "in_conflict"
)

// Commit is one source commit in a hoist run.
type Commit struct {
	CommitID  string       `json:"commit_id"`
	Status    CommitStatus `json:"status"`
	Workspace string       `json:"workspace,omitempty"`
	ChangeID  string       `json:"change_id,omitempty"`
	Summary   string       `json:"summary,omitempty"`
}

// State is the persisted record of a hoist run, keyed by dest ref.
type State struct {
	HoistID        string    `json:"hoist_id"`
	DestRef        string    `json:"dest_ref"`
	IntegrationRef string    `json:"integration_ref"`
	Status         Status    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Commits        []Commit  `json:"commits"`
}

// SaveState writes the state for its dest ref.
func SaveState(storage *store.Storage, state *State) error {
	path := storage.HoistStateFile(state.DestRef)
	return lockfile.WithLock(storage.Clock(), store.LockFor(path), func() error {
		return storage.WriteJSON(path, state)
	})
}

// LoadState reads the state for a dest ref, nil when none exists.
func LoadState(storage *store.Storage, destRef string) (*State, error) {
	path := storage.HoistStateFile(destRef)
	var state *State
	err := lockfile.WithLock(storage.Clock(), store.LockFor(path), func() error {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
		state = &State{}
		return storage.ReadJSON(path, state)
	})
	return state, err
}

// RemoveState deletes the persisted state for a dest ref.
func RemoveState(storage *store.Storage, destRef string) error {
	path := storage.HoistStateFile(destRef)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return sverr.Wrap(sverr.Internal, err, "removing %s", path)
	}
	return nil
}
