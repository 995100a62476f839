// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package undo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sv-project/sv/lib/clock"
	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/oplog"
	"github.com/sv-project/sv/lib/store"
	"github.com/sv-project/sv/lib/sverr"
	"github.com/sv-project/sv/lib/testutil"
	"github.com/sv-project/sv/lib/undo"
)

type fixture struct {
	repo    *testutil.Repo
	gitRepo *git.Repository
	storage *store.Storage
	log     *oplog.Log
	clk     *clock.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	repo := testutil.NewRepo(t)
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	storage := store.New(filepath.Join(repo.Dir, ".git"), repo.Dir, clk)
	if err := storage.InitAll(); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		repo:    repo,
		gitRepo: git.NewRepository(repo.Dir),
		storage: storage,
		log:     oplog.New(storage.OplogDir(), clk),
		clk:     clk,
	}
}

func (f *fixture) appendRecord(t *testing.T, data *oplog.UndoData) *oplog.Record {
	t.Helper()
	record := oplog.NewRecord(f.clk, "sv test-op", "tester")
	record.UndoData = data
	if _, err := f.log.Append(record); err != nil {
		t.Fatal(err)
	}
	return record
}

func TestUndoRemovesCreatedPaths(t *testing.T) {
	f := setup(t)
	created := filepath.Join(f.repo.Dir, "worktree-a")
	if err := os.MkdirAll(created, 0o755); err != nil {
		t.Fatal(err)
	}
	record := f.appendRecord(t, &oplog.UndoData{CreatedPaths: []string{created}})

	summary, err := undo.Undo(context.Background(), f.storage, f.gitRepo, undo.Options{})
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if summary.OpID != record.OpID {
		t.Errorf("op id = %s, want %s", summary.OpID, record.OpID)
	}
	if _, err := os.Stat(created); !os.IsNotExist(err) {
		t.Error("created path still exists")
	}
	if len(summary.RemovedPaths) != 1 {
		t.Errorf("removed = %v", summary.RemovedPaths)
	}
}

func TestUndoLeavesNoRecord(t *testing.T) {
	f := setup(t)
	created := filepath.Join(f.repo.Dir, "worktree-d")
	if err := os.MkdirAll(created, 0o755); err != nil {
		t.Fatal(err)
	}
	f.appendRecord(t, &oplog.UndoData{CreatedPaths: []string{created}})

	if _, err := undo.Undo(context.Background(), f.storage, f.gitRepo, undo.Options{}); err != nil {
		t.Fatalf("undo: %v", err)
	}

	// Reversing an operation must not append one: the log still holds
	// only the original record.
	records, err := f.log.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("log has %d records after undo, want 1", len(records))
	}
}

func TestUndoKeepWorktreeSkipsDirectories(t *testing.T) {
	f := setup(t)
	created := filepath.Join(f.repo.Dir, "worktree-b")
	if err := os.MkdirAll(created, 0o755); err != nil {
		t.Fatal(err)
	}
	f.appendRecord(t, &oplog.UndoData{CreatedPaths: []string{created}})

	summary, err := undo.Undo(context.Background(), f.storage, f.gitRepo, undo.Options{KeepWorktree: true})
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, err := os.Stat(created); err != nil {
		t.Error("directory should have been kept")
	}
	if len(summary.SkippedPaths) != 1 {
		t.Errorf("skipped = %v", summary.SkippedPaths)
	}
}

func TestUndoRestoresRef(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.repo.Commit("A")
	b := f.repo.Commit("B")
	f.repo.Git("update-ref", "refs/heads/feature", b)

	f.appendRecord(t, &oplog.UndoData{RefUpdates: []oplog.RefUpdate{
		{Name: "refs/heads/feature", Old: a, New: b},
	}})

	if _, err := undo.Undo(ctx, f.storage, f.gitRepo, undo.Options{}); err != nil {
		t.Fatalf("undo: %v", err)
	}
	oid, err := f.gitRepo.ResolveRef(ctx, "refs/heads/feature")
	if err != nil {
		t.Fatal(err)
	}
	if oid != a {
		t.Errorf("feature = %s, want %s", oid, a)
	}
}

func TestUndoDeletesCreatedRef(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	oid := f.repo.Commit("A")
	f.repo.Git("update-ref", "refs/heads/scratch", oid)

	f.appendRecord(t, &oplog.UndoData{RefUpdates: []oplog.RefUpdate{
		{Name: "refs/heads/scratch", New: oid},
	}})

	if _, err := undo.Undo(ctx, f.storage, f.gitRepo, undo.Options{}); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if f.gitRepo.RefExists(ctx, "refs/heads/scratch") {
		t.Error("scratch ref should be gone")
	}
}

func TestUndoRefusesDeletedPaths(t *testing.T) {
	f := setup(t)
	f.appendRecord(t, &oplog.UndoData{DeletedPaths: []string{"/gone/forever"}})

	_, err := undo.Undo(context.Background(), f.storage, f.gitRepo, undo.Options{})
	if sverr.KindOf(err) != sverr.Conflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestUndoRevertsLeaseStatus(t *testing.T) {
	f := setup(t)
	now := f.clk.Now()

	var takenID, releasedID string
	err := f.storage.MutateLeases(func(ls *lease.Store) error {
		taken, err := lease.New(lease.Params{Pathspec: "a/**", Strength: lease.Cooperative, Intent: lease.IntentOther, Actor: "kim", TTL: "2h"}, now)
		if err != nil {
			return err
		}
		released, err := lease.New(lease.Params{Pathspec: "b/**", Strength: lease.Cooperative, Intent: lease.IntentOther, Actor: "kim", TTL: "2h"}, now)
		if err != nil {
			return err
		}
		released.Release(now, "done")
		takenID, releasedID = taken.ID, released.ID
		ls.Add(taken)
		ls.Add(released)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	f.appendRecord(t, &oplog.UndoData{LeaseChanges: []oplog.LeaseChange{
		{LeaseID: takenID, Action: "create"},
		{LeaseID: releasedID, Action: "release"},
	}})

	summary, err := undo.Undo(context.Background(), f.storage, f.gitRepo, undo.Options{})
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if len(summary.RevertedLeases) != 2 {
		t.Fatalf("reverted = %v", summary.RevertedLeases)
	}

	ls, err := f.storage.LoadLeases()
	if err != nil {
		t.Fatal(err)
	}
	taken, _ := ls.Find(takenID)
	if taken.Status != lease.StatusReleased || taken.StatusReason != "undo" {
		t.Errorf("taken lease = %s/%s", taken.Status, taken.StatusReason)
	}
	releasedLease, _ := ls.Find(releasedID)
	if releasedLease.Status != lease.StatusActive || releasedLease.StatusReason != "undo" {
		t.Errorf("released lease = %s/%s", releasedLease.Status, releasedLease.StatusReason)
	}
}

func TestUndoPicksLatestUndoable(t *testing.T) {
	f := setup(t)

	plain := oplog.NewRecord(f.clk, "sv status", "")
	if _, err := f.log.Append(plain); err != nil {
		t.Fatal(err)
	}

	created := filepath.Join(f.repo.Dir, "thing")
	if err := os.MkdirAll(created, 0o755); err != nil {
		t.Fatal(err)
	}
	undoable := oplog.NewRecord(f.clk, "sv ws new thing", "")
	undoable.Timestamp = undoable.Timestamp.Add(-time.Minute)
	undoable.UndoData = &oplog.UndoData{CreatedPaths: []string{created}}
	if _, err := f.log.Append(undoable); err != nil {
		t.Fatal(err)
	}

	summary, err := undo.Undo(context.Background(), f.storage, f.gitRepo, undo.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if summary.OpID != undoable.OpID {
		t.Errorf("picked %s, want %s", summary.OpID, undoable.OpID)
	}
}

func TestUndoNoUndoableOperations(t *testing.T) {
	f := setup(t)
	_, err := undo.Undo(context.Background(), f.storage, f.gitRepo, undo.Options{})
	if sverr.KindOf(err) != sverr.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
