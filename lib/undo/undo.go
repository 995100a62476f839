// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package undo reverses logged operations.
//
// Ref updates are restored to their previous tips, created paths are
// removed (unless the worktree is kept), and lease status changes are
// reverted. Deleted paths cannot be restored and refuse the undo.
package undo

import (
	"context"
	"os"
	"strings"

	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/oplog"
	"github.com/sv-project/sv/lib/store"
	"github.com/sv-project/sv/lib/sverr"
)

// Options selects what to undo.
type Options struct {
	// OpID names a specific operation; empty means the most recent
	// undoable one.
	OpID string
	// KeepWorktree leaves created directories in place.
	KeepWorktree bool
}

// Summary reports what an undo changed.
type Summary struct {
	OpID           string   `json:"op_id"`
	Command        string   `json:"command"`
	RestoredRefs   []string `json:"restored_refs,omitempty"`
	RemovedPaths   []string `json:"removed_paths,omitempty"`
	SkippedPaths   []string `json:"skipped_paths,omitempty"`
	RevertedLeases []string `json:"reverted_leases,omitempty"`
}

// Undo reverses the selected operation.
func Undo(ctx context.Context, storage *store.Storage, repo *git.Repository, opts Options) (*Summary, error) {
	log := oplog.New(storage.OplogDir(), storage.Clock())
	record, err := selectRecord(log, opts.OpID)
	if err != nil {
		return nil, err
	}
	if record.UndoData == nil {
		return nil, sverr.Validationf("operation %s has no undo data", record.OpID)
	}
	data := record.UndoData
	if len(data.DeletedPaths) > 0 {
		return nil, sverr.Conflictf("cannot restore deleted paths: %s", strings.Join(data.DeletedPaths, ", "))
	}

	summary := &Summary{OpID: record.OpID, Command: record.Command}
	if err := applyRefUpdates(ctx, repo, data, summary); err != nil {
		return nil, err
	}
	if err := applyCreatedPaths(data, opts.KeepWorktree, summary); err != nil {
		return nil, err
	}
	if err := applyLeaseChanges(storage, data.LeaseChanges, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func selectRecord(log *oplog.Log, opID string) (*oplog.Record, error) {
	if opID != "" {
		return log.Find(opID)
	}
	records, err := log.ReadFiltered(oplog.Filter{}, 0)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].UndoData != nil {
			return &records[i], nil
		}
	}
	return nil, sverr.Validationf("no undoable operations found")
}

func applyRefUpdates(ctx context.Context, repo *git.Repository, data *oplog.UndoData, summary *Summary) error {
	for _, update := range data.RefUpdates {
		if update.Old == "" {
			// The operation created this ref; undo deletes it.
			if !repo.RefExists(ctx, update.Name) {
				continue
			}
			if err := repo.DeleteRef(ctx, update.Name); err != nil {
				return err
			}
		} else {
			if err := repo.UpdateRef(ctx, update.Name, update.Old, ""); err != nil {
				return err
			}
		}
		summary.RestoredRefs = append(summary.RestoredRefs, update.Name)
	}
	return nil
}

func applyCreatedPaths(data *oplog.UndoData, keepWorktree bool, summary *Summary) error {
	for _, path := range data.CreatedPaths {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return sverr.Wrap(sverr.Internal, err, "inspecting %s", path)
		}
		if keepWorktree && info.IsDir() {
			summary.SkippedPaths = append(summary.SkippedPaths, path)
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return sverr.Wrap(sverr.Internal, err, "removing %s", path)
		}
		summary.RemovedPaths = append(summary.RemovedPaths, path)
	}
	return nil
}

func applyLeaseChanges(storage *store.Storage, changes []oplog.LeaseChange, summary *Summary) error {
	if len(changes) == 0 {
		return nil
	}
	return storage.MutateLeases(func(ls *lease.Store) error {
		now := storage.Clock().Now().UTC()
		for _, change := range changes {
			l, err := ls.Find(change.LeaseID)
			if err != nil {
				continue
			}
			switch change.Action {
			case "create", "add":
				l.Status = lease.StatusReleased
			case "release", "break", "expire":
				l.Status = lease.StatusActive
			default:
				return sverr.Validationf("unsupported lease undo action: %s", change.Action)
			}
			changedAt := now
			l.StatusChangedAt = &changedAt
			l.StatusReason = "undo"
			summary.RevertedLeases = append(summary.RevertedLeases, change.LeaseID)
		}
		return nil
	})
}
