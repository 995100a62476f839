// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package hoist

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/store"
	"github.com/sv-project/sv/lib/sverr"
)

// Options configures a hoist run.
type Options struct {
	// DestRef is the integration target, e.g. "main".
	DestRef string
	// IntegrationPrefix prefixes the integration branch name.
	IntegrationPrefix string
	// Order picks the replay order.
	Order OrderMode
	// Prefer resolves diverged Change-Id groups.
	Prefer map[string]string
	// ContinueOnConflict keeps replaying past conflicted commits.
	ContinueOnConflict bool
	// NoApply leaves the dest ref untouched after replay.
	NoApply bool
	// DryRun selects and deduplicates without creating anything.
	DryRun bool
}

// Result summarizes a hoist run.
type Result struct {
	HoistID        string             `json:"hoist_id"`
	DestRef        string             `json:"dest_ref"`
	IntegrationRef string             `json:"integration_ref"`
	Status         Status             `json:"status"`
	Applied        bool               `json:"applied"`
	Commits        []Commit           `json:"commits"`
	Conflicts      []ReplayConflict   `json:"conflicts,omitempty"`
	ChangeIDIssues []ChangeIDConflict `json:"change_id_conflicts,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
	DryRun         bool               `json:"dry_run,omitempty"`
}

// Run selects commits from the given workspaces, deduplicates them by
// Change-Id, replays them onto the integration branch, and
// fast-forwards the dest ref when everything applied cleanly.
func Run(ctx context.Context, repo *git.Repository, storage *store.Storage, workspaces []WorkspaceRef, opts Options) (*Result, error) {
	if opts.DestRef == "" {
		return nil, sverr.Validationf("destination ref must not be empty")
	}
	if _, err := repo.ResolveRef(ctx, opts.DestRef); err != nil {
		return nil, sverr.Validationf("destination ref %q does not exist", opts.DestRef)
	}
	if len(workspaces) == 0 {
		return nil, sverr.Validationf("no workspaces selected")
	}

	prefix := opts.IntegrationPrefix
	if prefix == "" {
		prefix = "sv/hoist/"
	}
	integrationRef := prefix + opts.DestRef

	candidates, err := Select(ctx, repo, opts.DestRef, workspaces, opts.Order)
	if err != nil {
		return nil, err
	}
	workspaceByOID := make(map[string]string, len(candidates))
	oids := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		workspaceByOID[candidate.OID] = candidate.Workspace
		oids = append(oids, candidate.OID)
	}

	dedup, err := DedupeChangeIDs(ctx, repo, oids, DedupOptions{Prefer: opts.Prefer})
	if err != nil {
		return nil, err
	}

	result := &Result{
		HoistID:        ulid.Make().String(),
		DestRef:        opts.DestRef,
		IntegrationRef: integrationRef,
		Warnings:       dedup.Warnings,
		ChangeIDIssues: dedup.Conflicts,
		DryRun:         opts.DryRun,
	}

	if opts.DryRun {
		result.Status = StatusInProgress
		for _, oid := range dedup.Selected {
			result.Commits = append(result.Commits, Commit{
				CommitID:  oid,
				Status:    CommitPending,
				Workspace: workspaceByOID[oid],
			})
		}
		return result, nil
	}

	// Reset or create the integration branch at dest.
	destOID, err := repo.ResolveRef(ctx, opts.DestRef)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateRef(ctx, git.NormalizeRefName(integrationRef), destOID, ""); err != nil {
		return nil, err
	}

	replay, err := Replay(ctx, repo, integrationRef, dedup.Selected, ReplayOptions{
		ContinueOnConflict: opts.ContinueOnConflict,
	})
	if err != nil {
		return nil, err
	}
	result.Conflicts = replay.Conflicts

	for _, entry := range replay.Entries {
		result.Commits = append(result.Commits, Commit{
			CommitID:  entry.CommitID,
			Status:    entry.Status,
			Workspace: workspaceByOID[entry.CommitID],
			ChangeID:  entry.ChangeID,
			Summary:   entry.Summary,
		})
	}

	// Persist conflicts for later resolution.
	for _, conflict := range replay.Conflicts {
		record := store.ConflictRecord{
			CommitID:     conflict.CommitID,
			Files:        conflict.Files,
			HoistID:      result.HoistID,
			SourceCommit: conflict.CommitID,
			Note:         conflict.Message,
		}
		if err := storage.AppendConflict(record); err != nil {
			return nil, err
		}
	}

	// A diverged Change-Id group is a conflict for that group only:
	// the remaining groups replay, but the run does not complete and
	// dest is left alone until --prefer picks survivors.
	summary := replay.Summary()
	if summary.Conflicts > 0 || len(dedup.Conflicts) > 0 {
		result.Status = StatusFailed
	} else {
		result.Status = StatusCompleted
	}

	now := storage.Clock().Now().UTC()
	state := &State{
		HoistID:        result.HoistID,
		DestRef:        opts.DestRef,
		IntegrationRef: integrationRef,
		Status:         result.Status,
		StartedAt:      now,
		UpdatedAt:      now,
		Commits:        result.Commits,
	}
	if err := SaveState(storage, state); err != nil {
		return nil, err
	}

	// Fast-forward dest when everything applied.
	if !opts.NoApply && result.Status == StatusCompleted && summary.Applied > 0 {
		tip, err := repo.ResolveRef(ctx, integrationRef)
		if err != nil {
			return nil, err
		}
		if err := repo.UpdateRef(ctx, git.NormalizeRefName(opts.DestRef), tip, destOID); err != nil {
			return nil, err
		}
		result.Applied = true
	}
	return result, nil
}

// Continue resumes a conflicted hoist after the operator resolved
// the blocking commits out of band: pending and conflicted commits
// are replayed again onto the current integration tip.
func Continue(ctx context.Context, repo *git.Repository, storage *store.Storage, destRef string, opts Options) (*Result, error) {
	state, err := LoadState(storage, destRef)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, sverr.Validationf("no hoist in progress for %s", destRef)
	}

	var remaining []string
	workspaceByOID := make(map[string]string)
	for _, commit := range state.Commits {
		workspaceByOID[commit.CommitID] = commit.Workspace
		switch commit.Status {
		case CommitPending, CommitSkipped, CommitConflict, CommitInConflict:
			remaining = append(remaining, commit.CommitID)
		}
	}
	if len(remaining) == 0 {
		return nil, sverr.Validationf("hoist %s has no remaining commits", state.HoistID)
	}

	replay, err := Replay(ctx, repo, state.IntegrationRef, remaining, ReplayOptions{
		ContinueOnConflict: opts.ContinueOnConflict,
	})
	if err != nil {
		return nil, err
	}

	statusByOID := make(map[string]ReplayEntry, len(replay.Entries))
	for _, entry := range replay.Entries {
		statusByOID[entry.CommitID] = entry
	}
	for i := range state.Commits {
		if entry, ok := statusByOID[state.Commits[i].CommitID]; ok {
			state.Commits[i].Status = entry.Status
		}
	}

	summary := replay.Summary()
	if summary.Conflicts > 0 {
		state.Status = StatusFailed
	} else {
		state.Status = StatusCompleted
	}
	state.UpdatedAt = storage.Clock().Now().UTC()
	if err := SaveState(storage, state); err != nil {
		return nil, err
	}

	result := &Result{
		HoistID:        state.HoistID,
		DestRef:        state.DestRef,
		IntegrationRef: state.IntegrationRef,
		Status:         state.Status,
		Commits:        state.Commits,
		Conflicts:      replay.Conflicts,
	}

	if !opts.NoApply && summary.Conflicts == 0 && summary.Applied > 0 {
		tip, err := repo.ResolveRef(ctx, state.IntegrationRef)
		if err != nil {
			return nil, err
		}
		if err := repo.UpdateRef(ctx, git.NormalizeRefName(state.DestRef), tip, ""); err != nil {
			return nil, err
		}
		result.Applied = true
	}
	return result, nil
}

// Abort discards a hoist run: the integration branch is deleted and
// the state marked failed.
func Abort(ctx context.Context, repo *git.Repository, storage *store.Storage, destRef string) (*State, error) {
	state, err := LoadState(storage, destRef)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, sverr.Validationf("no hoist in progress for %s", destRef)
	}

	refname := git.NormalizeRefName(state.IntegrationRef)
	if repo.RefExists(ctx, refname) {
		if err := repo.DeleteRef(ctx, refname); err != nil {
			return nil, err
		}
	}

	state.Status = StatusFailed
	state.UpdatedAt = storage.Clock().Now().UTC()
	if err := SaveState(storage, state); err != nil {
		return nil, err
	}
	return state, nil
}
