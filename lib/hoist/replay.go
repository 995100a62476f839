// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package hoist

import (
	"context"
	"strings"

	"github.com/sv-project/sv/lib/changeid"
	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/merge"
)

// ReplayEntry records the outcome for one replayed commit.
type ReplayEntry struct {
	CommitID  string       `json:"commit_id"`
	AppliedID string       `json:"applied_id,omitempty"`
	Status    CommitStatus `json:"status"`
	ChangeID  string       `json:"change_id,omitempty"`
	Summary   string       `json:"summary,omitempty"`
}

// ReplayConflict describes a commit that failed to apply.
type ReplayConflict struct {
	CommitID string   `json:"commit_id"`
	Files    []string `json:"files"`
	Message  string   `json:"message,omitempty"`
}

// ReplayOutcome is the result of replaying a commit sequence.
type ReplayOutcome struct {
	Entries   []ReplayEntry    `json:"entries"`
	Conflicts []ReplayConflict `json:"conflicts,omitempty"`
}

// ReplaySummary tallies entry statuses.
type ReplaySummary struct {
	Applied   int
	Skipped   int
	Conflicts int
}

// Summary tallies the outcome entries.
func (o *ReplayOutcome) Summary() ReplaySummary {
	var s ReplaySummary
	for _, entry := range o.Entries {
		switch entry.Status {
		case CommitApplied:
			s.Applied++
		case CommitSkipped:
			s.Skipped++
		case CommitConflict, CommitInConflict:
			s.Conflicts++
		}
	}
	return s
}

// ReplayOptions tunes replay behavior.
type ReplayOptions struct {
	// ContinueOnConflict keeps replaying past a conflicted commit
	// instead of marking the remainder skipped.
	ContinueOnConflict bool
}

// Replay cherry-picks commits onto the integration ref using the
// object database only: each pick is a three-way merge of the commit
// against the current integration tip with the commit's parent as
// base, committed with the original author identity and message. A
// conflicted commit never advances the integration tip.
func Replay(ctx context.Context, repo *git.Repository, integrationRef string, commits []string, opts ReplayOptions) (*ReplayOutcome, error) {
	refname := git.NormalizeRefName(integrationRef)
	current, err := repo.ResolveRef(ctx, integrationRef)
	if err != nil {
		return nil, err
	}

	outcome := &ReplayOutcome{}
	for idx, oid := range commits {
		message, err := repo.CommitMessage(ctx, oid)
		if err != nil {
			return nil, err
		}
		summary := commitSummary(message)
		cid := changeid.Find(message)

		base, err := commitParent(ctx, repo, oid)
		if err != nil {
			return nil, err
		}

		sim, err := merge.Simulate(ctx, repo, current, oid, base)
		if err != nil {
			return nil, err
		}

		if !sim.Clean() {
			var files []string
			for _, conflict := range sim.Conflicts {
				files = append(files, conflict.Path)
			}
			outcome.Conflicts = append(outcome.Conflicts, ReplayConflict{
				CommitID: oid,
				Files:    files,
				Message:  "conflict applying commit",
			})
			outcome.Entries = append(outcome.Entries, ReplayEntry{
				CommitID: oid,
				Status:   CommitConflict,
				ChangeID: cid,
				Summary:  summary,
			})

			if !opts.ContinueOnConflict {
				for _, remaining := range commits[idx+1:] {
					remainingMsg, err := repo.CommitMessage(ctx, remaining)
					if err != nil {
						return nil, err
					}
					outcome.Entries = append(outcome.Entries, ReplayEntry{
						CommitID: remaining,
						Status:   CommitSkipped,
						ChangeID: changeid.Find(remainingMsg),
						Summary:  commitSummary(remainingMsg),
					})
				}
				break
			}
			continue
		}

		author, committer, err := repo.CommitSignatures(ctx, oid)
		if err != nil {
			return nil, err
		}
		applied, err := repo.CommitTree(ctx, sim.Tree, current, message, author, committer)
		if err != nil {
			return nil, err
		}
		if err := repo.UpdateRef(ctx, refname, applied, current); err != nil {
			return nil, err
		}

		current = applied
		outcome.Entries = append(outcome.Entries, ReplayEntry{
			CommitID:  oid,
			AppliedID: applied,
			Status:    CommitApplied,
			ChangeID:  cid,
			Summary:   summary,
		})
	}
	return outcome, nil
}

// commitParent returns the first parent, or the empty tree sentinel
// commit base for a root commit.
func commitParent(ctx context.Context, repo *git.Repository, oid string) (string, error) {
	parent, err := repo.RunTrimmed(ctx, "rev-parse", "--verify", "--quiet", oid+"^")
	if err != nil {
		// Root commit: merge against the empty tree.
		return git.EmptyTree, nil
	}
	return parent, nil
}

func commitSummary(message string) string {
	for _, line := range strings.Split(message, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
