// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"strings"
)

// Worktree describes one entry from "git worktree list --porcelain".
type Worktree struct {
	// Path is the absolute working tree directory.
	Path string
	// Head is the checked-out commit hash.
	Head string
	// Branch is the full ref name (refs/heads/...), empty when
	// detached or bare.
	Branch string
	// Bare reports a bare repository entry.
	Bare bool
	// Detached reports a detached HEAD.
	Detached bool
	// Prunable carries git's reason when the worktree is gone and can
	// be pruned.
	Prunable string
}

// AddWorktree creates a linked worktree at path on a new branch forked
// from startPoint. An empty startPoint forks from HEAD.
func (r *Repository) AddWorktree(ctx context.Context, path, branch, startPoint string) error {
	args := []string{"worktree", "add", "-b", branch, path}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	_, err := r.Run(ctx, args...)
	return err
}

// AddWorktreeExisting creates a linked worktree at path checking out
// an existing branch.
func (r *Repository) AddWorktreeExisting(ctx context.Context, path, branch string) error {
	_, err := r.Run(ctx, "worktree", "add", path, branch)
	return err
}

// RemoveWorktree removes the worktree at path. Force discards local
// modifications.
func (r *Repository) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := r.Run(ctx, args...)
	return err
}

// PruneWorktrees removes stale worktree bookkeeping and returns git's
// report of what was pruned.
func (r *Repository) PruneWorktrees(ctx context.Context) (string, error) {
	return r.Run(ctx, "worktree", "prune", "--verbose")
}

// ListWorktrees parses "git worktree list --porcelain" into entries.
func (r *Repository) ListWorktrees(ctx context.Context) ([]Worktree, error) {
	out, err := r.Run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out), nil
}

// parseWorktreeList parses porcelain stanzas separated by blank lines.
func parseWorktreeList(out string) []Worktree {
	var worktrees []Worktree
	var current *Worktree

	flush := func() {
		if current != nil {
			worktrees = append(worktrees, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case current == nil:
			// Stray line before any worktree stanza; ignore.
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(line, "branch ")
		case line == "bare":
			current.Bare = true
		case line == "detached":
			current.Detached = true
		case strings.HasPrefix(line, "prunable"):
			current.Prunable = strings.TrimSpace(strings.TrimPrefix(line, "prunable"))
		}
	}
	flush()
	return worktrees
}

// ShortBranch strips the refs/heads/ prefix from a full branch ref.
func ShortBranch(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
