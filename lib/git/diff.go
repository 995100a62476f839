// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"strings"
)

// FileChange is one changed path with its single-letter git status
// (A, M, D, R, C, T, U).
type FileChange struct {
	Status string
	Path   string
	// OldPath is set for renames and copies.
	OldPath string
}

// StagedFiles returns the files staged for commit, diffed against
// HEAD. In a repository with no commits yet the diff runs against the
// empty tree, so a root commit's files are enumerated the same way.
func (r *Repository) StagedFiles(ctx context.Context) ([]FileChange, error) {
	base := "HEAD"
	if _, err := r.RunTrimmed(ctx, "rev-parse", "-q", "--verify", "HEAD"); err != nil {
		base = EmptyTree
	}
	out, err := r.Run(ctx, "diff", "--cached", "--name-status", "-z", "--no-renames", base)
	if err != nil {
		return nil, err
	}
	return parseNameStatusZ(out), nil
}

// UnstagedFiles returns working-tree modifications not yet staged.
func (r *Repository) UnstagedFiles(ctx context.Context) ([]FileChange, error) {
	out, err := r.Run(ctx, "diff", "--name-status", "-z", "--no-renames")
	if err != nil {
		return nil, err
	}
	return parseNameStatusZ(out), nil
}

// ChangedPathsBetween returns paths touched between two refs.
func (r *Repository) ChangedPathsBetween(ctx context.Context, from, to string) ([]string, error) {
	out, err := r.Run(ctx, "diff", "--name-only", "-z", from, to)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, p := range strings.Split(out, "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// CommitPaths returns the paths a single commit touches.
func (r *Repository) CommitPaths(ctx context.Context, oid string) ([]string, error) {
	out, err := r.Run(ctx, "diff-tree", "--no-commit-id", "--name-only", "-z", "-r", oid)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, p := range strings.Split(out, "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// parseNameStatusZ parses NUL-delimited "--name-status -z" output:
// status, path, [old path for R/C], repeating.
func parseNameStatusZ(out string) []FileChange {
	fields := strings.Split(out, "\x00")
	var changes []FileChange
	for i := 0; i < len(fields); {
		status := fields[i]
		if status == "" {
			i++
			continue
		}
		if i+1 >= len(fields) {
			break
		}
		change := FileChange{Status: status[:1], Path: fields[i+1]}
		i += 2
		// Renames and copies carry score suffixes (R100) and a second
		// path: old NUL new.
		if (change.Status == "R" || change.Status == "C") && i < len(fields) {
			change.OldPath = change.Path
			change.Path = fields[i]
			i++
		}
		changes = append(changes, change)
	}
	return changes
}

// Paths extracts just the path of each change.
func Paths(changes []FileChange) []string {
	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.Path)
	}
	return paths
}
