// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EmptyTree is the well-known hash of git's empty tree object. Diffs
// for a repository with no commits run against it.
const EmptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// HeadInfo describes the current HEAD of a working tree.
type HeadInfo struct {
	// Branch is the short branch name, empty when detached.
	Branch string
	// OID is the commit hash HEAD points at, empty in an unborn
	// repository.
	OID string
	// Detached reports whether HEAD is not on a branch.
	Detached bool
}

// Head returns branch and commit information for the working tree.
func (r *Repository) Head(ctx context.Context) (HeadInfo, error) {
	var info HeadInfo

	branch, err := r.RunTrimmed(ctx, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		info.Detached = true
	} else {
		info.Branch = branch
	}

	oid, err := r.RunTrimmed(ctx, "rev-parse", "-q", "--verify", "HEAD")
	if err == nil {
		info.OID = oid
	}
	// An unborn branch (no commits yet) has a symbolic ref but no
	// OID; that is not an error.
	if info.Branch == "" && info.OID == "" {
		return info, fmt.Errorf("cannot resolve HEAD in %s", r.dir)
	}
	return info, nil
}

// GitDir returns the absolute .git directory of this working tree.
// For a linked worktree this is the per-worktree directory under the
// main repository's .git/worktrees/.
func (r *Repository) GitDir(ctx context.Context) (string, error) {
	return r.RunTrimmed(ctx, "rev-parse", "--absolute-git-dir")
}

// CommonDir returns the shared .git directory for this working tree.
// Linked worktrees resolve through the commondir file in their
// per-worktree git dir; a present but empty commondir file indicates
// repository corruption and is an error.
func (r *Repository) CommonDir(ctx context.Context) (string, error) {
	gitDir, err := r.GitDir(ctx)
	if err != nil {
		return "", err
	}

	commondirFile := filepath.Join(gitDir, "commondir")
	content, err := os.ReadFile(commondirFile)
	if err != nil {
		if os.IsNotExist(err) {
			return gitDir, nil
		}
		return "", fmt.Errorf("reading %s: %w", commondirFile, err)
	}

	rel := strings.TrimSpace(string(content))
	if rel == "" {
		return "", fmt.Errorf("empty commondir file at %s", commondirFile)
	}
	resolved := rel
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(gitDir, rel)
	}
	return filepath.Clean(resolved), nil
}

// WorkTreeRoot returns the top-level directory of the working tree.
func (r *Repository) WorkTreeRoot(ctx context.Context) (string, error) {
	return r.RunTrimmed(ctx, "rev-parse", "--show-toplevel")
}

// hasFile reports whether a file exists directly under dir.
func (r *Repository) hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

// HasUncommittedChanges reports whether the working tree has any
// staged or unstaged changes (untracked files excluded).
func (r *Repository) HasUncommittedChanges(ctx context.Context) (bool, error) {
	out, err := r.Run(ctx, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}
