// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI. sv shells out for
// every repository operation: worktree management, staged-file
// enumeration, commit creation, merge simulation, and ref updates.
// All commands target a specific repository directory via the -C flag,
// which every Repository method injects automatically.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>". There is no
// default directory; callers always say which repository they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
// The directory may be any working tree (including a linked worktree).
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Discover locates the repository containing start by asking git for
// the working tree root, and returns a Repository targeting it.
func Discover(ctx context.Context, start string) (*Repository, error) {
	probe := &Repository{dir: start}
	top, err := probe.Run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not inside a git repository (started at %s): %w", start, err)
	}
	return &Repository{dir: strings.TrimSpace(top)}, nil
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RunTrimmed executes a git command and returns stdout with
// surrounding whitespace removed. Most single-value plumbing commands
// (rev-parse, merge-base) want this form.
func (r *Repository) RunTrimmed(ctx context.Context, args ...string) (string, error) {
	out, err := r.Run(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Command returns an *exec.Cmd for a git command without running it.
// The caller gets full control over Stdin, Stdout, and Stderr before
// starting the process. The -C flag targeting this repository is
// automatically prepended.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	return exec.CommandContext(ctx, "git", fullArgs...)
}
