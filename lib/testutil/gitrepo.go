// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for sv packages: temp
// git repository fixtures driven through the real git binary, and
// unique identifier generation for test data.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Repo is a throwaway git repository for a test, with helpers that
// fail the test on any git error.
type Repo struct {
	t *testing.T
	// Dir is the working tree root.
	Dir string
}

// NewRepo initializes a git repository in a temp directory with a
// deterministic identity and an initial branch named main. The
// directory is removed when the test finishes.
func NewRepo(t *testing.T) *Repo {
	t.Helper()
	r := &Repo{t: t, Dir: t.TempDir()}
	r.Git("init", "--initial-branch=main")
	r.Git("config", "user.name", "sv test")
	r.Git("config", "user.email", "sv-test@example.invalid")
	return r
}

// Git runs a git command in the repository and returns trimmed stdout.
func (r *Repo) Git(args ...string) string {
	r.t.Helper()
	fullArgs := append([]string{"-C", r.Dir}, args...)
	out, err := exec.Command("git", fullArgs...).CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFile writes content to a path relative to the working tree,
// creating parent directories as needed.
func (r *Repo) WriteFile(rel, content string) {
	r.t.Helper()
	path := filepath.Join(r.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.t.Fatalf("writing %s: %v", rel, err)
	}
}

// Commit stages everything and commits, returning the commit hash.
func (r *Repo) Commit(message string) string {
	r.t.Helper()
	r.Git("add", "-A")
	r.Git("commit", "--allow-empty", "-m", message)
	return r.Git("rev-parse", "HEAD")
}

// CommitFile writes one file and commits it.
func (r *Repo) CommitFile(rel, content, message string) string {
	r.t.Helper()
	r.WriteFile(rel, content)
	return r.Commit(message)
}

// Head returns the current HEAD hash.
func (r *Repo) Head() string {
	r.t.Helper()
	return r.Git("rev-parse", "HEAD")
}

// Branch creates a branch at the current HEAD and checks it out.
func (r *Repo) Branch(name string) {
	r.t.Helper()
	r.Git("checkout", "-b", name)
}

// Checkout switches to an existing branch or commit.
func (r *Repo) Checkout(ref string) {
	r.t.Helper()
	r.Git("checkout", ref)
}
