// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Signature identifies a commit author or committer.
type Signature struct {
	Name  string
	Email string
	// When is an RFC 3339 timestamp.
	When string
}

// CommitSignatures returns the author and committer of a commit.
func (r *Repository) CommitSignatures(ctx context.Context, oid string) (author, committer Signature, err error) {
	out, err := r.RunTrimmed(ctx, "show", "-s", "--format=%an%x00%ae%x00%aI%x00%cn%x00%ce%x00%cI", oid)
	if err != nil {
		return Signature{}, Signature{}, err
	}
	fields := strings.Split(out, "\x00")
	if len(fields) != 6 {
		return Signature{}, Signature{}, fmt.Errorf("unexpected signature format for %s: %q", oid, out)
	}
	author = Signature{Name: fields[0], Email: fields[1], When: fields[2]}
	committer = Signature{Name: fields[3], Email: fields[4], When: fields[5]}
	return author, committer, nil
}

// CommitTree wraps a tree in a new commit object without touching the
// index or working tree.
func (r *Repository) CommitTree(ctx context.Context, tree, parent, message string, author, committer Signature) (string, error) {
	args := []string{"commit-tree", tree}
	if parent != "" {
		args = append(args, "-p", parent)
	}
	args = append(args, "-F", "-")

	cmd := r.Command(ctx, args...)
	cmd.Stdin = strings.NewReader(message)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+author.Name,
		"GIT_AUTHOR_EMAIL="+author.Email,
		"GIT_AUTHOR_DATE="+author.When,
		"GIT_COMMITTER_NAME="+committer.Name,
		"GIT_COMMITTER_EMAIL="+committer.Email,
		"GIT_COMMITTER_DATE="+committer.When,
	)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git commit-tree in %s: %w", r.dir, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// NormalizeRefName qualifies a short branch name under refs/heads.
func NormalizeRefName(name string) string {
	if strings.HasPrefix(name, "refs/") {
		return name
	}
	return "refs/heads/" + name
}
