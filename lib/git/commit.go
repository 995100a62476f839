// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Commit records the staged changes with the given message and returns
// the new commit hash. Amend rewrites the current HEAD commit instead.
func (r *Repository) Commit(ctx context.Context, message string, amend bool) (string, error) {
	args := []string{"commit", "-m", message}
	if amend {
		args = append(args, "--amend")
	}
	if _, err := r.Run(ctx, args...); err != nil {
		return "", err
	}
	return r.RunTrimmed(ctx, "rev-parse", "HEAD")
}

// ResolveRef resolves a ref name to a commit hash.
func (r *Repository) ResolveRef(ctx context.Context, ref string) (string, error) {
	return r.RunTrimmed(ctx, "rev-parse", "--verify", ref+"^{commit}")
}

// RefExists reports whether a fully qualified ref exists.
func (r *Repository) RefExists(ctx context.Context, ref string) bool {
	_, err := r.RunTrimmed(ctx, "show-ref", "--verify", "--quiet", ref)
	return err == nil
}

// BranchExists reports whether a local branch exists.
func (r *Repository) BranchExists(ctx context.Context, branch string) bool {
	return r.RefExists(ctx, "refs/heads/"+branch)
}

// CreateBranch creates a branch at startPoint without checking it out.
func (r *Repository) CreateBranch(ctx context.Context, branch, startPoint string) error {
	_, err := r.Run(ctx, "branch", branch, startPoint)
	return err
}

// UpdateRef points ref at newOID. When oldOID is non-empty, git
// refuses the update if the ref has moved since (compare-and-swap).
func (r *Repository) UpdateRef(ctx context.Context, ref, newOID, oldOID string) error {
	args := []string{"update-ref", ref, newOID}
	if oldOID != "" {
		args = append(args, oldOID)
	}
	_, err := r.Run(ctx, args...)
	return err
}

// DeleteRef removes a ref.
func (r *Repository) DeleteRef(ctx context.Context, ref string) error {
	_, err := r.Run(ctx, "update-ref", "-d", ref)
	return err
}

// MergeBase returns the best common ancestor of two refs.
func (r *Repository) MergeBase(ctx context.Context, a, b string) (string, error) {
	return r.RunTrimmed(ctx, "merge-base", a, b)
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *Repository) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, err := r.Run(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	// Exit status 1 means "not an ancestor"; anything else is a real
	// failure. The wrapper folds the status into the error string, so
	// distinguish by asking git again cheaply.
	if strings.Contains(err.Error(), "exit status 1") {
		return false, nil
	}
	return false, err
}

// CommitsAhead lists the commits on branch that are not reachable from
// base, oldest first.
func (r *Repository) CommitsAhead(ctx context.Context, base, branch string) ([]string, error) {
	out, err := r.Run(ctx, "rev-list", "--reverse", base+".."+branch)
	if err != nil {
		return nil, err
	}
	var oids []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			oids = append(oids, line)
		}
	}
	return oids, nil
}

// AheadBehind counts commits each side has that the other lacks.
func (r *Repository) AheadBehind(ctx context.Context, base, branch string) (ahead, behind int, err error) {
	out, err := r.RunTrimmed(ctx, "rev-list", "--left-right", "--count", base+"..."+branch)
	if err != nil {
		return 0, 0, err
	}
	if _, err := fmt.Sscanf(out, "%d\t%d", &behind, &ahead); err != nil {
		return 0, 0, fmt.Errorf("parsing rev-list count %q: %w", out, err)
	}
	return ahead, behind, nil
}

// CommitMessage returns the full message of a commit.
func (r *Repository) CommitMessage(ctx context.Context, oid string) (string, error) {
	return r.Run(ctx, "log", "-1", "--format=%B", oid)
}

// CommitTime returns a commit's committer timestamp.
func (r *Repository) CommitTime(ctx context.Context, oid string) (time.Time, error) {
	out, err := r.RunTrimmed(ctx, "log", "-1", "--format=%ct", oid)
	if err != nil {
		return time.Time{}, err
	}
	var unix int64
	if _, err := fmt.Sscanf(out, "%d", &unix); err != nil {
		return time.Time{}, fmt.Errorf("parsing commit time %q: %w", out, err)
	}
	return time.Unix(unix, 0).UTC(), nil
}

// PatchID computes the stable patch id of a commit: the diff content
// hashed independently of commit metadata, so the same change carries
// the same id after rebases and message edits.
func (r *Repository) PatchID(ctx context.Context, oid string) (string, error) {
	show := r.Command(ctx, "show", "--pretty=format:", "--no-color", oid)
	showOut, err := show.Output()
	if err != nil {
		return "", fmt.Errorf("git show %s: %w", oid, err)
	}

	patchID := r.Command(ctx, "patch-id", "--stable")
	patchID.Stdin = strings.NewReader(string(showOut))
	out, err := patchID.Output()
	if err != nil {
		return "", fmt.Errorf("git patch-id for %s: %w", oid, err)
	}

	id, _, _ := strings.Cut(strings.TrimSpace(string(out)), " ")
	if id == "" {
		return "", fmt.Errorf("git patch-id returned no output for %s", oid)
	}
	return id, nil
}

// CherryPick applies one commit onto the current HEAD. Returns
// (true, nil) on success and (false, nil) when the pick stops on
// conflicts, leaving the working tree in the conflicted state for the
// caller to inspect or abort.
func (r *Repository) CherryPick(ctx context.Context, oid string) (bool, error) {
	_, err := r.Run(ctx, "cherry-pick", oid)
	if err == nil {
		return true, nil
	}
	// A conflicted pick leaves CHERRY_PICK_HEAD behind.
	gitDir, dirErr := r.GitDir(ctx)
	if dirErr == nil && r.hasFile(gitDir, "CHERRY_PICK_HEAD") {
		return false, nil
	}
	return false, err
}

// CherryPickAbort abandons an in-progress cherry-pick and restores the
// pre-pick state.
func (r *Repository) CherryPickAbort(ctx context.Context) error {
	_, err := r.Run(ctx, "cherry-pick", "--abort")
	return err
}

// ConflictedPaths lists unmerged paths in the index.
func (r *Repository) ConflictedPaths(ctx context.Context) ([]string, error) {
	out, err := r.Run(ctx, "diff", "--name-only", "--diff-filter=U", "-z")
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
