// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package merge predicts conflicts without touching the working
// tree. It drives git merge-tree --write-tree, which performs a real
// three-way merge entirely in the object database.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/sverr"
)

// ConflictKind categorizes a predicted conflict.
type ConflictKind string

const (
	KindContent      ConflictKind = "content"
	KindAddAdd       ConflictKind = "add_add"
	KindModifyDelete ConflictKind = "modify_delete"
	KindRename       ConflictKind = "rename"
	KindUnknown      ConflictKind = "unknown"
)

// Conflict is one predicted merge conflict.
type Conflict struct {
	Path string       `json:"path"`
	Kind ConflictKind `json:"kind"`
}

// Simulation is the outcome of a virtual merge.
type Simulation struct {
	Base      string     `json:"base"`
	Ours      string     `json:"ours"`
	Theirs    string     `json:"theirs"`
	Tree      string     `json:"tree"`
	Conflicts []Conflict `json:"conflicts"`
}

// Clean reports whether the merge would apply without conflicts.
func (s *Simulation) Clean() bool { return len(s.Conflicts) == 0 }

// Simulate merges two commit-ish refs in memory. An empty baseRef
// means the merge base of the two inputs.
func Simulate(ctx context.Context, repo *git.Repository, oursRef, theirsRef, baseRef string) (*Simulation, error) {
	ours, err := repo.ResolveRef(ctx, oursRef)
	if err != nil {
		return nil, sverr.Validationf("cannot resolve %q: %v", oursRef, err)
	}
	theirs, err := repo.ResolveRef(ctx, theirsRef)
	if err != nil {
		return nil, sverr.Validationf("cannot resolve %q: %v", theirsRef, err)
	}

	base := baseRef
	if base == "" {
		base, err = repo.MergeBase(ctx, ours, theirs)
		if err != nil {
			return nil, sverr.Conflictf("no merge base found for %s and %s", oursRef, theirsRef)
		}
	} else {
		base, err = repo.ResolveRef(ctx, base)
		if err != nil {
			// The base may be any tree-ish, including a bare tree
			// such as the empty tree used when replaying a root
			// commit.
			base, err = repo.RunTrimmed(ctx, "rev-parse", "--verify", baseRef+"^{tree}")
			if err != nil {
				return nil, sverr.Validationf("cannot resolve base %q: %v", baseRef, err)
			}
		}
	}

	args := []string{"merge-tree", "--write-tree", "--merge-base=" + base, ours, theirs}
	cmd := repo.Command(ctx, args...)
	out, err := cmd.Output()
	conflicted := false
	if err != nil {
		var exitErr *exec.ExitError
		// Exit status 1 means the merge has conflicts; the output is
		// still well formed.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			conflicted = true
		} else {
			return nil, sverr.Internalf("git merge-tree: %v", err)
		}
	}

	sim := &Simulation{Base: base, Ours: ours, Theirs: theirs}
	sim.Tree, sim.Conflicts = parseMergeTree(string(out), conflicted)
	return sim, nil
}

// stageSet tracks which merge stages a path appears in: 1 is the
// common ancestor, 2 ours, 3 theirs.
type stageSet struct {
	stages [4]bool
}

func parseMergeTree(out string, conflicted bool) (tree string, conflicts []Conflict) {
	lines := strings.Split(out, "\n")
	if len(lines) > 0 {
		tree = strings.TrimSpace(lines[0])
	}
	if !conflicted {
		return tree, nil
	}

	paths := make(map[string]*stageSet)
	renamed := make(map[string]bool)
	inMessages := false
	for _, line := range lines[1:] {
		if line == "" {
			inMessages = true
			continue
		}
		if inMessages {
			if path, isRename := parseConflictMessage(line); isRename {
				renamed[path] = true
			}
			continue
		}
		mode, stage, path, ok := parseStageLine(line)
		if !ok || mode == "" {
			continue
		}
		set := paths[path]
		if set == nil {
			set = &stageSet{}
			paths[path] = set
		}
		if stage >= 1 && stage <= 3 {
			set.stages[stage] = true
		}
	}

	for path, set := range paths {
		conflicts = append(conflicts, Conflict{
			Path: path,
			Kind: classify(set, renamed[path]),
		})
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	return tree, conflicts
}

// parseStageLine splits "<mode> <oid> <stage>\t<path>".
func parseStageLine(line string) (mode string, stage int, path string, ok bool) {
	head, path, found := strings.Cut(line, "\t")
	if !found {
		return "", 0, "", false
	}
	fields := strings.Fields(head)
	if len(fields) != 3 {
		return "", 0, "", false
	}
	if _, err := fmt.Sscanf(fields[2], "%d", &stage); err != nil {
		return "", 0, "", false
	}
	return fields[0], stage, unquotePath(path), true
}

// parseConflictMessage extracts the path from a rename conflict
// notice, e.g. "CONFLICT (rename/delete): ... renamed to <path> ...".
func parseConflictMessage(line string) (path string, isRename bool) {
	if !strings.HasPrefix(line, "CONFLICT (") {
		return "", false
	}
	label := line[len("CONFLICT ("):]
	label, _, _ = strings.Cut(label, ")")
	if !strings.Contains(label, "rename") {
		return "", false
	}
	if _, rest, found := strings.Cut(line, " in "); found {
		return strings.TrimSuffix(strings.TrimSpace(rest), "."), true
	}
	return "", true
}

func unquotePath(path string) string {
	if len(path) >= 2 && path[0] == '"' && path[len(path)-1] == '"' {
		if unquoted, err := strconv.Unquote(path); err == nil {
			return unquoted
		}
	}
	return path
}

func classify(set *stageSet, renamed bool) ConflictKind {
	if renamed {
		return KindRename
	}
	ancestor, ours, theirs := set.stages[1], set.stages[2], set.stages[3]
	switch {
	case !ancestor && ours && theirs:
		return KindAddAdd
	case ancestor && ours && theirs:
		return KindContent
	case ancestor && (ours != theirs):
		return KindModifyDelete
	}
	return KindUnknown
}

// Summarize renders conflicts as short human-readable lines.
func Summarize(conflicts []Conflict) []string {
	labels := map[ConflictKind]string{
		KindContent:      "content",
		KindAddAdd:       "add/add",
		KindModifyDelete: "modify/delete",
		KindRename:       "rename",
		KindUnknown:      "unknown",
	}
	out := make([]string, len(conflicts))
	for i, conflict := range conflicts {
		out[i] = fmt.Sprintf("%s (%s)", conflict.Path, labels[conflict.Kind])
	}
	return out
}
