// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package hoist

import (
	"context"
	"sort"
	"time"

	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/sverr"
)

// Candidate is a commit selected for replay, tagged with the
// workspace it came from.
type Candidate struct {
	OID       string
	Workspace string
}

// WorkspaceRef names a workspace and its branch.
type WorkspaceRef struct {
	Name   string
	Branch string
}

// WorkspaceCommits lists the commits a workspace is ahead by.
type WorkspaceCommits struct {
	Name    string
	Branch  string
	Commits []string
}

// OrderMode decides the replay order of candidates.
type OrderMode struct {
	// Kind is "workspace", "time", or "explicit".
	Kind string
	// Explicit lists workspace names in priority order; remaining
	// workspaces follow alphabetically.
	Explicit []string
}

// CollectWorkspaceCommits gathers the commits each workspace branch
// carries beyond the base ref, oldest first.
func CollectWorkspaceCommits(ctx context.Context, repo *git.Repository, baseRef string, workspaces []WorkspaceRef) ([]WorkspaceCommits, error) {
	results := make([]WorkspaceCommits, 0, len(workspaces))
	for _, ws := range workspaces {
		commits, err := repo.CommitsAhead(ctx, baseRef, ws.Branch)
		if err != nil {
			return nil, err
		}
		results = append(results, WorkspaceCommits{Name: ws.Name, Branch: ws.Branch, Commits: commits})
	}
	return results, nil
}

// CandidatesFrom flattens workspace commit lists, preserving
// per-workspace commit order.
func CandidatesFrom(items []WorkspaceCommits) []Candidate {
	var candidates []Candidate
	for _, item := range items {
		for _, oid := range item.Commits {
			candidates = append(candidates, Candidate{OID: oid, Workspace: item.Name})
		}
	}
	return candidates
}

// OrderCandidates sorts candidates by the configured mode. Commit
// order within a workspace is always preserved.
func OrderCandidates(ctx context.Context, repo *git.Repository, candidates []Candidate, mode OrderMode) ([]Candidate, error) {
	switch mode.Kind {
	case "", "workspace":
		return orderByWorkspace(candidates), nil
	case "explicit":
		return orderByExplicit(candidates, mode.Explicit), nil
	case "time":
		return orderByTime(ctx, repo, candidates)
	}
	return nil, sverr.Validationf("invalid order %q (expected workspace, time, or explicit)", mode.Kind)
}

// Select collects and orders hoist candidates in one step.
func Select(ctx context.Context, repo *git.Repository, baseRef string, workspaces []WorkspaceRef, mode OrderMode) ([]Candidate, error) {
	items, err := CollectWorkspaceCommits(ctx, repo, baseRef, workspaces)
	if err != nil {
		return nil, err
	}
	return OrderCandidates(ctx, repo, CandidatesFrom(items), mode)
}

func orderByWorkspace(candidates []Candidate) []Candidate {
	byWorkspace := make(map[string][]Candidate)
	for _, candidate := range candidates {
		byWorkspace[candidate.Workspace] = append(byWorkspace[candidate.Workspace], candidate)
	}
	names := make([]string, 0, len(byWorkspace))
	for name := range byWorkspace {
		names = append(names, name)
	}
	sort.Strings(names)

	ordered := make([]Candidate, 0, len(candidates))
	for _, name := range names {
		ordered = append(ordered, byWorkspace[name]...)
	}
	return ordered
}

func orderByExplicit(candidates []Candidate, order []string) []Candidate {
	byWorkspace := make(map[string][]Candidate)
	for _, candidate := range candidates {
		byWorkspace[candidate.Workspace] = append(byWorkspace[candidate.Workspace], candidate)
	}

	ordered := make([]Candidate, 0, len(candidates))
	for _, name := range order {
		if items, ok := byWorkspace[name]; ok {
			ordered = append(ordered, items...)
			delete(byWorkspace, name)
		}
	}
	remaining := make([]string, 0, len(byWorkspace))
	for name := range byWorkspace {
		remaining = append(remaining, name)
	}
	sort.Strings(remaining)
	for _, name := range remaining {
		ordered = append(ordered, byWorkspace[name]...)
	}
	return ordered
}

func orderByTime(ctx context.Context, repo *git.Repository, candidates []Candidate) ([]Candidate, error) {
	type timed struct {
		idx       int
		when      time.Time
		candidate Candidate
	}
	indexed := make([]timed, 0, len(candidates))
	for idx, candidate := range candidates {
		when, err := repo.CommitTime(ctx, candidate.OID)
		if err != nil {
			return nil, err
		}
		indexed = append(indexed, timed{idx: idx, when: when, candidate: candidate})
	}
	sort.SliceStable(indexed, func(i, j int) bool {
		if !indexed[i].when.Equal(indexed[j].when) {
			return indexed[i].when.Before(indexed[j].when)
		}
		return indexed[i].idx < indexed[j].idx
	})
	ordered := make([]Candidate, 0, len(indexed))
	for _, item := range indexed {
		ordered = append(ordered, item.candidate)
	}
	return ordered, nil
}
