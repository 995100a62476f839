// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package risk analyzes overlap between registered workspaces.
//
// Each workspace contributes the set of files its branch changed
// relative to a base ref. A path touched by two or more workspaces is
// an overlap, scored by how many workspaces touch it and by the
// strength and intent of any active leases covering it.
package risk

import (
	"context"
	"fmt"
	"sort"

	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/merge"
	"github.com/sv-project/sv/lib/store"
)

// Severity bands an overlap score.
type Severity string

const (
	Low      Severity = "low"
	Medium   Severity = "medium"
	High     Severity = "high"
	Critical Severity = "critical"
)

// WorkspaceTouched lists the files a workspace branch changed.
type WorkspaceTouched struct {
	Name   string   `json:"name"`
	Branch string   `json:"branch"`
	Files  []string `json:"files"`
}

// Overlap is a path touched by more than one workspace.
type Overlap struct {
	Path        string       `json:"path"`
	Workspaces  []string     `json:"workspaces"`
	Severity    Severity     `json:"severity"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Suggestion is a follow-up a caller may act on.
type Suggestion struct {
	Action  string `json:"action"`
	Reason  string `json:"reason"`
	Command string `json:"command,omitempty"`
}

// PairConflict is the predicted outcome of merging one workspace
// pair.
type PairConflict struct {
	Workspaces []string         `json:"workspaces"`
	Conflicts  []merge.Conflict `json:"conflicts"`
}

// Report is the full risk analysis. Simulated and Warnings are only
// filled by SimulatePairs.
type Report struct {
	BaseRef    string             `json:"base_ref"`
	Workspaces []WorkspaceTouched `json:"workspaces"`
	Overlaps   []Overlap          `json:"overlaps"`
	Simulated  []PairConflict     `json:"simulated,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// Compute builds a report covering every registered workspace.
func Compute(ctx context.Context, repo *git.Repository, storage *store.Storage, baseRef string) (*Report, error) {
	registry, err := storage.LoadRegistry()
	if err != nil {
		return nil, err
	}
	leaseStore, err := storage.LoadLeases()
	if err != nil {
		return nil, err
	}

	var touched []WorkspaceTouched
	for _, entry := range registry.Workspaces {
		files, err := repo.ChangedPathsBetween(ctx, baseRef, entry.Branch)
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		touched = append(touched, WorkspaceTouched{
			Name:   entry.Name,
			Branch: entry.Branch,
			Files:  files,
		})
	}

	return &Report{
		BaseRef:    baseRef,
		Workspaces: touched,
		Overlaps:   computeOverlaps(touched, leaseStore.Active(storage.Clock().Now())),
	}, nil
}

// SimulatePairs runs a virtual three-way merge for every unordered
// pair of workspaces, with the report's base ref as the common
// ancestor. A failing pair becomes a warning and the rest continue.
func SimulatePairs(ctx context.Context, repo *git.Repository, report *Report) {
	for i := 0; i < len(report.Workspaces); i++ {
		for j := i + 1; j < len(report.Workspaces); j++ {
			a, b := report.Workspaces[i], report.Workspaces[j]
			sim, err := merge.Simulate(ctx, repo, a.Branch, b.Branch, report.BaseRef)
			if err != nil {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("simulating %s with %s: %v", a.Name, b.Name, err))
				continue
			}
			if sim.Clean() {
				continue
			}
			report.Simulated = append(report.Simulated, PairConflict{
				Workspaces: []string{a.Name, b.Name},
				Conflicts:  sim.Conflicts,
			})
		}
	}
}

func computeOverlaps(workspaces []WorkspaceTouched, active []lease.Lease) []Overlap {
	owners := make(map[string]map[string]bool)
	for _, ws := range workspaces {
		for _, path := range ws.Files {
			if owners[path] == nil {
				owners[path] = make(map[string]bool)
			}
			owners[path][ws.Name] = true
		}
	}

	var overlaps []Overlap
	for path, set := range owners {
		if len(set) < 2 {
			continue
		}
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		matching := matchingLeases(active, path)
		severity := severityFor(len(names), matching)
		overlaps = append(overlaps, Overlap{
			Path:        path,
			Workspaces:  names,
			Severity:    severity,
			Suggestions: suggestionsFor(path, names, severity),
		})
	}
	sort.Slice(overlaps, func(i, j int) bool { return overlaps[i].Path < overlaps[j].Path })
	return overlaps
}

func matchingLeases(active []lease.Lease, path string) []lease.Lease {
	var matching []lease.Lease
	for i := range active {
		if active[i].MatchesPath(path) {
			matching = append(matching, active[i])
		}
	}
	return matching
}

func severityFor(overlapCount int, leases []lease.Lease) Severity {
	overlapScore := overlapCount
	if overlapScore > 4 {
		overlapScore = 4
	}
	strengthScore, intentScore := 0, 0
	for i := range leases {
		if w := leases[i].Strength.Weight(); w > strengthScore {
			strengthScore = w
		}
		if r := leases[i].Intent.ConflictRisk(); r > intentScore {
			intentScore = r
		}
	}

	switch score := overlapScore + strengthScore + intentScore; {
	case score <= 4:
		return Low
	case score <= 7:
		return Medium
	case score <= 10:
		return High
	}
	return Critical
}

func suggestionsFor(path string, workspaces []string, severity Severity) []Suggestion {
	suggestions := []Suggestion{
		{
			Action:  "take_lease",
			Reason:  "Declare intent on the overlapping path to reduce duplicate work.",
			Command: "sv take " + path + " --strength cooperative",
		},
		{
			Action:  "inspect_leases",
			Reason:  "See who currently holds overlapping leases and coordinate.",
			Command: "sv lease who " + path,
		},
		{
			Action:  "downgrade_lease",
			Reason:  "If you hold a strong/exclusive lease, consider downgrading to cooperative.",
			Command: "sv release <lease-id> && sv take " + path + " --strength cooperative",
		},
	}

	ontoTarget := "<workspace>"
	if len(workspaces) > 0 {
		ontoTarget = workspaces[0]
	}
	suggestions = append(suggestions, Suggestion{
		Action:  "rebase_onto",
		Reason:  "Rebase onto an overlapping workspace to resolve conflicts earlier.",
		Command: "sv onto " + ontoTarget,
	})

	if severity == High || severity == Critical {
		suggestions = append(suggestions, Suggestion{
			Action: "pick_another_task",
			Reason: "High overlap risk; consider switching tasks.",
		})
	}
	return suggestions
}
