// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package risk

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sv-project/sv/lib/clock"
	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/store"
	"github.com/sv-project/sv/lib/testutil"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func mkLease(t *testing.T, pathspec string, strength lease.Strength, intent lease.Intent) lease.Lease {
	t.Helper()
	l, err := lease.New(lease.Params{
		Pathspec: pathspec,
		Strength: strength,
		Intent:   intent,
		Actor:    "tester",
		Note:     "x",
		TTL:      "2h",
	}, epoch)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestSeverityAccountsForStrengthAndIntent(t *testing.T) {
	if got := severityFor(2, nil); got != Low {
		t.Errorf("bare overlap = %s", got)
	}

	strong := mkLease(t, "src/**", lease.Strong, lease.IntentDocs)
	if got := severityFor(2, []lease.Lease{strong}); got != Medium {
		t.Errorf("strong/docs = %s", got)
	}

	exclusive := mkLease(t, "src/**", lease.Exclusive, lease.IntentRename)
	if got := severityFor(2, []lease.Lease{exclusive}); got != Critical {
		t.Errorf("exclusive/rename = %s", got)
	}
}

func TestSeverityIncreasesWithOverlapCount(t *testing.T) {
	coop := mkLease(t, "src/**", lease.Cooperative, lease.IntentFeature)
	two := severityFor(2, []lease.Lease{coop})
	three := severityFor(3, []lease.Lease{coop})
	if two != Medium {
		t.Errorf("two workspaces = %s", two)
	}
	if three != Medium && three != High {
		t.Errorf("three workspaces = %s", three)
	}
	// Overlap count saturates at four.
	if severityFor(9, nil) != severityFor(4, nil) {
		t.Error("overlap score should saturate")
	}
}

func TestSuggestionsIncludeExpectedActions(t *testing.T) {
	suggestions := suggestionsFor("src/lib.go", []string{"ws-a", "ws-b"}, Medium)
	actions := make(map[string]bool)
	for _, s := range suggestions {
		actions[s.Action] = true
	}
	for _, want := range []string{"take_lease", "inspect_leases", "downgrade_lease", "rebase_onto"} {
		if !actions[want] {
			t.Errorf("missing action %s", want)
		}
	}
	if actions["pick_another_task"] {
		t.Error("pick_another_task should only appear at high severity")
	}

	critical := suggestionsFor("src/lib.go", []string{"ws-a", "ws-b"}, Critical)
	found := false
	for _, s := range critical {
		if s.Action == "pick_another_task" {
			found = true
		}
	}
	if !found {
		t.Error("critical severity missing pick_another_task")
	}
}

func TestComputeOverlapsRequiresTwoWorkspaces(t *testing.T) {
	workspaces := []WorkspaceTouched{
		{Name: "a", Files: []string{"shared.go", "only-a.go"}},
		{Name: "b", Files: []string{"shared.go", "only-b.go"}},
	}
	overlaps := computeOverlaps(workspaces, nil)
	if len(overlaps) != 1 {
		t.Fatalf("overlaps = %+v", overlaps)
	}
	if overlaps[0].Path != "shared.go" {
		t.Errorf("path = %s", overlaps[0].Path)
	}
	if len(overlaps[0].Workspaces) != 2 || overlaps[0].Workspaces[0] != "a" {
		t.Errorf("workspaces = %v", overlaps[0].Workspaces)
	}
}

func TestComputeAgainstRealRepo(t *testing.T) {
	repo := testutil.NewRepo(t)
	repo.CommitFile("shared.go", "base\n", "base")

	repo.Branch("work-a")
	repo.CommitFile("shared.go", "a\n", "a touches shared")
	repo.Checkout("main")
	repo.Branch("work-b")
	repo.CommitFile("shared.go", "b\n", "b touches shared")
	repo.CommitFile("b-only.go", "b\n", "b only")
	repo.Checkout("main")

	clk := clock.Fake(epoch)
	storage := store.New(filepath.Join(repo.Dir, ".git"), repo.Dir, clk)
	if err := storage.InitAll(); err != nil {
		t.Fatal(err)
	}
	err := storage.MutateRegistry(func(r *store.Registry) error {
		if err := r.Insert(store.WorkspaceEntry{Name: "a", Path: repo.Dir, Branch: "work-a", Base: "main"}); err != nil {
			return err
		}
		return r.Insert(store.WorkspaceEntry{Name: "b", Path: repo.Dir, Branch: "work-b", Base: "main"})
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := Compute(context.Background(), git.NewRepository(repo.Dir), storage, "main")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(report.Workspaces) != 2 {
		t.Fatalf("workspaces = %d", len(report.Workspaces))
	}
	if len(report.Overlaps) != 1 || report.Overlaps[0].Path != "shared.go" {
		t.Fatalf("overlaps = %+v", report.Overlaps)
	}

	SimulatePairs(context.Background(), git.NewRepository(repo.Dir), report)
	if len(report.Simulated) != 1 {
		t.Fatalf("simulated = %+v", report.Simulated)
	}
	pair := report.Simulated[0]
	if len(pair.Workspaces) != 2 || pair.Workspaces[0] != "a" || pair.Workspaces[1] != "b" {
		t.Errorf("pair workspaces = %v", pair.Workspaces)
	}
	if len(pair.Conflicts) == 0 || pair.Conflicts[0].Path != "shared.go" {
		t.Errorf("pair conflicts = %+v", pair.Conflicts)
	}
}

func TestSimulatePairsCleanBranches(t *testing.T) {
	repo := testutil.NewRepo(t)
	repo.CommitFile("base.go", "base\n", "base")

	repo.Branch("work-a")
	repo.CommitFile("a.go", "a\n", "a file")
	repo.Checkout("main")
	repo.Branch("work-b")
	repo.CommitFile("b.go", "b\n", "b file")
	repo.Checkout("main")

	report := &Report{
		BaseRef: "main",
		Workspaces: []WorkspaceTouched{
			{Name: "a", Branch: "work-a", Files: []string{"a.go"}},
			{Name: "b", Branch: "work-b", Files: []string{"b.go"}},
		},
	}
	SimulatePairs(context.Background(), git.NewRepository(repo.Dir), report)
	if len(report.Simulated) != 0 {
		t.Errorf("simulated = %+v", report.Simulated)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("warnings = %v", report.Warnings)
	}
}

func TestSimulatePairsWarnsOnBadBranch(t *testing.T) {
	repo := testutil.NewRepo(t)
	repo.CommitFile("base.go", "base\n", "base")

	report := &Report{
		BaseRef: "main",
		Workspaces: []WorkspaceTouched{
			{Name: "a", Branch: "no-such-branch"},
			{Name: "b", Branch: "main"},
		},
	}
	SimulatePairs(context.Background(), git.NewRepository(repo.Dir), report)
	if len(report.Warnings) != 1 {
		t.Fatalf("warnings = %v", report.Warnings)
	}
	if len(report.Simulated) != 0 {
		t.Errorf("simulated = %+v", report.Simulated)
	}
}
