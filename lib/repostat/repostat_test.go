// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package repostat_test

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/sv-project/sv/lib/clock"
	"github.com/sv-project/sv/lib/config"
	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/repostat"
	"github.com/sv-project/sv/lib/store"
	"github.com/sv-project/sv/lib/testutil"
)

func newFixture(t *testing.T) (*testutil.Repo, *git.Repository, *store.Storage, *clock.FakeClock) {
	t.Helper()
	repo := testutil.NewRepo(t)
	repo.WriteFile("README.md", "hello\n")
	repo.Commit("initial")
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	storage := store.New(filepath.Join(repo.Dir, ".git"), repo.Dir, clk)
	if err := storage.InitAll(); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	return repo, git.NewRepository(repo.Dir), storage, clk
}

func addLease(t *testing.T, storage *store.Storage, clk *clock.FakeClock, pathspec, actor string, strength lease.Strength) lease.Lease {
	t.Helper()
	l, err := lease.New(lease.Params{
		Pathspec: pathspec,
		Strength: strength,
		Intent:   lease.IntentOther,
		Actor:    actor,
	}, clk.Now())
	if err != nil {
		t.Fatalf("lease.New: %v", err)
	}
	err = storage.MutateLeases(func(ls *lease.Store) error {
		ls.Add(l)
		return nil
	})
	if err != nil {
		t.Fatalf("MutateLeases: %v", err)
	}
	return l
}

func hasWarning(report *repostat.Report, substr string) bool {
	return slices.ContainsFunc(report.Warnings, func(w string) bool {
		return strings.Contains(w, substr)
	})
}

func TestComputeCleanWorkspace(t *testing.T) {
	_, gitRepo, storage, _ := newFixture(t)

	report, err := repostat.Compute(context.Background(), gitRepo, storage, repostat.Inputs{
		Actor: "alice",
		Cfg:   config.Default(),
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !report.Initialized {
		t.Fatal("expected initialized report")
	}
	if report.Workspace.Branch != "main" {
		t.Fatalf("branch = %q, want main", report.Workspace.Branch)
	}
	if ab := report.Workspace.AheadBehind; ab == nil || ab.Ahead != 0 || ab.Behind != 0 {
		t.Fatalf("ahead/behind = %+v, want 0/0", ab)
	}
	if hasWarning(report, "not initialized") {
		t.Fatalf("unexpected init warning: %v", report.Warnings)
	}
	if !slices.Contains(report.NextSteps, "sv lease ls --actor alice") {
		t.Fatalf("next steps missing lease ls: %v", report.NextSteps)
	}
}

func TestComputeLeasePosture(t *testing.T) {
	_, gitRepo, storage, clk := newFixture(t)

	owned := addLease(t, storage, clk, "src/**", "alice", lease.Strong)
	addLease(t, storage, clk, "src/api/**", "bob", lease.Strong)

	report, err := repostat.Compute(context.Background(), gitRepo, storage, repostat.Inputs{
		Actor: "alice",
		Cfg:   config.Default(),
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if report.Leases.Active != 1 {
		t.Fatalf("active = %d, want 1", report.Leases.Active)
	}
	if len(report.Leases.Owned) != 1 || report.Leases.Owned[0].ID != owned.ID {
		t.Fatalf("owned = %+v, want lease %s", report.Leases.Owned, owned.ID)
	}
	if report.Leases.Conflicts != 1 {
		t.Fatalf("conflicts = %d, want 1", report.Leases.Conflicts)
	}
	if !hasWarning(report, "lease conflicts") {
		t.Fatalf("missing conflict warning: %v", report.Warnings)
	}
}

func TestComputeCountsExpiredLeases(t *testing.T) {
	_, gitRepo, storage, clk := newFixture(t)

	addLease(t, storage, clk, "docs/**", "alice", lease.Cooperative)
	clk.Advance(3 * time.Hour)

	report, err := repostat.Compute(context.Background(), gitRepo, storage, repostat.Inputs{
		Actor: "alice",
		Cfg:   config.Default(),
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if report.Leases.Active != 0 || report.Leases.Expired != 1 {
		t.Fatalf("active/expired = %d/%d, want 0/1", report.Leases.Active, report.Leases.Expired)
	}
	if !hasWarning(report, "expired leases") {
		t.Fatalf("missing expired warning: %v", report.Warnings)
	}
}

func TestComputeProtectedStagedFiles(t *testing.T) {
	repo, gitRepo, storage, _ := newFixture(t)

	repo.WriteFile("deploy/prod.yaml", "replicas: 3\n")
	repo.Git("add", "deploy/prod.yaml")

	cfg := config.Default()
	cfg.Protect.Paths = []config.ProtectPath{{Pattern: "deploy/**", Mode: config.ModeGuard}}

	report, err := repostat.Compute(context.Background(), gitRepo, storage, repostat.Inputs{
		Actor: "alice",
		Cfg:   cfg,
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if report.ProtectedBlocking != 1 {
		t.Fatalf("protected blocking = %d, want 1", report.ProtectedBlocking)
	}
	if !slices.Contains(report.ProtectedFiles, "deploy/prod.yaml") {
		t.Fatalf("protected files = %v", report.ProtectedFiles)
	}
	if !hasWarning(report, "protected paths staged") {
		t.Fatalf("missing protect warning: %v", report.Warnings)
	}
}

func TestComputeUnresolvedConflicts(t *testing.T) {
	_, gitRepo, storage, _ := newFixture(t)

	err := storage.AppendConflict(store.ConflictRecord{
		CommitID: "abc123",
		Files:    []string{"src/main.go"},
		HoistID:  "01HX",
	})
	if err != nil {
		t.Fatalf("AppendConflict: %v", err)
	}

	report, err := repostat.Compute(context.Background(), gitRepo, storage, repostat.Inputs{
		Actor: "alice",
		Cfg:   config.Default(),
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(report.UnresolvedConflicts) != 1 || report.UnresolvedConflicts[0].CommitID != "abc123" {
		t.Fatalf("unresolved = %+v", report.UnresolvedConflicts)
	}
	if !hasWarning(report, "unresolved conflicts") {
		t.Fatalf("missing conflict warning: %v", report.Warnings)
	}
}

func TestComputeWarnsUnknownActor(t *testing.T) {
	_, gitRepo, storage, _ := newFixture(t)

	report, err := repostat.Compute(context.Background(), gitRepo, storage, repostat.Inputs{
		Actor: "unknown",
		Cfg:   config.Default(),
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !hasWarning(report, "actor not set") {
		t.Fatalf("missing actor warning: %v", report.Warnings)
	}
	if !slices.Contains(report.NextSteps, "sv actor set <name>") {
		t.Fatalf("next steps = %v", report.NextSteps)
	}
}

func TestComputeCachedHitsUntilStateChanges(t *testing.T) {
	repo, gitRepo, storage, _ := newFixture(t)
	ctx := context.Background()
	in := repostat.Inputs{Actor: "alice", Cfg: config.Default()}

	_, hit, err := repostat.ComputeCached(ctx, gitRepo, storage, in)
	if err != nil {
		t.Fatalf("ComputeCached: %v", err)
	}
	if hit {
		t.Fatal("first call should miss")
	}

	_, hit, err = repostat.ComputeCached(ctx, gitRepo, storage, in)
	if err != nil {
		t.Fatalf("ComputeCached: %v", err)
	}
	if !hit {
		t.Fatal("second call should hit the cache")
	}

	repo.WriteFile("src/new.go", "package src\n")
	repo.Commit("add source")

	_, hit, err = repostat.ComputeCached(ctx, gitRepo, storage, in)
	if err != nil {
		t.Fatalf("ComputeCached: %v", err)
	}
	if hit {
		t.Fatal("new commit should rotate the cache key")
	}
}
