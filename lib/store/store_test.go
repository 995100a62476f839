// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sv-project/sv/lib/clock"
	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/store"
	"github.com/sv-project/sv/lib/sverr"
)

func newStorage(t *testing.T) *store.Storage {
	t.Helper()
	common := t.TempDir()
	work := t.TempDir()
	s := store.New(common, work, clock.Real())
	if err := s.InitAll(); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	return s
}

func TestHoistKey(t *testing.T) {
	cases := []struct {
		ref  string
		want string
	}{
		{"main", "main"},
		{"refs/heads/main", "refs_heads_main"},
		{"feature/x.y", "feature_x_y"},
		{"ok_name-1", "ok_name-1"},
		{"", "_"},
	}
	for _, tc := range cases {
		if got := store.HoistKey(tc.ref); got != tc.want {
			t.Errorf("HoistKey(%q) = %q, want %q", tc.ref, got, tc.want)
		}
	}
}

func TestLockForNaming(t *testing.T) {
	if got := store.LockFor("/x/leases.jsonl"); got != "/x/leases.lock" {
		t.Errorf("LockFor = %q", got)
	}
	if got := store.LockFor("/x/workspaces.json"); got != "/x/workspaces.lock" {
		t.Errorf("LockFor = %q", got)
	}
}

func TestInitSharedIdempotent(t *testing.T) {
	s := newStorage(t)
	if !s.IsInitialized() {
		t.Fatal("expected initialized after InitAll")
	}
	if err := s.InitShared(); err != nil {
		t.Fatalf("second InitShared: %v", err)
	}
	if _, err := os.Stat(s.LeasesFile()); err != nil {
		t.Fatalf("leases file missing: %v", err)
	}
}

func TestRegistryInsertAndFind(t *testing.T) {
	s := newStorage(t)
	wsPath := t.TempDir()

	err := s.MutateRegistry(func(r *store.Registry) error {
		return r.Insert(store.WorkspaceEntry{
			Name:      "alpha",
			Path:      wsPath,
			Branch:    "sv/alpha",
			Base:      "main",
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	reg, err := s.LoadRegistry()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	entry := reg.Find("alpha")
	if entry == nil {
		t.Fatal("alpha not found")
	}
	if entry.ID == "" {
		t.Error("expected an assigned id")
	}
	if entry.Branch != "sv/alpha" {
		t.Errorf("branch = %q", entry.Branch)
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	s := newStorage(t)
	wsPath := t.TempDir()
	entry := store.WorkspaceEntry{Name: "alpha", Path: wsPath, Branch: "b", Base: "main"}

	if err := s.MutateRegistry(func(r *store.Registry) error { return r.Insert(entry) }); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := s.MutateRegistry(func(r *store.Registry) error { return r.Insert(entry) })
	if sverr.KindOf(err) != sverr.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistryRejectsMissingPath(t *testing.T) {
	reg := &store.Registry{}
	err := reg.Insert(store.WorkspaceEntry{Name: "ghost", Path: "/no/such/path"})
	if sverr.KindOf(err) != sverr.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistryCleanupStale(t *testing.T) {
	s := newStorage(t)
	live := t.TempDir()
	dead := filepath.Join(t.TempDir(), "gone")
	if err := os.Mkdir(dead, 0o755); err != nil {
		t.Fatal(err)
	}

	err := s.MutateRegistry(func(r *store.Registry) error {
		if err := r.Insert(store.WorkspaceEntry{Name: "live", Path: live}); err != nil {
			return err
		}
		return r.Insert(store.WorkspaceEntry{Name: "dead", Path: dead})
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(dead); err != nil {
		t.Fatal(err)
	}

	var removed []store.WorkspaceEntry
	err = s.MutateRegistry(func(r *store.Registry) error {
		removed = r.CleanupStale()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0].Name != "dead" {
		t.Fatalf("removed = %+v", removed)
	}

	reg, _ := s.LoadRegistry()
	if reg.Find("dead") != nil {
		t.Error("dead workspace still registered")
	}
	if reg.Find("live") == nil {
		t.Error("live workspace lost")
	}
}

func TestRegistryValidate(t *testing.T) {
	reg := &store.Registry{Workspaces: []store.WorkspaceEntry{
		{Name: "a", Path: "/no/such/place"},
		{Name: "a", Path: "/no/such/place"},
	}}
	problems := reg.Validate()
	if len(problems) != 3 {
		t.Fatalf("problems = %v", problems)
	}
}

func TestLeasePersistenceRoundTrip(t *testing.T) {
	s := newStorage(t)
	now := time.Now().UTC()

	err := s.MutateLeases(func(ls *lease.Store) error {
		l, err := lease.New(lease.Params{
			Pathspec: "src/**",
			Strength: lease.Cooperative,
			Intent:   lease.IntentRefactor,
			Actor:    "kim",
			Note:     "restructuring",
			TTL:      "2h",
		}, now)
		if err != nil {
			return err
		}
		ls.Add(l)
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	ls, err := s.LoadLeases()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	active := ls.Active(now)
	if len(active) != 1 {
		t.Fatalf("active = %d", len(active))
	}
	if active[0].Pathspec != "src/**" || active[0].Actor != "kim" {
		t.Errorf("round trip mismatch: %+v", active[0])
	}
}

func TestConflictLifecycle(t *testing.T) {
	s := newStorage(t)

	if err := s.AppendConflict(store.ConflictRecord{CommitID: "abc123", Files: []string{"a.go"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendConflict(store.ConflictRecord{CommitID: "def456", Files: []string{"b.go"}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	open, err := s.UnresolvedConflicts()
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 2 {
		t.Fatalf("unresolved = %d", len(open))
	}

	if err := s.MarkConflictResolved("abc123"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	open, err = s.UnresolvedConflicts()
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].CommitID != "def456" {
		t.Fatalf("unresolved after resolve = %+v", open)
	}

	err = s.MarkConflictResolved("abc123")
	if sverr.KindOf(err) != sverr.Validation {
		t.Fatalf("double resolve: %v", err)
	}
}

func TestActorFileRoundTrip(t *testing.T) {
	s := newStorage(t)
	if got := s.ReadActor(); got != "" {
		t.Fatalf("fresh actor = %q", got)
	}
	if err := s.WriteActor("pat"); err != nil {
		t.Fatal(err)
	}
	if got := s.ReadActor(); got != "pat" {
		t.Fatalf("actor = %q", got)
	}
}

func TestEnsureGitignore(t *testing.T) {
	s := newStorage(t)
	if err := s.EnsureGitignore(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(s.WorkTree(), ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "/.sv/") {
		t.Fatalf("gitignore = %q", data)
	}

	// A second call must not duplicate the entry.
	if err := s.EnsureGitignore(); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	if strings.Count(string(data), "/.sv/") != 1 {
		t.Fatalf("gitignore = %q", data)
	}
}
