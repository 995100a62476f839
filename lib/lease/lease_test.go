// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"testing"
	"time"

	"github.com/sv-project/sv/lib/sverr"
)

var epoch = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func mustLease(t *testing.T, p Params) Lease {
	t.Helper()
	l, err := New(p, epoch)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestStrengthMatrix(t *testing.T) {
	cases := []struct {
		a, b         Strength
		compat       Compat
		allowOverlap bool
		want         bool
	}{
		{Observe, Exclusive, DefaultCompat(), false, true},
		{Observe, Strong, DefaultCompat(), false, true},
		{Observe, Observe, DefaultCompat(), false, true},
		{Cooperative, Cooperative, DefaultCompat(), false, true},
		{Cooperative, Strong, DefaultCompat(), false, false},
		{Cooperative, Strong, DefaultCompat(), true, true},
		{Strong, Cooperative, DefaultCompat(), true, true},
		{Strong, Strong, DefaultCompat(), false, false},
		{Strong, Strong, DefaultCompat(), true, false},
		{Exclusive, Cooperative, DefaultCompat(), false, false},
		{Exclusive, Exclusive, DefaultCompat(), true, false},
		// allow_overlap_cooperative=false blocks coop/coop unless the
		// caller passes the overlap flag.
		{Cooperative, Cooperative, Compat{RequireFlagForStrongOverlap: true}, false, false},
		{Cooperative, Cooperative, Compat{RequireFlagForStrongOverlap: true}, true, true},
		// require_flag_for_strong_overlap=false admits coop/strong
		// without the flag.
		{Cooperative, Strong, Compat{AllowOverlapCooperative: true}, false, true},
		{Strong, Cooperative, Compat{AllowOverlapCooperative: true}, false, true},
	}
	for _, tc := range cases {
		if got := tc.a.CompatibleWith(tc.b, tc.compat, tc.allowOverlap); got != tc.want {
			t.Errorf("%s vs %s (compat=%+v overlap=%v) = %v, want %v", tc.a, tc.b, tc.compat, tc.allowOverlap, got, tc.want)
		}
		// The matrix is symmetric.
		if got := tc.b.CompatibleWith(tc.a, tc.compat, tc.allowOverlap); got != tc.want {
			t.Errorf("%s vs %s (compat=%+v overlap=%v) not symmetric", tc.b, tc.a, tc.compat, tc.allowOverlap)
		}
	}
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"15m", 15 * time.Minute},
		{"2h", 2 * time.Hour},
		{"3d", 72 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"90", 90 * time.Minute},
		{"5min", 5 * time.Minute},
		{"2hours", 2 * time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.in)
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "abc", "2x", "-5m", "0s"} {
		if _, err := ParseDuration(bad); err == nil {
			t.Errorf("ParseDuration(%q) succeeded, want error", bad)
		} else if sverr.KindOf(err) != sverr.Validation {
			t.Errorf("ParseDuration(%q) kind = %v, want Validation", bad, sverr.KindOf(err))
		}
	}
}

func TestParseGraceAllowsZero(t *testing.T) {
	for _, in := range []string{"0", "0s", "0m"} {
		got, err := ParseGrace(in)
		if err != nil || got != 0 {
			t.Errorf("ParseGrace(%q) = %v, %v", in, got, err)
		}
	}
	if got, err := ParseGrace("10m"); err != nil || got != 10*time.Minute {
		t.Errorf("ParseGrace(10m) = %v, %v", got, err)
	}
}

func TestNewRequiresNoteForStrong(t *testing.T) {
	_, err := New(Params{Pathspec: "src/**", Strength: Strong, RequireNote: true}, epoch)
	if err == nil {
		t.Fatal("strong lease without note accepted")
	}
	if sverr.KindOf(err) != sverr.Validation {
		t.Fatalf("kind = %v, want Validation", sverr.KindOf(err))
	}

	// The same acquisition passes when notes are not required, and
	// for cooperative strength regardless.
	if _, err := New(Params{Pathspec: "src/**", Strength: Strong, RequireNote: false}, epoch); err != nil {
		t.Fatalf("strong lease without note requirement: %v", err)
	}
	if _, err := New(Params{Pathspec: "src/**", Strength: Cooperative, RequireNote: true}, epoch); err != nil {
		t.Fatalf("cooperative lease without note: %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	l := mustLease(t, Params{Pathspec: "docs/**", Strength: Cooperative, Intent: IntentDocs})
	if l.TTL != "2h" {
		t.Fatalf("default TTL = %q", l.TTL)
	}
	if !l.ExpiresAt.Equal(epoch.Add(2 * time.Hour)) {
		t.Fatalf("expires_at = %v", l.ExpiresAt)
	}
	if l.Scope.Type != ScopeRepo {
		t.Fatalf("default scope = %+v", l.Scope)
	}
	if l.ID == "" {
		t.Fatal("missing id")
	}
}

func TestMatchesPath(t *testing.T) {
	cases := []struct {
		spec, path string
		want       bool
	}{
		{"src/main.go", "src/main.go", true},
		{"src/main.go", "src/other.go", false},
		{"src/**", "src/deep/nested/file.go", true},
		{"src/", "src/anything.go", true},
		{"*.md", "README.md", true},
		{"docs/*.md", "docs/guide.md", true},
		{"docs/**", "src/main.go", false},
		// Single-segment wildcards stop at '/'.
		{"*.md", "docs/guide.md", false},
		{"src/*.go", "src/main.go", true},
		{"src/*.go", "src/a/b.go", false},
		{"src/?.go", "src/a.go", true},
		{"src/?.go", "src/a/b.go", false},
	}
	for _, tc := range cases {
		l := Lease{Pathspec: tc.spec}
		if got := l.MatchesPath(tc.path); got != tc.want {
			t.Errorf("MatchesPath(%q, %q) = %v, want %v", tc.spec, tc.path, got, tc.want)
		}
	}
}

func TestPathspecsOverlap(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"src/**", "src/**", true},
		{"src/**", "src/api/handler.go", true},
		{"src/api/handler.go", "src/**", true},
		{"src/", "src/api/", true},
		{"docs/**", "src/**", false},
		// A bare * stays within one path segment.
		{"*.go", "src/main.go", false},
		{"*.go", "main.go", true},
	}
	for _, tc := range cases {
		if got := PathspecsOverlap(tc.a, tc.b); got != tc.want {
			t.Errorf("PathspecsOverlap(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
		if got := PathspecsOverlap(tc.b, tc.a); got != tc.want {
			t.Errorf("PathspecsOverlap(%q, %q) not symmetric", tc.b, tc.a)
		}
	}
}

func TestCheckConflicts(t *testing.T) {
	store := NewStore(nil)
	store.Add(mustLease(t, Params{Pathspec: "src/**", Strength: Strong, Actor: "alice", Note: "refactoring", RequireNote: true}))
	store.Add(mustLease(t, Params{Pathspec: "docs/**", Strength: Cooperative, Actor: "bob"}))

	now := epoch.Add(time.Minute)

	// A strong lease over src blocks another actor's cooperative take.
	conflicts := store.CheckConflicts("src/api/**", Cooperative, "carol", DefaultCompat(), false, now)
	if len(conflicts) != 1 || conflicts[0].Actor != "alice" {
		t.Fatalf("conflicts = %+v", conflicts)
	}

	// allow_overlap lets cooperative coexist with strong.
	if got := store.CheckConflicts("src/api/**", Cooperative, "carol", DefaultCompat(), true, now); len(got) != 0 {
		t.Fatalf("allow_overlap conflicts = %+v", got)
	}

	// Same actor never conflicts with their own lease.
	if got := store.CheckConflicts("src/**", Exclusive, "alice", DefaultCompat(), false, now); len(got) != 0 {
		t.Fatalf("own-lease conflicts = %+v", got)
	}

	// Disjoint paths never conflict.
	if got := store.CheckConflicts("tools/**", Exclusive, "carol", DefaultCompat(), false, now); len(got) != 0 {
		t.Fatalf("disjoint conflicts = %+v", got)
	}

	// Cooperative leases coexist.
	if got := store.CheckConflicts("docs/guide.md", Cooperative, "carol", DefaultCompat(), false, now); len(got) != 0 {
		t.Fatalf("coop/coop conflicts = %+v", got)
	}
}

func TestAcquireAllAtomic(t *testing.T) {
	store := NewStore(nil)
	store.Add(mustLease(t, Params{Pathspec: "docs/**", Strength: Exclusive, Actor: "bob"}))
	now := epoch.Add(time.Minute)

	// One contested path blocks the whole set: nothing is recorded and
	// every conflict is reported.
	res, err := store.AcquireAll([]string{"src/**", "docs/**", "tools/**"}, Params{
		Strength: Cooperative, Actor: "alice",
	}, DefaultCompat(), false, now)
	if err != nil {
		t.Fatalf("AcquireAll: %v", err)
	}
	if len(res.Created)+len(res.Updated) != 0 {
		t.Fatalf("partial acquisition: %+v", res)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Pathspec != "docs/**" || res.Conflicts[0].Held.Actor != "bob" {
		t.Fatalf("conflicts = %+v", res.Conflicts)
	}
	if got := store.Active(now); len(got) != 1 {
		t.Fatalf("store mutated on conflict: %+v", got)
	}

	// A clean set is created in full.
	res, err = store.AcquireAll([]string{"src/**", "tools/**"}, Params{
		Strength: Cooperative, Actor: "alice",
	}, DefaultCompat(), false, now)
	if err != nil {
		t.Fatalf("AcquireAll: %v", err)
	}
	if len(res.Created) != 2 || len(res.Conflicts) != 0 {
		t.Fatalf("clean acquisition = %+v", res)
	}

	// Retaking an owned path renews it instead of duplicating.
	res, err = store.AcquireAll([]string{"src/**"}, Params{
		Strength: Strong, Actor: "alice", Note: "rework", TTL: "4h",
	}, DefaultCompat(), false, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("AcquireAll: %v", err)
	}
	if len(res.Updated) != 1 || len(res.Created) != 0 {
		t.Fatalf("renewal = %+v", res)
	}
	if res.Updated[0].Strength != Strong || res.Updated[0].RenewedAt == nil {
		t.Fatalf("updated lease = %+v", res.Updated[0])
	}
}

func TestExpiry(t *testing.T) {
	store := NewStore(nil)
	l := mustLease(t, Params{Pathspec: "src/**", Strength: Cooperative, Actor: "alice", TTL: "1h"})
	store.Add(l)

	// Before the deadline nothing expires.
	if expired := store.ExpireStale(epoch.Add(59 * time.Minute)); len(expired) != 0 {
		t.Fatalf("early expiry: %+v", expired)
	}

	// At the deadline the lease expires with reason ttl.
	expired := store.ExpireStale(epoch.Add(time.Hour))
	if len(expired) != 1 || expired[0].Status != StatusExpired || expired[0].StatusReason != "ttl" {
		t.Fatalf("expired = %+v", expired)
	}

	// An expired lease no longer conflicts.
	if got := store.CheckConflicts("src/**", Exclusive, "bob", DefaultCompat(), false, epoch.Add(2*time.Hour)); len(got) != 0 {
		t.Fatalf("expired lease still conflicts: %+v", got)
	}
}

func TestCleanupExpiredHonorsGrace(t *testing.T) {
	store := NewStore(nil)
	l := mustLease(t, Params{Pathspec: "src/**", Strength: Cooperative, Actor: "alice", TTL: "1h"})
	store.Add(l)
	store.ExpireStale(epoch.Add(time.Hour))

	grace := 30 * time.Minute

	// Inside the grace window the record stays for inspection.
	if removed := store.CleanupExpired(grace, epoch.Add(time.Hour+29*time.Minute)); len(removed) != 0 {
		t.Fatalf("removed during grace: %+v", removed)
	}
	if len(store.All()) != 1 {
		t.Fatal("lease dropped during grace window")
	}

	// Past expiry+grace it is removed and returned for archival.
	removed := store.CleanupExpired(grace, epoch.Add(time.Hour+30*time.Minute))
	if len(removed) != 1 || len(store.All()) != 0 {
		t.Fatalf("removed = %+v, remaining = %d", removed, len(store.All()))
	}
}

func TestFindByPrefix(t *testing.T) {
	store := NewStore([]Lease{
		{ID: "aaaa1111-0000-0000-0000-000000000000"},
		{ID: "aaab2222-0000-0000-0000-000000000000"},
	})

	if _, err := store.Find("aaaa"); err != nil {
		t.Fatalf("unique prefix: %v", err)
	}
	if _, err := store.Find("aaa"); err == nil {
		t.Fatal("ambiguous prefix accepted")
	}
	if _, err := store.Find("zzzz"); err == nil {
		t.Fatal("unknown id accepted")
	}
}

func TestReleaseBreakRenew(t *testing.T) {
	l := mustLease(t, Params{Pathspec: "src/**", Strength: Cooperative, Actor: "alice"})

	now := epoch.Add(10 * time.Minute)
	l.Release(now, "done")
	if l.Status != StatusReleased || l.StatusReason != "done" || l.StatusChangedAt == nil {
		t.Fatalf("after release: %+v", l)
	}

	l = mustLease(t, Params{Pathspec: "src/**", Strength: Cooperative, Actor: "alice"})
	l.Break(now, "holder unresponsive")
	if l.Status != StatusBroken || l.StatusReason != "holder unresponsive" {
		t.Fatalf("after break: %+v", l)
	}

	l = mustLease(t, Params{Pathspec: "src/**", Strength: Cooperative, Actor: "alice", TTL: "1h"})
	if err := l.Renew(now, "4h"); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if l.TTL != "4h" || !l.ExpiresAt.Equal(now.Add(4*time.Hour)) {
		t.Fatalf("after renew: ttl=%q expires=%v", l.TTL, l.ExpiresAt)
	}
	if l.RenewedAt == nil || !l.RenewedAt.Equal(now) {
		t.Fatalf("renewed_at = %v, want %v", l.RenewedAt, now)
	}
}

func TestParseScopeRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want Scope
	}{
		{"repo", RepoScope()},
		{"", RepoScope()},
		{"branch:main", BranchScope("main")},
		{"ws:agent-1", WorkspaceScope("agent-1")},
		{"workspace:agent-1", WorkspaceScope("agent-1")},
	}
	for _, tc := range cases {
		got, err := ParseScope(tc.in)
		if err != nil {
			t.Errorf("ParseScope(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseScope(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
	for _, bad := range []string{"branch:", "ws:", "workspace:", "machine:x"} {
		if _, err := ParseScope(bad); err == nil {
			t.Errorf("ParseScope(%q) succeeded", bad)
		}
	}
}

func TestScopeAppliesTo(t *testing.T) {
	if !RepoScope().AppliesTo("any", "any") {
		t.Fatal("repo scope must apply everywhere")
	}
	if !BranchScope("main").AppliesTo("main", "ws1") || BranchScope("main").AppliesTo("dev", "ws1") {
		t.Fatal("branch scope filtering wrong")
	}
	if !WorkspaceScope("ws1").AppliesTo("any", "ws1") || WorkspaceScope("ws1").AppliesTo("any", "ws2") {
		t.Fatal("workspace scope filtering wrong")
	}
}
