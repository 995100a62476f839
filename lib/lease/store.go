// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"strings"
	"time"

	"github.com/sv-project/sv/lib/sverr"
)

// Store is the in-memory working set of leases. Persistence (the
// shared JSONL file, locking) lives a layer up; the store only
// implements the engine rules.
type Store struct {
	leases []Lease
}

// NewStore wraps a slice of leases loaded from disk.
func NewStore(leases []Lease) *Store {
	return &Store{leases: leases}
}

// All returns every lease, including released and expired ones.
func (s *Store) All() []Lease {
	return s.leases
}

// Active returns leases live at the given time.
func (s *Store) Active(now time.Time) []Lease {
	var active []Lease
	for i := range s.leases {
		if s.leases[i].IsActive(now) {
			active = append(active, s.leases[i])
		}
	}
	return active
}

// Find locates a lease by full id or unambiguous prefix.
func (s *Store) Find(id string) (*Lease, error) {
	var match *Lease
	for i := range s.leases {
		if s.leases[i].ID == id {
			return &s.leases[i], nil
		}
		if strings.HasPrefix(s.leases[i].ID, id) {
			if match != nil {
				return nil, sverr.Validationf("lease id %q is ambiguous", id)
			}
			match = &s.leases[i]
		}
	}
	if match == nil {
		return nil, sverr.Validationf("no lease with id %q", id)
	}
	return match, nil
}

// ByActor returns all leases held by an actor.
func (s *Store) ByActor(actor string) []Lease {
	var out []Lease
	for i := range s.leases {
		if s.leases[i].Actor == actor {
			out = append(out, s.leases[i])
		}
	}
	return out
}

// OverlappingPath returns active leases whose pathspec covers path.
func (s *Store) OverlappingPath(path string, now time.Time) []Lease {
	var out []Lease
	for i := range s.leases {
		if s.leases[i].IsActive(now) && s.leases[i].MatchesPath(path) {
			out = append(out, s.leases[i])
		}
	}
	return out
}

// Add appends a lease.
func (s *Store) Add(l Lease) {
	s.leases = append(s.leases, l)
}

// CheckConflicts returns the active leases an acquisition at the given
// pathspec and strength would collide with. The requesting actor's own
// leases never conflict with themselves.
func (s *Store) CheckConflicts(pathspec string, strength Strength, actor string, compat Compat, overlapFlag bool, now time.Time) []Lease {
	var conflicts []Lease
	for i := range s.leases {
		existing := &s.leases[i]
		if !existing.IsActive(now) {
			continue
		}
		if actor != "" && existing.Actor == actor {
			continue
		}
		if !existing.Overlaps(pathspec) {
			continue
		}
		if strength.CompatibleWith(existing.Strength, compat, overlapFlag) {
			continue
		}
		conflicts = append(conflicts, *existing)
	}
	return conflicts
}

// AcquireConflict pairs a requested pathspec with a lease blocking it.
type AcquireConflict struct {
	Pathspec string
	Held     Lease
}

// AcquireResult reports the outcome of an AcquireAll call.
type AcquireResult struct {
	Created   []Lease
	Updated   []Lease
	Conflicts []AcquireConflict
}

// AcquireAll takes leases on every pathspec or none of them. Conflicts
// are gathered across the full set before anything is recorded: when
// any path is contested the store is left untouched and the result
// lists every conflict. A pathspec the actor already holds is renewed
// in place rather than duplicated.
func (s *Store) AcquireAll(pathspecs []string, p Params, compat Compat, overlapFlag bool, now time.Time) (AcquireResult, error) {
	var res AcquireResult
	for _, spec := range pathspecs {
		for _, held := range s.CheckConflicts(spec, p.Strength, p.Actor, compat, overlapFlag, now) {
			res.Conflicts = append(res.Conflicts, AcquireConflict{Pathspec: spec, Held: held})
		}
	}
	if len(res.Conflicts) > 0 {
		return res, nil
	}

	// Validate once up front so a bad TTL or missing note cannot fail
	// the set halfway through.
	if _, err := New(withPathspec(p, pathspecs[0]), now); err != nil {
		return res, err
	}

	for _, spec := range pathspecs {
		if existing := s.findOwned(p.Actor, spec, now); existing != nil {
			existing.Strength = p.Strength
			existing.Intent = p.Intent
			existing.Scope = p.Scope
			existing.Note = p.Note
			if err := existing.Renew(now, p.TTL); err != nil {
				return res, err
			}
			res.Updated = append(res.Updated, *existing)
			continue
		}
		created, err := New(withPathspec(p, spec), now)
		if err != nil {
			return res, err
		}
		s.Add(created)
		res.Created = append(res.Created, created)
	}
	return res, nil
}

func withPathspec(p Params, spec string) Params {
	p.Pathspec = spec
	return p
}

func (s *Store) findOwned(actor, pathspec string, now time.Time) *Lease {
	if actor == "" {
		return nil
	}
	for i := range s.leases {
		l := &s.leases[i]
		if l.IsActive(now) && l.Actor == actor && l.Pathspec == pathspec {
			return l
		}
	}
	return nil
}

// ExpireStale flips active leases past their deadline to expired,
// returning the newly expired ones. Grace does not delay expiry; it
// only delays removal in CleanupExpired.
func (s *Store) ExpireStale(now time.Time) []Lease {
	var expired []Lease
	for i := range s.leases {
		l := &s.leases[i]
		if l.Status == StatusActive && !l.ExpiresAt.After(now) {
			l.Status = StatusExpired
			t := now
			l.StatusChangedAt = &t
			l.StatusReason = "ttl"
			expired = append(expired, *l)
		}
	}
	return expired
}

// CleanupExpired removes expired leases whose grace window has passed
// and returns them for archival.
func (s *Store) CleanupExpired(grace time.Duration, now time.Time) []Lease {
	var removed []Lease
	kept := s.leases[:0]
	for _, l := range s.leases {
		if l.Status == StatusExpired && !l.ExpiresAt.Add(grace).After(now) {
			removed = append(removed, l)
			continue
		}
		kept = append(kept, l)
	}
	s.leases = kept
	return removed
}
