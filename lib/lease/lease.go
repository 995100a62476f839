// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/sv-project/sv/lib/sverr"
)

// Status is a lease's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusReleased Status = "released"
	StatusBroken   Status = "broken"
	StatusExpired  Status = "expired"
)

// Hints carry optional detail about what a lease really covers,
// beyond the pathspec. Purely informational.
type Hints struct {
	// Symbols names functions or types the holder intends to touch.
	Symbols []string `json:"symbols,omitempty"`
}

// IsEmpty reports whether the hints carry nothing.
func (h Hints) IsEmpty() bool { return len(h.Symbols) == 0 }

// Lease is one advisory reservation. Persisted as a line of JSONL in
// the shared lease file; the field names below are the wire format.
type Lease struct {
	ID       string   `json:"id"`
	Pathspec string   `json:"pathspec"`
	Strength Strength `json:"strength"`
	Intent   Intent   `json:"intent"`
	// Actor is empty for ownerless leases (shared reservations that
	// warn but never block).
	Actor string `json:"actor,omitempty"`
	Scope Scope  `json:"scope"`
	Note  string `json:"note,omitempty"`
	// TTL is the original duration string, kept for display.
	TTL       string    `json:"ttl"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
	Hints     Hints     `json:"hints,omitzero"`

	RenewedAt       *time.Time `json:"renewed_at,omitempty"`
	StatusChangedAt *time.Time `json:"status_changed_at,omitempty"`
	StatusReason    string     `json:"status_reason,omitempty"`
}

// Params collects everything needed to create a lease.
type Params struct {
	Pathspec string
	Strength Strength
	Intent   Intent
	Actor    string
	Scope    Scope
	Note     string
	TTL      string
	Hints    Hints
	// RequireNote enforces the note requirement for strong and
	// exclusive leases (the config default is on).
	RequireNote bool
}

// New validates params and builds an active lease starting at now.
func New(p Params, now time.Time) (Lease, error) {
	if strings.TrimSpace(p.Pathspec) == "" {
		return Lease{}, sverr.Validationf("pathspec cannot be empty")
	}
	if p.RequireNote && p.Strength.RequiresNote() && p.Note == "" {
		return Lease{}, sverr.Validationf("a note is required for %s leases (use --note)", p.Strength)
	}
	ttl := p.TTL
	if ttl == "" {
		ttl = "2h"
	}
	d, err := ParseDuration(ttl)
	if err != nil {
		return Lease{}, err
	}
	scope := p.Scope
	if scope.Type == "" {
		scope = RepoScope()
	}
	return Lease{
		ID:        uuid.NewString(),
		Pathspec:  p.Pathspec,
		Strength:  p.Strength,
		Intent:    p.Intent,
		Actor:     p.Actor,
		Scope:     scope,
		Note:      p.Note,
		TTL:       ttl,
		ExpiresAt: now.Add(d),
		CreatedAt: now,
		Status:    StatusActive,
		Hints:     p.Hints,
	}, nil
}

// IsActive reports whether the lease is live at the given time.
func (l *Lease) IsActive(now time.Time) bool {
	return l.Status == StatusActive && now.Before(l.ExpiresAt)
}

// MatchesPath reports whether the lease's pathspec covers a concrete
// path. The pathspec is tried as an exact match, then as a glob, then
// as a directory prefix ("src/" and "src/**" cover everything under
// src).
func (l *Lease) MatchesPath(path string) bool {
	return pathspecMatches(l.Pathspec, path)
}

// Overlaps reports whether two pathspecs could cover a common path.
// Symmetric: either spec matching the other (as a literal path), plus
// directory-prefix containment either way.
func (l *Lease) Overlaps(other string) bool {
	return PathspecsOverlap(l.Pathspec, other)
}

// PathspecsOverlap is the symmetric overlap test between two specs.
func PathspecsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	if pathspecMatches(a, b) || pathspecMatches(b, a) {
		return true
	}
	aPrefix := strings.TrimSuffix(strings.TrimSuffix(a, "/**"), "/")
	bPrefix := strings.TrimSuffix(strings.TrimSuffix(b, "/**"), "/")
	return strings.HasPrefix(aPrefix, bPrefix) || strings.HasPrefix(bPrefix, aPrefix)
}

// PathspecMatches tests a concrete path against a pathspec, with the
// same exact/glob/prefix semantics leases use.
func PathspecMatches(spec, path string) bool {
	return pathspecMatches(spec, path)
}

// pathspecMatches treats spec as a pattern and tests path against it.
func pathspecMatches(spec, path string) bool {
	if spec == path {
		return true
	}
	// '/' as separator keeps * and ? inside one path segment; only
	// ** crosses directories.
	if g, err := glob.Compile(spec, '/'); err == nil {
		if g.Match(path) {
			return true
		}
	}
	if strings.HasSuffix(spec, "/") || strings.HasSuffix(spec, "/**") {
		prefix := strings.TrimSuffix(strings.TrimSuffix(spec, "/**"), "/")
		return strings.HasPrefix(path, prefix)
	}
	return false
}

// ValidatePathspec rejects specs that are neither valid globs nor
// plain paths.
func ValidatePathspec(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return sverr.Validationf("pathspec cannot be empty")
	}
	if _, err := glob.Compile(spec, '/'); err != nil {
		return sverr.Validationf("invalid pathspec %q: %v", spec, err)
	}
	return nil
}

// Release marks the lease released.
func (l *Lease) Release(now time.Time, reason string) {
	l.Status = StatusReleased
	l.StatusChangedAt = &now
	if reason != "" {
		l.StatusReason = reason
	}
}

// Break marks the lease broken. Breaking always records why.
func (l *Lease) Break(now time.Time, reason string) {
	l.Status = StatusBroken
	l.StatusChangedAt = &now
	l.StatusReason = reason
}

// Renew extends the lease with a fresh TTL from now and stamps the
// renewal time.
func (l *Lease) Renew(now time.Time, ttl string) error {
	d, err := ParseDuration(ttl)
	if err != nil {
		return err
	}
	l.TTL = ttl
	l.ExpiresAt = now.Add(d)
	l.RenewedAt = &now
	return nil
}

// ShortID returns the first 8 characters of the lease id for human
// output.
func (l *Lease) ShortID() string {
	if len(l.ID) <= 8 {
		return l.ID
	}
	return l.ID[:8]
}
