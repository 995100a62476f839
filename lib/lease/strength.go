// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package lease implements advisory path reservations. A lease claims
// a pathspec at a strength (observe, cooperative, strong, exclusive)
// with a declared intent, a scope, and a TTL. Leases never enforce
// anything at the filesystem level; the commit gate and the risk
// analyzer consult them to block or warn.
package lease

import "github.com/sv-project/sv/lib/sverr"

// Strength determines how a lease interacts with overlapping leases.
type Strength string

const (
	// Observe is watch mode: coexists with everything.
	Observe Strength = "observe"
	// Cooperative is normal collaborative work: coexists with observe
	// and other cooperative leases.
	Cooperative Strength = "cooperative"
	// Strong declares serious intent: blocks strong and exclusive,
	// and cooperative unless overlap is explicitly allowed.
	Strong Strength = "strong"
	// Exclusive blocks everything except observe.
	Exclusive Strength = "exclusive"
)

// ParseStrength validates a strength name.
func ParseStrength(s string) (Strength, error) {
	switch Strength(s) {
	case Observe, Cooperative, Strong, Exclusive:
		return Strength(s), nil
	}
	return "", sverr.Validationf("invalid strength %q (expected observe, cooperative, strong, or exclusive)", s)
}

// Compat carries the configured overlap rules. The explicit
// --allow-overlap flag wins over either knob.
type Compat struct {
	// AllowOverlapCooperative permits two cooperative leases on
	// overlapping paths.
	AllowOverlapCooperative bool
	// RequireFlagForStrongOverlap makes the cooperative/strong
	// pairing demand an explicit override.
	RequireFlagForStrongOverlap bool
}

// DefaultCompat mirrors the configuration defaults.
func DefaultCompat() Compat {
	return Compat{AllowOverlapCooperative: true, RequireFlagForStrongOverlap: true}
}

// CompatibleWith reports whether leases of the two strengths can
// coexist on overlapping paths. Symmetric. overlapFlag is the
// explicit per-invocation override.
func (s Strength) CompatibleWith(other Strength, compat Compat, overlapFlag bool) bool {
	if s == Observe || other == Observe {
		return true
	}
	if s == Cooperative && other == Cooperative {
		return compat.AllowOverlapCooperative || overlapFlag
	}
	if (s == Cooperative && other == Strong) || (s == Strong && other == Cooperative) {
		return !compat.RequireFlagForStrongOverlap || overlapFlag
	}
	// strong/strong, exclusive/anything non-observe.
	return false
}

// RequiresNote reports whether acquiring at this strength demands an
// explanatory note (when the configuration requires notes at all).
func (s Strength) RequiresNote() bool {
	return s == Strong || s == Exclusive
}

// Weight is the strength's contribution to risk severity.
func (s Strength) Weight() int {
	switch s {
	case Observe:
		return 0
	case Cooperative:
		return 1
	case Strong:
		return 3
	case Exclusive:
		return 4
	}
	return 0
}
