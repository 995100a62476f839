// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package selector implements the set expression language used to
// pick workspaces, leases, and branches. Expressions combine entity
// atoms with union (|), intersection (&), and difference (~):
//
//	ws(active)
//	ws(active) & ahead("main")
//	ws(name~"agent") ~ ws(stale)
package selector

import (
	"sort"
	"strings"
)

// EntityKind is the class of thing a selector matches.
type EntityKind string

const (
	KindWorkspace EntityKind = "workspace"
	KindLease     EntityKind = "lease"
	KindBranch    EntityKind = "branch"
)

var allKinds = []EntityKind{KindWorkspace, KindLease, KindBranch}

func kindRank(kind EntityKind) int {
	switch kind {
	case KindWorkspace:
		return 0
	case KindLease:
		return 1
	default:
		return 2
	}
}

// PredicateKind names a predicate.
type PredicateKind string

const (
	PredActive   PredicateKind = "active"
	PredStale    PredicateKind = "stale"
	PredBlocked  PredicateKind = "blocked"
	PredName     PredicateKind = "name"
	PredAhead    PredicateKind = "ahead"
	PredTouching PredicateKind = "touching"
	PredOverlaps PredicateKind = "overlaps"
)

// Predicate is a single condition, with its argument when the kind
// takes one.
type Predicate struct {
	Kind PredicateKind
	Arg  string
}

// Expr is a node in the parsed selector tree.
type Expr interface {
	eval(ctx *Context) map[Match]bool
}

// AtomExpr selects entities of one kind, optionally filtered by a
// predicate. A nil Kind-less atom (bare predicate) matches every
// entity class.
type AtomExpr struct {
	// Kind restricts the atom to one entity class; empty applies the
	// predicate across all classes.
	Kind      EntityKind
	Predicate *Predicate
}

// BinaryOp combines two subexpressions.
type BinaryOp string

const (
	OpUnion      BinaryOp = "|"
	OpIntersect  BinaryOp = "&"
	OpDifference BinaryOp = "~"
)

// BinaryExpr is a union, intersection, or difference node.
type BinaryExpr struct {
	Op          BinaryOp
	Left, Right Expr
}

// Item is one selectable entity.
type Item struct {
	ID   string
	Name string
}

// Match is an entity an expression selected.
type Match struct {
	Kind EntityKind
	Item Item
}

// MatchFunc answers whether an item satisfies a predicate. Name
// matching is handled by the evaluator itself and never reaches the
// callback.
type MatchFunc func(kind EntityKind, item Item, pred Predicate) bool

// Context supplies the entity universe and domain predicate logic.
type Context struct {
	Workspaces []Item
	Leases     []Item
	Branches   []Item
	Matches    MatchFunc
}

func (c *Context) items(kind EntityKind) []Item {
	switch kind {
	case KindWorkspace:
		return c.Workspaces
	case KindLease:
		return c.Leases
	default:
		return c.Branches
	}
}

func (c *Context) predicateMatches(kind EntityKind, item Item, pred Predicate) bool {
	if pred.Kind == PredName {
		return strings.Contains(item.Name, pred.Arg)
	}
	if c.Matches == nil {
		return false
	}
	return c.Matches(kind, item, pred)
}

// Evaluate runs an expression against a context. Results are sorted
// by entity class then id so output is deterministic.
func Evaluate(expr Expr, ctx *Context) []Match {
	set := expr.eval(ctx)
	matches := make([]Match, 0, len(set))
	for match := range set {
		matches = append(matches, match)
	}
	sort.Slice(matches, func(i, j int) bool {
		ri, rj := kindRank(matches[i].Kind), kindRank(matches[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return matches[i].Item.ID < matches[j].Item.ID
	})
	return matches
}

func (e *AtomExpr) eval(ctx *Context) map[Match]bool {
	out := make(map[Match]bool)
	kinds := allKinds
	if e.Kind != "" {
		kinds = []EntityKind{e.Kind}
	}
	for _, kind := range kinds {
		for _, item := range ctx.items(kind) {
			if e.Predicate != nil && !ctx.predicateMatches(kind, item, *e.Predicate) {
				continue
			}
			out[Match{Kind: kind, Item: item}] = true
		}
	}
	return out
}

func (e *BinaryExpr) eval(ctx *Context) map[Match]bool {
	left := e.Left.eval(ctx)
	right := e.Right.eval(ctx)
	switch e.Op {
	case OpUnion:
		for match := range right {
			left[match] = true
		}
		return left
	case OpIntersect:
		out := make(map[Match]bool)
		for match := range left {
			if right[match] {
				out[match] = true
			}
		}
		return out
	default:
		out := make(map[Match]bool)
		for match := range left {
			if !right[match] {
				out[match] = true
			}
		}
		return out
	}
}
