// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"strings"

	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/selector"
	"github.com/sv-project/sv/lib/store"
)

// ResolveSelector picks workspaces by a selector expression. The
// literal "all" selects everything. Inputs that do not parse as an
// expression fall back to the legacy forms: exact name, "prefix*",
// "actor:name", and "actor:prefix*".
func (m *Manager) ResolveSelector(ctx context.Context, expr string) ([]store.WorkspaceEntry, error) {
	reg, err := m.storage.LoadRegistry()
	if err != nil {
		return nil, err
	}
	if expr == "all" {
		return reg.Workspaces, nil
	}

	parsed, err := selector.Parse(expr)
	if err != nil {
		return legacyMatch(reg.Workspaces, expr), nil
	}

	byName := make(map[string]store.WorkspaceEntry, len(reg.Workspaces))
	items := make([]selector.Item, 0, len(reg.Workspaces))
	for _, entry := range reg.Workspaces {
		byName[entry.Name] = entry
		items = append(items, selector.Item{ID: entry.Name, Name: entry.Name})
	}

	sctx := &selector.Context{
		Workspaces: items,
		Matches: func(kind selector.EntityKind, item selector.Item, pred selector.Predicate) bool {
			if kind != selector.KindWorkspace {
				return false
			}
			entry, ok := byName[item.ID]
			if !ok {
				return false
			}
			switch pred.Kind {
			case selector.PredActive:
				return pathExists(entry.Path)
			case selector.PredStale:
				return !pathExists(entry.Path)
			case selector.PredAhead:
				return m.isAhead(ctx, entry, pred.Arg)
			case selector.PredTouching:
				return m.touches(ctx, entry, pred.Arg)
			}
			return false
		},
	}

	var selected []store.WorkspaceEntry
	for _, match := range selector.Evaluate(parsed, sctx) {
		if match.Kind != selector.KindWorkspace {
			continue
		}
		if entry, ok := byName[match.Item.ID]; ok {
			selected = append(selected, entry)
		}
	}
	return selected, nil
}

func legacyMatch(workspaces []store.WorkspaceEntry, expr string) []store.WorkspaceEntry {
	var out []store.WorkspaceEntry
	for _, entry := range workspaces {
		if legacyMatches(entry, expr) {
			out = append(out, entry)
		}
	}
	return out
}

func legacyMatches(entry store.WorkspaceEntry, expr string) bool {
	if actorExpr, ok := strings.CutPrefix(expr, "actor:"); ok {
		if entry.Actor == "" {
			return false
		}
		if prefix, ok := strings.CutSuffix(actorExpr, "*"); ok {
			return strings.HasPrefix(entry.Actor, prefix)
		}
		return entry.Actor == actorExpr
	}
	if prefix, ok := strings.CutSuffix(expr, "*"); ok {
		return strings.HasPrefix(entry.Name, prefix)
	}
	return entry.Name == expr
}

func (m *Manager) isAhead(ctx context.Context, entry store.WorkspaceEntry, ref string) bool {
	commits, err := m.repo.CommitsAhead(ctx, ref, entry.Branch)
	return err == nil && len(commits) > 0
}

func (m *Manager) touches(ctx context.Context, entry store.WorkspaceEntry, pathspec string) bool {
	paths, err := m.repo.ChangedPathsBetween(ctx, entry.Base, entry.Branch)
	if err != nil {
		return false
	}
	for _, path := range paths {
		if lease.PathspecMatches(pathspec, path) {
			return true
		}
	}
	return false
}
