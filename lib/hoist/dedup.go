// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package hoist

import (
	"context"
	"fmt"
	"sort"

	"github.com/sv-project/sv/lib/changeid"
	"github.com/sv-project/sv/lib/git"
)

// DedupOptions tunes Change-Id deduplication.
type DedupOptions struct {
	// Prefer maps a Change-Id to the commit that should survive when
	// the group's patch ids diverge.
	Prefer map[string]string
}

// ChangeIDConflict is a diverged Change-Id group nothing was selected
// from.
type ChangeIDConflict struct {
	ChangeID string   `json:"change_id"`
	Commits  []string `json:"commits"`
	PatchIDs []string `json:"patch_ids"`
}

// DedupOutcome reports which commits survive deduplication. Selected
// preserves input order.
type DedupOutcome struct {
	Selected  []string           `json:"selected"`
	Conflicts []ChangeIDConflict `json:"conflicts,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
}

// DedupeChangeIDs collapses commits that share a Change-Id.
//
// Commits without a Change-Id pass through untouched. A group whose
// members all carry the same patch id keeps its earliest commit in
// input order. A diverged group keeps the preferred commit when one
// is named, and is otherwise reported as a conflict with nothing
// selected from it.
func DedupeChangeIDs(ctx context.Context, repo *git.Repository, commits []string, opts DedupOptions) (*DedupOutcome, error) {
	selected := make(map[string]bool)
	groups := make(map[string][]string)
	var groupOrder []string
	order := make(map[string]int, len(commits))
	for idx, oid := range commits {
		order[oid] = idx
	}

	for _, oid := range commits {
		message, err := repo.CommitMessage(ctx, oid)
		if err != nil {
			return nil, err
		}
		cid := changeid.Find(message)
		if cid == "" {
			selected[oid] = true
			continue
		}
		if _, seen := groups[cid]; !seen {
			groupOrder = append(groupOrder, cid)
		}
		groups[cid] = append(groups[cid], oid)
	}

	outcome := &DedupOutcome{}
	for _, cid := range groupOrder {
		group := groups[cid]
		if len(group) == 1 {
			selected[group[0]] = true
			continue
		}

		byPatch := make(map[string][]string)
		for _, oid := range group {
			patchID, err := repo.PatchID(ctx, oid)
			if err != nil {
				return nil, err
			}
			byPatch[patchID] = append(byPatch[patchID], oid)
		}

		if len(byPatch) == 1 {
			selected[earliestByOrder(group, order)] = true
			continue
		}

		patchIDs := make([]string, 0, len(byPatch))
		for patchID := range byPatch {
			patchIDs = append(patchIDs, patchID)
		}
		sort.Strings(patchIDs)

		sorted := append([]string(nil), group...)
		sort.Slice(sorted, func(i, j int) bool { return order[sorted[i]] < order[sorted[j]] })

		if preferred, ok := opts.Prefer[cid]; ok && contains(sorted, preferred) {
			selected[preferred] = true
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("Change-Id %s diverged; using preferred commit %s", cid, preferred))
			continue
		}

		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("Change-Id %s diverged across %d commits", cid, len(sorted)))
		outcome.Conflicts = append(outcome.Conflicts, ChangeIDConflict{
			ChangeID: cid,
			Commits:  sorted,
			PatchIDs: patchIDs,
		})
	}

	emitted := make(map[string]bool)
	for _, oid := range commits {
		if selected[oid] && !emitted[oid] {
			emitted[oid] = true
			outcome.Selected = append(outcome.Selected, oid)
		}
	}
	return outcome, nil
}

func earliestByOrder(group []string, order map[string]int) string {
	best := group[0]
	for _, oid := range group[1:] {
		if order[oid] < order[best] {
			best = oid
		}
	}
	return best
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
