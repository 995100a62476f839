// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package repostat builds the single-pane workspace status report:
// branch position, lease posture, protected paths staged, and
// unresolved conflicts. Reports are cached per content digest so
// repeated status calls stay cheap.
package repostat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sv-project/sv/lib/config"
	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/protect"
	"github.com/sv-project/sv/lib/store"
)

// AheadBehind is the branch's distance from its base.
type AheadBehind struct {
	Base   string `json:"base"`
	Ahead  int    `json:"ahead"`
	Behind int    `json:"behind"`
}

// WorkspaceSummary identifies where the report was taken.
type WorkspaceSummary struct {
	Name        string       `json:"name"`
	Path        string       `json:"path"`
	Base        string       `json:"base"`
	Branch      string       `json:"branch"`
	AheadBehind *AheadBehind `json:"ahead_behind,omitempty"`
}

// LeaseInfo is one lease held by the current actor.
type LeaseInfo struct {
	ID        string    `json:"id"`
	Pathspec  string    `json:"pathspec"`
	Strength  string    `json:"strength"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LeaseSummary is the lease posture for the current actor.
type LeaseSummary struct {
	Active    int         `json:"active"`
	Expired   int         `json:"expired"`
	Conflicts int         `json:"conflicts"`
	Owned     []LeaseInfo `json:"owned,omitempty"`
}

// ConflictInfo is one unresolved replay conflict.
type ConflictInfo struct {
	CommitID   string    `json:"commit_id"`
	Files      []string  `json:"files"`
	DetectedAt time.Time `json:"detected_at"`
}

// Report is the full status picture.
type Report struct {
	Actor               string           `json:"actor"`
	Initialized         bool             `json:"initialized"`
	Workspace           WorkspaceSummary `json:"workspace"`
	Leases              LeaseSummary     `json:"leases"`
	ProtectOverrides    int              `json:"protect_overrides"`
	ProtectedBlocking   int              `json:"protected_blocking"`
	ProtectedFiles      []string         `json:"protected_files,omitempty"`
	UnresolvedConflicts []ConflictInfo   `json:"unresolved_conflicts,omitempty"`
	Warnings            []string         `json:"warnings,omitempty"`
	NextSteps           []string         `json:"next_steps,omitempty"`
}

// Inputs collects what Compute needs beyond the repo and storage.
type Inputs struct {
	Actor string
	Cfg   config.Config
	// Workspace is the registry entry for the current directory, nil
	// when sv is not initialized here.
	Workspace *store.WorkspaceEntry
	// Override is the workspace's protect override, zero when absent.
	Override protect.Override
}

// Compute assembles the report from live state.
func Compute(ctx context.Context, repo *git.Repository, storage *store.Storage, in Inputs) (*Report, error) {
	report := &Report{
		Actor:       in.Actor,
		Initialized: storage.IsInitialized(),
	}

	branch := "HEAD"
	if out, err := repo.RunTrimmed(ctx, "rev-parse", "--abbrev-ref", "HEAD"); err == nil && out != "" {
		branch = out
	}
	base := in.Cfg.Base
	name := "unknown"
	path := storage.WorkTree()
	if in.Workspace != nil {
		name = in.Workspace.Name
		base = in.Workspace.Base
		branch = in.Workspace.Branch
		path = in.Workspace.Path
	}
	report.Workspace = WorkspaceSummary{
		Name:   name,
		Path:   path,
		Base:   base,
		Branch: branch,
	}
	if ahead, behind, err := repo.AheadBehind(ctx, base, branch); err == nil {
		report.Workspace.AheadBehind = &AheadBehind{Base: base, Ahead: ahead, Behind: behind}
	}

	if err := computeLeases(storage, in.Actor, report); err != nil {
		return nil, err
	}
	if err := computeProtect(ctx, repo, in, report); err != nil {
		return nil, err
	}
	computeConflicts(storage, report)
	buildAdvice(storage, in, report)
	return report, nil
}

func computeLeases(storage *store.Storage, actor string, report *Report) error {
	ls, err := storage.LoadLeases()
	if err != nil {
		return err
	}
	now := storage.Clock().Now()
	ls.ExpireStale(now)

	conflictIDs := make(map[string]bool)
	for _, l := range ls.Active(now) {
		if l.Actor != actor {
			continue
		}
		report.Leases.Active++
		report.Leases.Owned = append(report.Leases.Owned, LeaseInfo{
			ID:        l.ID,
			Pathspec:  l.Pathspec,
			Strength:  string(l.Strength),
			ExpiresAt: l.ExpiresAt,
		})
		for _, conflict := range ls.CheckConflicts(l.Pathspec, l.Strength, actor, lease.DefaultCompat(), false, now) {
			conflictIDs[conflict.ID] = true
		}
	}
	for _, l := range ls.All() {
		if l.Status == lease.StatusExpired {
			report.Leases.Expired++
		}
	}
	report.Leases.Conflicts = len(conflictIDs)
	return nil
}

func computeProtect(ctx context.Context, repo *git.Repository, in Inputs, report *Report) error {
	report.ProtectOverrides = len(in.Override.DisabledPatterns)

	staged, err := repo.StagedFiles(ctx)
	if err != nil {
		// No staged files to check outside a work tree.
		return nil
	}
	paths := make([]string, 0, len(staged))
	for _, change := range staged {
		paths = append(paths, change.Path)
	}
	status, err := protect.ComputeStatus(in.Cfg.Protect.Rules(), in.Override, paths)
	if err != nil {
		return err
	}
	blocked := make(map[string]bool)
	for _, rs := range status.Rules {
		if rs.Disabled {
			continue
		}
		mode := protect.EffectiveMode(rs.Rule.Mode)
		if mode != config.ModeGuard && mode != config.ModeReadonly {
			continue
		}
		for _, f := range rs.MatchedFiles {
			blocked[f] = true
		}
	}
	for f := range blocked {
		report.ProtectedFiles = append(report.ProtectedFiles, f)
	}
	sort.Strings(report.ProtectedFiles)
	report.ProtectedBlocking = len(report.ProtectedFiles)
	return nil
}

func computeConflicts(storage *store.Storage, report *Report) {
	records, err := storage.UnresolvedConflicts()
	if err != nil {
		return
	}
	for _, record := range records {
		report.UnresolvedConflicts = append(report.UnresolvedConflicts, ConflictInfo{
			CommitID:   record.CommitID,
			Files:      record.Files,
			DetectedAt: record.RecordedAt,
		})
	}
}

func buildAdvice(storage *store.Storage, in Inputs, report *Report) {
	if !report.Initialized {
		report.Warnings = append(report.Warnings, "sv not initialized")
		report.NextSteps = append(report.NextSteps, "sv init")
	}
	if !configFileExists(storage) {
		report.Warnings = append(report.Warnings, "missing .sv.toml; using defaults")
	}
	if in.Actor == "" || in.Actor == "unknown" {
		report.Warnings = append(report.Warnings, "actor not set; using default")
		report.NextSteps = append(report.NextSteps, "sv actor set <name>")
	}
	if report.Leases.Expired > 0 {
		report.Warnings = append(report.Warnings, warnf("expired leases detected: %d", report.Leases.Expired))
	}
	if report.Leases.Conflicts > 0 {
		report.Warnings = append(report.Warnings, warnf("lease conflicts detected: %d", report.Leases.Conflicts))
	}
	if report.ProtectedBlocking > 0 {
		report.Warnings = append(report.Warnings, warnf("protected paths staged (guard): %d", report.ProtectedBlocking))
	}
	if n := len(report.UnresolvedConflicts); n > 0 {
		report.Warnings = append(report.Warnings, warnf("unresolved conflicts: %d commit(s)", n))
	}
	if in.Actor != "" && in.Actor != "unknown" {
		report.NextSteps = append(report.NextSteps, "sv lease ls --actor "+in.Actor)
	}
	report.NextSteps = append(report.NextSteps, "sv protect status")
}

func warnf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func configFileExists(storage *store.Storage) bool {
	_, err := os.Stat(filepath.Join(storage.WorkTree(), ".sv.toml"))
	return err == nil
}
