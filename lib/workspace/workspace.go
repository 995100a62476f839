// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace manages git worktrees as named workspaces: each
// workspace is a worktree on its own branch, registered in the shared
// registry so every agent can see who is working where.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sv-project/sv/lib/changeid"
	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/oplog"
	"github.com/sv-project/sv/lib/store"
	"github.com/sv-project/sv/lib/sverr"
)

// BranchPrefix is prepended to workspace names for default branches.
const BranchPrefix = "sv/ws/"

// DefaultWorktreeDir holds workspace worktrees under the repo root
// when no explicit directory is given.
const DefaultWorktreeDir = ".sv/worktrees"

// Manager coordinates worktree, registry, and oplog updates for
// workspace operations.
type Manager struct {
	repo    *git.Repository
	storage *store.Storage
	log     *oplog.Log
}

// NewManager wires a manager over an open repository and its storage.
func NewManager(repo *git.Repository, storage *store.Storage) *Manager {
	return &Manager{
		repo:    repo,
		storage: storage,
		log:     oplog.New(storage.OplogDir(), storage.Clock()),
	}
}

// CreateOptions configures Create.
type CreateOptions struct {
	Name string
	// Base is the ref to fork from; empty uses DefaultBase.
	Base string
	// DefaultBase is the configured fallback base branch.
	DefaultBase string
	// Dir overrides the worktree location. Relative paths resolve
	// against the repo root.
	Dir string
	// Branch overrides the default sv/ws/<name> branch.
	Branch string
	Actor  string
}

// Created describes a new workspace.
type Created struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Branch string `json:"branch"`
	Base   string `json:"base"`
}

// Create makes a worktree on a fresh branch and registers it. The
// new worktree gets its own local state directory.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Created, error) {
	if opts.Name == "" {
		return nil, sverr.Validationf("workspace name cannot be empty")
	}
	base := opts.Base
	if base == "" {
		base = opts.DefaultBase
	}
	if base == "" {
		base = "main"
	}
	branch := opts.Branch
	if branch == "" {
		branch = BranchPrefix + opts.Name
	}
	path := opts.Dir
	if path == "" {
		path = filepath.Join(DefaultWorktreeDir, opts.Name)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.storage.WorkTree(), path)
	}

	reg, err := m.storage.LoadRegistry()
	if err != nil {
		return nil, err
	}
	if reg.Find(opts.Name) != nil {
		return nil, sverr.Validationf("workspace %q already exists in registry", opts.Name)
	}

	if err := m.repo.AddWorktree(ctx, path, branch, base); err != nil {
		return nil, err
	}

	now := m.storage.Clock().Now().UTC()
	entry := store.WorkspaceEntry{
		Name:      opts.Name,
		Path:      path,
		Branch:    branch,
		Base:      base,
		Actor:     opts.Actor,
		CreatedAt: now,
	}
	if err := m.storage.MutateRegistry(func(reg *store.Registry) error {
		return reg.Insert(entry)
	}); err != nil {
		return nil, err
	}

	wsStorage := store.New(filepath.Dir(m.storage.SharedDir()), path, m.storage.Clock())
	if err := wsStorage.InitLocal(); err != nil {
		return nil, err
	}

	record := oplog.NewRecord(m.storage.Clock(), "sv ws new "+opts.Name, opts.Actor)
	record.AffectedWorkspaces = []string{opts.Name}
	record.AffectedRefs = []string{branch}
	record.UndoData = &oplog.UndoData{
		WorkspaceChanges: []oplog.WorkspaceChange{{
			Name:   opts.Name,
			Action: "create",
			Path:   path,
			Branch: branch,
			Base:   base,
		}},
		CreatedPaths: []string{path},
	}
	// The oplog is best effort here; losing a record must not undo a
	// workspace that was already created.
	m.log.Append(record) //nolint:errcheck

	return &Created{Name: opts.Name, Path: path, Branch: branch, Base: base}, nil
}

// AheadBehind is a branch's distance from a base ref.
type AheadBehind struct {
	Base   string `json:"base"`
	Ahead  int    `json:"ahead"`
	Behind int    `json:"behind"`
}

// ListItem is one workspace as reported by List.
type ListItem struct {
	Name        string       `json:"name"`
	Path        string       `json:"path"`
	Branch      string       `json:"branch"`
	Base        string       `json:"base"`
	Actor       string       `json:"actor,omitempty"`
	LastActive  *time.Time   `json:"last_active,omitempty"`
	Exists      bool         `json:"exists"`
	AheadBehind *AheadBehind `json:"ahead_behind,omitempty"`
}

// List reports every registered workspace with its branch distance
// from base. A workspace whose directory vanished is still listed,
// flagged as missing.
func (m *Manager) List(ctx context.Context) ([]ListItem, error) {
	reg, err := m.storage.LoadRegistry()
	if err != nil {
		return nil, err
	}
	items := make([]ListItem, 0, len(reg.Workspaces))
	for _, entry := range reg.Workspaces {
		items = append(items, ListItem{
			Name:        entry.Name,
			Path:        entry.Path,
			Branch:      entry.Branch,
			Base:        entry.Base,
			Actor:       entry.Actor,
			LastActive:  entry.LastActive,
			Exists:      pathExists(entry.Path),
			AheadBehind: m.aheadBehind(ctx, entry.Branch, entry.Base),
		})
	}
	return items, nil
}

// LeaseSummary is a lease shown in workspace info.
type LeaseSummary struct {
	ID        string    `json:"id"`
	Pathspec  string    `json:"pathspec"`
	Strength  string    `json:"strength"`
	Actor     string    `json:"actor,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Details is the full picture of one workspace.
type Details struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Path            string         `json:"path"`
	Branch          string         `json:"branch"`
	Base            string         `json:"base"`
	Actor           string         `json:"actor,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	LastActive      *time.Time     `json:"last_active,omitempty"`
	Exists          bool           `json:"exists"`
	TouchedPaths    []string       `json:"touched_paths,omitempty"`
	Leases          []LeaseSummary `json:"leases,omitempty"`
	AheadBehindBase *AheadBehind   `json:"ahead_behind_base,omitempty"`
	AheadBehindMain *AheadBehind   `json:"ahead_behind_main,omitempty"`
	ChangeIDs       []string       `json:"change_ids,omitempty"`
}

// Info reports one workspace in depth: the paths its branch touches,
// active leases overlapping those paths, and its distance from both
// its base and the mainline ref.
func (m *Manager) Info(ctx context.Context, name, mainRef string) (*Details, error) {
	reg, err := m.storage.LoadRegistry()
	if err != nil {
		return nil, err
	}
	entry := reg.Find(name)
	if entry == nil {
		return nil, sverr.Validationf("workspace %q not found", name)
	}

	details := &Details{
		ID:         entry.ID,
		Name:       entry.Name,
		Path:       entry.Path,
		Branch:     entry.Branch,
		Base:       entry.Base,
		Actor:      entry.Actor,
		CreatedAt:  entry.CreatedAt,
		LastActive: entry.LastActive,
		Exists:     pathExists(entry.Path),
	}

	if touched, err := m.repo.ChangedPathsBetween(ctx, entry.Base, entry.Branch); err == nil {
		sort.Strings(touched)
		details.TouchedPaths = touched
	}

	if len(details.TouchedPaths) > 0 {
		if ls, err := m.storage.LoadLeases(); err == nil {
			now := m.storage.Clock().Now()
			for _, l := range ls.Active(now) {
				if !leaseTouches(l, details.TouchedPaths) {
					continue
				}
				details.Leases = append(details.Leases, LeaseSummary{
					ID:        l.ID,
					Pathspec:  l.Pathspec,
					Strength:  string(l.Strength),
					Actor:     l.Actor,
					ExpiresAt: l.ExpiresAt,
				})
			}
		}
	}

	details.AheadBehindBase = m.aheadBehind(ctx, entry.Branch, entry.Base)
	if mainRef != "" && mainRef != entry.Base {
		details.AheadBehindMain = m.aheadBehind(ctx, entry.Branch, mainRef)
	}
	details.ChangeIDs = m.recentChangeIDs(ctx, entry.Branch, 10)
	return details, nil
}

// Removed describes the result of Remove.
type Removed struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Removed bool   `json:"removed"`
}

// Remove deletes a workspace's worktree and registry entry. With
// force the directory is deleted even when git refuses, and a
// missing directory only prunes the stale worktree bookkeeping.
func (m *Manager) Remove(ctx context.Context, name string, force bool) (*Removed, error) {
	reg, err := m.storage.LoadRegistry()
	if err != nil {
		return nil, err
	}
	entry := reg.Find(name)
	if entry == nil {
		return nil, sverr.Validationf("workspace %q not found", name)
	}

	if pathExists(entry.Path) {
		if err := m.repo.RemoveWorktree(ctx, entry.Path, force); err != nil {
			if !force {
				return nil, err
			}
			os.RemoveAll(entry.Path) //nolint:errcheck
		}
	} else {
		m.repo.PruneWorktrees(ctx) //nolint:errcheck
	}

	if err := m.storage.MutateRegistry(func(reg *store.Registry) error {
		return reg.Remove(name)
	}); err != nil {
		return nil, err
	}

	record := oplog.NewRecord(m.storage.Clock(), "sv ws rm "+name, entry.Actor)
	record.AffectedWorkspaces = []string{name}
	record.AffectedRefs = []string{entry.Branch}
	record.UndoData = &oplog.UndoData{
		WorkspaceChanges: []oplog.WorkspaceChange{{
			Name:   name,
			Action: "remove",
			Path:   entry.Path,
			Branch: entry.Branch,
			Base:   entry.Base,
		}},
		DeletedPaths: []string{entry.Path},
	}
	m.log.Append(record) //nolint:errcheck

	return &Removed{Name: name, Path: entry.Path, Removed: true}, nil
}

// CleanupSkip explains why a workspace survived a cleanup pass.
type CleanupSkip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// CleanupFailure records a removal that errored.
type CleanupFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// CleanupReport tallies a cleanup pass.
type CleanupReport struct {
	DryRun  bool             `json:"dry_run,omitempty"`
	Removed []string         `json:"removed,omitempty"`
	Failed  []CleanupFailure `json:"failed,omitempty"`
	Skipped []CleanupSkip    `json:"skipped,omitempty"`
}

// CleanOptions configures Clean.
type CleanOptions struct {
	// Workspaces restricts the pass; empty means every registered
	// workspace.
	Workspaces []string
	// Dest overrides the merge target; empty checks each workspace
	// against its own base.
	Dest string
	// CurrentPath is never removed.
	CurrentPath string
	Force       bool
	DryRun      bool
}

// Clean removes workspaces whose branches are fully merged. A
// workspace is removed only when its branch is an ancestor of the
// dest ref; everything else is reported as skipped.
func (m *Manager) Clean(ctx context.Context, opts CleanOptions) (*CleanupReport, error) {
	reg, err := m.storage.LoadRegistry()
	if err != nil {
		return nil, err
	}

	selected := reg.Workspaces
	if len(opts.Workspaces) > 0 {
		wanted := make(map[string]bool, len(opts.Workspaces))
		for _, name := range opts.Workspaces {
			wanted[name] = true
		}
		var filtered []store.WorkspaceEntry
		for _, entry := range selected {
			if wanted[entry.Name] {
				filtered = append(filtered, entry)
			}
		}
		selected = filtered
	}

	report := &CleanupReport{DryRun: opts.DryRun}
	for _, entry := range selected {
		if opts.CurrentPath != "" && entry.Path == opts.CurrentPath {
			report.Skipped = append(report.Skipped, CleanupSkip{Name: entry.Name, Reason: "current workspace"})
			continue
		}
		dest := opts.Dest
		if dest == "" {
			dest = entry.Base
		}
		merged, err := m.repo.IsAncestor(ctx, entry.Branch, dest)
		if err != nil {
			report.Skipped = append(report.Skipped, CleanupSkip{
				Name:   entry.Name,
				Reason: fmt.Sprintf("merge check failed: %v", err),
			})
			continue
		}
		if !merged {
			report.Skipped = append(report.Skipped, CleanupSkip{
				Name:   entry.Name,
				Reason: "not merged into " + dest,
			})
			continue
		}
		if opts.DryRun {
			report.Removed = append(report.Removed, entry.Name)
			continue
		}
		if _, err := m.Remove(ctx, entry.Name, opts.Force); err != nil {
			report.Failed = append(report.Failed, CleanupFailure{Name: entry.Name, Error: err.Error()})
			continue
		}
		report.Removed = append(report.Removed, entry.Name)
	}
	return report, nil
}

// RegisterHere registers an existing directory as a workspace on its
// current branch. An empty name derives one from the directory.
func (m *Manager) RegisterHere(ctx context.Context, dir, name, actor string) (*Created, error) {
	branch := m.currentBranch(ctx)
	if name == "" {
		name = filepath.Base(dir)
		if name == "." || name == string(filepath.Separator) || name == "" {
			name = branch
		}
	}

	reg, err := m.storage.LoadRegistry()
	if err != nil {
		return nil, err
	}
	if reg.Find(name) != nil {
		return nil, sverr.Validationf("workspace %q already exists in registry", name)
	}

	if err := m.storage.InitLocal(); err != nil {
		return nil, err
	}

	now := m.storage.Clock().Now().UTC()
	entry := store.WorkspaceEntry{
		Name:      name,
		Path:      dir,
		Branch:    branch,
		Base:      branch,
		Actor:     actor,
		CreatedAt: now,
	}
	if err := m.storage.MutateRegistry(func(reg *store.Registry) error {
		return reg.Insert(entry)
	}); err != nil {
		return nil, err
	}

	record := oplog.NewRecord(m.storage.Clock(), "sv ws here "+name, actor)
	record.AffectedWorkspaces = []string{name}
	record.AffectedRefs = []string{branch}
	record.UndoData = &oplog.UndoData{
		WorkspaceChanges: []oplog.WorkspaceChange{{
			Name:   name,
			Action: "register",
			Path:   dir,
			Branch: branch,
			Base:   branch,
		}},
	}
	m.log.Append(record) //nolint:errcheck

	return &Created{Name: name, Path: dir, Branch: branch, Base: branch}, nil
}

// EnsureCurrent returns the registry entry for the given directory,
// auto-registering it when absent. Name collisions get a numeric
// suffix.
func (m *Manager) EnsureCurrent(ctx context.Context, dir, actor string) (*store.WorkspaceEntry, error) {
	reg, err := m.storage.LoadRegistry()
	if err != nil {
		return nil, err
	}
	if entry := reg.FindByPath(dir); entry != nil {
		return entry, nil
	}

	branch := m.currentBranch(ctx)
	name := filepath.Base(dir)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = branch
	}
	if reg.Find(name) != nil {
		base := name
		for counter := 1; reg.Find(name) != nil; counter++ {
			name = fmt.Sprintf("%s-%d", base, counter)
		}
	}

	if err := m.storage.InitLocal(); err != nil {
		return nil, err
	}

	now := m.storage.Clock().Now().UTC()
	entry := store.WorkspaceEntry{
		Name:      name,
		Path:      dir,
		Branch:    branch,
		Base:      branch,
		Actor:     actor,
		CreatedAt: now,
	}
	if err := m.storage.MutateRegistry(func(reg *store.Registry) error {
		return reg.Insert(entry)
	}); err != nil {
		return nil, err
	}

	record := oplog.NewRecord(m.storage.Clock(), "auto-register workspace "+name, actor)
	record.AffectedWorkspaces = []string{name}
	record.AffectedRefs = []string{branch}
	record.UndoData = &oplog.UndoData{
		WorkspaceChanges: []oplog.WorkspaceChange{{
			Name:   name,
			Action: "register",
			Path:   dir,
			Branch: branch,
			Base:   branch,
		}},
	}
	m.log.Append(record) //nolint:errcheck

	saved, err := m.storage.LoadRegistry()
	if err != nil {
		return nil, err
	}
	return saved.FindByPath(dir), nil
}

// TouchLastActive stamps the workspace's last activity time.
func (m *Manager) TouchLastActive(name string) error {
	return m.storage.MutateRegistry(func(reg *store.Registry) error {
		entry := reg.Find(name)
		if entry == nil {
			return sverr.Validationf("workspace %q not found", name)
		}
		now := m.storage.Clock().Now().UTC()
		entry.LastActive = &now
		return nil
	})
}

func (m *Manager) aheadBehind(ctx context.Context, branch, base string) *AheadBehind {
	ahead, behind, err := m.repo.AheadBehind(ctx, base, branch)
	if err != nil {
		return nil
	}
	return &AheadBehind{Base: base, Ahead: ahead, Behind: behind}
}

// recentChangeIDs walks the branch history collecting distinct
// Change-Id trailers, newest first.
func (m *Manager) recentChangeIDs(ctx context.Context, branch string, limit int) []string {
	out, err := m.repo.RunTrimmed(ctx, "rev-list", fmt.Sprintf("--max-count=%d", limit), branch)
	if err != nil || out == "" {
		return nil
	}
	var ids []string
	seen := make(map[string]bool)
	for _, oid := range splitLines(out) {
		message, err := m.repo.CommitMessage(ctx, oid)
		if err != nil {
			continue
		}
		if cid := changeid.Find(message); cid != "" && !seen[cid] {
			seen[cid] = true
			ids = append(ids, cid)
		}
	}
	return ids
}

func (m *Manager) currentBranch(ctx context.Context) string {
	branch, err := m.repo.RunTrimmed(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || branch == "" {
		return "HEAD"
	}
	return branch
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func leaseTouches(l lease.Lease, paths []string) bool {
	for _, path := range paths {
		if l.MatchesPath(path) {
			return true
		}
	}
	return false
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
