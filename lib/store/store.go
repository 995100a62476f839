// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package store owns the on-disk layout of sv state. Shared state
// (workspace registry, leases, conflicts, operation log, hoist state)
// lives under <git common dir>/sv so every linked worktree sees the
// same files. Workspace-local state (actor override, workspace
// metadata, protect overrides) lives in .sv/ at the working tree root.
//
// Every read-modify-write cycle on a shared file runs under an
// advisory lock named <file>.lock beside the file, and every write is
// atomic (temp file plus rename).
package store

import (
	"path/filepath"
	"strings"

	"github.com/sv-project/sv/lib/clock"
)

// Storage resolves paths for one working tree and its shared state.
type Storage struct {
	// sharedDir is <git common dir>/sv.
	sharedDir string
	// workTree is the working tree root.
	workTree string
	clk      clock.Clock
}

// New builds a Storage from the git common dir and working tree root.
func New(commonDir, workTree string, clk clock.Clock) *Storage {
	return &Storage{
		sharedDir: filepath.Join(commonDir, "sv"),
		workTree:  workTree,
		clk:       clk,
	}
}

// Clock returns the storage's clock, shared with engines layered on
// top so tests control one time source.
func (s *Storage) Clock() clock.Clock { return s.clk }

// WorkTree returns the working tree root.
func (s *Storage) WorkTree() string { return s.workTree }

// SharedDir returns the shared state directory.
func (s *Storage) SharedDir() string { return s.sharedDir }

// LocalDir returns the workspace-local .sv directory.
func (s *Storage) LocalDir() string { return filepath.Join(s.workTree, ".sv") }

// ActorFile is the workspace-local actor override.
func (s *Storage) ActorFile() string { return filepath.Join(s.LocalDir(), "actor") }

// WorkspaceMetadataFile is the workspace-local metadata record.
func (s *Storage) WorkspaceMetadataFile() string {
	return filepath.Join(s.LocalDir(), "workspace.json")
}

// OverridesDir holds workspace-local policy overrides.
func (s *Storage) OverridesDir() string { return filepath.Join(s.LocalDir(), "overrides") }

// ProtectOverrideFile is the workspace-local protect override.
func (s *Storage) ProtectOverrideFile() string {
	return filepath.Join(s.OverridesDir(), "protect.json")
}

// WorkspacesFile is the shared workspace registry.
func (s *Storage) WorkspacesFile() string { return filepath.Join(s.sharedDir, "workspaces.json") }

// LeasesFile is the shared lease store, one JSON record per line.
func (s *Storage) LeasesFile() string { return filepath.Join(s.sharedDir, "leases.jsonl") }

// ConflictsFile is the shared conflict record store.
func (s *Storage) ConflictsFile() string { return filepath.Join(s.sharedDir, "conflicts.jsonl") }

// OplogDir holds operation records, one file each.
func (s *Storage) OplogDir() string { return filepath.Join(s.sharedDir, "oplog") }

// OplogLockFile serializes oplog filename generation.
func (s *Storage) OplogLockFile() string { return filepath.Join(s.OplogDir(), "oplog.lock") }

// HoistDir holds per-destination replay state.
func (s *Storage) HoistDir() string { return filepath.Join(s.sharedDir, "hoist") }

// HoistStateDir returns the state directory for a destination ref.
func (s *Storage) HoistStateDir(destRef string) string {
	return filepath.Join(s.HoistDir(), HoistKey(destRef))
}

// HoistStateFile returns the replay state file for a destination ref.
func (s *Storage) HoistStateFile(destRef string) string {
	return filepath.Join(s.HoistStateDir(destRef), "state.json")
}

// HoistConflictsFile returns the conflict log for a destination ref.
func (s *Storage) HoistConflictsFile(destRef string) string {
	return filepath.Join(s.HoistStateDir(destRef), "conflicts.jsonl")
}

// LockFor returns the lock file guarding a state file.
func LockFor(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".lock"
}

// HoistKey turns a destination ref into a directory name: every byte
// outside [A-Za-z0-9_-] becomes an underscore, and an empty ref maps
// to a single underscore so the path stays valid.
func HoistKey(destRef string) string {
	if destRef == "" {
		return "_"
	}
	var b strings.Builder
	for _, r := range destRef {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
