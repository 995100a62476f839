// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sv-project/sv/lib/lockfile"
	"github.com/sv-project/sv/lib/sverr"
)

// WorkspaceEntry is one registered working copy.
type WorkspaceEntry struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Branch     string     `json:"branch"`
	Base       string     `json:"base"`
	Actor      string     `json:"actor,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// Registry is the shared index of workspaces.
type Registry struct {
	Workspaces []WorkspaceEntry `json:"workspaces"`
}

// Find returns the entry with the given name, or nil.
func (r *Registry) Find(name string) *WorkspaceEntry {
	for i := range r.Workspaces {
		if r.Workspaces[i].Name == name {
			return &r.Workspaces[i]
		}
	}
	return nil
}

// FindByPath returns the entry registered at path, or nil.
func (r *Registry) FindByPath(path string) *WorkspaceEntry {
	for i := range r.Workspaces {
		if r.Workspaces[i].Path == path {
			return &r.Workspaces[i]
		}
	}
	return nil
}

// Insert adds an entry, assigning an id when empty. The name must be
// unique and the path must exist on disk.
func (r *Registry) Insert(entry WorkspaceEntry) error {
	if entry.Name == "" {
		return sverr.Validationf("workspace name must not be empty")
	}
	if r.Find(entry.Name) != nil {
		return sverr.Validationf("workspace %q is already registered", entry.Name)
	}
	if _, err := os.Stat(entry.Path); err != nil {
		return sverr.Validationf("workspace path %s does not exist", entry.Path)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	r.Workspaces = append(r.Workspaces, entry)
	return nil
}

// Remove deletes the entry with the given name.
func (r *Registry) Remove(name string) error {
	for i := range r.Workspaces {
		if r.Workspaces[i].Name == name {
			r.Workspaces = append(r.Workspaces[:i], r.Workspaces[i+1:]...)
			return nil
		}
	}
	return sverr.Validationf("no workspace named %q", name)
}

// CleanupStale drops entries whose path no longer exists, returning
// the removed entries.
func (r *Registry) CleanupStale() []WorkspaceEntry {
	var kept, removed []WorkspaceEntry
	for _, entry := range r.Workspaces {
		if _, err := os.Stat(entry.Path); err != nil {
			removed = append(removed, entry)
			continue
		}
		kept = append(kept, entry)
	}
	r.Workspaces = kept
	return removed
}

// EnsureIDs assigns ids to entries written before ids existed,
// reporting whether anything changed.
func (r *Registry) EnsureIDs() bool {
	changed := false
	for i := range r.Workspaces {
		if r.Workspaces[i].ID == "" {
			r.Workspaces[i].ID = uuid.NewString()
			changed = true
		}
	}
	return changed
}

// Validate checks registry invariants: unique names, existing paths.
func (r *Registry) Validate() []string {
	var problems []string
	seen := make(map[string]bool, len(r.Workspaces))
	for _, entry := range r.Workspaces {
		if seen[entry.Name] {
			problems = append(problems, "duplicate workspace name "+entry.Name)
		}
		seen[entry.Name] = true
		if _, err := os.Stat(entry.Path); err != nil {
			problems = append(problems, "workspace "+entry.Name+" path missing: "+entry.Path)
		}
	}
	return problems
}

// LoadRegistry reads the shared registry. A missing file yields an
// empty registry.
func (s *Storage) LoadRegistry() (*Registry, error) {
	var reg Registry
	data, err := os.ReadFile(s.WorkspacesFile())
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{}, nil
		}
		return nil, sverr.Wrap(sverr.Internal, err, "reading %s", s.WorkspacesFile())
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, sverr.Wrap(sverr.Internal, err, "decoding %s", s.WorkspacesFile())
	}
	return &reg, nil
}

// SaveRegistry writes the registry atomically. Callers mutating the
// registry should use MutateRegistry instead.
func (s *Storage) SaveRegistry(reg *Registry) error {
	return s.WriteJSON(s.WorkspacesFile(), reg)
}

// MutateRegistry runs fn over the registry under its lock and writes
// the result back.
func (s *Storage) MutateRegistry(fn func(*Registry) error) error {
	return lockfile.WithLock(s.clk, LockFor(s.WorkspacesFile()), func() error {
		reg, err := s.LoadRegistry()
		if err != nil {
			return err
		}
		if err := fn(reg); err != nil {
			return err
		}
		return s.SaveRegistry(reg)
	})
}
