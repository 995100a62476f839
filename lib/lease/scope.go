// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"strings"

	"github.com/sv-project/sv/lib/sverr"
)

// ScopeType narrows where a lease applies.
type ScopeType string

const (
	// ScopeRepo applies everywhere in the repository.
	ScopeRepo ScopeType = "repo"
	// ScopeBranch applies only to work on one branch.
	ScopeBranch ScopeType = "branch"
	// ScopeWorkspace applies only to one registered workspace.
	ScopeWorkspace ScopeType = "ws"
)

// Scope is a lease's area of effect. The zero value is not valid; use
// RepoScope() for the default.
type Scope struct {
	Type  ScopeType `json:"type"`
	Value string    `json:"value,omitempty"`
}

// RepoScope returns the default repository-wide scope.
func RepoScope() Scope { return Scope{Type: ScopeRepo} }

// BranchScope returns a scope limited to one branch.
func BranchScope(branch string) Scope { return Scope{Type: ScopeBranch, Value: branch} }

// WorkspaceScope returns a scope limited to one workspace.
func WorkspaceScope(name string) Scope { return Scope{Type: ScopeWorkspace, Value: name} }

// ParseScope parses "repo", "branch:<name>", or "ws:<name>".
// "workspace:<name>" is accepted as a long spelling of "ws:".
func ParseScope(s string) (Scope, error) {
	if s == "" || s == "repo" {
		return RepoScope(), nil
	}
	if name, ok := strings.CutPrefix(s, "branch:"); ok {
		if name == "" {
			return Scope{}, sverr.Validationf("branch scope needs a branch name")
		}
		return BranchScope(name), nil
	}
	if name, ok := strings.CutPrefix(s, "workspace:"); ok {
		if name == "" {
			return Scope{}, sverr.Validationf("workspace scope needs a workspace name")
		}
		return WorkspaceScope(name), nil
	}
	if name, ok := strings.CutPrefix(s, "ws:"); ok {
		if name == "" {
			return Scope{}, sverr.Validationf("workspace scope needs a workspace name")
		}
		return WorkspaceScope(name), nil
	}
	return Scope{}, sverr.Validationf("invalid scope %q (expected repo, branch:<name>, or ws:<name>)", s)
}

// String renders the compact form used on the command line.
func (s Scope) String() string {
	switch s.Type {
	case ScopeBranch:
		return "branch:" + s.Value
	case ScopeWorkspace:
		return "ws:" + s.Value
	}
	return "repo"
}

// AppliesTo reports whether the scope covers work happening on the
// given branch in the given workspace. Repo scopes cover everything.
func (s Scope) AppliesTo(branch, workspace string) bool {
	switch s.Type {
	case ScopeBranch:
		return s.Value == branch
	case ScopeWorkspace:
		return s.Value == workspace
	}
	return true
}
