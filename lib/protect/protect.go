// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package protect evaluates protected-path rules against staged files.
// Rules come from .sv.toml; a per-workspace override file can disable
// individual patterns. Guard and readonly rules block the commit gate,
// warn rules only produce warnings.
package protect

import (
	"encoding/json"
	"strings"

	"github.com/gobwas/glob"
	"github.com/tidwall/jsonc"

	"github.com/sv-project/sv/lib/config"
	"github.com/sv-project/sv/lib/sverr"
)

// Override is the per-workspace override file: patterns from the
// repository config that this workspace has disabled.
type Override struct {
	DisabledPatterns []string `json:"disabled_patterns"`
}

// ParseOverride decodes an override file. Comments and trailing commas
// are tolerated since these files are hand-edited.
func ParseOverride(data []byte) (Override, error) {
	var o Override
	if len(data) == 0 {
		return o, nil
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &o); err != nil {
		return Override{}, sverr.Validationf("parsing protect override: %v", err)
	}
	return o, nil
}

// RuleStatus reports one rule's evaluation against a file set.
type RuleStatus struct {
	Rule config.Rule `json:"rule"`
	// Disabled marks rules switched off by the workspace override.
	Disabled     bool     `json:"disabled"`
	MatchedFiles []string `json:"matched_files"`
}

// Status aggregates every rule's evaluation.
type Status struct {
	Rules            []RuleStatus `json:"rules"`
	DisabledPatterns []string     `json:"disabled_patterns"`
}

// ComputeStatus evaluates all rules against the given files. Patterns
// are matched against normalized paths.
func ComputeStatus(rules []config.Rule, override Override, files []string) (Status, error) {
	status := Status{DisabledPatterns: override.DisabledPatterns}
	for _, rule := range rules {
		// '/' as separator keeps * and ? inside one path segment; only
		// ** crosses directories.
		matcher, err := glob.Compile(rule.Pattern, '/')
		if err != nil {
			return Status{}, sverr.Validationf("invalid protect pattern %q: %v", rule.Pattern, err)
		}
		rs := RuleStatus{Rule: rule, Disabled: disabled(override, rule.Pattern)}
		for _, f := range files {
			if matcher.Match(NormalizePath(f)) {
				rs.MatchedFiles = append(rs.MatchedFiles, f)
			}
		}
		status.Rules = append(status.Rules, rs)
	}
	return status, nil
}

// Violation is one staged file hitting an enabled rule.
type Violation struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern"`
	Mode    string `json:"mode"`
}

// Evaluate partitions staged files into blocking violations (guard,
// readonly) and warnings (warn). Disabled rules produce neither.
func Evaluate(rules []config.Rule, override Override, staged []string) (blocking, warnings []Violation, err error) {
	status, err := ComputeStatus(rules, override, staged)
	if err != nil {
		return nil, nil, err
	}
	for _, rs := range status.Rules {
		if rs.Disabled {
			continue
		}
		mode := EffectiveMode(rs.Rule.Mode)
		for _, f := range rs.MatchedFiles {
			v := Violation{Path: f, Pattern: rs.Rule.Pattern, Mode: mode}
			if mode == config.ModeWarn {
				warnings = append(warnings, v)
			} else {
				blocking = append(blocking, v)
			}
		}
	}
	return blocking, warnings, nil
}

// EffectiveMode resolves a mode for evaluation. An unknown mode (from
// a stale override or a future config version) fails closed to guard.
func EffectiveMode(mode string) string {
	switch mode {
	case config.ModeGuard, config.ModeReadonly, config.ModeWarn:
		return mode
	}
	return config.ModeGuard
}

// NormalizePath converts backslashes to forward slashes and strips a
// leading "./" so patterns match regardless of how the path was
// spelled.
func NormalizePath(p string) string {
	normalized := strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(normalized, "./")
}

func disabled(o Override, pattern string) bool {
	for _, p := range o.DisabledPatterns {
		if p == pattern {
			return true
		}
	}
	return false
}
