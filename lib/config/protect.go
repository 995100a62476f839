// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strconv"

	"github.com/gobwas/glob"

	"github.com/sv-project/sv/lib/sverr"
)

// Protect modes, from strictest to loosest.
const (
	// ModeGuard blocks commits touching the path.
	ModeGuard = "guard"
	// ModeReadonly blocks any staged change to the path.
	ModeReadonly = "readonly"
	// ModeWarn allows the commit but prints a warning.
	ModeWarn = "warn"
)

// ProtectConfig declares protected paths. Each entry is either a bare
// pattern string (using the section's default mode) or a table with an
// explicit per-pattern mode.
type ProtectConfig struct {
	// Mode is the default for entries without their own.
	Mode  string        `toml:"mode"`
	Paths []ProtectPath `toml:"paths"`
}

// ProtectPath is one entry under protect.paths. In TOML it is either
// "pattern" or { pattern = "...", mode = "..." } ("path" accepted as
// an alias for "pattern").
type ProtectPath struct {
	Pattern string
	// Mode is empty for bare-string entries.
	Mode string
}

// UnmarshalTOML accepts both entry shapes.
func (p *ProtectPath) UnmarshalTOML(value any) error {
	switch v := value.(type) {
	case string:
		p.Pattern = v
		return nil
	case map[string]any:
		if pattern, ok := v["pattern"].(string); ok {
			p.Pattern = pattern
		} else if path, ok := v["path"].(string); ok {
			p.Pattern = path
		} else {
			return fmt.Errorf("protect.paths entry missing pattern")
		}
		if mode, ok := v["mode"].(string); ok {
			p.Mode = mode
		}
		return nil
	}
	return fmt.Errorf("protect.paths entry must be a string or a table, got %T", value)
}

// MarshalTOML round-trips the entry shapes: bare string when the
// entry uses the section default, inline table otherwise.
func (p ProtectPath) MarshalTOML() ([]byte, error) {
	if p.Mode == "" {
		return []byte(strconv.Quote(p.Pattern)), nil
	}
	return []byte(fmt.Sprintf("{ pattern = %s, mode = %s }",
		strconv.Quote(p.Pattern), strconv.Quote(p.Mode))), nil
}

// Rule is a normalized protect entry with its effective mode resolved.
type Rule struct {
	Pattern string `json:"pattern"`
	Mode    string `json:"mode"`
}

// Rules resolves entries against the default mode.
func (c *ProtectConfig) Rules() []Rule {
	rules := make([]Rule, 0, len(c.Paths))
	for _, p := range c.Paths {
		mode := p.Mode
		if mode == "" {
			mode = c.Mode
		}
		rules = append(rules, Rule{Pattern: p.Pattern, Mode: mode})
	}
	return rules
}

func (c *ProtectConfig) validate() error {
	if err := validateMode(c.Mode, "protect.mode"); err != nil {
		return err
	}
	for _, p := range c.Paths {
		if _, err := glob.Compile(p.Pattern, '/'); err != nil {
			return sverr.Validationf("protect.paths: invalid pattern %q: %v", p.Pattern, err)
		}
		if p.Mode != "" {
			if err := validateMode(p.Mode, "protect.paths.mode"); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateMode(mode, field string) error {
	switch mode {
	case ModeGuard, ModeReadonly, ModeWarn:
		return nil
	}
	return sverr.Validationf("%s: invalid mode %q (expected guard, readonly, or warn)", field, mode)
}
