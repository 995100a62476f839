// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sv-project/sv/lib/sverr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return dir
}

func TestLoadFromRepoMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromRepo(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFromRepo: %v", err)
	}
	if cfg.Base != "main" || cfg.Leases.DefaultTTL != "2h" || !cfg.Leases.RequireNote {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Actor.Default != "unknown" {
		t.Fatalf("actor default = %q", cfg.Actor.Default)
	}
	if cfg.Hoist.IntegrationPrefix != "sv/hoist/" {
		t.Fatalf("hoist prefix = %q", cfg.Hoist.IntegrationPrefix)
	}
}

func TestLoadPartialFileKeepsOtherDefaults(t *testing.T) {
	dir := writeConfig(t, "[leases]\ndefault_ttl = \"30m\"\n")
	cfg, err := LoadFromRepo(dir)
	if err != nil {
		t.Fatalf("LoadFromRepo: %v", err)
	}
	if cfg.Leases.DefaultTTL != "30m" {
		t.Fatalf("ttl = %q", cfg.Leases.DefaultTTL)
	}
	if cfg.Leases.DefaultStrength != "cooperative" || cfg.Base != "main" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadProtectEntryShapes(t *testing.T) {
	dir := writeConfig(t, `
[protect]
mode = "guard"
paths = [
  "Cargo.lock",
  { pattern = "docs/**", mode = "warn" },
  { path = "go.sum", mode = "readonly" },
]
`)
	cfg, err := LoadFromRepo(dir)
	if err != nil {
		t.Fatalf("LoadFromRepo: %v", err)
	}
	rules := cfg.Protect.Rules()
	if len(rules) != 3 {
		t.Fatalf("rules = %+v", rules)
	}
	want := []Rule{
		{Pattern: "Cargo.lock", Mode: "guard"},
		{Pattern: "docs/**", Mode: "warn"},
		{Pattern: "go.sum", Mode: "readonly"},
	}
	for i, rule := range rules {
		if rule != want[i] {
			t.Errorf("rule[%d] = %+v, want %+v", i, rule, want[i])
		}
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	dir := writeConfig(t, "[protect]\nmode = \"fortress\"\n")
	_, err := LoadFromRepo(dir)
	if err == nil {
		t.Fatal("invalid mode accepted")
	}
	if sverr.KindOf(err) != sverr.Validation {
		t.Fatalf("kind = %v, want Validation", sverr.KindOf(err))
	}
}

func TestLoadRejectsInvalidPattern(t *testing.T) {
	dir := writeConfig(t, "[protect]\npaths = [\"src/[\"]\n")
	if _, err := LoadFromRepo(dir); err == nil {
		t.Fatal("invalid glob accepted")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	dir := writeConfig(t, "[leases]\ndefault_ttl = \"soon\"\n")
	if _, err := LoadFromRepo(dir); err == nil {
		t.Fatal("invalid ttl accepted")
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	dir := writeConfig(t, "base = [unclosed\n")
	_, err := LoadFromRepo(dir)
	if err == nil {
		t.Fatal("malformed file accepted")
	}
	if sverr.KindOf(err) != sverr.Validation {
		t.Fatalf("kind = %v, want Validation", sverr.KindOf(err))
	}
}

func TestDefaultTemplateParses(t *testing.T) {
	dir := writeConfig(t, DefaultTemplate)
	cfg, err := LoadFromRepo(dir)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if cfg.Base != "main" || cfg.Protect.Mode != ModeGuard {
		t.Fatalf("template config = %+v", cfg)
	}
}
