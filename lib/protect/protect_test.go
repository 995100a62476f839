// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package protect

import (
	"testing"

	"github.com/sv-project/sv/lib/config"
)

func TestComputeStatusMatchesAndDisables(t *testing.T) {
	rules := []config.Rule{
		{Pattern: ".beads/**", Mode: config.ModeGuard},
		{Pattern: "Cargo.lock", Mode: config.ModeGuard},
	}
	override := Override{DisabledPatterns: []string{"Cargo.lock"}}
	staged := []string{".beads/issues.jsonl", "Cargo.lock"}

	status, err := ComputeStatus(rules, override, staged)
	if err != nil {
		t.Fatalf("ComputeStatus: %v", err)
	}
	if len(status.Rules) != 2 {
		t.Fatalf("rules = %+v", status.Rules)
	}
	if len(status.Rules[0].MatchedFiles) != 1 || status.Rules[0].MatchedFiles[0] != ".beads/issues.jsonl" {
		t.Fatalf("first rule matches = %v", status.Rules[0].MatchedFiles)
	}
	if !status.Rules[1].Disabled {
		t.Fatal("override did not disable Cargo.lock rule")
	}
}

func TestComputeStatusWildcardsStayInSegment(t *testing.T) {
	rules := []config.Rule{
		{Pattern: "*.lock", Mode: config.ModeReadonly},
		{Pattern: "src/*.go", Mode: config.ModeGuard},
	}
	staged := []string{"Cargo.lock", "sub/dir/foo.lock", "src/main.go", "src/a/b.go"}

	status, err := ComputeStatus(rules, Override{}, staged)
	if err != nil {
		t.Fatalf("ComputeStatus: %v", err)
	}
	if got := status.Rules[0].MatchedFiles; len(got) != 1 || got[0] != "Cargo.lock" {
		t.Fatalf("*.lock matches = %v", got)
	}
	if got := status.Rules[1].MatchedFiles; len(got) != 1 || got[0] != "src/main.go" {
		t.Fatalf("src/*.go matches = %v", got)
	}
}

func TestEvaluatePartitionsByMode(t *testing.T) {
	rules := []config.Rule{
		{Pattern: "schema/**", Mode: config.ModeGuard},
		{Pattern: "docs/**", Mode: config.ModeWarn},
		{Pattern: "go.sum", Mode: config.ModeReadonly},
	}
	staged := []string{"schema/v1.sql", "docs/guide.md", "go.sum", "src/main.go"}

	blocking, warnings, err := Evaluate(rules, Override{}, staged)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(blocking) != 2 {
		t.Fatalf("blocking = %+v", blocking)
	}
	if len(warnings) != 1 || warnings[0].Path != "docs/guide.md" {
		t.Fatalf("warnings = %+v", warnings)
	}
}

func TestEvaluateDisabledRuleIsSilent(t *testing.T) {
	rules := []config.Rule{{Pattern: "schema/**", Mode: config.ModeGuard}}
	override := Override{DisabledPatterns: []string{"schema/**"}}

	blocking, warnings, err := Evaluate(rules, override, []string{"schema/v1.sql"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(blocking) != 0 || len(warnings) != 0 {
		t.Fatalf("disabled rule produced output: %v %v", blocking, warnings)
	}
}

func TestEffectiveModeFailsClosed(t *testing.T) {
	if got := EffectiveMode("fortress"); got != config.ModeGuard {
		t.Fatalf("unknown mode resolved to %q, want guard", got)
	}
	if got := EffectiveMode(config.ModeWarn); got != config.ModeWarn {
		t.Fatalf("warn resolved to %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"./src/main.go":    "src/main.go",
		"src\\win\\path.go": "src/win/path.go",
		"plain.txt":        "plain.txt",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseOverrideToleratesComments(t *testing.T) {
	data := []byte(`{
  // patterns this workspace opted out of
  "disabled_patterns": ["Cargo.lock",],
}`)
	o, err := ParseOverride(data)
	if err != nil {
		t.Fatalf("ParseOverride: %v", err)
	}
	if len(o.DisabledPatterns) != 1 || o.DisabledPatterns[0] != "Cargo.lock" {
		t.Fatalf("override = %+v", o)
	}
}

func TestParseOverrideEmpty(t *testing.T) {
	o, err := ParseOverride(nil)
	if err != nil || len(o.DisabledPatterns) != 0 {
		t.Fatalf("ParseOverride(nil) = %+v, %v", o, err)
	}
}
