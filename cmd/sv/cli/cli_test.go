// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"
	"time"
)

func TestBindFlagsTypes(t *testing.T) {
	var params struct {
		Name    string        `flag:"name,n" desc:"a name"`
		Force   bool          `flag:"force"`
		Limit   int           `flag:"limit" default:"20"`
		TTL     time.Duration `flag:"ttl" default:"90m"`
		Targets []string      `flag:"target"`
		ignored string
	}
	flagSet := FlagsFromParams("test", &params)
	err := flagSet.Parse([]string{
		"-n", "alice", "--force", "--ttl", "2h", "--target", "a", "--target", "b",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Name != "alice" || !params.Force {
		t.Errorf("params = %+v", params)
	}
	if params.Limit != 20 {
		t.Errorf("Limit = %d, want default 20", params.Limit)
	}
	if params.TTL != 2*time.Hour {
		t.Errorf("TTL = %v", params.TTL)
	}
	if len(params.Targets) != 2 || params.Targets[0] != "a" {
		t.Errorf("Targets = %v", params.Targets)
	}
	if params.ignored != "" {
		t.Errorf("untagged field was touched: %q", params.ignored)
	}
}

func TestBindFlagsEmbedded(t *testing.T) {
	var params struct {
		JSONOutput
		Verbose bool `flag:"verbose"`
	}
	flagSet := FlagsFromParams("test", &params)
	if err := flagSet.Parse([]string{"--json", "-q", "--verbose"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !params.OutputJSON || !params.Quiet || !params.Verbose {
		t.Errorf("params = %+v", params)
	}
}

func TestBindFlagsRejectsNonStruct(t *testing.T) {
	var n int
	flagSet := FlagsFromParams("test", &struct{}{})
	if err := BindFlags(&n, flagSet); err == nil {
		t.Fatal("expected error for non-struct params")
	}
	if err := BindFlags(struct{}{}, flagSet); err == nil {
		t.Fatal("expected error for non-pointer params")
	}
}

func TestBindFlagsUnsupportedType(t *testing.T) {
	var params struct {
		Bad float64 `flag:"bad"`
	}
	flagSet := FlagsFromParams("test", &struct{}{})
	err := BindFlags(&params, flagSet)
	if err == nil || !strings.Contains(err.Error(), "unsupported type") {
		t.Fatalf("err = %v", err)
	}
}

func TestExecuteDispatchesSubcommand(t *testing.T) {
	var got []string
	root := &Command{
		Name: "sv",
		Subcommands: []*Command{{
			Name: "lease",
			Subcommands: []*Command{{
				Name: "ls",
				Run: func(args []string) error {
					got = args
					return nil
				},
			}},
		}},
	}
	if err := root.Execute([]string{"lease", "ls", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(got) != 1 || got[0] != "extra" {
		t.Errorf("args = %v", got)
	}
}

func TestExecuteSuggestsOnTypo(t *testing.T) {
	root := &Command{
		Name:        "sv",
		Subcommands: []*Command{{Name: "lease"}, {Name: "release"}},
	}
	err := root.Execute([]string{"laese"})
	if err == nil || !strings.Contains(err.Error(), `"lease"`) {
		t.Fatalf("err = %v", err)
	}
}

func TestExecuteGroupDefaultRun(t *testing.T) {
	ran := false
	root := &Command{
		Name:        "hoist",
		Run:         func(args []string) error { ran = true; return nil },
		Subcommands: []*Command{{Name: "status", Run: func([]string) error { return nil }}},
	}
	if err := root.Execute(nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !ran {
		t.Error("default Run did not execute")
	}
}

func TestExecuteGroupRequiresSubcommand(t *testing.T) {
	root := &Command{
		Name:        "op",
		Subcommands: []*Command{{Name: "log"}},
	}
	if err := root.Execute(nil); err == nil {
		t.Fatal("expected subcommand required error")
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"lease", "lease", 0},
		{"lease", "laese", 2},
		{"take", "fake", 1},
		{"ws", "risk", 4},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestOutputHumanSections(t *testing.T) {
	out := NewOutput("status", "sv status", nil).
		Summary("actor", "alice").
		Summary("note only", "").
		Detail("src/api/** leased").
		Warning("1 lease expired").
		NextStep("sv lease renew")

	var buf strings.Builder
	out.emitHuman(&buf)
	text := buf.String()

	for _, want := range []string{
		"sv status\n",
		"Summary:",
		"- actor: alice",
		"- note only\n",
		"Details:",
		"- src/api/** leased",
		"Warnings:",
		"- 1 lease expired",
		"Next steps:",
		"- sv lease renew",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestOutputHumanSkipsEmptySections(t *testing.T) {
	var buf strings.Builder
	NewOutput("init", "sv init: nothing to do", nil).emitHuman(&buf)
	text := buf.String()
	for _, section := range []string{"Summary:", "Details:", "Warnings:", "Next steps:"} {
		if strings.Contains(text, section) {
			t.Errorf("empty section %q rendered:\n%s", section, text)
		}
	}
}

func TestNormalizeNilSlice(t *testing.T) {
	var nilSlice []string
	if got := normalizeNilSlice(nilSlice); got == nil {
		t.Error("nil slice not normalized")
	} else if s, ok := got.([]string); !ok || s == nil {
		t.Errorf("got %#v", got)
	}
	if got := normalizeNilSlice("text"); got != "text" {
		t.Errorf("non-slice value changed: %v", got)
	}
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: 3}
	if err.ExitCode() != 3 {
		t.Errorf("ExitCode = %d", err.ExitCode())
	}
	if err.Error() == "" {
		t.Error("Error() is empty")
	}
}
