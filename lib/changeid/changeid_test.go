// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package changeid

import (
	"strings"
	"testing"
)

func TestFind(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    string
	}{
		{"trailer", "Fix: update config\n\nChange-Id: 1234\n", "1234"},
		{"indented", "Subject\n\n  Change-Id: abcd\n", "abcd"},
		{"missing", "Fix: update config\n", ""},
		{"empty value", "Subject\n\nChange-Id:\n", ""},
		{"first wins", "Change-Id: one\nChange-Id: two\n", "one"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Find(tc.message); got != tc.want {
				t.Errorf("Find = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEnsureAddsTrailer(t *testing.T) {
	updated, changed := Ensure("Fix: update config")
	if !changed {
		t.Fatal("expected a change")
	}
	if !strings.Contains(updated, "\n\nChange-Id: ") {
		t.Errorf("updated = %q", updated)
	}
	if !strings.HasSuffix(updated, "\n") {
		t.Error("message should end with a newline")
	}
}

func TestEnsureNoopWhenPresent(t *testing.T) {
	message := "Fix: update config\n\nChange-Id: abc"
	updated, changed := Ensure(message)
	if changed || updated != message {
		t.Errorf("Ensure changed message: %q", updated)
	}
}

func TestEnsureEmptyMessage(t *testing.T) {
	updated, changed := Ensure("")
	if !changed || !strings.HasPrefix(updated, "Change-Id: ") {
		t.Errorf("updated = %q", updated)
	}
}
