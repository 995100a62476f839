// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package sverr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestExitCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"validation", Validationf("bad flag"), 2},
		{"conflict", Conflictf("lease held"), 3},
		{"internal", Internalf("git failed"), 4},
		{"unclassified", errors.New("plain"), 4},
		{"wrapped validation", fmt.Errorf("outer: %w", Validationf("inner")), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCodeOf(tc.err); got != tc.want {
				t.Fatalf("ExitCodeOf(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(Internal, fs.ErrNotExist, "reading state")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("wrapped error lost its cause: %v", err)
	}
	if got := err.Error(); got != "reading state: file does not exist" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(Conflict, nil, "ignored"); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestToJSON(t *testing.T) {
	j := ToJSON(Conflictf("lease %s held by %s", "abc", "reviewer"))
	if j.Kind != "conflict" || j.ExitCode != 3 {
		t.Fatalf("unexpected JSON error: %+v", j)
	}
	if j.Error != "lease abc held by reviewer" {
		t.Fatalf("unexpected message: %q", j.Error)
	}
}
