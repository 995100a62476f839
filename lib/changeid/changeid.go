// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package changeid manages Change-Id trailers, the identity that
// survives a commit being rebased, amended, or replayed onto another
// branch.
package changeid

import (
	"strings"

	"github.com/google/uuid"
)

// Trailer key in commit messages.
const Key = "Change-Id"

// Generate returns a fresh Change-Id value.
func Generate() string {
	return uuid.NewString()
}

// Find returns the first Change-Id in a commit message, or "".
func Find(message string) string {
	for _, line := range strings.Split(message, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		rest, found := strings.CutPrefix(trimmed, Key+":")
		if !found {
			continue
		}
		if value := strings.TrimSpace(rest); value != "" {
			return value
		}
	}
	return ""
}

// Ensure appends a Change-Id trailer when the message has none,
// reporting whether the message changed.
func Ensure(message string) (string, bool) {
	if Find(message) != "" {
		return message, false
	}
	return appendChangeID(message, Generate()), true
}

func appendChangeID(message, changeID string) string {
	trimmed := strings.TrimRight(message, "\r\n")
	if trimmed == "" {
		return Key + ": " + changeID + "\n"
	}
	return trimmed + "\n\n" + Key + ": " + changeID + "\n"
}
