// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"strconv"
	"strings"
	"time"

	"github.com/sv-project/sv/lib/sverr"
)

// ParseDuration parses TTL syntax: an integer followed by s, m, h, d,
// or w (long forms like "min" and "hours" also accepted). A bare
// integer means minutes. The value must be positive.
func ParseDuration(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, sverr.Validationf("empty duration")
	}

	digits := trimmed
	unit := ""
	for i, r := range trimmed {
		if r < '0' || r > '9' {
			digits = trimmed[:i]
			unit = trimmed[i:]
			break
		}
	}
	if digits == "" {
		return 0, sverr.Validationf("invalid duration %q (expected <number>[s|m|h|d|w])", s)
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, sverr.Validationf("invalid duration %q: %v", s, err)
	}
	if n <= 0 {
		return 0, sverr.Validationf("duration must be positive, got %q", s)
	}

	var d time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "":
		// Bare number means minutes.
		d = time.Duration(n) * time.Minute
	case "s", "sec", "second", "seconds":
		d = time.Duration(n) * time.Second
	case "m", "min", "minute", "minutes":
		d = time.Duration(n) * time.Minute
	case "h", "hr", "hour", "hours":
		d = time.Duration(n) * time.Hour
	case "d", "day", "days":
		d = time.Duration(n) * 24 * time.Hour
	case "w", "week", "weeks":
		d = time.Duration(n) * 7 * 24 * time.Hour
	default:
		return 0, sverr.Validationf("invalid duration unit %q (expected s, m, h, d, or w)", unit)
	}
	return d, nil
}

// ParseGrace parses a grace window: like ParseDuration but zero is
// allowed ("0s" disables the grace period).
func ParseGrace(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "0" || strings.HasPrefix(trimmed, "0") {
		// Accept 0, 0s, 0m, and friends.
		rest := strings.TrimLeft(trimmed, "0")
		switch strings.ToLower(rest) {
		case "", "s", "sec", "second", "seconds", "m", "min", "minute", "minutes",
			"h", "hr", "hour", "hours", "d", "day", "days", "w", "week", "weeks":
			return 0, nil
		}
	}
	return ParseDuration(s)
}
