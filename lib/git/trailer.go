// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package git

import "strings"

// Trailer is one key-value pair from a commit message's trailer block
// (the final run of "Key: Value" lines, blank-line separated from the
// body).
type Trailer struct {
	Key   string
	Value string
}

func (t Trailer) String() string {
	return t.Key + ": " + t.Value
}

// ParseTrailers extracts the trailer block from a commit message. The
// block is found by walking backwards from the last line: consecutive
// trailer-shaped lines belong to the block, the first blank or
// non-trailer line ends it.
func ParseTrailers(message string) []Trailer {
	lines := strings.Split(strings.TrimRight(message, "\n"), "\n")

	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			break
		}
		if !isTrailerLine(trimmed) {
			break
		}
		start = i
	}

	var trailers []Trailer
	for _, line := range lines[start:] {
		key, value, ok := splitTrailerLine(strings.TrimSpace(line))
		if ok {
			trailers = append(trailers, Trailer{Key: key, Value: value})
		}
	}
	return trailers
}

// FindTrailer returns the first trailer matching key, case-insensitive.
func FindTrailer(trailers []Trailer, key string) (Trailer, bool) {
	for _, t := range trailers {
		if strings.EqualFold(t.Key, key) {
			return t, true
		}
	}
	return Trailer{}, false
}

// SetTrailer adds or updates a trailer in a commit message. Returns
// the new message and whether it changed.
func SetTrailer(message, key, value string) (string, bool) {
	trailers := ParseTrailers(message)
	if existing, ok := FindTrailer(trailers, key); ok {
		if existing.Value == value {
			return message, false
		}
		oldLine := existing.String()
		newLine := Trailer{Key: key, Value: value}.String()
		return strings.Replace(message, oldLine, newLine, 1), true
	}
	return appendTrailer(message, key, value), true
}

// RemoveTrailer deletes a trailer by key. Returns the new message and
// whether it changed.
func RemoveTrailer(message, key string) (string, bool) {
	trailers := ParseTrailers(message)
	existing, ok := FindTrailer(trailers, key)
	if !ok {
		return message, false
	}
	line := existing.String()
	updated := strings.Replace(message, "\n"+line+"\n", "\n", 1)
	if updated == message {
		updated = strings.Replace(message, line+"\n", "", 1)
	}
	if updated == message {
		updated = strings.Replace(message, line, "", 1)
	}
	return strings.TrimRight(updated, "\n") + "\n", true
}

// appendTrailer adds a trailer line, inserting the separating blank
// line when the message has no trailer block yet.
func appendTrailer(message, key, value string) string {
	trimmed := strings.TrimRight(message, "\n")
	line := Trailer{Key: key, Value: value}.String()

	if trimmed == "" {
		return line + "\n"
	}
	if hasTrailerBlock(trimmed) {
		return trimmed + "\n" + line + "\n"
	}
	return trimmed + "\n\n" + line + "\n"
}

// hasTrailerBlock reports whether the final paragraph of the message
// consists of trailer lines.
func hasTrailerBlock(message string) bool {
	lines := strings.Split(message, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			return false
		}
		if isTrailerLine(trimmed) {
			return true
		}
		return false
	}
	return false
}

// isTrailerLine matches "Key: Value" with a key of alphanumerics and
// dashes.
func isTrailerLine(line string) bool {
	key, _, ok := splitTrailerLine(line)
	return ok && key != ""
}

func splitTrailerLine(line string) (key, value string, ok bool) {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:colon])
	value = strings.TrimSpace(line[colon+1:])
	if key == "" || value == "" {
		return "", "", false
	}
	for _, r := range key {
		if !isTrailerKeyRune(r) {
			return "", "", false
		}
	}
	return key, value, true
}

func isTrailerKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		return true
	}
	return false
}
