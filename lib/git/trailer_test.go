// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package git

import "testing"

func TestParseTrailers(t *testing.T) {
	msg := "Fix the widget\n\nLonger explanation here.\n\nChange-Id: abc-123\nSigned-off-by: Dev <dev@example.invalid>\n"
	trailers := ParseTrailers(msg)
	if len(trailers) != 2 {
		t.Fatalf("trailers = %+v", trailers)
	}
	if trailers[0].Key != "Change-Id" || trailers[0].Value != "abc-123" {
		t.Fatalf("first trailer = %+v", trailers[0])
	}
}

func TestParseTrailersNoBlock(t *testing.T) {
	if got := ParseTrailers("Just a subject line\n"); got != nil {
		t.Fatalf("trailers = %+v, want none", got)
	}
	// A colon in prose is not a trailer.
	if got := ParseTrailers("Fix: everything\n\nBody mentions a ratio of 2:1 here\nand then plain text"); got != nil {
		t.Fatalf("trailers = %+v, want none", got)
	}
}

func TestFindTrailerCaseInsensitive(t *testing.T) {
	trailers := []Trailer{{Key: "Change-Id", Value: "xyz"}}
	if _, ok := FindTrailer(trailers, "change-id"); !ok {
		t.Fatal("case-insensitive lookup failed")
	}
}

func TestSetTrailerAppendsWithSeparator(t *testing.T) {
	updated, changed := SetTrailer("Subject only\n", "Change-Id", "new-id")
	if !changed {
		t.Fatal("expected change")
	}
	want := "Subject only\n\nChange-Id: new-id\n"
	if updated != want {
		t.Fatalf("updated = %q, want %q", updated, want)
	}
}

func TestSetTrailerExtendsExistingBlock(t *testing.T) {
	msg := "Subject\n\nSigned-off-by: Dev <d@example.invalid>\n"
	updated, changed := SetTrailer(msg, "Change-Id", "id-1")
	if !changed {
		t.Fatal("expected change")
	}
	want := "Subject\n\nSigned-off-by: Dev <d@example.invalid>\nChange-Id: id-1\n"
	if updated != want {
		t.Fatalf("updated = %q, want %q", updated, want)
	}
}

func TestSetTrailerSameValueNoChange(t *testing.T) {
	msg := "Subject\n\nChange-Id: id-1\n"
	if _, changed := SetTrailer(msg, "Change-Id", "id-1"); changed {
		t.Fatal("unchanged value reported as change")
	}
}

func TestSetTrailerReplacesValue(t *testing.T) {
	msg := "Subject\n\nChange-Id: old\n"
	updated, changed := SetTrailer(msg, "Change-Id", "new")
	if !changed || updated != "Subject\n\nChange-Id: new\n" {
		t.Fatalf("updated = %q changed = %v", updated, changed)
	}
}

func TestRemoveTrailer(t *testing.T) {
	msg := "Subject\n\nChange-Id: gone\nSigned-off-by: Dev <d@example.invalid>\n"
	updated, changed := RemoveTrailer(msg, "Change-Id")
	if !changed {
		t.Fatal("expected change")
	}
	if got := updated; got != "Subject\n\nSigned-off-by: Dev <d@example.invalid>\n" {
		t.Fatalf("updated = %q", got)
	}
	if _, changed := RemoveTrailer(msg, "Not-There"); changed {
		t.Fatal("missing key reported as change")
	}
}
