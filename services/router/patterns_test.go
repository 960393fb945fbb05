// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"reflect"
	"strings"
	"testing"
)

// =============================================================================
// Quoted Phrase + Query Extraction Tests
// =============================================================================

func TestExtractQuotedPhrases_BothQuoteStyles(t *testing.T) {
	got := ExtractQuotedPhrases(`change "Inbox Triage" to 'Inbox Cleanup'`)
	want := []string{"Inbox Triage", "Inbox Cleanup"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractQuotedPhrases_ApostropheNotAQuote(t *testing.T) {
	// An apostrophe inside a word must not open a phrase.
	got := ExtractQuotedPhrases("what's the plan for tomorrow")
	if len(got) != 0 {
		t.Errorf("expected no phrases, got %v", got)
	}
}

func TestExtractSearchQuery_QuotedWins(t *testing.T) {
	if got := ExtractSearchQuery(`search for 'calendar sync'`); got != "calendar sync" {
		t.Errorf("got %q", got)
	}
}

func TestExtractSearchQuery_VerbTail(t *testing.T) {
	if got := ExtractSearchQuery("search for calendar wishes"); got != "calendar wishes" {
		t.Errorf("got %q", got)
	}
	if got := ExtractSearchQuery("find receipts"); got != "receipts" {
		t.Errorf("got %q", got)
	}
}

func TestExtractSearchQuery_FallsBackToWholeText(t *testing.T) {
	if got := ExtractSearchQuery("calendar"); got != "calendar" {
		t.Errorf("got %q", got)
	}
}

func TestExtractEditQuery_StripsNotionWords(t *testing.T) {
	got := ExtractEditQuery("update the reading page in notion")
	if got == "" {
		t.Fatal("expected non-empty query")
	}
	if strings.Contains(got, "notion") {
		t.Errorf("query still mentions notion: %q", got)
	}
}

func TestExtractFulfilQuery(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"build the tool for receipt scanning", "receipt scanning"},
		{"closest to: meal planning", "meal planning"},
		{"make a wish come true", ""},
		{"show tool requests", ""},
	}
	for _, tc := range cases {
		if got := ExtractFulfilQuery(tc.text); got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.text, got, tc.want)
		}
	}
}

// =============================================================================
// Page ID Extraction Tests
// =============================================================================

func TestExtractPageID_DashedUUID(t *testing.T) {
	id := "1f3b2aa0-9c0d-4e55-8a11-2b9df0c1e777"
	if got := ExtractPageID("apply it to " + id + " please"); got != id {
		t.Errorf("got %q", got)
	}
}

func TestExtractPageID_BareHex(t *testing.T) {
	hex := "1f3b2aa09c0d4e558a112b9df0c1e777"
	if got := ExtractPageID("page https://notion.so/Reading-" + hex); got != hex {
		t.Errorf("got %q", got)
	}
}

func TestExtractPageID_NoIDPresent(t *testing.T) {
	if got := ExtractPageID("update the reading page"); got != "" {
		t.Errorf("got %q", got)
	}
}

// =============================================================================
// Correction Parsing Tests
// =============================================================================

func TestParseCorrection_QuotedPair(t *testing.T) {
	oldText, newText := ParseCorrection(`change 'Inbox Triage' to 'Inbox Cleanup'`)
	if oldText != "Inbox Triage" || newText != "Inbox Cleanup" {
		t.Errorf("got (%q, %q)", oldText, newText)
	}
}

func TestParseCorrection_ChangeToForm(t *testing.T) {
	oldText, newText := ParseCorrection("fix the title spelling to Grocery Helper")
	if oldText != "the title spelling" || newText != "Grocery Helper" {
		t.Errorf("got (%q, %q)", oldText, newText)
	}
}

func TestParseCorrection_NoPair(t *testing.T) {
	oldText, newText := ParseCorrection("please tidy that up")
	if oldText != "" || newText != "" {
		t.Errorf("got (%q, %q)", oldText, newText)
	}
}

func TestReplaceCaseInsensitive(t *testing.T) {
	cases := []struct {
		text, old, new, want string
	}{
		{"Inbox Triage Assistant", "inbox triage", "Inbox Cleanup", "Inbox Cleanup Assistant"},
		{"triage triage", "triage", "sort", "sort triage"},
		{"Pantry tracker", "inbox", "Inbox Cleanup", "Inbox Cleanup"},
	}
	for _, tc := range cases {
		if got := ReplaceCaseInsensitive(tc.text, tc.old, tc.new); got != tc.want {
			t.Errorf("ReplaceCaseInsensitive(%q, %q, %q) = %q, want %q",
				tc.text, tc.old, tc.new, got, tc.want)
		}
	}
}

// =============================================================================
// Edit Intent Tests
// =============================================================================

func TestParseEditIntent_StatusAndTags(t *testing.T) {
	intent := ParseEditIntent("set status Done and add tags reading, health in notion")
	if intent.Properties["Status"] == nil {
		t.Fatalf("status missing: %v", intent.Properties)
	}
	tags, ok := intent.Properties["Domain"].([]string)
	if !ok || !reflect.DeepEqual(tags, []string{"reading", "health in notion"}) {
		t.Errorf("tags: %v", intent.Properties["Domain"])
	}
}

func TestParseEditIntent_TitleRename(t *testing.T) {
	intent := ParseEditIntent(`rename title 'Reading List' to 'Reading Queue'`)
	if intent.Title != "Reading Queue" {
		t.Errorf("title: %q", intent.Title)
	}
	if len(intent.Notes) != 0 {
		t.Errorf("unexpected notes: %v", intent.Notes)
	}
}

func TestParseEditIntent_NoIntentNoted(t *testing.T) {
	intent := ParseEditIntent("the notion page about reading")
	if len(intent.Notes) == 0 {
		t.Error("expected a note about missing update intent")
	}
}

// =============================================================================
// Call Parsing Tests
// =============================================================================

func TestParseCall(t *testing.T) {
	spec, ok := ParseCall(`call tool_requests_latest {"limit": 5}`)
	if !ok || spec.Tool != "tool_requests_latest" || spec.Args != `{"limit": 5}` {
		t.Errorf("got %+v, ok=%v", spec, ok)
	}

	spec, ok = ParseCall("call notion_search")
	if !ok || spec.Tool != "notion_search" || spec.Args != "" {
		t.Errorf("got %+v, ok=%v", spec, ok)
	}

	if _, ok := ParseCall("please call me back"); ok {
		t.Error("free text must not parse as a call")
	}
}
