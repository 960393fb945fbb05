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
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// Pattern Library
// =============================================================================
//
// Every extraction the router and the route handlers need from free text
// lives here: quoted phrases, search queries, fulfilment targets, page ids,
// correction pairs, edit intents. All patterns are pre-compiled at package
// init; matching is case-insensitive where the original text casing does not
// carry meaning.

var (
	quotedPhraseRe = regexp.MustCompile(`(?:^|\s|:)["']([^"']+)["']`)

	searchQueryRe = regexp.MustCompile(`(?i)(?:search|find|lookup)\s+(?:wishes|tool requests|requests|for|about)?\s*(.+)`)

	fulfilClosestRe = regexp.MustCompile(`(?i)(?:closest to|closest match|closest)\s*[:\-]\s*(.+)`)
	fulfilVerbRe    = regexp.MustCompile(`(?i)(?:make|build|implement|fulfil|fulfill|create)\s+(?:the\s+)?(?:tool|thing|workflow|system)?\s*(?:for|to|that|which|:)?\s*(.+)`)

	correctionRe = regexp.MustCompile(`(?i)(?:change|correct|fix|update)\s+(.+?)\s+to\s+(.+)`)

	pageIDHexRe = regexp.MustCompile(`(?i)([0-9a-f]{32})`)

	callToolRe = regexp.MustCompile(`(?i)^\s*call\s+([a-z0-9_-]+)\s*(\{.*\})?\s*$`)

	planWordRe = regexp.MustCompile(`\bplan\b`)

	editTitleRe  = regexp.MustCompile(`(?i)(?:rename|change|update|set)\s+title(?:\s+from)?\s+(.+?)\s+to\s+(.+)`)
	editStatusRe = regexp.MustCompile(`(?i)set\s+status\s+(.+)`)
	editDescRe   = regexp.MustCompile(`(?i)set\s+description\s+(.+)`)
	editTagRe    = regexp.MustCompile(`(?i)(?:add|set)\s+tag[s]?\s+(.+)`)

	notionWordRe = regexp.MustCompile(`(?i)\b(in\s+notion|notion)\b`)

	prefsThresholdRe = regexp.MustCompile(`auto apply threshold to\s*([0-9.]+)`)
)

// Phrase and keyword tables driving the route predicates. Order within a
// table does not matter; precedence between predicates is fixed by the
// route chain in router.go.
var (
	listPhrases     = []string{"list wishes", "show tool requests", "list tool requests", "show wishes"}
	triagePhrases   = []string{"triage"}
	scaffoldPhrases = []string{"scaffold", "start project", "start a project", "create tool"}
	deployPhrases   = []string{"deploy", "ship", "push to vm"}
	searchPhrases   = []string{"search", "find", "lookup"}
	prefsPhrases    = []string{"auto apply", "auto-apply"}

	applyLastPhrases = []string{"apply that", "apply last preview", "apply last correction"}

	planOnlyPhrases = []string{
		"start with the plan",
		"start with plan",
		"just plan",
		"plan only",
		"outline",
		"what's the plan",
		"what is the plan",
	}

	fulfilBestTriggers = []string{
		"make a wish",
		"fulfil a wish",
		"fulfill a wish",
		"what should we build",
		"what should we build now",
		"what should we build next",
		"make one of the tools i wished for",
		"pick something to build",
		"choose something to build",
		"next tool to build",
		"build next",
		"build something",
	}
	fulfilVerbs = []string{"make", "build", "implement", "fulfil", "fulfill", "create"}

	wishCapturePhrases = []string{"i wish", "wish i could", "i wish you could"}

	editVerbs = []string{"fix", "correct", "change", "update", "edit"}

	notionEditKeywords = []string{
		"edit", "update", "change", "fix", "correct", "rename", "set",
		"add tag", "remove tag",
	}
)

func containsAny(lower string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ExtractQuotedPhrases returns all single- or double-quoted phrases in text,
// trimmed, in order of appearance.
func ExtractQuotedPhrases(text string) []string {
	matches := quotedPhraseRe.FindAllStringSubmatch(text, -1)
	phrases := make([]string, 0, len(matches))
	for _, m := range matches {
		if p := strings.TrimSpace(m[1]); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}

// ExtractSearchQuery pulls the search target out of a search-style request.
// A quoted phrase wins; otherwise the tail after the search verb; otherwise
// the whole request.
func ExtractSearchQuery(text string) string {
	if quoted := ExtractQuotedPhrases(text); len(quoted) > 0 {
		return quoted[0]
	}
	if m := searchQueryRe.FindStringSubmatch(text); m != nil {
		if q := strings.TrimSpace(m[1]); q != "" {
			return q
		}
	}
	return text
}

// ExtractEditQuery is ExtractSearchQuery with the "notion" noise words
// removed, for the edit_notion route's page lookup.
func ExtractEditQuery(text string) string {
	query := ExtractSearchQuery(text)
	return strings.TrimSpace(notionWordRe.ReplaceAllString(query, ""))
}

// ExtractFulfilQuery extracts the target description from a fulfilment
// request ("build the tool for X" → "X"). Returns "" when the request names
// no concrete target (e.g. "make a wish come true").
func ExtractFulfilQuery(text string) string {
	if m := fulfilClosestRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fulfilVerbRe.FindStringSubmatch(text); m != nil {
		target := strings.TrimSpace(m[1])
		if strings.HasPrefix(strings.ToLower(target), "a wish") {
			return ""
		}
		return target
	}
	return ""
}

// ExtractPageID finds a page identifier in text: either a dashed UUID or a
// bare 32-hex-digit id. Dashed candidates are validated with uuid.Parse so
// look-alike text cannot be mistaken for an id.
func ExtractPageID(text string) string {
	for _, field := range strings.Fields(text) {
		trimmed := strings.Trim(field, `"'<>().,`)
		if id, err := uuid.Parse(trimmed); err == nil {
			return id.String()
		}
	}
	if m := pageIDHexRe.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

// ParseCorrection extracts the (old, new) pair from a correction request.
// Two quoted phrases win; otherwise the "change X to Y" form. Either value
// may be empty when no pair was found.
func ParseCorrection(text string) (oldText, newText string) {
	quoted := ExtractQuotedPhrases(text)
	if len(quoted) >= 2 {
		return quoted[0], quoted[1]
	}
	if m := correctionRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return "", ""
}

// ReplaceCaseInsensitive replaces the first case-insensitive occurrence of
// old in text with new. When old does not occur at all, the replacement text
// wins outright: the caller asked for the new value, the old anchor was just
// wrong.
func ReplaceCaseInsensitive(text, old, new string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(old))
	if !re.MatchString(text) {
		return new
	}
	replaced := false
	return re.ReplaceAllStringFunc(text, func(match string) string {
		if replaced {
			return match
		}
		replaced = true
		return new
	})
}

// EditIntent is the structured form of an edit_notion request.
type EditIntent struct {
	// Title is the new page title, empty when the request does not rename.
	Title string

	// Properties maps property names (Status, Description, Domain) to their
	// new values. Domain carries a []string of tags.
	Properties map[string]any

	// Notes lists problems with the request, e.g. no update intent at all.
	Notes []string
}

// ParseEditIntent extracts field updates from an edit_notion request.
func ParseEditIntent(text string) EditIntent {
	intent := EditIntent{Properties: map[string]any{}}

	if m := editTitleRe.FindStringSubmatch(text); m != nil {
		intent.Title = stripQuotes(m[2])
	}
	if m := editStatusRe.FindStringSubmatch(text); m != nil {
		intent.Properties["Status"] = stripQuotes(m[1])
	}
	if m := editDescRe.FindStringSubmatch(text); m != nil {
		intent.Properties["Description"] = stripQuotes(m[1])
	}
	if m := editTagRe.FindStringSubmatch(text); m != nil {
		raw := stripQuotes(m[1])
		tags := make([]string, 0, 4)
		for _, tag := range strings.Split(raw, ",") {
			if t := strings.TrimSpace(tag); t != "" {
				tags = append(tags, t)
			}
		}
		if len(tags) > 0 {
			intent.Properties["Domain"] = tags
		}
	}

	if intent.Title == "" && len(intent.Properties) == 0 {
		intent.Notes = append(intent.Notes,
			"No update intent detected; specify title/status/description/tag.")
	}
	return intent
}

func stripQuotes(text string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"'`))
}

// CallSpec is a parsed "call <tool> <json-args>" request.
type CallSpec struct {
	Tool string
	Args string // raw JSON object text, may be empty
}

// ParseCall matches the structured call form. Returns (spec, true) on match.
func ParseCall(text string) (CallSpec, bool) {
	m := callToolRe.FindStringSubmatch(text)
	if m == nil {
		return CallSpec{}, false
	}
	return CallSpec{Tool: strings.ToLower(m[1]), Args: m[2]}, true
}

// IsPlanOnly reports whether the request carries the plan-only modifier:
// any of the plan phrases, or the standalone word "plan".
func IsPlanOnly(text string) bool {
	lower := strings.ToLower(text)
	if containsAny(lower, planOnlyPhrases) {
		return true
	}
	return planWordRe.MatchString(lower)
}

// isWishCapture reports whether the request looks like a wish being logged
// ("I wish ...") rather than an instruction to build something now. A
// fulfilment verb anywhere in the request flips it back to fulfilment.
func isWishCapture(lower string) bool {
	if !containsAny(lower, wishCapturePhrases) {
		return false
	}
	return !containsAnyWord(lower, fulfilVerbs)
}

func containsAnyWord(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// detectFulfilMode classifies a fulfilment request. Returns the route
// (RouteFulfilBest or RouteFulfilMatch) and the extracted target query for
// the match form. Returns RouteUnknown when the request is not fulfilment.
func detectFulfilMode(text string) (Route, string) {
	lower := strings.ToLower(text)
	if containsAny(lower, fulfilBestTriggers) {
		return RouteFulfilBest, ""
	}
	if containsAnyWord(lower, fulfilVerbs) {
		if query := ExtractFulfilQuery(text); query != "" {
			return RouteFulfilMatch, query
		}
		return RouteFulfilBest, ""
	}
	return RouteUnknown, ""
}

// isCorrectionRequest reports whether the request targets the tool-request
// database with an edit verb.
func isCorrectionRequest(lower string) bool {
	if !strings.Contains(lower, "tool request") && !strings.Contains(lower, "friction log") {
		return false
	}
	return containsAnyWord(lower, editVerbs)
}

// isNotionEdit reports whether the request is a generic Notion page edit.
func isNotionEdit(lower string) bool {
	if !strings.Contains(lower, "notion") {
		return false
	}
	return containsAny(lower, notionEditKeywords)
}
