// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router classifies free-text automation requests into a single
// action route, scores candidate tool requests against a query, estimates a
// bounded confidence for proposed corrections, and gates mutating actions
// behind the dry-run / confirm / auto-apply policy.
//
// Everything in this package is pure: no I/O, no clocks, no globals beyond
// metrics. Determinism here is what makes the safety gate testable.
package router

import (
	"regexp"
	"strings"
)

// =============================================================================
// Text Normalization
// =============================================================================

// tokenRe matches a single lowercase alphanumeric token. Normalization
// lowercases the input first, so uppercase ranges are not needed.
var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// stopwords are excluded from tokenization everywhere downstream: route
// keyword matching, candidate scoring, and confidence overlap all operate on
// the same normalized token stream. Fulfilment verbs (make/build/...) are
// deliberately included so that "build something for pantry tracking" matches
// a candidate about pantry tracking, not every candidate mentioning "build".
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "to": {}, "a": {}, "an": {}, "of": {},
	"in": {}, "for": {}, "with": {}, "is": {}, "are": {}, "be": {}, "it": {},
	"this": {}, "that": {}, "my": {}, "your": {}, "from": {}, "on": {},
	"by": {}, "as": {}, "at": {}, "like": {}, "me": {}, "lets": {},
	"let": {}, "take": {}, "make": {}, "build": {}, "implement": {},
	"create": {}, "fulfil": {}, "fulfill": {},
}

// Tokenize lowercases text, splits it into alphanumeric tokens, and drops
// stopwords. Order and duplicates are preserved.
//
// # Inputs
//
//   - text: Raw request or candidate text. May be empty.
//
// # Outputs
//
//   - []string: Normalized tokens in order of appearance. Never nil.
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, skip := stopwords[tok]; skip {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// TokenSet returns the deduplicated normalized tokens of text.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// overlapTokens returns the tokens shared between two token sets, in the
// order they appear in the query token slice. Used for rationale display and
// for the confidence keyword-overlap rule.
func overlapTokens(queryTokens []string, other map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(queryTokens))
	shared := make([]string, 0, len(queryTokens))
	for _, tok := range queryTokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := other[tok]; ok {
			shared = append(shared, tok)
		}
	}
	return shared
}

// SimplifyQuery reduces a query to its two leading non-stopword tokens.
// Used as a last-resort search fallback when the literal query found nothing.
func SimplifyQuery(text string) string {
	tokens := Tokenize(text)
	switch {
	case len(tokens) >= 2:
		return tokens[0] + " " + tokens[1]
	case len(tokens) == 1:
		return tokens[0]
	default:
		return ""
	}
}

// FallbackQueries produces progressively shorter variants of a query for
// retry searches: leading trigram, leading bigram, first token, trailing
// bigram. Duplicates are removed, order preserved.
func FallbackQueries(query string) []string {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	options := make([]string, 0, 4)
	if len(tokens) >= 3 {
		options = append(options, strings.Join(tokens[:3], " "))
	}
	if len(tokens) >= 2 {
		options = append(options, strings.Join(tokens[:2], " "))
	}
	options = append(options, tokens[0])
	if len(tokens) >= 2 {
		options = append(options, strings.Join(tokens[len(tokens)-2:], " "))
	}
	seen := make(map[string]struct{}, len(options))
	deduped := make([]string, 0, len(options))
	for _, opt := range options {
		if opt == "" {
			continue
		}
		if _, dup := seen[opt]; dup {
			continue
		}
		seen[opt] = struct{}{}
		deduped = append(deduped, opt)
	}
	return deduped
}
