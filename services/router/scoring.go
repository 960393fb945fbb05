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
	"sort"
	"strings"
)

// =============================================================================
// Candidate Scoring
// =============================================================================

// Scoring weights. Each shared non-stopword token between query and candidate
// contributes tokenOverlapWeight; a quoted phrase appearing verbatim in the
// title adds phraseMatchBonus; the two most-recently-created candidates in
// the input ordering each get recencyBonus. Candidates upstream are already
// sorted newest-first, so "input index <= 1" is the recency signal.
const (
	tokenOverlapWeight = 1.0
	phraseMatchBonus   = 2.5
	recencyBonus       = 0.5

	// maxRationaleTokens caps the overlapping tokens surfaced for display.
	maxRationaleTokens = 5
)

// Breakdown rule names. These appear verbatim in score breakdowns and in
// rationale text, so they are stable identifiers, not display strings.
const (
	ruleTokenOverlap = "token_overlap"
	rulePhraseMatch  = "phrase_match"
	ruleRecency      = "recency"
)

// Candidate is an externally-sourced item eligible to be matched against a
// request: one row of the tool-requests / friction-log database. Immutable
// once fetched for a given run; identity is ID.
type Candidate struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	URL            string   `json:"url,omitempty"`
	Description    string   `json:"description,omitempty"`
	DesiredOutcome string   `json:"desired_outcome,omitempty"`
	Domain         []string `json:"domain,omitempty"`
	Status         string   `json:"status,omitempty"`
	CreatedTime    string   `json:"created_time,omitempty"`
	LastEditedTime string   `json:"last_edited_time,omitempty"`
}

// ScoreBreakdown explains a candidate's relevance score: one numeric
// contribution per rule, the total, and the overlapping tokens that drove
// the overlap rule. Recomputed per call, never persisted.
type ScoreBreakdown struct {
	// Rules maps rule name to its contribution. Absent rules contributed 0.
	Rules map[string]float64 `json:"rules"`

	// TotalScore is the sum of all rule contributions. Always >= 0.
	TotalScore float64 `json:"total_score"`

	// MatchedTokens holds up to 5 overlapping tokens, longest first, for
	// human-readable rationale.
	MatchedTokens []string `json:"matched_tokens"`
}

// Rationale renders the breakdown as a short display string: the matched
// tokens when there are any, otherwise the positively-contributing rule
// names, otherwise "low overlap".
func (b ScoreBreakdown) Rationale() string {
	if len(b.MatchedTokens) > 0 {
		return strings.Join(b.MatchedTokens, ", ")
	}
	positive := make([]string, 0, len(b.Rules))
	for _, rule := range []string{rulePhraseMatch, ruleRecency, ruleTokenOverlap} {
		if b.Rules[rule] > 0 {
			positive = append(positive, rule)
		}
	}
	if len(positive) == 0 {
		return "low overlap"
	}
	return strings.Join(positive, ", ")
}

// Score computes the relevance of one candidate against a query.
//
// # Description
//
// Pure and deterministic: identical inputs always produce an identical
// breakdown. inputIndex is the candidate's position in the fetched pool and
// feeds the recency rule (positions 0 and 1 are the two newest items).
//
// # Inputs
//
//   - query: The normalized-at-call-time search text. May be empty.
//   - cand: The candidate to score.
//   - inputIndex: Position of cand in the original input ordering.
//
// # Outputs
//
//   - ScoreBreakdown: Per-rule contributions, total, matched tokens.
func Score(query string, cand Candidate, inputIndex int) ScoreBreakdown {
	breakdown := ScoreBreakdown{Rules: map[string]float64{}}

	queryTokens := Tokenize(query)
	candTokens := TokenSet(cand.Title + " " + cand.Description)
	shared := overlapTokens(queryTokens, candTokens)
	if len(shared) > 0 {
		breakdown.Rules[ruleTokenOverlap] = tokenOverlapWeight * float64(len(shared))
	}

	titleLower := strings.ToLower(cand.Title)
	for _, phrase := range ExtractQuotedPhrases(query) {
		if strings.Contains(titleLower, strings.ToLower(phrase)) {
			breakdown.Rules[rulePhraseMatch] = phraseMatchBonus
			break
		}
	}

	if inputIndex >= 0 && inputIndex <= 1 {
		breakdown.Rules[ruleRecency] = recencyBonus
	}

	for _, v := range breakdown.Rules {
		breakdown.TotalScore += v
	}

	// Longest tokens first: a crude relevance ordering that keeps short
	// generic words out of the visible rationale. Ties keep query order.
	sort.SliceStable(shared, func(i, j int) bool {
		return len(shared[i]) > len(shared[j])
	})
	if len(shared) > maxRationaleTokens {
		shared = shared[:maxRationaleTokens]
	}
	breakdown.MatchedTokens = shared

	return breakdown
}

// Ranked pairs a candidate with its score breakdown.
type Ranked struct {
	Candidate
	Breakdown ScoreBreakdown `json:"score_breakdown"`

	// TotalScore duplicates Breakdown.TotalScore at the top level for
	// machine consumers of the envelope.
	TotalScore float64 `json:"total_score"`

	// Rationale is the display form of the breakdown.
	Rationale string `json:"rationale"`
}

// Rank scores every candidate and sorts by total score descending.
//
// # Description
//
// The sort is stable: ties keep the original input order. Candidates arrive
// pre-sorted newest-first upstream, so stability preserves recency as the
// tiebreaker.
//
// # Inputs
//
//   - query: Search text to score against.
//   - pool: Candidates in their original fetch order.
//
// # Outputs
//
//   - []Ranked: All candidates with breakdowns, best first. Never nil.
func Rank(query string, pool []Candidate) []Ranked {
	ranked := make([]Ranked, 0, len(pool))
	for i, cand := range pool {
		breakdown := Score(query, cand, i)
		ranked = append(ranked, Ranked{
			Candidate:  cand,
			Breakdown:  breakdown,
			TotalScore: breakdown.TotalScore,
			Rationale:  breakdown.Rationale(),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalScore > ranked[j].TotalScore
	})
	return ranked
}
