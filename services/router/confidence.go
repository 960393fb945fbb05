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
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Confidence Estimation
// =============================================================================

// Confidence rule weights. Hand-tuned constants carried over from the
// production system; configurable in spirit (named, in one place), but not
// re-derived. Rules are independent and each fires at most once, so the sum
// before clamping is at most 1.0 anyway; the clamp only guards the upper
// bound because no rule ever subtracts.
const (
	weightQuotedPhraseMatch = 0.45
	weightRecencyBonus      = 0.20
	weightNegationPattern   = 0.20
	weightKeywordOverlap    = 0.15

	// minOverlapTokens is how many shared tokens the keyword-overlap rule
	// requires before firing.
	minOverlapTokens = 2
)

// ConfidenceRule is one entry of a confidence breakdown.
type ConfidenceRule struct {
	Rule    string  `json:"rule"`
	Score   float64 `json:"score"`
	Details string  `json:"details"`
}

// ConfidenceResult is a bounded [0,1] estimate of how certain a proposed
// correction matches user intent. Consumed exclusively by the safety gate;
// never used to filter or re-rank candidates.
type ConfidenceResult struct {
	Score     float64          `json:"score"`
	Breakdown []ConfidenceRule `json:"breakdown"`
}

// EstimateConfidence scores a proposed correction against a candidate.
//
// # Description
//
// Four independent rules, each contributing a fixed weight when triggered:
// the extracted old phrase appears in the candidate title; the candidate is
// one of the two earliest-indexed items in the pool; the request uses
// correction/negation phrasing; the request and title share at least two
// normalized tokens. The total is clamped to [0,1] and is monotone in the
// number of triggered rules.
//
// # Inputs
//
//   - requestText: The raw correction request.
//   - cand: The candidate the correction would apply to.
//   - pool: The full candidate pool cand was drawn from (recency index).
//   - oldPhrase: The extracted "old" phrase, may be empty.
//
// # Outputs
//
//   - ConfidenceResult: Clamped score plus the ordered rule breakdown.
func EstimateConfidence(requestText string, cand Candidate, pool []Candidate, oldPhrase string) ConfidenceResult {
	var result ConfidenceResult
	lower := strings.ToLower(requestText)
	titleLower := strings.ToLower(cand.Title)

	if oldPhrase != "" && strings.Contains(titleLower, strings.ToLower(oldPhrase)) {
		result.add("quoted_phrase_match", weightQuotedPhraseMatch,
			fmt.Sprintf("Matched %q in title.", oldPhrase))
	}

	for idx, item := range pool {
		if item.ID == cand.ID {
			if idx <= 1 {
				result.add("recency_bonus", weightRecencyBonus,
					"Candidate is among the two newest results.")
			}
			break
		}
	}

	if hasNegationPhrasing(lower) {
		result.add("negation_pattern", weightNegationPattern,
			"Detected correction/negation phrasing.")
	}

	requestTokens := TokenSet(requestText)
	titleTokens := TokenSet(cand.Title)
	overlap := make([]string, 0, len(requestTokens))
	for tok := range requestTokens {
		if _, ok := titleTokens[tok]; ok {
			overlap = append(overlap, tok)
		}
	}
	if len(overlap) >= minOverlapTokens {
		sort.Strings(overlap)
		result.add("keyword_overlap", weightKeywordOverlap,
			"Overlapping tokens: "+strings.Join(overlap, ", ")+".")
	}

	if result.Score > 1.0 {
		result.Score = 1.0
	}
	if result.Score < 0 {
		result.Score = 0
	}
	return result
}

func (r *ConfidenceResult) add(rule string, score float64, details string) {
	r.Score += score
	r.Breakdown = append(r.Breakdown, ConfidenceRule{Rule: rule, Score: score, Details: details})
}

// hasNegationPhrasing detects "not X but Y", "instead of", and explicit
// misinterpretation complaints.
func hasNegationPhrasing(lower string) bool {
	if strings.Contains(lower, "not ") && strings.Contains(lower, " but ") {
		return true
	}
	return strings.Contains(lower, "instead of") || strings.Contains(lower, "misinterpreted")
}
