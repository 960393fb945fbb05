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
	"math"
	"testing"
)

// =============================================================================
// EstimateConfidence Tests
// =============================================================================

func TestEstimateConfidence_NoSignals(t *testing.T) {
	cand := Candidate{ID: "x", Title: "Pantry tracker"}
	pool := []Candidate{{ID: "a"}, {ID: "b"}, cand}
	result := EstimateConfidence("something unrelated entirely", cand, pool, "")
	if result.Score != 0 {
		t.Errorf("expected 0, got %v", result.Score)
	}
	if len(result.Breakdown) != 0 {
		t.Errorf("expected empty breakdown, got %v", result.Breakdown)
	}
}

func TestEstimateConfidence_QuotedPhraseMatch(t *testing.T) {
	cand := Candidate{ID: "x", Title: "Inbox Triage Assistant"}
	pool := []Candidate{{ID: "a"}, {ID: "b"}, cand}
	result := EstimateConfidence("rename it", cand, pool, "Inbox Triage")
	if math.Abs(result.Score-weightQuotedPhraseMatch) > 1e-9 {
		t.Errorf("expected %v, got %v", weightQuotedPhraseMatch, result.Score)
	}
	if len(result.Breakdown) != 1 || result.Breakdown[0].Rule != "quoted_phrase_match" {
		t.Errorf("unexpected breakdown: %v", result.Breakdown)
	}
}

func TestEstimateConfidence_RecencyBonusFirstTwoOnly(t *testing.T) {
	first := Candidate{ID: "a", Title: "zzz"}
	third := Candidate{ID: "c", Title: "zzz"}
	pool := []Candidate{first, {ID: "b"}, third}

	if got := EstimateConfidence("unrelated", first, pool, "").Score; math.Abs(got-weightRecencyBonus) > 1e-9 {
		t.Errorf("pool index 0: expected %v, got %v", weightRecencyBonus, got)
	}
	if got := EstimateConfidence("unrelated", third, pool, "").Score; got != 0 {
		t.Errorf("pool index 2: expected 0, got %v", got)
	}
}

func TestEstimateConfidence_NegationPattern(t *testing.T) {
	cand := Candidate{ID: "x", Title: "zzz"}
	pool := []Candidate{{ID: "a"}, {ID: "b"}, cand}
	for _, text := range []string{
		"not the groceries one but the receipts one",
		"you misinterpreted the request",
		"use scanning instead of typing",
	} {
		result := EstimateConfidence(text, cand, pool, "")
		if math.Abs(result.Score-weightNegationPattern) > 1e-9 {
			t.Errorf("%q: expected %v, got %v", text, weightNegationPattern, result.Score)
		}
	}
}

func TestEstimateConfidence_KeywordOverlapNeedsTwoTokens(t *testing.T) {
	cand := Candidate{ID: "x", Title: "Calendar sync helper"}
	pool := []Candidate{{ID: "a"}, {ID: "b"}, cand}

	one := EstimateConfidence("fix calendar please", cand, pool, "")
	if one.Score != 0 {
		t.Errorf("single shared token must not fire overlap, got %v", one.Score)
	}
	two := EstimateConfidence("fix calendar sync please", cand, pool, "")
	if math.Abs(two.Score-weightKeywordOverlap) > 1e-9 {
		t.Errorf("expected %v, got %v", weightKeywordOverlap, two.Score)
	}
}

func TestEstimateConfidence_MonotoneInTriggeredRules(t *testing.T) {
	cand := Candidate{ID: "x", Title: "Inbox Triage Assistant"}
	pool := []Candidate{cand, {ID: "b"}, {ID: "c"}}

	low := EstimateConfidence("change it", cand, pool, "")
	high := EstimateConfidence(
		"change 'Inbox Triage' not that one but inbox triage assistant", cand, pool, "Inbox Triage")
	if high.Score <= low.Score {
		t.Errorf("more triggered rules must not lower the score: %v <= %v", high.Score, low.Score)
	}
}

func TestEstimateConfidence_ClampedToUnitInterval(t *testing.T) {
	cand := Candidate{ID: "x", Title: "Inbox Triage Assistant helper"}
	pool := []Candidate{cand}
	result := EstimateConfidence(
		"not this but change 'inbox triage' to triage assistant helper inbox",
		cand, pool, "Inbox Triage")
	if result.Score < 0 || result.Score > 1 {
		t.Errorf("score out of [0,1]: %v", result.Score)
	}
}
