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
	"strings"
	"testing"
)

// =============================================================================
// Safety Gate Tests
// =============================================================================

func TestEvaluateGate_DryRunAlwaysPreviews(t *testing.T) {
	// Dry-run wins regardless of every other flag combination.
	for mask := 0; mask < 16; mask++ {
		in := GateInput{
			DryRun:             true,
			Confidence:         0.99,
			AutoApplyThreshold: 0.92,
			AutoApplyEnabled:   mask&1 != 0,
			AutoApplyFlag:      mask&2 != 0,
			RouteInScope:       mask&4 != 0,
			ForceFlag:          mask&8 != 0,
		}
		if got := EvaluateGate(in); got.Outcome != GatePreview {
			t.Errorf("mask %d: expected preview, got %s", mask, got.Outcome)
		}
	}
}

func TestEvaluateGate_BlockRequiresAllConditions(t *testing.T) {
	base := GateInput{
		Confidence:         0.50,
		AutoApplyThreshold: 0.92,
		AutoApplyEnabled:   true,
		AutoApplyFlag:      true,
		RouteInScope:       true,
	}
	if got := EvaluateGate(base); got.Outcome != GateBlockBelowThreshold {
		t.Fatalf("expected block, got %s", got.Outcome)
	}

	cases := []struct {
		name   string
		mutate func(*GateInput)
	}{
		{"auto-apply disabled", func(in *GateInput) { in.AutoApplyEnabled = false }},
		{"flag absent", func(in *GateInput) { in.AutoApplyFlag = false }},
		{"route out of scope", func(in *GateInput) { in.RouteInScope = false }},
		{"confidence at threshold", func(in *GateInput) { in.Confidence = 0.92 }},
		{"force set", func(in *GateInput) { in.ForceFlag = true }},
	}
	for _, tc := range cases {
		in := base
		tc.mutate(&in)
		if got := EvaluateGate(in); got.Outcome != GateExecute {
			t.Errorf("%s: expected execute, got %s", tc.name, got.Outcome)
		}
	}
}

func TestEvaluateGate_BlockReasonNamesThreshold(t *testing.T) {
	got := EvaluateGate(GateInput{
		Confidence:         0.41,
		AutoApplyThreshold: 0.92,
		AutoApplyEnabled:   true,
		AutoApplyFlag:      true,
		RouteInScope:       true,
	})
	if got.Outcome != GateBlockBelowThreshold {
		t.Fatalf("expected block, got %s", got.Outcome)
	}
	if !strings.Contains(got.Reason, "0.41") || !strings.Contains(got.Reason, "0.92") {
		t.Errorf("reason should carry both scores: %q", got.Reason)
	}
	if !strings.Contains(got.Reason, "--execute --force") {
		t.Errorf("reason should point at the force escape hatch: %q", got.Reason)
	}
}

func TestEvaluateGate_ExecuteWhenAboveThreshold(t *testing.T) {
	got := EvaluateGate(GateInput{
		Confidence:         0.95,
		AutoApplyThreshold: 0.92,
		AutoApplyEnabled:   true,
		AutoApplyFlag:      true,
		RouteInScope:       true,
	})
	if got.Outcome != GateExecute {
		t.Errorf("expected execute, got %s", got.Outcome)
	}
}
