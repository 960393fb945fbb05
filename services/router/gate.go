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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Safety Gate
// =============================================================================

var gateOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wishrouter",
	Subsystem: "gate",
	Name:      "outcome_total",
	Help:      "Safety gate outcomes: preview, block_below_threshold, execute",
}, []string{"outcome"})

// GateOutcome is the safety gate's verdict for a proposed mutation.
type GateOutcome string

const (
	// GatePreview: dry-run. Produce/refresh a preview and stop. The
	// mutating adapter is never called on this path.
	GatePreview GateOutcome = "preview"

	// GateBlockBelowThreshold: auto-apply was requested but confidence is
	// below the threshold. Fall back to producing a preview instead of
	// executing, and report the shortfall.
	GateBlockBelowThreshold GateOutcome = "block_below_threshold"

	// GateExecute: the mutating call may fire.
	GateExecute GateOutcome = "execute"
)

// GateInput is everything the gate consults. Preferences are read at call
// time; the zero value of AutoApplyPrefs means auto-apply is a strict
// opt-in that nobody opted into.
type GateInput struct {
	// DryRun is true unless the caller gave an explicit execute signal.
	DryRun bool

	// Confidence is the estimator's score for the proposed mutation.
	Confidence float64

	// AutoApplyEnabled mirrors preferences.auto_apply_enabled.
	AutoApplyEnabled bool

	// AutoApplyThreshold mirrors preferences.auto_apply_threshold.
	AutoApplyThreshold float64

	// RouteInScope is true when the route is in the preferences'
	// auto-apply scope.
	RouteInScope bool

	// AutoApplyFlag is the caller's explicit --auto-apply flag.
	AutoApplyFlag bool

	// ForceFlag is the caller's explicit --force flag; it overrides the
	// below-threshold fallback.
	ForceFlag bool
}

// GateDecision is the gate's verdict plus a human-readable reason.
type GateDecision struct {
	Outcome GateOutcome
	Reason  string
}

// EvaluateGate applies the dry-run / auto-apply-threshold policy.
//
// # Description
//
// Rules in order: (1) dry-run always previews and stops; (2) when auto-apply
// is enabled, requested by flag, in scope, and confidence is below the
// threshold without --force, fall back to a preview and report the
// shortfall; (3) otherwise execute. dry_run == false is reachable only via
// an explicit execute signal, which the caller establishes before building
// GateInput; the gate itself never flips it.
//
// # Inputs
//
//   - in: The flags, confidence, and preference snapshot.
//
// # Outputs
//
//   - GateDecision: Verdict plus reason text suitable for next_actions.
func EvaluateGate(in GateInput) GateDecision {
	var decision GateDecision
	switch {
	case in.DryRun:
		decision = GateDecision{
			Outcome: GatePreview,
			Reason:  "Dry-run: preview only, no mutating call.",
		}
	case in.AutoApplyEnabled && in.AutoApplyFlag && in.RouteInScope &&
		in.Confidence < in.AutoApplyThreshold && !in.ForceFlag:
		decision = GateDecision{
			Outcome: GateBlockBelowThreshold,
			Reason: fmt.Sprintf("Confidence (%.2f) below threshold (%.2f). Re-run with --execute --force to apply.",
				in.Confidence, in.AutoApplyThreshold),
		}
	default:
		decision = GateDecision{
			Outcome: GateExecute,
			Reason:  "Execute signal present.",
		}
	}
	gateOutcomeTotal.WithLabelValues(string(decision.Outcome)).Inc()
	return decision
}
