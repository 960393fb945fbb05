// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decider is the boundary to the LLM-backed decision collaborator.
// Its payloads are untrusted and possibly partial: every field is optional,
// parsing never fails on absent or mistyped fields, and the caller always
// falls back to local scoring when the decision carries nothing usable.
package decider

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/wishrouter/services/router"
	"github.com/AleutianAI/wishrouter/services/toolcall"
)

// RankedEntry is one candidate the collaborator ranked, with whatever
// rationale it chose to include.
type RankedEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	TotalScore float64 `json:"total_score"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Decision is the strict optional-field schema for the collaborator's
// payload. The zero value is a valid, empty decision.
type Decision struct {
	SelectedID       string         `json:"selected_id"`
	Confidence       float64        `json:"confidence"`
	Ranked           []RankedEntry  `json:"ranked"`
	PlanOutline      []string       `json:"plan_outline"`
	Questions        []string       `json:"questions"`
	InputsAndCapture map[string]any `json:"inputs_and_capture"`
}

// Decider asks the collaborator to pick a candidate and draft a plan.
type Decider interface {
	Decide(ctx context.Context, requestText string, candidates []router.Candidate,
		profile string, playbook string) (Decision, error)
}

// ParseDecision converts an untrusted payload map into a Decision. Fields
// that are absent or carry the wrong type are dropped silently; field
// presence is never trusted.
func ParseDecision(payload map[string]any) Decision {
	var d Decision
	if payload == nil {
		return d
	}
	if v, ok := payload["selected_id"].(string); ok {
		d.SelectedID = v
	}
	if v, ok := payload["confidence"].(float64); ok {
		d.Confidence = v
	}
	if raw, ok := payload["ranked"].([]any); ok {
		for _, entry := range raw {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			var r RankedEntry
			if v, ok := m["id"].(string); ok {
				r.ID = v
			}
			if v, ok := m["title"].(string); ok {
				r.Title = v
			}
			if v, ok := m["total_score"].(float64); ok {
				r.TotalScore = v
			}
			if v, ok := m["rationale"].(string); ok {
				r.Rationale = v
			}
			if r.ID != "" || r.Title != "" {
				d.Ranked = append(d.Ranked, r)
			}
		}
	}
	d.PlanOutline = stringSlice(payload["plan_outline"])
	d.Questions = stringSlice(payload["questions"])
	if v, ok := payload["inputs_and_capture"].(map[string]any); ok {
		d.InputsAndCapture = v
	}
	return d
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// Implementations
// =============================================================================

// ToolDecider routes decide calls through the tool bridge, so the same
// collaborator serves both CLI modes.
type ToolDecider struct {
	runner toolcall.Runner
	logger *slog.Logger
}

// NewToolDecider creates a ToolDecider on the given runner.
func NewToolDecider(runner toolcall.Runner, logger *slog.Logger) *ToolDecider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolDecider{runner: runner, logger: logger}
}

// Decide invokes the "decide" tool. A failed call degrades to an empty
// decision with a warning and the caller's local ranking takes over; the
// collaborator is advisory, never load-bearing.
func (d *ToolDecider) Decide(ctx context.Context, requestText string, candidates []router.Candidate,
	profile string, playbook string) (Decision, error) {
	cands := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		cands = append(cands, map[string]any{
			"id":              c.ID,
			"title":           c.Title,
			"description":     c.Description,
			"desired_outcome": c.DesiredOutcome,
		})
	}
	payload, err := d.runner.Invoke(ctx, "decide", map[string]any{
		"request":    requestText,
		"candidates": cands,
		"profile":    profile,
		"playbook":   playbook,
	})
	if err != nil {
		d.logger.Warn("decide collaborator failed, falling back to local ranking", "error", err)
		return Decision{}, nil
	}
	// Tool envelopes nest the decision under "result".
	if inner, ok := payload["result"].(map[string]any); ok {
		payload = inner
	}
	return ParseDecision(payload), nil
}

// Disabled is the no-collaborator implementation: always the empty decision.
type Disabled struct{}

// Decide returns the zero Decision.
func (Disabled) Decide(context.Context, string, []router.Candidate, string, string) (Decision, error) {
	return Decision{}, nil
}
