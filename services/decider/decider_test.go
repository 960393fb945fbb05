// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wishrouter/services/router"
)

// =============================================================================
// ParseDecision Tests
// =============================================================================

func TestParseDecision_FullPayload(t *testing.T) {
	d := ParseDecision(map[string]any{
		"selected_id": "aaa",
		"confidence":  0.8,
		"ranked": []any{
			map[string]any{"id": "aaa", "title": "Inbox Triage", "total_score": 2.5, "rationale": "inbox, triage"},
			map[string]any{"total_score": 1.0}, // no id/title, dropped
		},
		"plan_outline":       []any{"step one", "step two"},
		"questions":          []any{"scope?"},
		"inputs_and_capture": map[string]any{"supported_inputs": []any{"text"}},
	})
	assert.Equal(t, "aaa", d.SelectedID)
	assert.Equal(t, 0.8, d.Confidence)
	require.Len(t, d.Ranked, 1)
	assert.Equal(t, "Inbox Triage", d.Ranked[0].Title)
	assert.Equal(t, []string{"step one", "step two"}, d.PlanOutline)
	assert.Equal(t, []string{"scope?"}, d.Questions)
	assert.NotNil(t, d.InputsAndCapture)
}

func TestParseDecision_MistypedFieldsDropped(t *testing.T) {
	d := ParseDecision(map[string]any{
		"selected_id":  42,
		"confidence":   "high",
		"ranked":       "none",
		"plan_outline": []any{1, 2, "keep me"},
	})
	assert.Empty(t, d.SelectedID)
	assert.Zero(t, d.Confidence)
	assert.Empty(t, d.Ranked)
	assert.Equal(t, []string{"keep me"}, d.PlanOutline)
}

func TestParseDecision_NilPayload(t *testing.T) {
	assert.Equal(t, Decision{}, ParseDecision(nil))
}

// =============================================================================
// ToolDecider Tests
// =============================================================================

type scriptedRunner struct {
	payload  map[string]any
	err      error
	lastArgs map[string]any
}

func (r *scriptedRunner) Invoke(_ context.Context, _ string, args map[string]any) (map[string]any, error) {
	r.lastArgs = args
	return r.payload, r.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestToolDecider_UnwrapsResult(t *testing.T) {
	runner := &scriptedRunner{payload: map[string]any{
		"summary": "Decision drafted.",
		"result": map[string]any{
			"selected_id": "bbb",
			"confidence":  0.5,
		},
	}}
	d := NewToolDecider(runner, quietLogger())

	decision, err := d.Decide(context.Background(), "build the receipt scanner",
		[]router.Candidate{{ID: "bbb", Title: "Receipt Scanner"}}, "", "playbook text")
	require.NoError(t, err)
	assert.Equal(t, "bbb", decision.SelectedID)
	assert.Equal(t, 0.5, decision.Confidence)

	assert.Equal(t, "build the receipt scanner", runner.lastArgs["request"])
	assert.Equal(t, "playbook text", runner.lastArgs["playbook"])
	cands := runner.lastArgs["candidates"].([]map[string]any)
	require.Len(t, cands, 1)
	assert.Equal(t, "Receipt Scanner", cands[0]["title"])
}

func TestToolDecider_FailureDegradesToEmptyDecision(t *testing.T) {
	runner := &scriptedRunner{err: errors.New("bridge down")}
	d := NewToolDecider(runner, quietLogger())

	decision, err := d.Decide(context.Background(), "anything", nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, Decision{}, decision)
}

func TestDisabled_AlwaysEmpty(t *testing.T) {
	decision, err := Disabled{}.Decide(context.Background(), "anything", nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, Decision{}, decision)
}
