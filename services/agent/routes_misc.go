// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/AleutianAI/wishrouter/services/router"
	"github.com/AleutianAI/wishrouter/services/toolcall"
)

func (a *Agent) handleList(ctx context.Context, st *runState) error {
	args := map[string]any{"limit": 10, "statuses": []string{"new", "triaging"}}
	st.recordToolCommand("tool_requests_latest", args)
	resp, err := a.runner.Invoke(ctx, "tool_requests_latest", args)
	if err != nil {
		return err
	}
	st.result["output"] = resp
	return nil
}

func (a *Agent) handleSearch(ctx context.Context, st *runState) error {
	query, _ := st.decision.Metadata["query"].(string)
	if query == "" {
		query = st.requestText
	}
	args := map[string]any{"query": query, "limit": 10}
	st.recordToolCommand("tool_requests_search", args)
	resp, err := a.runner.Invoke(ctx, "tool_requests_search", args)
	if err != nil {
		return err
	}
	st.result["output"] = resp
	return nil
}

// Impact and frequency rubric values for triage scoring. Unknown labels
// score as the lowest tier.
var (
	impactScores = map[string]float64{"low": 1, "medium": 2, "high": 3}
	frequencyScores = map[string]float64{
		"once":               1,
		"weekly":             2,
		"daily":              3,
		"many-times-per-day": 4,
	}
)

// triageRecency scores edit freshness: 2 within a week, 1 within a month.
func triageRecency(timestamp string, now time.Time) float64 {
	if timestamp == "" {
		return 0
	}
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return 0
	}
	days := int(now.Sub(ts).Hours() / 24)
	switch {
	case days <= 7:
		return 2
	case days <= 30:
		return 1
	default:
		return 0
	}
}

// triageScore combines impact, frequency, and recency with unit weights.
func triageScore(c router.Candidate, impact, frequency string, now time.Time) float64 {
	impactScore, ok := impactScores[strings.ToLower(strings.TrimSpace(impact))]
	if !ok {
		impactScore = 1
	}
	freqScore, ok := frequencyScores[strings.ToLower(strings.TrimSpace(frequency))]
	if !ok {
		freqScore = 1
	}
	ts := c.LastEditedTime
	if ts == "" {
		ts = c.CreatedTime
	}
	return impactScore + freqScore + triageRecency(ts, now)
}

// handleFetch pulls the open tool requests and annotates each with a
// triage score so callers can see the pick order.
func (a *Agent) handleFetch(ctx context.Context, st *runState) error {
	args := map[string]any{"limit": candidateFetchLimit, "statuses": []string{"new", "triaging"}}
	st.recordToolCommand("tool_requests_latest", args)
	resp, err := a.runner.Invoke(ctx, "tool_requests_latest", args)
	if err != nil {
		return err
	}
	candidates := candidatesFromResponse(resp)

	now := a.now()
	result, _ := resp["result"].(map[string]any)
	raw, _ := result["candidates"].([]any)
	if raw == nil {
		raw, _ = result["items"].([]any)
	}
	annotated := make([]map[string]any, 0, len(candidates))
	for i, c := range candidates {
		impact, frequency := "", ""
		if i < len(raw) {
			if m, ok := raw[i].(map[string]any); ok {
				impact = stringField(m, "impact")
				frequency = stringField(m, "frequency")
			}
		}
		annotated = append(annotated, map[string]any{
			"id":              c.ID,
			"title":           c.Title,
			"url":             c.URL,
			"status":          c.Status,
			"desired_outcome": c.DesiredOutcome,
			"triage_score":    triageScore(c, impact, frequency, now),
		})
	}
	st.result["candidates"] = annotated
	st.result["fetch"] = resp
	return nil
}

func (a *Agent) handlePrefs(ctx context.Context, st *runState) error {
	updated := st.prefs.ApplyRequest(st.requestText)
	if err := a.prefs.Save(ctx, updated); err != nil {
		return err
	}
	st.result["prefs"] = updated
	st.hint("Prefs saved. Re-run with your request.")
	return nil
}

func (a *Agent) handleWishHint(_ context.Context, st *runState) error {
	st.result["message"] = "This looks like a wish capture. Use the capture flow to log the wish."
	st.hint("If you meant to build it now, say: make/build/implement <description>.")
	return nil
}

func (a *Agent) handleDeploy(ctx context.Context, st *runState) error {
	if a.paths.DeployCommand == "" {
		return errors.New("No deploy command configured.")
	}
	st.addCommand(a.paths.DeployCommand)
	if st.dryRun {
		st.hint("Re-run with --execute to deploy.")
		return nil
	}
	out, err := exec.CommandContext(ctx, a.paths.DeployCommand).CombinedOutput()
	st.result["output"] = strings.TrimSpace(string(out))
	return err
}

func (a *Agent) handleScaffold(ctx context.Context, st *runState) error {
	if st.requestText == "" {
		return errors.New("Provide a tool name to scaffold.")
	}
	st.result["scaffold_source"] = st.requestText
	if st.dryRun {
		st.hint("Re-run with --execute to scaffold the tool.")
		return nil
	}
	scaffold, err := a.scaffoldTool(st.requestText)
	if err != nil {
		return err
	}
	appendCreated(st, scaffold.FilesCreated...)
	st.result["scaffold"] = scaffold
	return nil
}

func (a *Agent) handleCall(ctx context.Context, st *runState) error {
	tool, _ := st.decision.Metadata["tool"].(string)
	rawArgs, _ := st.decision.Metadata["args"].(string)
	if tool == "" {
		return errors.New("Missing tool name for call route.")
	}
	if rawArgs == "" {
		rawArgs = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return errors.New("Tool arguments must be a JSON object.")
	}
	st.recordToolCommand(tool, args)

	if toolcall.MutatingToolRe.MatchString(tool) && st.dryRun {
		st.hint("Re-run with --execute to call mutating tool.")
		return nil
	}
	resp, err := a.runner.Invoke(ctx, tool, args)
	if err != nil {
		return err
	}
	st.result["output"] = resp
	return nil
}
