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
	"fmt"

	"github.com/AleutianAI/wishrouter/services/router"
	"github.com/AleutianAI/wishrouter/services/state"
)

// correctionUpdates builds the page update payload for a title correction.
// Without an old phrase the new text replaces the title wholesale.
func correctionUpdates(candidate router.Candidate, oldText, newText string) map[string]any {
	if newText == "" {
		return map[string]any{"properties": map[string]any{}}
	}
	title := newText
	if oldText != "" {
		title = router.ReplaceCaseInsensitive(candidate.Title, oldText, newText)
	}
	return map[string]any{"title": title, "properties": map[string]any{}}
}

// recordToolCommand appends a reproducible invocation line to the result.
func (st *runState) recordToolCommand(tool string, args map[string]any) {
	payload, err := json.Marshal(args)
	if err != nil {
		payload = []byte("{}")
	}
	st.addCommand(fmt.Sprintf("wishctl call %s %s", tool, payload))
}

// searchCorrectionTargets runs the search ladder for a correction: the old
// phrase first, then the replacement text, a simplified replacement, and
// finally progressively shorter variants of the phrase. The ladder stops at
// the first rung that finds anything.
func (a *Agent) searchCorrectionTargets(ctx context.Context, st *runState, oldText, newText string) ([]router.Candidate, error) {
	query := oldText
	if query == "" {
		query = router.ExtractSearchQuery(st.requestText)
	}
	ladder := []string{query}
	if newText != "" {
		ladder = append(ladder, newText, router.SimplifyQuery(newText))
	}
	ladder = append(ladder, router.FallbackQueries(query)...)

	tried := make(map[string]struct{}, len(ladder))
	for _, q := range ladder {
		if q == "" {
			continue
		}
		if _, dup := tried[q]; dup {
			continue
		}
		tried[q] = struct{}{}
		items, err := a.searchToolRequests(ctx, st, q)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			return items, nil
		}
	}
	return nil, nil
}

func (a *Agent) searchToolRequests(ctx context.Context, st *runState, query string) ([]router.Candidate, error) {
	args := map[string]any{"query": query, "limit": 10}
	st.recordToolCommand("tool_requests_search", args)
	resp, err := a.runner.Invoke(ctx, "tool_requests_search", args)
	if err != nil {
		return nil, err
	}
	return candidatesFromResponse(resp), nil
}

// handleCorrection targets one tool request page and previews or applies a
// title correction, gated on confidence and the auto-apply preferences.
func (a *Agent) handleCorrection(ctx context.Context, st *runState) error {
	oldText, newText := router.ParseCorrection(st.requestText)
	if newText == "" {
		return errors.New("No correction target found. Use: change 'X' to 'Y'.")
	}

	pageID := router.ExtractPageID(st.requestText)
	var items []router.Candidate
	if pageID != "" {
		args := map[string]any{"page_id": pageID}
		st.recordToolCommand("notion_get_page", args)
		resp, err := a.runner.Invoke(ctx, "notion_get_page", args)
		if err != nil {
			return err
		}
		result, _ := resp["result"].(map[string]any)
		page, _ := result["page"].(map[string]any)
		items = []router.Candidate{{
			ID:    stringField(page, "id"),
			Title: stringField(page, "title"),
			URL:   stringField(page, "url"),
		}}
	} else {
		var err error
		items, err = a.searchCorrectionTargets(ctx, st, oldText, newText)
		if err != nil {
			return err
		}
	}

	if len(items) == 0 {
		st.result["candidates"] = []any{}
		st.hint("No matches. Try quoting the exact title.")
		return nil
	}
	if len(items) > 1 && pageID == "" {
		summaries := make([]map[string]any, 0, len(items))
		for _, item := range items {
			conf := router.EstimateConfidence(st.requestText, item, items, oldText)
			summaries = append(summaries, map[string]any{
				"id":         item.ID,
				"title":      item.Title,
				"url":        item.URL,
				"confidence": conf.Score,
			})
		}
		st.result["candidates"] = summaries
		st.hint("Multiple matches found. Re-run with a page URL or id.")
		return nil
	}

	candidate := items[0]
	conf := router.EstimateConfidence(st.requestText, candidate, items, oldText)
	updates := correctionUpdates(candidate, oldText, newText)
	st.result["correction"] = map[string]any{
		"target": map[string]any{
			"id":    candidate.ID,
			"title": candidate.Title,
			"url":   candidate.URL,
		},
		"confidence":           conf.Score,
		"confidence_breakdown": conf.Breakdown,
	}
	st.result["confidence"] = conf.Score
	st.result["confidence_breakdown"] = conf.Breakdown

	gate := router.EvaluateGate(router.GateInput{
		DryRun:             st.dryRun,
		Confidence:         conf.Score,
		AutoApplyEnabled:   st.prefs.AutoApplyEnabled,
		AutoApplyThreshold: st.prefs.AutoApplyThreshold,
		RouteInScope:       st.prefs.InScope("notion_corrections"),
		AutoApplyFlag:      st.opts.AutoApply,
		ForceFlag:          st.opts.Force,
	})

	payload := map[string]any{
		"page_id": candidate.ID,
		"updates": updates,
		"dry_run": gate.Outcome != router.GateExecute,
	}
	st.recordToolCommand("notion_update_page", payload)
	resp, err := a.runner.Invoke(ctx, "notion_update_page", payload)
	if err != nil {
		return err
	}
	st.result["notion_update"] = resp

	switch gate.Outcome {
	case router.GatePreview:
		if err := a.previews.Save(ctx, state.PreviewRecord{
			Type:       state.PreviewTypeCorrection,
			PageID:     candidate.ID,
			Updates:    updates,
			Confidence: conf.Score,
		}); err != nil {
			return err
		}
		if conf.Score >= st.prefs.AutoApplyThreshold {
			st.hint(fmt.Sprintf(`High confidence (%.2f). To apply: wishctl "apply that" --execute`, conf.Score))
			st.hint("Or rerun with --execute --auto-apply.")
		} else {
			st.hint(fmt.Sprintf("Confidence (%.2f) below threshold. Re-run with --execute --force to apply.", conf.Score))
		}
	case router.GateBlockBelowThreshold:
		st.hint(gate.Reason)
	case router.GateExecute:
		// Applied above with dry_run false.
	}
	return nil
}

// handleApplyLast applies the saved preview, enforcing the type and
// freshness checks before any write goes out.
func (a *Agent) handleApplyLast(ctx context.Context, st *runState) error {
	if st.dryRun {
		st.hint("Re-run with --execute to apply the last preview.")
		return nil
	}
	preview, found, err := a.previews.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("No last preview found.")
	}
	if preview.Type != state.PreviewTypeCorrection {
		return errors.New("Last preview is not a Notion correction.")
	}
	if !preview.IsFresh(a.now()) && !st.opts.Force {
		return errors.New("Last preview is older than 24h. Re-run with --force.")
	}
	payload := map[string]any{
		"page_id": preview.PageID,
		"updates": preview.Updates,
		"dry_run": false,
	}
	st.recordToolCommand("notion_update_page", payload)
	resp, err := a.runner.Invoke(ctx, "notion_update_page", payload)
	if err != nil {
		return err
	}
	st.result["notion_update"] = resp
	return nil
}

// handleEditNotion resolves a page by id or title search and previews or
// applies the parsed field update.
func (a *Agent) handleEditNotion(ctx context.Context, st *runState) error {
	pageID := router.ExtractPageID(st.requestText)
	intent := router.ParseEditIntent(st.requestText)

	if pageID == "" {
		query := router.ExtractEditQuery(st.requestText)
		if query == "" {
			return errors.New("No Notion target found. Provide a page title or URL.")
		}
		args := map[string]any{"query": query, "limit": 5}
		st.recordToolCommand("notion_search", args)
		resp, err := a.runner.Invoke(ctx, "notion_search", args)
		if err != nil {
			return err
		}
		items := candidatesFromResponse(resp)
		if len(items) == 0 {
			st.result["candidates"] = []any{}
			st.hint("No matches. Try quoting the page title or paste the URL.")
			return nil
		}
		if len(items) > 1 {
			st.result["candidates"] = items
			st.hint("Multiple matches found. Re-run with a page URL or id.")
			return nil
		}
		pageID = items[0].ID
	}

	if len(intent.Notes) > 0 {
		st.result["intent_notes"] = intent.Notes
	}
	if len(intent.Notes) > 0 && st.dryRun {
		args := map[string]any{"page_id": pageID}
		st.recordToolCommand("notion_get_page", args)
		resp, err := a.runner.Invoke(ctx, "notion_get_page", args)
		if err != nil {
			return err
		}
		st.result["preview"] = resp
		st.hint("Specify a target field (title/status/description/tag) to update.")
		return nil
	}

	updates := map[string]any{"properties": intent.Properties}
	if intent.Title != "" {
		updates["title"] = intent.Title
	}
	payload := map[string]any{"page_id": pageID, "updates": updates, "dry_run": st.dryRun}
	st.recordToolCommand("notion_update_page", payload)
	resp, err := a.runner.Invoke(ctx, "notion_update_page", payload)
	if err != nil {
		return err
	}
	st.result["notion_update"] = resp
	if st.dryRun {
		st.hint("Re-run with --execute to apply the update.")
	}
	return nil
}
