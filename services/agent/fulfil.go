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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/AleutianAI/wishrouter/services/decider"
	"github.com/AleutianAI/wishrouter/services/router"
)

const (
	candidateFetchLimit = 15
	rankedSummaryLimit  = 5
	playbookExcerptLines = 80
)

// preparedFulfilment is the shared fetch-decide-rank result both fulfilment
// routes and the interactive flow start from.
type preparedFulfilment struct {
	candidates []router.Candidate
	decision   decider.Decision
	ranked     []router.Ranked
}

// rankedSummary is the envelope-facing shape of one scored candidate.
type rankedSummary struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	TotalScore   float64 `json:"total_score"`
	Rationale    string  `json:"rationale"`
	DesiredOutcome string `json:"desired_outcome,omitempty"`
}

// fetchCandidates pulls open tool requests from the tool server. A query
// narrows via search; otherwise the latest open requests come back.
func (a *Agent) fetchCandidates(ctx context.Context, query string) ([]router.Candidate, error) {
	var (
		resp map[string]any
		err  error
	)
	if query != "" {
		resp, err = a.runner.Invoke(ctx, "tool_requests_search", map[string]any{
			"query": query,
			"limit": candidateFetchLimit,
		})
	} else {
		resp, err = a.runner.Invoke(ctx, "tool_requests_latest", map[string]any{
			"limit":    candidateFetchLimit,
			"statuses": []string{"new", "triaging"},
		})
	}
	if err != nil {
		return nil, err
	}
	return candidatesFromResponse(resp), nil
}

// candidatesFromResponse extracts the candidate list from a tool response,
// accepting either the "candidates" or "items" field.
func candidatesFromResponse(resp map[string]any) []router.Candidate {
	result, _ := resp["result"].(map[string]any)
	if result == nil {
		result = resp
	}
	raw, ok := result["candidates"].([]any)
	if !ok {
		raw, _ = result["items"].([]any)
	}
	out := make([]router.Candidate, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, candidateFromMap(m))
	}
	return out
}

func candidateFromMap(m map[string]any) router.Candidate {
	c := router.Candidate{
		ID:             stringField(m, "id"),
		Title:          stringField(m, "title"),
		URL:            stringField(m, "url"),
		Description:    stringField(m, "description"),
		DesiredOutcome: stringField(m, "desired_outcome"),
		Status:         stringField(m, "status"),
		CreatedTime:    stringField(m, "created_time"),
		LastEditedTime: stringField(m, "last_edited_time"),
	}
	switch v := m["domain"].(type) {
	case []any:
		for _, tag := range v {
			if s, ok := tag.(string); ok && strings.TrimSpace(s) != "" {
				c.Domain = append(c.Domain, strings.TrimSpace(s))
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				c.Domain = append(c.Domain, part)
			}
		}
	}
	return c
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// prepareFulfilment fetches candidates, consults the decision collaborator,
// and falls back to local ranking when the collaborator offers none.
func (a *Agent) prepareFulfilment(ctx context.Context, requestText, query string) (preparedFulfilment, error) {
	pool, err := a.fetchCandidates(ctx, query)
	if err != nil {
		return preparedFulfilment{}, err
	}
	decision, err := a.decider.Decide(ctx, requestText, pool, "", a.loadPlaybookExcerpt())
	if err != nil {
		a.logger.Warn("decision collaborator failed, ranking locally", "error", err)
		decision = decider.Decision{}
	}

	rankQuery := query
	if rankQuery == "" {
		rankQuery = requestText
	}
	ranked := router.Rank(rankQuery, pool)
	return preparedFulfilment{candidates: pool, decision: decision, ranked: ranked}, nil
}

// loadPlaybookExcerpt returns the leading lines of the playbook, or empty
// when no playbook is configured or readable.
func (a *Agent) loadPlaybookExcerpt() string {
	if a.paths.PlaybookPath == "" {
		return ""
	}
	raw, err := os.ReadFile(a.paths.PlaybookPath)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(raw), "\n")
	if len(lines) > playbookExcerptLines {
		lines = lines[:playbookExcerptLines]
	}
	return strings.Join(lines, "\n")
}

func pickByID(pool []router.Candidate, id string) (router.Candidate, bool) {
	for _, c := range pool {
		if c.ID == id {
			return c, true
		}
	}
	return router.Candidate{}, false
}

func summarizeRanked(ranked []router.Ranked, limit int) []rankedSummary {
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]rankedSummary, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, rankedSummary{
			ID:             r.Candidate.ID,
			Title:          r.Candidate.Title,
			URL:            r.Candidate.URL,
			TotalScore:     r.TotalScore,
			Rationale:      r.Rationale,
			DesiredOutcome: r.Candidate.DesiredOutcome,
		})
	}
	return out
}

// selectCandidate resolves the decision collaborator's pick against the
// fetched pool, defaulting to the local top-ranked candidate.
func selectCandidate(p preparedFulfilment) (router.Candidate, bool) {
	if p.decision.SelectedID != "" {
		if c, ok := pickByID(p.candidates, p.decision.SelectedID); ok {
			return c, true
		}
	}
	if len(p.ranked) > 0 {
		return p.ranked[0].Candidate, true
	}
	return router.Candidate{}, false
}

func (a *Agent) handleFulfilBest(ctx context.Context, st *runState) error {
	prepared, err := a.prepareFulfilment(ctx, st.requestText, "")
	if err != nil {
		return err
	}
	selected, found := selectCandidate(prepared)
	a.recordFulfilment(st, prepared, selected, found)
	if !found {
		st.hint("No tool requests found to fulfill.")
		return nil
	}
	st.hint(fmt.Sprintf("Confirm selection: wishctl --accept %s --from %q --execute", selected.ID, st.requestText))
	st.hint("Answer the questions, then re-run with --execute to write spec/plan.")
	return nil
}

func (a *Agent) handleFulfilMatch(ctx context.Context, st *runState) error {
	query, _ := st.decision.Metadata["query"].(string)
	if query == "" {
		query = st.requestText
	}
	if query == "" {
		return errors.New("Missing fulfilment description.")
	}
	prepared, err := a.prepareFulfilment(ctx, st.requestText, query)
	if err != nil {
		return err
	}
	selected, found := selectCandidate(prepared)
	a.recordFulfilment(st, prepared, selected, found)
	if len(prepared.ranked) == 0 {
		st.hint("No matches found. Try a shorter or quoted description.")
		return nil
	}
	if found {
		st.hint(fmt.Sprintf("Confirm selection: wishctl --accept %s --from %q --execute", selected.ID, st.requestText))
	}
	st.hint("Answer the questions, then re-run with --execute to write spec/plan.")
	return nil
}

// recordFulfilment writes the common fulfilment fields into the result map.
func (a *Agent) recordFulfilment(st *runState, p preparedFulfilment, selected router.Candidate, found bool) {
	st.result["candidates"] = summarizeRanked(p.ranked, rankedSummaryLimit)
	st.result["decision"] = p.decision
	st.result["questions"] = orEmpty(p.decision.Questions)
	st.result["plan_outline"] = orEmpty(p.decision.PlanOutline)
	st.result["inputs_and_capture"] = orEmptyMap(p.decision.InputsAndCapture)
	if found {
		st.result["selected"] = selected
	} else {
		st.result["selected"] = nil
	}
}

func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func orEmptyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}

func (a *Agent) handleFulfilAccept(ctx context.Context, st *runState) error {
	if st.opts.AcceptID == "" {
		return errors.New("Missing --accept <page_id> for fulfilment.")
	}
	sourceText := st.requestText
	st.result["accept_id"] = st.opts.AcceptID

	seed := sourceText
	if seed == "" {
		seed = st.opts.AcceptID
	}
	prepared, err := a.prepareFulfilment(ctx, seed, sourceText)
	if err != nil {
		return err
	}
	candidate, found := pickByID(prepared.candidates, st.opts.AcceptID)
	if !found {
		candidate, err = a.resolveToolRequest(ctx, st.opts.AcceptID, sourceText)
		if err != nil {
			return err
		}
	}
	st.result["selected"] = candidate
	st.result["decision"] = prepared.decision
	planOutline := orEmpty(prepared.decision.PlanOutline)
	inputsAndCapture := orEmptyMap(prepared.decision.InputsAndCapture)
	st.result["plan_outline"] = planOutline
	st.result["inputs_and_capture"] = inputsAndCapture

	if st.dryRun || st.planOnly {
		st.hint("Re-run with --execute to write spec/plan files.")
		return nil
	}

	requirements := st.opts.Requirements
	slug := slugify(firstNonEmpty(candidate.Title, "tool-request"))
	requirementsPath, err := a.writeRequirementsFile(slug, requirements)
	if err != nil {
		return err
	}
	specPath, planPath, err := a.writeFulfilmentFiles(candidate, sourceText, requirements, planOutline, inputsAndCapture)
	if err != nil {
		return err
	}
	st.result["spec_path"] = specPath
	st.result["plan_path"] = planPath
	st.result["requirements_path"] = requirementsPath
	appendCreated(st, specPath, planPath, requirementsPath)
	return nil
}

func appendCreated(st *runState, paths ...string) {
	created, _ := st.result["files_created"].([]string)
	created = append(created, paths...)
	st.result["files_created"] = created
}

// resolveToolRequest loads one tool request by id when it is absent from
// the fetched pool, first retrying the search with the source text.
func (a *Agent) resolveToolRequest(ctx context.Context, pageID, sourceText string) (router.Candidate, error) {
	if sourceText != "" {
		resp, err := a.runner.Invoke(ctx, "tool_requests_search", map[string]any{
			"query": sourceText,
			"limit": 10,
		})
		if err == nil {
			if c, ok := pickByID(candidatesFromResponse(resp), pageID); ok {
				return c, nil
			}
		}
	}
	resp, err := a.runner.Invoke(ctx, "notion_get_page", map[string]any{"page_id": pageID})
	if err != nil {
		return router.Candidate{}, err
	}
	result, _ := resp["result"].(map[string]any)
	page, _ := result["page"].(map[string]any)
	props, _ := page["properties"].(map[string]any)
	c := router.Candidate{
		ID:             pageID,
		Title:          stringField(page, "title"),
		URL:            stringField(page, "url"),
		Description:    propertyString(props, "Description"),
		DesiredOutcome: propertyString(props, "Desired outcome"),
		Status:         propertyString(props, "Status"),
	}
	switch v := propertyValue(props, "Domain").(type) {
	case []any:
		for _, tag := range v {
			if s, ok := tag.(string); ok {
				c.Domain = append(c.Domain, s)
			}
		}
	case string:
		if v != "" {
			c.Domain = []string{v}
		}
	}
	return c, nil
}

// propertyValue finds a page property by case-insensitive name, unwrapping
// {"value": ...} envelopes.
func propertyValue(props map[string]any, key string) any {
	want := strings.ToLower(strings.TrimSpace(key))
	for name, value := range props {
		if strings.ToLower(strings.TrimSpace(name)) != want {
			continue
		}
		if m, ok := value.(map[string]any); ok {
			if inner, ok := m["value"]; ok {
				return inner
			}
		}
		return value
	}
	return nil
}

func propertyString(props map[string]any, key string) string {
	s, _ := propertyValue(props, key).(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// writeRequirementsFile stores the captured requirements note under the
// requirements directory, dated and slugged.
func (a *Agent) writeRequirementsFile(slug, requirements string) (string, error) {
	path := filepath.Join(a.paths.RequirementsDir, fmt.Sprintf("%s_%s.txt", a.now().Format("2006-01-02"), slug))
	if err := writeText(path, strings.TrimSpace(requirements)+"\n"); err != nil {
		return "", err
	}
	return path, nil
}

func writeText(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

var specTemplate = template.Must(template.New("spec").Parse(`# Tool Spec: {{.Title}}

## Source
- Tool request URL: {{.URL}}
- Original request: {{.SourceText}}

## Problem
{{.Title}}

## Desired outcome
{{.Desired}}

## Requirements
{{.Requirements}}

## How to use
Inputs:
{{range .Inputs}}- {{.}}
{{end}}
What the user provides (v0):
{{range .UserInputs}}- {{.}}
{{end}}{{if .Unsupported}}
Not supported yet:
{{range .Unsupported}}- {{.}}
{{end}}{{end}}
Examples:
{{range .Examples}}- ` + "`{{.}}`" + `
{{end}}

## v0 proposal
- Build the smallest useful workflow first.
- Read-only by default; require explicit apply for writes.
`))

var planTemplate = template.Must(template.New("plan").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`# Plan: {{.Title}}

- Source URL: {{.URL}}
- Requirements: {{.Requirements}}

## Inputs / UX / Capture
Supported inputs:
{{range .Inputs}}- {{.}}
{{end}}
User provides (v0):
{{range .UserInputs}}- {{.}}
{{end}}
## Steps (v0)
{{range $idx, $step := .Steps}}{{inc $idx}}) {{$step}}
{{end}}`))

type specData struct {
	Title        string
	URL          string
	SourceText   string
	Desired      string
	Requirements string
	Inputs       []string
	UserInputs   []string
	Unsupported  []string
	Examples     []string
}

type planData struct {
	Title        string
	URL          string
	Requirements string
	Inputs       []string
	UserInputs   []string
	Steps        []string
}

func captureList(inputs map[string]any, key string, fallback []string) []string {
	raw, ok := inputs[key].([]any)
	if !ok || len(raw) == 0 {
		return fallback
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// writeFulfilmentFiles renders the spec and plan markdown artifacts for a
// selected tool request.
func (a *Agent) writeFulfilmentFiles(
	item router.Candidate,
	sourceText, requirements string,
	planOutline []string,
	inputsAndCapture map[string]any,
) (specPath, planPath string, err error) {
	today := a.now().Format("2006-01-02")
	slug := slugify(firstNonEmpty(item.Title, "tool-request"))
	toolName := slugifyIdentifier(firstNonEmpty(item.Title, "tool_request"))
	specPath = filepath.Join(a.paths.SpecsDir, fmt.Sprintf("%s_%s.md", today, slug))
	planPath = filepath.Join(a.paths.PlansDir, fmt.Sprintf("%s_%s.md", today, slug))

	requirementsText := firstNonEmpty(requirements, "None")
	inputs := captureList(inputsAndCapture, "supported_inputs", []string{"TBD"})
	userInputs := captureList(inputsAndCapture, "what_user_provides_v0", []string{"TBD"})
	unsupported := captureList(inputsAndCapture, "unsupported_yet", nil)

	var spec strings.Builder
	err = specTemplate.Execute(&spec, specData{
		Title:        firstNonEmpty(item.Title, "Tool Request"),
		URL:          item.URL,
		SourceText:   sourceText,
		Desired:      firstNonEmpty(item.DesiredOutcome, "TBD"),
		Requirements: requirementsText,
		Inputs:       inputs,
		UserInputs:   userInputs,
		Unsupported:  unsupported,
		Examples: []string{
			fmt.Sprintf(`wishctl call %s {"input":"example"}`, toolName),
			fmt.Sprintf(`wishctl call %s {"input":"example","dry_run":true}`, toolName),
			fmt.Sprintf(`wishctl call %s {}`, toolName),
		},
	})
	if err != nil {
		return "", "", err
	}
	if err = writeText(specPath, spec.String()); err != nil {
		return "", "", err
	}

	steps := planOutline
	if len(steps) == 0 {
		steps = []string{
			"Confirm inputs/outputs contract.",
			"Implement read-only path first.",
			"Add explicit apply/confirm path for writes.",
		}
	}
	var plan strings.Builder
	err = planTemplate.Execute(&plan, planData{
		Title:        firstNonEmpty(item.Title, "Tool Request"),
		URL:          item.URL,
		Requirements: requirementsText,
		Inputs:       inputs,
		UserInputs:   userInputs,
		Steps:        steps,
	})
	if err != nil {
		return "", "", err
	}
	if err = writeText(planPath, plan.String()); err != nil {
		return "", "", err
	}
	return specPath, planPath, nil
}
