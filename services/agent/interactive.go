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
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/wishrouter/services/router"
	"github.com/AleutianAI/wishrouter/services/state"
)

// maxRefineAttempts bounds how often the user may reject the selection
// before the flow exits safely.
const maxRefineAttempts = 2

// Prompter is the terminal surface of the interactive flow. Implementations
// render however they like; the flow only consumes answers.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(prompt string, defaultYes bool) (bool, error)

	// Refine asks for a candidate number or a new search phrase.
	Refine(prompt string) (string, error)

	// Input asks for one free-text line. Empty answers are allowed.
	Input(prompt string) (string, error)

	// Show prints informational text to the user.
	Show(text string)
}

// declineAllPrompter backs non-interactive invocations. Every confirmation
// is declined so no files are ever written through it.
type declineAllPrompter struct{}

func (declineAllPrompter) Confirm(string, bool) (bool, error) { return false, nil }
func (declineAllPrompter) Refine(string) (string, error)      { return "", nil }
func (declineAllPrompter) Input(string) (string, error)       { return "", nil }
func (declineAllPrompter) Show(string)                        {}

// interactiveState is the confirmation machine's position.
type interactiveState int

const (
	statePresenting interactiveState = iota
	stateAwaitingChoice
	stateConfirmed
	stateAborted
)

// interactiveSession carries the flow's working set across refinements.
type interactiveSession struct {
	requestText string
	prepared    preparedFulfilment
	selected    router.Candidate
	hasSelected bool
	confidence  float64
}

func (s *interactiveSession) reselect() {
	s.confidence = s.prepared.decision.Confidence
	if s.prepared.decision.SelectedID != "" {
		if c, ok := pickByID(s.prepared.candidates, s.prepared.decision.SelectedID); ok {
			s.selected = c
			s.hasSelected = true
			return
		}
	}
	if len(s.prepared.ranked) > 0 {
		s.selected = s.prepared.ranked[0].Candidate
		s.hasSelected = true
		return
	}
	s.hasSelected = false
}

func (s *interactiveSession) topRanked(limit int) []router.Ranked {
	ranked := s.prepared.ranked
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// runInteractive drives the confirmation flow for fulfilment routes. The
// machine presents a selection, lets the user accept, repoint, or refine,
// and exits safely after two rejected rounds.
func (a *Agent) runInteractive(
	ctx context.Context,
	requestText string,
	opts Options,
	prefs state.Preferences,
	planOnly bool,
	decision router.Decision,
) Envelope {
	var query string
	if decision.Route == router.RouteFulfilMatch {
		query, _ = decision.Metadata["query"].(string)
	}
	autoConfirm := opts.AutoConfirm || prefs.InteractiveAutoConfirm

	prepared, err := a.prepareFulfilment(ctx, requestText, query)
	if err != nil {
		return Envelope{
			Summary:     "Interactive fulfilment failed.",
			Result:      map[string]any{},
			NextActions: []string{},
			Errors:      []string{err.Error()},
		}
	}
	session := &interactiveSession{requestText: requestText, prepared: prepared}
	session.reselect()
	if !session.hasSelected {
		return Envelope{
			Summary:     "No matching tool requests found.",
			Result:      map[string]any{"selected": nil},
			NextActions: []string{"Re-run with a more specific description."},
			Errors:      []string{"No matching tool requests found."},
		}
	}

	a.presentSelection(session)

	if !planOnly && !autoConfirm {
		if env, aborted := a.confirmLoop(ctx, session); aborted {
			return env
		}
	}

	requirements := a.collectRequirements(opts, planOnly, autoConfirm)
	planOutline := orEmpty(session.prepared.decision.PlanOutline)
	inputsAndCapture := orEmptyMap(session.prepared.decision.InputsAndCapture)
	questions := orEmpty(session.prepared.decision.Questions)
	a.presentPlan(planOutline, questions, inputsAndCapture)

	if planOnly {
		return Envelope{
			Summary: "PLAN_ONLY: plan-only request. No files written.",
			Result: map[string]any{
				"selected":           session.selected,
				"requirements":       requirements,
				"plan_outline":       planOutline,
				"inputs_and_capture": inputsAndCapture,
				"questions":          questions,
				"plan_only":          true,
				"blocked_actions":    router.PlanOnlyBlockedActions,
			},
			NextActions: []string{"Re-run with --execute to write spec/plan files."},
			Errors:      []string{},
		}
	}

	proceed := autoConfirm
	if !proceed {
		answer, err := a.prompter.Confirm("Proceed to write spec/plan files now? [y/N] ", false)
		if err == nil {
			proceed = answer
		}
	}
	if !proceed {
		return Envelope{
			Summary: "Selection confirmed. Plan drafted; no files written.",
			Result: map[string]any{
				"selected":           session.selected,
				"requirements":       requirements,
				"plan_outline":       planOutline,
				"inputs_and_capture": inputsAndCapture,
			},
			NextActions: []string{"Re-run with --execute to write spec/plan files."},
			Errors:      []string{},
		}
	}

	slug := slugify(firstNonEmpty(session.selected.Title, "tool-request"))
	requirementsPath, err := a.writeRequirementsFile(slug, requirements)
	if err != nil {
		return Envelope{
			Summary:     "Interactive fulfilment failed.",
			Result:      map[string]any{"selected": session.selected},
			NextActions: []string{},
			Errors:      []string{err.Error()},
		}
	}
	specPath, planPath, err := a.writeFulfilmentFiles(
		session.selected, session.requestText, requirements, planOutline, inputsAndCapture)
	if err != nil {
		return Envelope{
			Summary:     "Interactive fulfilment failed.",
			Result:      map[string]any{"selected": session.selected},
			NextActions: []string{},
			Errors:      []string{err.Error()},
		}
	}
	return Envelope{
		Summary: "Interactive fulfilment complete.",
		Result: map[string]any{
			"selected":          session.selected,
			"spec_path":         specPath,
			"plan_path":         planPath,
			"requirements_path": requirementsPath,
		},
		NextActions: []string{"Review spec/plan, then implement when ready."},
		Errors:      []string{},
	}
}

// confirmLoop runs the accept/repoint/refine cycle. Returns the abort
// envelope and true when the user exhausted the attempt budget.
func (a *Agent) confirmLoop(ctx context.Context, session *interactiveSession) (Envelope, bool) {
	attempts := 0
	machine := statePresenting
	for {
		switch machine {
		case statePresenting:
			ok, err := a.prompter.Confirm("\nUse selected tool request? [Y/n] ", true)
			if err != nil || ok {
				machine = stateConfirmed
				continue
			}
			attempts++
			machine = stateAwaitingChoice
		case stateAwaitingChoice:
			if attempts > maxRefineAttempts {
				machine = stateAborted
				continue
			}
			choice, err := a.prompter.Refine("Pick 1/2/3 or type a new search phrase: ")
			if err != nil {
				machine = stateAborted
				continue
			}
			choice = strings.TrimSpace(choice)
			if idx, convErr := strconv.Atoi(choice); convErr == nil {
				top := session.topRanked(maxRefineAttempts + 1)
				if idx >= 1 && idx <= len(top) {
					session.selected = top[idx-1].Candidate
					session.hasSelected = true
					a.presentSelection(session)
					machine = stateConfirmed
					continue
				}
			} else if choice != "" {
				prepared, prepErr := a.prepareFulfilment(ctx, choice, choice)
				if prepErr == nil {
					session.requestText = choice
					session.prepared = prepared
					session.reselect()
					if session.hasSelected {
						a.presentSelection(session)
						machine = statePresenting
						continue
					}
				}
			}
			if attempts >= maxRefineAttempts {
				machine = stateAborted
				continue
			}
			machine = statePresenting
		case stateConfirmed:
			return Envelope{}, false
		case stateAborted:
			a.prompter.Show("Selection still ambiguous. Exiting safely.")
			return Envelope{
				Summary: "Interactive fulfilment cancelled.",
				Result: map[string]any{
					"selected":   nil,
					"candidates": summarizeRanked(session.topRanked(3), 3),
				},
				NextActions: []string{"Re-run with a more specific description."},
				Errors:      []string{},
				exitCode:    1,
			}, true
		}
	}
}

func (a *Agent) collectRequirements(opts Options, planOnly, autoConfirm bool) string {
	if opts.Requirements != "" {
		return strings.TrimSpace(opts.Requirements)
	}
	if planOnly || autoConfirm {
		return ""
	}
	answer, err := a.prompter.Input("Any extra requirements/constraints? (press enter for none) ")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(answer)
}

func (a *Agent) presentSelection(session *interactiveSession) {
	var b strings.Builder
	b.WriteString("\nSelected tool request:\n")
	fmt.Fprintf(&b, "- Title: %s\n", session.selected.Title)
	fmt.Fprintf(&b, "- URL: %s\n", session.selected.URL)
	desired := session.selected.DesiredOutcome
	if runes := []rune(desired); len(runes) > 160 {
		desired = string(runes[:160]) + "..."
	}
	fmt.Fprintf(&b, "- Desired outcome: %s\n", desired)
	fmt.Fprintf(&b, "- Confidence: %.2f\n", session.confidence)
	top := session.topRanked(3)
	if len(top) > 0 {
		b.WriteString("\nTop candidates:\n")
		for i, cand := range top {
			fmt.Fprintf(&b, "  %d) %s (score %.2f) %s\n",
				i+1, cand.Candidate.Title, cand.TotalScore, cand.Rationale)
		}
	}
	a.prompter.Show(b.String())
}

func (a *Agent) presentPlan(planOutline, questions []string, inputsAndCapture map[string]any) {
	var b strings.Builder
	b.WriteString("\nDraft plan:\n")
	for i, step := range planOutline {
		fmt.Fprintf(&b, "%d) %s\n", i+1, step)
	}
	if len(questions) > 0 {
		b.WriteString("\nQuestions:\n")
		for _, q := range questions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	if len(inputsAndCapture) > 0 {
		b.WriteString("\nInputs / capture contract:\n")
		for label, value := range inputsAndCapture {
			if list, ok := value.([]any); ok {
				for _, item := range list {
					fmt.Fprintf(&b, "- %s: %v\n", label, item)
				}
				continue
			}
			fmt.Fprintf(&b, "- %s: %v\n", label, value)
		}
	}
	a.prompter.Show(b.String())
}
