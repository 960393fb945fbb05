// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent orchestrates one invocation end to end: route the request,
// run the matching handler, gate mutations, and emit the output envelope.
// Execution is single-threaded and synchronous per invocation; the only
// suspension points are the external tool calls and, in interactive mode,
// terminal reads.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/wishrouter/services/decider"
	"github.com/AleutianAI/wishrouter/services/router"
	"github.com/AleutianAI/wishrouter/services/state"
	"github.com/AleutianAI/wishrouter/services/toolcall"
)

var agentTracer = otel.Tracer("wishrouter.agent")

// Options carries one invocation's request text and flags, resolved by the
// CLI layer. DryRun defaults to true there; only the explicit execute flag
// clears it. Run options are always threaded through explicitly; there is
// no ambient run state.
type Options struct {
	Text         string
	DryRun       bool
	Scaffold     bool
	AutoApply    bool
	Force        bool
	Interactive  bool
	AutoConfirm  bool
	AcceptID     string
	FromText     string
	Requirements string
}

// Paths locates the artifacts an invocation may read or write.
type Paths struct {
	// SpecsDir and PlansDir receive fulfilment markdown artifacts.
	SpecsDir string
	// RequirementsDir receives captured requirement notes.
	RequirementsDir string
	PlansDir        string

	// ToolsDir is the tool server's tools package directory, target of the
	// scaffold route.
	ToolsDir string

	// PlaybookPath is the optional playbook whose excerpt goes to the
	// decision collaborator.
	PlaybookPath string

	// DeployCommand is the deploy script invoked by the deploy route.
	DeployCommand string
}

// Agent wires the routing core to its collaborators for one process.
//
// # Thread Safety
//
// One Agent serves one invocation at a time; the preview and preference
// slots are single-writer by construction.
type Agent struct {
	router   *router.Router
	runner   toolcall.Runner
	decider  decider.Decider
	previews *state.PreviewStore
	prefs    *state.PrefsStore
	paths    Paths
	prompter Prompter
	logger   *slog.Logger
	now      func() time.Time
}

// Config assembles an Agent.
type Config struct {
	Runner   toolcall.Runner
	Decider  decider.Decider
	Store    state.Store
	Paths    Paths
	Prompter Prompter
	Logger   *slog.Logger

	// Now is a clock seam for tests. Nil means time.Now.
	Now func() time.Time
}

// New creates an Agent.
//
// # Inputs
//
//   - cfg: Collaborators and paths. Runner and Store must not be nil;
//     Decider nil degrades to the disabled collaborator; Prompter nil
//     degrades to a non-interactive prompter that always declines.
//
// # Outputs
//
//   - *Agent: Ready to Run. Never nil.
func New(cfg Config) *Agent {
	if cfg.Runner == nil {
		panic("agent.New: Runner must not be nil")
	}
	if cfg.Store == nil {
		panic("agent.New: Store must not be nil")
	}
	if cfg.Decider == nil {
		cfg.Decider = decider.Disabled{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Prompter == nil {
		cfg.Prompter = declineAllPrompter{}
	}
	return &Agent{
		router:   router.New(cfg.Logger),
		runner:   cfg.Runner,
		decider:  cfg.Decider,
		previews: state.NewPreviewStore(cfg.Store),
		prefs:    state.NewPrefsStore(cfg.Store),
		paths:    cfg.Paths,
		prompter: cfg.Prompter,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// runState is the per-invocation scratch shared by the route handlers.
type runState struct {
	opts        Options
	requestText string
	dryRun      bool
	planOnly    bool
	prefs       state.Preferences
	decision    router.Decision
	result      map[string]any
	nextActions []string
	commands    []string
}

func (s *runState) addCommand(cmd string) {
	s.commands = append(s.commands, cmd)
	s.result["commands"] = s.commands
}

func (s *runState) hint(action string) {
	s.nextActions = append(s.nextActions, action)
}

// Run executes one invocation and always returns an envelope.
//
// # Description
//
// Routes the request, enforces the plan-only modifier, dispatches to the
// route handler, and folds any handler failure into the envelope's error
// list. Nothing propagates past this boundary: a handler panic is
// converted to an error, the envelope is still emitted.
func (a *Agent) Run(ctx context.Context, opts Options) Envelope {
	ctx, span := agentTracer.Start(ctx, "agent.run")
	defer span.End()

	requestText := opts.Text
	if opts.FromText != "" {
		requestText = opts.FromText
	}

	prefs, err := a.prefs.Load(ctx)
	if err != nil {
		a.logger.Warn("preferences unreadable, using defaults", "error", err)
		prefs = state.DefaultPreferences()
	}

	dryRun := opts.DryRun
	planOnly := router.IsPlanOnly(requestText)
	if planOnly {
		dryRun = true
	}

	decision := a.router.Decide(ctx, router.Request{
		Text:          requestText,
		ForceScaffold: opts.Scaffold,
		AcceptID:      opts.AcceptID,
	})
	span.SetAttributes(
		attribute.String("route", string(decision.Route)),
		attribute.Bool("dry_run", dryRun),
	)

	if opts.Interactive &&
		(decision.Route == router.RouteFulfilBest || decision.Route == router.RouteFulfilMatch) {
		return a.runInteractive(ctx, requestText, opts, prefs, planOnly, decision)
	}

	st := &runState{
		opts:        opts,
		requestText: requestText,
		dryRun:      dryRun,
		planOnly:    planOnly,
		prefs:       prefs,
		decision:    decision,
		result: map[string]any{
			"route":         string(decision.Route),
			"request":       requestText,
			"commands":      []string{},
			"files_created": []string{},
		},
	}

	if planOnly && !router.PlanAllowed(decision.Route) {
		st.result["plan_only"] = true
		st.result["blocked_actions"] = router.PlanOnlyBlockedActions
		st.hint("PLAN_ONLY: no writes performed.")
		return Envelope{
			Summary:     fmt.Sprintf("PLAN_ONLY route: %s. Dry-run: %t.", decision.Route, dryRun),
			Result:      st.result,
			NextActions: st.nextActions,
			Errors:      []string{},
		}
	}

	errs := []string{}
	if err := a.dispatch(ctx, st); err != nil {
		errs = append(errs, err.Error())
	}

	if planOnly {
		st.result["plan_only"] = true
		st.result["blocked_actions"] = router.PlanOnlyBlockedActions
	}
	if len(st.commands) > 0 {
		st.hint("Reproduce: " + st.commands[len(st.commands)-1])
	}

	prefix := ""
	if planOnly {
		prefix = "PLAN_ONLY: "
	}
	return Envelope{
		Summary:     fmt.Sprintf("%sRoute: %s. Dry-run: %t.", prefix, decision.Route, dryRun),
		Result:      st.result,
		NextActions: st.nextActions,
		Errors:      errs,
	}
}

// dispatch runs the handler for the decided route. Handler panics become
// errors so the envelope contract holds.
func (a *Agent) dispatch(ctx context.Context, st *runState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal failure in route %s: %v", st.decision.Route, r)
		}
	}()

	switch st.decision.Route {
	case router.RouteList:
		return a.handleList(ctx, st)
	case router.RouteSearch:
		return a.handleSearch(ctx, st)
	case router.RouteFetch:
		return a.handleFetch(ctx, st)
	case router.RouteFulfilBest:
		return a.handleFulfilBest(ctx, st)
	case router.RouteFulfilMatch:
		return a.handleFulfilMatch(ctx, st)
	case router.RouteFulfilAccept:
		return a.handleFulfilAccept(ctx, st)
	case router.RouteWishHint:
		return a.handleWishHint(ctx, st)
	case router.RoutePrefs:
		return a.handlePrefs(ctx, st)
	case router.RouteApplyLast:
		return a.handleApplyLast(ctx, st)
	case router.RouteCorrectToolRequest:
		return a.handleCorrection(ctx, st)
	case router.RouteEditNotion:
		return a.handleEditNotion(ctx, st)
	case router.RouteDeploy:
		return a.handleDeploy(ctx, st)
	case router.RouteScaffold:
		return a.handleScaffold(ctx, st)
	case router.RouteCall:
		return a.handleCall(ctx, st)
	default:
		st.hint(`Try: wishctl "what should we build next?"`)
		st.hint(`Or: wishctl "show tool requests"`)
		return nil
	}
}
