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
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	routeDecisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wishrouter",
		Subsystem: "router",
		Name:      "decision_total",
		Help:      "Route decisions by route name",
	}, []string{"route"})

	planOnlyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wishrouter",
		Subsystem: "router",
		Name:      "plan_only_total",
		Help:      "Requests carrying the plan-only modifier",
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var routerTracer = otel.Tracer("wishrouter.router")

// =============================================================================
// Routes
// =============================================================================

// Route is the single action category a request is classified into.
type Route string

const (
	RouteScaffold           Route = "scaffold"
	RouteFulfilAccept       Route = "fulfil_accept"
	RouteApplyLast          Route = "apply_last"
	RoutePrefs              Route = "prefs"
	RouteCorrectToolRequest Route = "correct_tool_request"
	RouteCall               Route = "call"
	RouteFulfilBest         Route = "fulfil_best"
	RouteFulfilMatch        Route = "fulfil_match"
	RouteWishHint           Route = "wish_hint"
	RouteDeploy             Route = "deploy"
	RouteEditNotion         Route = "edit_notion"
	RouteFetch              Route = "fetch"
	RouteSearch             Route = "search"
	RouteList               Route = "list"
	RouteUnknown            Route = "unknown"
)

// planAllowedRoutes are inherently read-only routes that may still run under
// the plan-only modifier to produce a plan without writing.
var planAllowedRoutes = map[Route]struct{}{
	RouteList:        {},
	RouteSearch:      {},
	RouteFetch:       {},
	RouteFulfilBest:  {},
	RouteFulfilMatch: {},
}

// PlanOnlyBlockedActions is the fixed allow-list of mutating actions the
// plan-only modifier blocks regardless of route.
var PlanOnlyBlockedActions = []string{
	"write_files",
	"scaffold",
	"notion_update",
	"deploy",
	"run_commands",
}

// PlanAllowed reports whether a route may run under plan-only.
func PlanAllowed(route Route) bool {
	_, ok := planAllowedRoutes[route]
	return ok
}

// =============================================================================
// Router
// =============================================================================

// Request is the routing input: the raw text plus the explicit flags that
// short-circuit classification.
type Request struct {
	Text          string
	ForceScaffold bool
	AcceptID      string
}

// Decision is the routing output: exactly one route plus route-specific
// metadata. Immutable once produced.
type Decision struct {
	Route    Route
	Metadata map[string]any

	// PlanOnly is the orthogonal plan-only modifier, detected independently
	// of which predicate matched.
	PlanOnly bool
}

// routeRule is one entry of the ordered predicate chain. The chain order IS
// the routing contract: multiple predicates can match the same text, and the
// earliest one wins.
type routeRule struct {
	name  string
	match func(req Request, lower string) (Route, map[string]any, bool)
}

// Router maps a free-text request plus explicit flags to exactly one route.
//
// # Description
//
// Routing is an ordered, first-match predicate chain evaluated in a single
// pass. Each rule either declines or produces a route and its metadata
// bundle. The plan-only modifier is detected separately and attached to the
// decision without influencing which rule matched.
//
// # Thread Safety
//
// Router is immutable after construction. Safe for concurrent use.
type Router struct {
	rules  []routeRule
	logger *slog.Logger
}

// New creates a Router with the full predicate chain.
//
// # Inputs
//
//   - logger: Logger for decision diagnostics. May be nil (slog.Default).
//
// # Outputs
//
//   - *Router: Ready-to-use router. Never nil.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger, rules: buildRules()}
}

// buildRules assembles the ordered chain. Precedence, top to bottom:
// explicit flags, literal re-apply phrases, prefs, corrections, structured
// calls, fulfilment, wish capture, deploy, notion edits, scaffold keywords,
// triage, search, list, default.
func buildRules() []routeRule {
	return []routeRule{
		{"force_scaffold", func(req Request, _ string) (Route, map[string]any, bool) {
			if req.ForceScaffold {
				return RouteScaffold, map[string]any{}, true
			}
			return "", nil, false
		}},
		{"accept_id", func(req Request, _ string) (Route, map[string]any, bool) {
			if req.AcceptID != "" {
				return RouteFulfilAccept, map[string]any{"accept_id": req.AcceptID}, true
			}
			return "", nil, false
		}},
		{"apply_last", func(_ Request, lower string) (Route, map[string]any, bool) {
			trimmed := strings.TrimSpace(lower)
			for _, phrase := range applyLastPhrases {
				if trimmed == phrase {
					return RouteApplyLast, map[string]any{}, true
				}
			}
			return "", nil, false
		}},
		{"prefs", func(_ Request, lower string) (Route, map[string]any, bool) {
			if containsAny(lower, prefsPhrases) {
				return RoutePrefs, map[string]any{}, true
			}
			return "", nil, false
		}},
		{"correct_tool_request", func(_ Request, lower string) (Route, map[string]any, bool) {
			if isCorrectionRequest(lower) {
				return RouteCorrectToolRequest, map[string]any{}, true
			}
			return "", nil, false
		}},
		{"call", func(req Request, _ string) (Route, map[string]any, bool) {
			if spec, ok := ParseCall(req.Text); ok {
				return RouteCall, map[string]any{"tool": spec.Tool, "args": spec.Args}, true
			}
			return "", nil, false
		}},
		{"fulfil", func(req Request, _ string) (Route, map[string]any, bool) {
			if mode, query := detectFulfilMode(req.Text); mode != RouteUnknown {
				return mode, map[string]any{"query": query}, true
			}
			return "", nil, false
		}},
		{"wish_hint", func(_ Request, lower string) (Route, map[string]any, bool) {
			if isWishCapture(lower) {
				return RouteWishHint, map[string]any{}, true
			}
			return "", nil, false
		}},
		{"deploy", func(_ Request, lower string) (Route, map[string]any, bool) {
			if containsAny(lower, deployPhrases) {
				return RouteDeploy, map[string]any{}, true
			}
			return "", nil, false
		}},
		{"edit_notion", func(_ Request, lower string) (Route, map[string]any, bool) {
			if isNotionEdit(lower) {
				return RouteEditNotion, map[string]any{}, true
			}
			return "", nil, false
		}},
		{"scaffold", func(_ Request, lower string) (Route, map[string]any, bool) {
			if containsAny(lower, scaffoldPhrases) {
				return RouteScaffold, map[string]any{}, true
			}
			return "", nil, false
		}},
		{"fetch", func(_ Request, lower string) (Route, map[string]any, bool) {
			if containsAny(lower, triagePhrases) {
				return RouteFetch, map[string]any{}, true
			}
			return "", nil, false
		}},
		{"search", func(req Request, lower string) (Route, map[string]any, bool) {
			if containsAnyWord(lower, searchPhrases) {
				return RouteSearch, map[string]any{"query": ExtractSearchQuery(req.Text)}, true
			}
			return "", nil, false
		}},
		{"list", func(_ Request, lower string) (Route, map[string]any, bool) {
			if containsAny(lower, listPhrases) {
				return RouteList, map[string]any{}, true
			}
			return "", nil, false
		}},
	}
}

// Decide classifies a request into exactly one route.
//
// # Description
//
// Evaluates the predicate chain in declaration order and returns the first
// match; falls through to RouteUnknown. The plan-only modifier is computed
// independently and never changes the chosen route.
//
// # Inputs
//
//   - ctx: Context for tracing only; routing never blocks.
//   - req: The request text and explicit flags.
//
// # Outputs
//
//   - Decision: The route, its metadata bundle, and the plan-only bit.
func (r *Router) Decide(ctx context.Context, req Request) Decision {
	_, span := routerTracer.Start(ctx, "router.decide")
	defer span.End()

	lower := strings.ToLower(req.Text)
	decision := Decision{Route: RouteUnknown, Metadata: map[string]any{}}

	for _, rule := range r.rules {
		route, meta, ok := rule.match(req, lower)
		if !ok {
			continue
		}
		decision.Route = route
		decision.Metadata = meta
		r.logger.Debug("route matched", "rule", rule.name, "route", string(route))
		break
	}

	decision.PlanOnly = IsPlanOnly(req.Text)
	if decision.PlanOnly {
		planOnlyTotal.Inc()
	}

	routeDecisionTotal.WithLabelValues(string(decision.Route)).Inc()
	span.SetAttributes(
		attribute.String("route", string(decision.Route)),
		attribute.Bool("plan_only", decision.PlanOnly),
	)
	return decision
}
