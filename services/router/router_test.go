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
	"testing"
)

// =============================================================================
// Route Chain Tests
// =============================================================================

func decide(t *testing.T, text string) Decision {
	t.Helper()
	return New(nil).Decide(context.Background(), Request{Text: text})
}

func TestDecide_ForceScaffoldFlagWins(t *testing.T) {
	d := New(nil).Decide(context.Background(), Request{
		Text:          "make the calendar sync tool",
		ForceScaffold: true,
	})
	if d.Route != RouteScaffold {
		t.Errorf("expected scaffold, got %s", d.Route)
	}
}

func TestDecide_AcceptIDWins(t *testing.T) {
	d := New(nil).Decide(context.Background(), Request{
		Text:     "make the calendar sync tool",
		AcceptID: "abc123",
	})
	if d.Route != RouteFulfilAccept {
		t.Errorf("expected fulfil_accept, got %s", d.Route)
	}
	if d.Metadata["accept_id"] != "abc123" {
		t.Errorf("expected accept_id metadata, got %v", d.Metadata)
	}
}

func TestDecide_ApplyLastLiteralPhrase(t *testing.T) {
	for _, text := range []string{"apply that", "Apply Last Preview", "apply last correction"} {
		if d := decide(t, text); d.Route != RouteApplyLast {
			t.Errorf("%q: expected apply_last, got %s", text, d.Route)
		}
	}
}

func TestDecide_ApplyLastRequiresExactPhrase(t *testing.T) {
	// An embedded phrase is not the literal re-apply command.
	d := decide(t, "please apply that change to the doc")
	if d.Route == RouteApplyLast {
		t.Error("embedded phrase must not route to apply_last")
	}
}

func TestDecide_Prefs(t *testing.T) {
	for _, text := range []string{
		"enable auto apply",
		"set auto-apply threshold to 0.8",
		"disable auto apply for corrections",
	} {
		if d := decide(t, text); d.Route != RoutePrefs {
			t.Errorf("%q: expected prefs, got %s", text, d.Route)
		}
	}
}

func TestDecide_CorrectionBeatsEditNotion(t *testing.T) {
	// Mentions both the tool request database and notion; the correction
	// predicate sits earlier in the chain and must win.
	d := decide(t, "update the tool request about calendar sync in notion")
	if d.Route != RouteCorrectToolRequest {
		t.Errorf("expected correct_tool_request, got %s", d.Route)
	}
}

func TestDecide_CorrectionRequiresEditVerb(t *testing.T) {
	d := decide(t, "show tool requests")
	if d.Route == RouteCorrectToolRequest {
		t.Error("listing must not route to correct_tool_request")
	}
	if d.Route != RouteList {
		t.Errorf("expected list, got %s", d.Route)
	}
}

func TestDecide_CallRoute(t *testing.T) {
	d := decide(t, `call tool_requests_latest {"limit": 5}`)
	if d.Route != RouteCall {
		t.Fatalf("expected call, got %s", d.Route)
	}
	if d.Metadata["tool"] != "tool_requests_latest" {
		t.Errorf("expected tool metadata, got %v", d.Metadata["tool"])
	}
	if d.Metadata["args"] != `{"limit": 5}` {
		t.Errorf("expected raw args, got %v", d.Metadata["args"])
	}
}

func TestDecide_FulfilBestTrigger(t *testing.T) {
	d := decide(t, "what should we build next?")
	if d.Route != RouteFulfilBest {
		t.Errorf("expected fulfil_best, got %s", d.Route)
	}
}

func TestDecide_FulfilMatchExtractsQuery(t *testing.T) {
	d := decide(t, "build the tool for receipt scanning")
	if d.Route != RouteFulfilMatch {
		t.Fatalf("expected fulfil_match, got %s", d.Route)
	}
	if d.Metadata["query"] != "receipt scanning" {
		t.Errorf("expected query %q, got %v", "receipt scanning", d.Metadata["query"])
	}
}

func TestDecide_WishHintWithoutFulfilVerb(t *testing.T) {
	d := decide(t, "i wish my receipts were organized")
	if d.Route != RouteWishHint {
		t.Errorf("expected wish_hint, got %s", d.Route)
	}
}

func TestDecide_WishWithFulfilVerbIsFulfilment(t *testing.T) {
	d := decide(t, "i wish you could build the receipt organizer")
	if d.Route != RouteFulfilMatch && d.Route != RouteFulfilBest {
		t.Errorf("expected a fulfilment route, got %s", d.Route)
	}
}

func TestDecide_Deploy(t *testing.T) {
	d := decide(t, "ship it to the vm")
	if d.Route != RouteDeploy {
		t.Errorf("expected deploy, got %s", d.Route)
	}
}

func TestDecide_EditNotion(t *testing.T) {
	d := decide(t, "set status Done in notion for the reading page")
	if d.Route != RouteEditNotion {
		t.Errorf("expected edit_notion, got %s", d.Route)
	}
}

func TestDecide_ScaffoldKeyword(t *testing.T) {
	d := decide(t, "scaffold a receipts helper")
	if d.Route != RouteScaffold {
		t.Errorf("expected scaffold, got %s", d.Route)
	}
}

func TestDecide_Triage(t *testing.T) {
	d := decide(t, "triage the backlog")
	if d.Route != RouteFetch {
		t.Errorf("expected fetch, got %s", d.Route)
	}
}

func TestDecide_SearchExtractsQuery(t *testing.T) {
	d := decide(t, "search for calendar wishes")
	if d.Route != RouteSearch {
		t.Fatalf("expected search, got %s", d.Route)
	}
	if d.Metadata["query"] != "calendar wishes" {
		t.Errorf("expected query %q, got %v", "calendar wishes", d.Metadata["query"])
	}
}

func TestDecide_UnknownFallsThrough(t *testing.T) {
	d := decide(t, "tell me a story about dragons")
	if d.Route != RouteUnknown {
		t.Errorf("expected unknown, got %s", d.Route)
	}
}

// =============================================================================
// Plan-Only Modifier Tests
// =============================================================================

func TestDecide_PlanOnlyDoesNotChangeRoute(t *testing.T) {
	d := decide(t, "just plan the deploy")
	if !d.PlanOnly {
		t.Error("expected plan-only modifier")
	}
	if d.Route != RouteDeploy {
		t.Errorf("plan-only must not change the route, got %s", d.Route)
	}
}

func TestIsPlanOnly(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"start with the plan", true},
		{"plan only please", true},
		{"outline the approach first", true},
		{"what's the plan?", true},
		{"give me a plan for receipts", true},
		{"build the planner tool", false},
		{"make the calendar sync tool", false},
	}
	for _, tc := range cases {
		if got := IsPlanOnly(tc.text); got != tc.want {
			t.Errorf("IsPlanOnly(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestPlanAllowed(t *testing.T) {
	allowed := []Route{RouteList, RouteSearch, RouteFetch, RouteFulfilBest, RouteFulfilMatch}
	for _, route := range allowed {
		if !PlanAllowed(route) {
			t.Errorf("expected %s to be plan-allowed", route)
		}
	}
	blocked := []Route{RouteScaffold, RouteDeploy, RouteApplyLast, RouteCorrectToolRequest, RouteEditNotion}
	for _, route := range blocked {
		if PlanAllowed(route) {
			t.Errorf("expected %s to be blocked under plan-only", route)
		}
	}
}
