// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// These are unit tests that don't require the tool server to be running.

package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/AleutianAI/wishrouter/services/agent"
)

func TestEmitEnvelope_CleanRun(t *testing.T) {
	var buf bytes.Buffer
	code := emitEnvelope(&buf, agent.Envelope{
		Summary: "Route: list. Dry-run: true.",
		Result:  map[string]any{"count": 2},
	})
	if code != 0 {
		t.Fatalf("expected exit status 0, got %d", code)
	}

	var decoded struct {
		Summary string   `json:"summary"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("stdout is not a JSON envelope: %v", err)
	}
	if decoded.Summary != "Route: list. Dry-run: true." {
		t.Errorf("summary = %q", decoded.Summary)
	}
	if decoded.Errors == nil || len(decoded.Errors) != 0 {
		t.Errorf("errors should be an empty list, got %v", decoded.Errors)
	}
}

func TestEmitEnvelope_ErrorsExitNonZero(t *testing.T) {
	var buf bytes.Buffer
	code := emitEnvelope(&buf, agent.Envelope{
		Summary: "Route: apply_last. Dry-run: false.",
		Errors:  []string{"No last preview found."},
	})
	if code != 1 {
		t.Fatalf("expected exit status 1, got %d", code)
	}
	if !json.Valid(buf.Bytes()) {
		t.Fatalf("stdout is not valid JSON: %s", buf.String())
	}
}
