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

import "encoding/json"

// =============================================================================
// Output Envelope
// =============================================================================

// Envelope is the machine-parseable result of every invocation. It is always
// emitted: every failure path terminates here with a populated Errors list
// rather than escaping the invocation boundary.
type Envelope struct {
	Summary     string         `json:"summary"`
	Result      map[string]any `json:"result"`
	NextActions []string       `json:"next_actions"`
	Errors      []string       `json:"errors"`

	// exitCode, when non-zero, overrides the Errors-derived status. The
	// cancelled interactive flow reports failure with an empty error list.
	exitCode int
}

// ExitCode is non-zero iff Errors is non-empty or an override is set.
func (e Envelope) ExitCode() int {
	if e.exitCode != 0 {
		return e.exitCode
	}
	if len(e.Errors) > 0 {
		return 1
	}
	return 0
}

// JSON renders the envelope as indented JSON. Rendering failure cannot
// realistically happen with these types; it degrades to a minimal literal
// so the invocation contract (always emit an envelope) holds regardless.
func (e Envelope) JSON() string {
	if e.Result == nil {
		e.Result = map[string]any{}
	}
	if e.NextActions == nil {
		e.NextActions = []string{}
	}
	if e.Errors == nil {
		e.Errors = []string{}
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return `{"summary":"encoding failure","result":{},"next_actions":[],"errors":["` + err.Error() + `"]}`
	}
	return string(data)
}
