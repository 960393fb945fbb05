// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolcall is the execution adapter boundary: it invokes named
// external tools (search, fetch, update, deploy) and normalizes their
// results and failures into plain maps and string errors. The core treats a
// non-zero exit or a malformed response as a terminal failure for that call;
// retries are a caller decision.
package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var toolcallTracer = otel.Tracer("wishrouter.toolcall")

// MutatingToolRe matches tool names that can write. Read-only calls run in
// either mode; matching names require the execute signal first.
var MutatingToolRe = regexp.MustCompile(`(apply|deploy|write|create|set|update|delete)`)

// Runner invokes one named tool with a JSON-like argument map and returns
// its structured payload.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the core itself calls
// sequentially within one invocation.
type Runner interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (map[string]any, error)
}

// =============================================================================
// ExecRunner: external command-line integration
// =============================================================================

// ExecRunner shells out to the bridge command with the tool name and a JSON
// argument blob, the same contract as `mcp_curl.sh <tool> '<json>'`.
type ExecRunner struct {
	// Command is the bridge executable path.
	Command string

	Logger *slog.Logger
}

// NewExecRunner creates an ExecRunner for the given bridge command.
func NewExecRunner(command string, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{Command: command, Logger: logger}
}

// Invoke runs the bridge command and parses its stdout.
//
// # Description
//
// A non-zero exit converts to an error carrying the command's stderr. The
// stdout payload is parsed with ParseToolResponse; any malformation is a
// terminal failure for this call. There is no core-level timeout; the
// context is the only cancellation path.
func (r *ExecRunner) Invoke(ctx context.Context, tool string, args map[string]any) (map[string]any, error) {
	ctx, span := toolcallTracer.Start(ctx, "toolcall.exec", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("tool", tool))

	argJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding args for %s: %w", tool, err)
	}

	cmd := exec.CommandContext(ctx, r.Command, tool, string(argJSON))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Debug("invoking tool", "tool", tool, "command", r.Command)
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		span.SetStatus(codes.Error, detail)
		return nil, fmt.Errorf("tool %s failed: %s", tool, detail)
	}

	payload, err := ParseToolResponse(stdout.Bytes())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("tool %s: %w", tool, err)
	}
	return payload, nil
}

// ParseToolResponse decodes a tool bridge response.
//
// # Description
//
// The bridge wraps payloads MCP-style: {"result": {"structuredContent":
// {...}}} or {"result": {"content": [{"text": "<json>"}]}}. A bare JSON
// object with no "result" wrapper is accepted as-is so the HTTP runner and
// tests can share this parser. Anything else is malformed.
func ParseToolResponse(raw []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid tool JSON output: %w", err)
	}

	result, ok := payload["result"].(map[string]any)
	if !ok {
		// Unwrapped payload.
		return payload, nil
	}

	if structured, ok := result["structuredContent"].(map[string]any); ok {
		return structured, nil
	}

	if content, ok := result["content"].([]any); ok {
		for _, block := range content {
			blockMap, ok := block.(map[string]any)
			if !ok {
				continue
			}
			text, ok := blockMap["text"].(string)
			if !ok {
				continue
			}
			var inner map[string]any
			if err := json.Unmarshal([]byte(text), &inner); err == nil {
				return inner, nil
			}
		}
	}

	return nil, fmt.Errorf("missing structuredContent in tool response")
}

// =============================================================================
// HTTPRunner: wishd tool server
// =============================================================================

// HTTPRunner posts tool calls to a wishd server: POST {base}/tools/{name}
// with the argument map as the JSON body.
type HTTPRunner struct {
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

// NewHTTPRunner creates an HTTPRunner for the given base URL.
func NewHTTPRunner(baseURL string, logger *slog.Logger) *HTTPRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPRunner{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  http.DefaultClient,
		Logger:  logger,
	}
}

// Invoke posts the call and parses the response body.
func (r *HTTPRunner) Invoke(ctx context.Context, tool string, args map[string]any) (map[string]any, error) {
	ctx, span := toolcallTracer.Start(ctx, "toolcall.http", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("tool", tool))

	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding args for %s: %w", tool, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.BaseURL+"/tools/"+tool, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", tool, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("tool %s failed: %w", tool, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", tool, err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(raw))
		span.SetStatus(codes.Error, detail)
		return nil, fmt.Errorf("tool %s failed: %s", tool, detail)
	}

	payload, err := ParseToolResponse(raw)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("tool %s: %w", tool, err)
	}
	return payload, nil
}
