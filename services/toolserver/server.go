// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/wishrouter/services/router"
	"github.com/AleutianAI/wishrouter/services/toolserver/tools"
)

var toolInvocationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wishrouter",
	Subsystem: "toolserver",
	Name:      "tool_invocation_total",
	Help:      "Tool invocations by tool name and result.",
}, []string{"tool", "result"})

// ToolFunc handles one tool invocation. It returns the MCP-style tool
// envelope: summary, result, next_actions, errors.
type ToolFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Server exposes the tool registry over HTTP.
type Server struct {
	snapshot *SnapshotStore
	logger   *slog.Logger
	tools    map[string]ToolFunc
}

// NewServer builds a Server with the built-in tools registered.
func NewServer(snapshot *SnapshotStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{snapshot: snapshot, logger: logger, tools: map[string]ToolFunc{}}
	s.Register("tool_requests_latest", s.toolRequestsLatest)
	s.Register("tool_requests_search", s.toolRequestsSearch)
	s.Register("notion_search", s.toolRequestsSearch)
	s.Register("notion_get_page", s.notionGetPage)
	s.Register("notion_update_page", s.notionUpdatePage)
	s.Register("decide", s.decide)
	for name, fn := range tools.Registry {
		s.Register(name, ToolFunc(fn))
	}
	return s
}

// Register adds or replaces a tool handler.
func (s *Server) Register(name string, fn ToolFunc) {
	s.tools[name] = fn
}

// Engine builds the gin engine with the tool routes mounted.
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("wishrouter-toolserver"))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"entries":   s.snapshot.Len(),
			"synced_at": s.snapshot.SyncedAt(),
		})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.POST("/tools/:name", s.handleTool)
	return engine
}

func (s *Server) handleTool(c *gin.Context) {
	name := c.Param("name")
	fn, ok := s.tools[name]
	if !ok {
		toolInvocationTotal.WithLabelValues(name, "unknown").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown tool: %s", name)})
		return
	}

	args := map[string]any{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			toolInvocationTotal.WithLabelValues(name, "bad_request").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
			return
		}
	}

	started := time.Now()
	envelope, err := fn(c.Request.Context(), args)
	if err != nil {
		toolInvocationTotal.WithLabelValues(name, "error").Inc()
		s.logger.Warn("tool failed", "tool", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	toolInvocationTotal.WithLabelValues(name, "ok").Inc()
	s.logger.Info("tool served", "tool", name, "elapsed", time.Since(started))

	c.JSON(http.StatusOK, gin.H{
		"result": gin.H{"structuredContent": envelope},
	})
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func stringsArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func envelope(summary string, result map[string]any) map[string]any {
	return map[string]any{
		"summary":      summary,
		"result":       result,
		"next_actions": []string{},
		"errors":       []string{},
	}
}

func (s *Server) toolRequestsLatest(_ context.Context, args map[string]any) (map[string]any, error) {
	limit := intArg(args, "limit", 10)
	statuses := stringsArg(args, "statuses")
	items := s.snapshot.Latest(limit, statuses)
	return envelope(
		fmt.Sprintf("%d open tool requests.", len(items)),
		map[string]any{"candidates": items, "items": items, "count": len(items)},
	), nil
}

func (s *Server) toolRequestsSearch(_ context.Context, args map[string]any) (map[string]any, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	limit := intArg(args, "limit", 10)
	items := s.snapshot.Search(query, limit)
	return envelope(
		fmt.Sprintf("%d matches for %q.", len(items), query),
		map[string]any{"candidates": items, "items": items, "count": len(items)},
	), nil
}

func (s *Server) notionGetPage(_ context.Context, args map[string]any) (map[string]any, error) {
	pageID := stringArg(args, "page_id")
	if pageID == "" {
		return nil, fmt.Errorf("page_id is required")
	}
	req, ok := s.snapshot.Get(pageID)
	if !ok {
		return nil, fmt.Errorf("page not found: %s", pageID)
	}
	page := map[string]any{
		"id":    req.PageID,
		"title": req.Title,
		"url":   req.URL,
		"properties": map[string]any{
			"Description":     req.Description,
			"Desired outcome": req.DesiredOutcome,
			"Status":          req.Status,
			"Impact":          req.Impact,
			"Frequency":       req.Frequency,
			"Domain":          req.Domain,
		},
	}
	return envelope("Page loaded.", map[string]any{"page": page}), nil
}

func (s *Server) notionUpdatePage(_ context.Context, args map[string]any) (map[string]any, error) {
	pageID := stringArg(args, "page_id")
	if pageID == "" {
		return nil, fmt.Errorf("page_id is required")
	}
	dryRun := true
	if v, ok := args["dry_run"].(bool); ok {
		dryRun = v
	}

	updates := PageUpdates{Properties: map[string]any{}}
	if raw, ok := args["updates"].(map[string]any); ok {
		updates.Title = stringArg(raw, "title")
		if props, ok := raw["properties"].(map[string]any); ok {
			updates.Properties = props
		}
	}

	updated, err := s.snapshot.Update(pageID, updates, dryRun)
	if err != nil {
		return nil, err
	}
	summary := "Page updated."
	if dryRun {
		summary = "Dry-run: no changes written."
	}
	return envelope(summary, map[string]any{
		"page":    updated,
		"dry_run": dryRun,
	}), nil
}

// decide picks the best candidate for a fulfilment request. It is a local
// heuristic stand-in for an LLM collaborator: rank the pool, surface the
// top pick with its confidence, and draft a generic v0 outline.
func (s *Server) decide(_ context.Context, args map[string]any) (map[string]any, error) {
	requestText := stringArg(args, "request")
	if requestText == "" {
		requestText = stringArg(args, "request_text")
	}
	rawCandidates, _ := args["candidates"].([]any)

	pool := make([]router.Candidate, 0, len(rawCandidates))
	for _, entry := range rawCandidates {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		cand := router.Candidate{
			ID:             stringArg(m, "id"),
			Title:          stringArg(m, "title"),
			URL:            stringArg(m, "url"),
			Description:    stringArg(m, "description"),
			DesiredOutcome: stringArg(m, "desired_outcome"),
			Status:         stringArg(m, "status"),
			CreatedTime:    stringArg(m, "created_time"),
			LastEditedTime: stringArg(m, "last_edited_time"),
		}
		if cand.ID == "" {
			cand.ID = stringArg(m, "page_id")
		}
		pool = append(pool, cand)
	}

	ranked := router.Rank(requestText, pool)
	rankedOut := make([]map[string]any, 0, len(ranked))
	for _, entry := range ranked {
		rankedOut = append(rankedOut, map[string]any{
			"id":          entry.Candidate.ID,
			"title":       entry.Candidate.Title,
			"url":         entry.Candidate.URL,
			"total_score": entry.TotalScore,
			"rationale":   entry.Rationale,
		})
	}

	decision := map[string]any{
		"selected_id": "",
		"confidence":  0.0,
		"ranked":      rankedOut,
		"plan_outline": []string{
			"Confirm inputs/outputs contract.",
			"Implement read-only path first.",
			"Add explicit apply/confirm path for writes.",
		},
		"questions":          []string{},
		"inputs_and_capture": map[string]any{},
	}
	if len(ranked) > 0 && ranked[0].TotalScore > 0 {
		top := ranked[0]
		conf := router.EstimateConfidence(requestText, top.Candidate, pool, "")
		decision["selected_id"] = top.Candidate.ID
		decision["confidence"] = conf.Score
	}
	return envelope("Decision drafted.", decision), nil
}
