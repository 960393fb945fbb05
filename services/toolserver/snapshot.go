// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolserver serves the tool request snapshot over HTTP. The
// snapshot is a JSON file synced from the upstream tracker; the server
// answers reads from memory and applies writes back to the file.
package toolserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/wishrouter/services/router"
)

var (
	snapshotReloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wishrouter",
		Subsystem: "toolserver",
		Name:      "snapshot_reload_total",
		Help:      "Snapshot reloads by result.",
	}, []string{"result"})

	snapshotEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wishrouter",
		Subsystem: "toolserver",
		Name:      "snapshot_entries",
		Help:      "Tool requests in the loaded snapshot.",
	})
)

// ToolRequest is one snapshot entry.
type ToolRequest struct {
	PageID         string   `json:"page_id"`
	URL            string   `json:"url"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	DesiredOutcome string   `json:"desired_outcome"`
	Frequency      string   `json:"frequency"`
	Impact         string   `json:"impact"`
	Domain         []string `json:"domain"`
	Status         string   `json:"status"`
	Source         string   `json:"source,omitempty"`
	Link           string   `json:"link,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	CreatedTime    string   `json:"created_time"`
	LastEditedTime string   `json:"last_edited_time"`
}

// snapshotFile is the on-disk shape of the synced snapshot.
type snapshotFile struct {
	SyncedAt     string        `json:"synced_at"`
	Count        int           `json:"count"`
	ToolRequests []ToolRequest `json:"tool_requests"`
}

// Candidate converts a snapshot entry to the router's scoring shape.
func (t ToolRequest) Candidate() router.Candidate {
	return router.Candidate{
		ID:             t.PageID,
		Title:          t.Title,
		URL:            t.URL,
		Description:    t.Description,
		DesiredOutcome: t.DesiredOutcome,
		Domain:         t.Domain,
		Status:         t.Status,
		CreatedTime:    t.CreatedTime,
		LastEditedTime: t.LastEditedTime,
	}
}

// SnapshotStore holds the snapshot in memory and keeps it in sync with
// the file, reloading on filesystem change events.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Reads take the read lock;
// Reload and Update take the write lock.
type SnapshotStore struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	requests []ToolRequest
	syncedAt string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSnapshotStore loads the snapshot file and starts watching it. A
// missing file is not an error; the store starts empty and picks the file
// up when the sync job writes it.
func NewSnapshotStore(path string, logger *slog.Logger) (*SnapshotStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SnapshotStore{path: path, logger: logger, done: make(chan struct{})}
	if err := s.Reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("snapshot watcher: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		watcher.Close()
		return nil, err
	}
	// Watch the directory, not the file: sync jobs replace the file via
	// rename, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("snapshot watch %s: %w", filepath.Dir(path), err)
	}
	s.watcher = watcher
	go s.watchLoop()
	return s, nil
}

func (s *SnapshotStore) watchLoop() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				snapshotReloadTotal.WithLabelValues("error").Inc()
				s.logger.Warn("snapshot reload failed", "path", s.path, "error", err)
				continue
			}
			snapshotReloadTotal.WithLabelValues("ok").Inc()
			s.logger.Info("snapshot reloaded", "path", s.path, "entries", s.Len())
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("snapshot watcher error", "error", err)
		}
	}
}

// Close stops the file watch.
func (s *SnapshotStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Reload replaces the in-memory snapshot from the file.
func (s *SnapshotStore) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var file snapshotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("snapshot parse %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.requests = file.ToolRequests
	s.syncedAt = file.SyncedAt
	s.mu.Unlock()
	snapshotEntries.Set(float64(len(file.ToolRequests)))
	return nil
}

// Len returns the number of loaded tool requests.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

// SyncedAt returns the snapshot's sync timestamp, empty before first load.
func (s *SnapshotStore) SyncedAt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncedAt
}

// Latest returns up to limit requests matching the status filter, newest
// created first. An empty filter matches every status.
func (s *SnapshotStore) Latest(limit int, statuses []string) []ToolRequest {
	wanted := map[string]bool{}
	for _, status := range statuses {
		wanted[strings.ToLower(strings.TrimSpace(status))] = true
	}
	s.mu.RLock()
	matched := make([]ToolRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if len(wanted) > 0 && !wanted[strings.ToLower(req.Status)] {
			continue
		}
		matched = append(matched, req)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return parseSnapshotTime(matched[i].CreatedTime).After(parseSnapshotTime(matched[j].CreatedTime))
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func parseSnapshotTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Search scores every request against the query and returns up to limit
// results in descending score order.
func (s *SnapshotStore) Search(query string, limit int) []ToolRequest {
	s.mu.RLock()
	pool := make([]router.Candidate, 0, len(s.requests))
	byID := make(map[string]ToolRequest, len(s.requests))
	for _, req := range s.requests {
		pool = append(pool, req.Candidate())
		byID[req.PageID] = req
	}
	s.mu.RUnlock()

	ranked := router.Rank(query, pool)
	out := make([]ToolRequest, 0, limit)
	for _, entry := range ranked {
		if entry.TotalScore <= 0 {
			continue
		}
		out = append(out, byID[entry.Candidate.ID])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Get returns the request with the given page id.
func (s *SnapshotStore) Get(pageID string) (ToolRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, req := range s.requests {
		if req.PageID == pageID {
			return req, true
		}
	}
	return ToolRequest{}, false
}

// PageUpdates is the accepted shape of a page update.
type PageUpdates struct {
	Title      string         `json:"title,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Update applies the updates to one page. With dryRun the would-be result
// is returned without touching memory or the file.
func (s *SnapshotStore) Update(pageID string, updates PageUpdates, dryRun bool) (ToolRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, req := range s.requests {
		if req.PageID == pageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ToolRequest{}, fmt.Errorf("page not found: %s", pageID)
	}

	updated := s.requests[idx]
	if updates.Title != "" {
		updated.Title = updates.Title
	}
	applyProperties(&updated, updates.Properties)
	updated.LastEditedTime = time.Now().UTC().Format(time.RFC3339)

	if dryRun {
		return updated, nil
	}
	s.requests[idx] = updated
	if err := s.persistLocked(); err != nil {
		return ToolRequest{}, err
	}
	return updated, nil
}

func applyProperties(req *ToolRequest, props map[string]any) {
	for name, value := range props {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "status":
			if s, ok := value.(string); ok {
				req.Status = s
			}
		case "description":
			if s, ok := value.(string); ok {
				req.Description = s
			}
		case "desired outcome", "desired_outcome":
			if s, ok := value.(string); ok {
				req.DesiredOutcome = s
			}
		case "impact":
			if s, ok := value.(string); ok {
				req.Impact = s
			}
		case "frequency":
			if s, ok := value.(string); ok {
				req.Frequency = s
			}
		case "domain":
			switch v := value.(type) {
			case []string:
				req.Domain = v
			case []any:
				tags := make([]string, 0, len(v))
				for _, tag := range v {
					if s, ok := tag.(string); ok {
						tags = append(tags, s)
					}
				}
				req.Domain = tags
			}
		}
	}
}

// persistLocked rewrites the snapshot file atomically. Caller holds mu.
func (s *SnapshotStore) persistLocked() error {
	s.syncedAt = time.Now().UTC().Format(time.RFC3339)
	file := snapshotFile{
		SyncedAt:     s.syncedAt,
		Count:        len(s.requests),
		ToolRequests: s.requests,
	}
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
