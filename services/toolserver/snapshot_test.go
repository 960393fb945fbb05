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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Snapshot Store Tests
// =============================================================================

func writeSnapshot(t *testing.T, requests []ToolRequest) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool_requests.json")
	raw, err := json.Marshal(snapshotFile{
		SyncedAt:     "2025-06-01T10:00:00Z",
		Count:        len(requests),
		ToolRequests: requests,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func openSnapshot(t *testing.T, requests []ToolRequest) *SnapshotStore {
	t.Helper()
	store, err := NewSnapshotStore(writeSnapshot(t, requests), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRequests() []ToolRequest {
	return []ToolRequest{
		{
			PageID:         "aaa",
			Title:          "Inbox Triage Assistant",
			Description:    "Sort incoming mail automatically",
			DesiredOutcome: "Zero unread by evening",
			Status:         "new",
			Impact:         "high",
			Frequency:      "daily",
			CreatedTime:    "2025-05-20T09:00:00Z",
			LastEditedTime: "2025-05-21T09:00:00Z",
		},
		{
			PageID:      "bbb",
			Title:       "Receipt Scanner",
			Description: "Scan paper receipts into a ledger",
			Status:      "triaging",
			Impact:      "medium",
			Frequency:   "weekly",
			CreatedTime: "2025-05-25T09:00:00Z",
		},
		{
			PageID:      "ccc",
			Title:       "Calendar Sync",
			Description: "Mirror work calendar into personal one",
			Status:      "done",
			CreatedTime: "2025-05-10T09:00:00Z",
		},
	}
}

func TestSnapshotStore_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	store, err := NewSnapshotStore(path, nil)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, store.SyncedAt())
}

func TestSnapshotStore_LoadsFile(t *testing.T) {
	store := openSnapshot(t, sampleRequests())
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, "2025-06-01T10:00:00Z", store.SyncedAt())
}

func TestSnapshotStore_LatestFiltersAndSorts(t *testing.T) {
	store := openSnapshot(t, sampleRequests())

	open := store.Latest(10, []string{"new", "triaging"})
	require.Len(t, open, 2)
	// Newest created first.
	assert.Equal(t, "bbb", open[0].PageID)
	assert.Equal(t, "aaa", open[1].PageID)

	all := store.Latest(0, nil)
	assert.Len(t, all, 3)

	capped := store.Latest(1, nil)
	require.Len(t, capped, 1)
	assert.Equal(t, "bbb", capped[0].PageID)
}

func TestSnapshotStore_LatestStatusCaseInsensitive(t *testing.T) {
	store := openSnapshot(t, sampleRequests())
	got := store.Latest(10, []string{"NEW"})
	require.Len(t, got, 1)
	assert.Equal(t, "aaa", got[0].PageID)
}

func TestSnapshotStore_SearchRanksByOverlap(t *testing.T) {
	store := openSnapshot(t, sampleRequests())

	got := store.Search("inbox triage", 5)
	require.NotEmpty(t, got)
	assert.Equal(t, "aaa", got[0].PageID)

	// Unrelated queries still surface the recency-backed head of the pool.
	fallback := store.Search("quantum gardening", 5)
	assert.Len(t, fallback, 2)
}

func TestSnapshotStore_Get(t *testing.T) {
	store := openSnapshot(t, sampleRequests())

	req, ok := store.Get("bbb")
	require.True(t, ok)
	assert.Equal(t, "Receipt Scanner", req.Title)

	_, ok = store.Get("zzz")
	assert.False(t, ok)
}

func TestSnapshotStore_UpdateDryRunDoesNotPersist(t *testing.T) {
	path := writeSnapshot(t, sampleRequests())
	store, err := NewSnapshotStore(path, nil)
	require.NoError(t, err)
	defer store.Close()

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	updated, err := store.Update("aaa", PageUpdates{Title: "Inbox Cleanup Assistant"}, true)
	require.NoError(t, err)
	assert.Equal(t, "Inbox Cleanup Assistant", updated.Title)

	// In-memory record and file are both untouched.
	current, ok := store.Get("aaa")
	require.True(t, ok)
	assert.Equal(t, "Inbox Triage Assistant", current.Title)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSnapshotStore_UpdatePersists(t *testing.T) {
	path := writeSnapshot(t, sampleRequests())
	store, err := NewSnapshotStore(path, nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Update("aaa", PageUpdates{
		Title:      "Inbox Cleanup Assistant",
		Properties: map[string]any{"Status": "triaging", "Domain": []any{"email", "automation"}},
	}, false)
	require.NoError(t, err)

	current, ok := store.Get("aaa")
	require.True(t, ok)
	assert.Equal(t, "Inbox Cleanup Assistant", current.Title)
	assert.Equal(t, "triaging", current.Status)
	assert.Equal(t, []string{"email", "automation"}, current.Domain)
	assert.NotEmpty(t, current.LastEditedTime)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var file snapshotFile
	require.NoError(t, json.Unmarshal(raw, &file))
	require.Len(t, file.ToolRequests, 3)
	assert.Equal(t, "Inbox Cleanup Assistant", file.ToolRequests[0].Title)
}

func TestSnapshotStore_UpdateUnknownPage(t *testing.T) {
	store := openSnapshot(t, sampleRequests())
	_, err := store.Update("zzz", PageUpdates{Title: "x"}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page not found")
}
