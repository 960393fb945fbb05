// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"context"
	"time"
)

// =============================================================================
// Preview Store
// =============================================================================

// PreviewKey is the fixed key of the single preview slot.
const PreviewKey = "last_preview"

// PreviewTTL bounds how long a saved preview stays applyable without the
// force override.
const PreviewTTL = 24 * time.Hour

// PreviewTypeCorrection is the record type written by the correction route
// and required by the apply-last route.
const PreviewTypeCorrection = "notion_correction"

// timeNow is a seam for tests; production code never overrides it.
var timeNow = time.Now

// PreviewRecord is the persisted record of the most recently proposed
// mutation. At most one lives at a time: every new dry-run preview of a
// mutating route overwrites the slot, and the apply-last route reads it
// without deleting it.
type PreviewRecord struct {
	Type       string         `json:"type"`
	PageID     string         `json:"page_id"`
	Updates    map[string]any `json:"updates"`
	Confidence float64        `json:"confidence"`

	// Timestamp is RFC 3339 UTC. Malformed values make the record stale.
	Timestamp string `json:"timestamp"`
}

// IsFresh reports whether the record's timestamp is within PreviewTTL of
// now. A timestamp that does not parse is treated as not fresh; an
// unreadable age must never unlock an apply.
func (r PreviewRecord) IsFresh(now time.Time) bool {
	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return false
	}
	return now.Sub(ts) <= PreviewTTL
}

// PreviewStore is the single-slot store for mutation previews.
type PreviewStore struct {
	store Store
}

// NewPreviewStore wraps a Store with the fixed preview slot.
func NewPreviewStore(store Store) *PreviewStore {
	return &PreviewStore{store: store}
}

// Save overwrites the slot unconditionally, stamping the record with the
// current UTC time when no timestamp was provided.
func (p *PreviewStore) Save(ctx context.Context, record PreviewRecord) error {
	if record.Timestamp == "" {
		record.Timestamp = timeNow().UTC().Format(time.RFC3339)
	}
	return p.store.Save(ctx, PreviewKey, record)
}

// Load returns the slot's record, or found=false when no preview was ever
// saved.
func (p *PreviewStore) Load(ctx context.Context) (PreviewRecord, bool, error) {
	var record PreviewRecord
	found, err := p.store.Load(ctx, PreviewKey, &record)
	return record, found, err
}
