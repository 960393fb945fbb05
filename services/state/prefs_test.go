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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Preferences Tests
// =============================================================================

func TestDefaultPreferences_StrictOptIn(t *testing.T) {
	prefs := DefaultPreferences()
	assert.False(t, prefs.AutoApplyEnabled)
	assert.Equal(t, DefaultAutoApplyThreshold, prefs.AutoApplyThreshold)
	assert.Empty(t, prefs.AutoApplyScope)
	assert.False(t, prefs.InScope("notion_corrections"))
}

func TestPreferences_ApplyRequestEnableDisable(t *testing.T) {
	prefs := DefaultPreferences()

	enabled := prefs.ApplyRequest("enable auto apply for corrections")
	assert.True(t, enabled.AutoApplyEnabled)
	assert.False(t, prefs.AutoApplyEnabled, "receiver must be unchanged")

	disabled := enabled.ApplyRequest("disable auto-apply")
	assert.False(t, disabled.AutoApplyEnabled)
}

func TestPreferences_ApplyRequestThreshold(t *testing.T) {
	prefs := DefaultPreferences()

	updated := prefs.ApplyRequest("set auto apply threshold to 0.8")
	assert.InDelta(t, 0.8, updated.AutoApplyThreshold, 1e-9)

	clamped := prefs.ApplyRequest("set auto apply threshold to 7")
	assert.Equal(t, 1.0, clamped.AutoApplyThreshold)

	unparseable := prefs.ApplyRequest("set auto apply threshold to banana")
	assert.Equal(t, DefaultAutoApplyThreshold, unparseable.AutoApplyThreshold)
}

func TestPreferences_InScope(t *testing.T) {
	prefs := Preferences{AutoApplyScope: []string{"notion_corrections"}}
	assert.True(t, prefs.InScope("notion_corrections"))
	assert.False(t, prefs.InScope("deploy"))
}

// =============================================================================
// PrefsStore Tests
// =============================================================================

func TestPrefsStore_LoadDefaultsWhenUnsaved(t *testing.T) {
	prefsStore := NewPrefsStore(NewFileStore(t.TempDir()))
	prefs, err := prefsStore.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences(), prefs)
}

func TestPrefsStore_RoundTrip(t *testing.T) {
	prefsStore := NewPrefsStore(NewFileStore(t.TempDir()))
	ctx := context.Background()

	saved := Preferences{
		AutoApplyEnabled:   true,
		AutoApplyThreshold: 0.85,
		AutoApplyScope:     []string{"notion_corrections"},
	}
	require.NoError(t, prefsStore.Save(ctx, saved))

	loaded, err := prefsStore.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestPrefsStore_ZeroThresholdNormalized(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()
	// Bypass Save's validation path to simulate an older record shape.
	require.NoError(t, store.Save(ctx, PrefsKey, map[string]any{
		"auto_apply_enabled":   true,
		"auto_apply_threshold": 0,
	}))

	prefsStore := NewPrefsStore(store)
	prefs, err := prefsStore.Load(ctx)
	require.NoError(t, err)
	assert.True(t, prefs.AutoApplyEnabled)
	assert.Equal(t, DefaultAutoApplyThreshold, prefs.AutoApplyThreshold)
	assert.NotNil(t, prefs.AutoApplyScope)
}

func TestPrefsStore_SaveRejectsOutOfRangeThreshold(t *testing.T) {
	prefsStore := NewPrefsStore(NewFileStore(t.TempDir()))
	err := prefsStore.Save(context.Background(), Preferences{AutoApplyThreshold: 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid preferences")
}
