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
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Preferences
// =============================================================================

// PrefsKey is the fixed key of the preferences record.
const PrefsKey = "prefs"

// DefaultAutoApplyThreshold applies when preferences were never saved or
// carry no threshold. High on purpose: auto-apply is a strict opt-in and
// only near-certain corrections may skip the per-call confirmation.
const DefaultAutoApplyThreshold = 0.92

var prefsValidate = validator.New()

var thresholdPhraseRe = regexp.MustCompile(`auto apply threshold to\s*([0-9.]+)`)

// Preferences is the process-wide preference record: loaded at the start of
// each invocation, mutated only by the explicit prefs route, persisted back
// to the same slot.
type Preferences struct {
	AutoApplyEnabled bool `json:"auto_apply_enabled"`

	// AutoApplyThreshold is the minimum confidence for auto-apply.
	AutoApplyThreshold float64 `json:"auto_apply_threshold" validate:"gte=0,lte=1"`

	// AutoApplyScope lists the route names auto-apply is allowed for.
	// Empty means auto-apply applies to nothing.
	AutoApplyScope []string `json:"auto_apply_scope"`

	InteractiveAutoConfirm bool `json:"interactive_auto_confirm"`
}

// DefaultPreferences returns the strict-opt-in defaults.
func DefaultPreferences() Preferences {
	return Preferences{
		AutoApplyThreshold: DefaultAutoApplyThreshold,
		AutoApplyScope:     []string{},
	}
}

// InScope reports whether a route name is in the auto-apply scope.
func (p Preferences) InScope(route string) bool {
	for _, s := range p.AutoApplyScope {
		if s == route {
			return true
		}
	}
	return false
}

// Validate checks the record's bounds.
func (p Preferences) Validate() error {
	if err := prefsValidate.Struct(p); err != nil {
		return fmt.Errorf("invalid preferences: %w", err)
	}
	return nil
}

// ApplyRequest returns a copy of p updated per a prefs-route request:
// enable/disable phrases flip the auto-apply bit, and "set auto apply
// threshold to N" updates the threshold (clamped to [0,1]; unparseable
// values keep the current threshold).
func (p Preferences) ApplyRequest(request string) Preferences {
	lower := strings.ToLower(request)
	updated := p
	if strings.Contains(lower, "enable auto apply") || strings.Contains(lower, "enable auto-apply") {
		updated.AutoApplyEnabled = true
	}
	if strings.Contains(lower, "disable auto apply") || strings.Contains(lower, "disable auto-apply") {
		updated.AutoApplyEnabled = false
	}
	if m := thresholdPhraseRe.FindStringSubmatch(lower); m != nil {
		if value, err := strconv.ParseFloat(m[1], 64); err == nil {
			if value < 0 {
				value = 0
			}
			if value > 1 {
				value = 1
			}
			updated.AutoApplyThreshold = value
		}
	}
	return updated
}

// PrefsStore persists the preferences record.
type PrefsStore struct {
	store Store
}

// NewPrefsStore wraps a Store with the fixed preferences slot.
func NewPrefsStore(store Store) *PrefsStore {
	return &PrefsStore{store: store}
}

// Load returns the saved preferences, or the defaults when the record was
// never saved. Absence is never an error. A saved record with a zero
// threshold is normalized back to the default; the zero value means
// "unset", not "auto-apply everything".
func (s *PrefsStore) Load(ctx context.Context) (Preferences, error) {
	prefs := DefaultPreferences()
	found, err := s.store.Load(ctx, PrefsKey, &prefs)
	if err != nil {
		return DefaultPreferences(), err
	}
	if !found {
		return DefaultPreferences(), nil
	}
	if prefs.AutoApplyThreshold == 0 {
		prefs.AutoApplyThreshold = DefaultAutoApplyThreshold
	}
	if prefs.AutoApplyScope == nil {
		prefs.AutoApplyScope = []string{}
	}
	return prefs, nil
}

// Save validates and persists the preferences.
func (s *PrefsStore) Save(ctx context.Context, prefs Preferences) error {
	if err := prefs.Validate(); err != nil {
		return err
	}
	return s.store.Save(ctx, PrefsKey, prefs)
}
