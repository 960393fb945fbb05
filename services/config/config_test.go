// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, RunnerModeHTTP, cfg.Runner.Mode)
	assert.Equal(t, "http://localhost:8098", cfg.Runner.BaseURL)
	assert.Equal(t, ":8098", cfg.Server.Addr)
	assert.Equal(t, "file", cfg.State.Backend)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(""), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runner:
  mode: exec
  command: /usr/local/bin/mcp_curl.sh
server:
  addr: ":9100"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, RunnerModeExec, cfg.Runner.Mode)
	assert.Equal(t, "/usr/local/bin/mcp_curl.sh", cfg.Runner.Command)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	// Untouched sections keep their defaults.
	assert.Equal(t, Default("").Paths.StateDir, cfg.Paths.StateDir)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9100"
`), 0o644))
	t.Setenv("WISHROUTER_SERVER_ADDR", ":9200")
	t.Setenv("WISHROUTER_STATE_BACKEND", "badger")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9200", cfg.Server.Addr)
	assert.Equal(t, "badger", cfg.State.Backend)
}

func TestLoad_InvalidRunnerMode(t *testing.T) {
	t.Setenv("WISHROUTER_RUNNER_MODE", "carrier-pigeon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoad_ExecModeRequiresCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runner:
  mode: exec
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_UnparseableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runner: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}
