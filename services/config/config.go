// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the shared configuration for the CLI and the tool
// server. Values come from an optional YAML file, overridden by
// environment variables, validated before use.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Runner modes accepted in RunnerConfig.Mode.
const (
	RunnerModeHTTP = "http"
	RunnerModeExec = "exec"
)

// RunnerConfig selects how tool calls leave the process.
type RunnerConfig struct {
	// Mode is "http" (POST to the tool server) or "exec" (spawn Command).
	Mode string `yaml:"mode" validate:"oneof=http exec"`

	// BaseURL is the tool server root for http mode.
	BaseURL string `yaml:"base_url" validate:"required_if=Mode http,omitempty,url"`

	// Command is the bridge binary for exec mode.
	Command string `yaml:"command" validate:"required_if=Mode exec"`
}

// ServerConfig configures the tool server binary.
type ServerConfig struct {
	Addr         string `yaml:"addr" validate:"required"`
	SnapshotPath string `yaml:"snapshot_path" validate:"required"`
	Debug        bool   `yaml:"debug"`
}

// PathsConfig locates state and artifact directories.
type PathsConfig struct {
	StateDir        string `yaml:"state_dir" validate:"required"`
	SpecsDir        string `yaml:"specs_dir" validate:"required"`
	PlansDir        string `yaml:"plans_dir" validate:"required"`
	RequirementsDir string `yaml:"requirements_dir" validate:"required"`
	ToolsDir        string `yaml:"tools_dir" validate:"required"`
	PlaybookPath    string `yaml:"playbook_path"`
	DeployCommand   string `yaml:"deploy_command"`
}

// StateConfig selects the state backend.
type StateConfig struct {
	// Backend is "file" or "badger".
	Backend string `yaml:"backend" validate:"oneof=file badger"`
}

// Config is the root configuration.
type Config struct {
	Runner RunnerConfig `yaml:"runner" validate:"required"`
	Server ServerConfig `yaml:"server" validate:"required"`
	Paths  PathsConfig  `yaml:"paths" validate:"required"`
	State  StateConfig  `yaml:"state" validate:"required"`
}

var validate = validator.New()

// Default returns the configuration used when no file exists. Everything
// lives under baseDir; empty means the current directory.
func Default(baseDir string) Config {
	if baseDir == "" {
		baseDir = "."
	}
	return Config{
		Runner: RunnerConfig{
			Mode:    RunnerModeHTTP,
			BaseURL: "http://localhost:8098",
		},
		Server: ServerConfig{
			Addr:         ":8098",
			SnapshotPath: filepath.Join(baseDir, "memory", "tool_requests.json"),
		},
		Paths: PathsConfig{
			StateDir:        filepath.Join(baseDir, "memory", "state"),
			SpecsDir:        filepath.Join(baseDir, "memory", "specs"),
			PlansDir:        filepath.Join(baseDir, "memory", "plans"),
			RequirementsDir: filepath.Join(baseDir, "memory", "requirements"),
			ToolsDir:        filepath.Join(baseDir, "services", "toolserver", "tools"),
			PlaybookPath:    filepath.Join(baseDir, "docs", "AGENT_PLAYBOOK.md"),
		},
		State: StateConfig{Backend: "file"},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file is absent, then applies environment overrides and validates.
//
// # Inputs
//
//   - path: YAML config file. Empty means defaults plus env only.
//
// # Outputs
//
//   - Config: Validated configuration.
//   - error: Unreadable or invalid file, or failed validation.
func Load(path string) (Config, error) {
	cfg := Default("")
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv layers WISHROUTER_* environment variables over the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WISHROUTER_RUNNER_MODE"); v != "" {
		cfg.Runner.Mode = v
	}
	if v := os.Getenv("WISHROUTER_RUNNER_BASE_URL"); v != "" {
		cfg.Runner.BaseURL = v
	}
	if v := os.Getenv("WISHROUTER_RUNNER_COMMAND"); v != "" {
		cfg.Runner.Command = v
	}
	if v := os.Getenv("WISHROUTER_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WISHROUTER_SNAPSHOT_PATH"); v != "" {
		cfg.Server.SnapshotPath = v
	}
	if v := os.Getenv("WISHROUTER_STATE_DIR"); v != "" {
		cfg.Paths.StateDir = v
	}
	if v := os.Getenv("WISHROUTER_STATE_BACKEND"); v != "" {
		cfg.State.Backend = v
	}
}
