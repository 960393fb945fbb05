// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command wishctl routes a free text request to one automation action.
//
// Usage:
//
//	wishctl "show tool requests"
//	wishctl "make the calendar sync tool" --interactive
//	wishctl "change 'Inbox Triage' to 'Inbox Cleanup Assistant'"
//	wishctl "apply that" --execute
//
// Requests run in dry-run mode unless --execute is passed. The output is a
// single JSON envelope on stdout; the exit code is non-zero exactly when
// the envelope carries errors.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wishrouter/services/agent"
	"github.com/AleutianAI/wishrouter/services/config"
	"github.com/AleutianAI/wishrouter/services/decider"
	"github.com/AleutianAI/wishrouter/services/state"
	"github.com/AleutianAI/wishrouter/services/toolcall"
)

var (
	flagConfig       string
	flagDryRun       bool
	flagExecute      bool
	flagScaffold     bool
	flagAutoApply    bool
	flagForce        bool
	flagInteractive  bool
	flagAutoConfirm  bool
	flagAcceptID     string
	flagFromText     string
	flagRequirements string
)

func main() {
	root := &cobra.Command{
		Use:           "wishctl [request...]",
		Short:         "Route a natural language request to one automation action",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}
	root.Flags().StringVar(&flagConfig, "config", "", "Config file path")
	root.Flags().BoolVar(&flagDryRun, "dry-run", false, "Force dry-run mode (the default)")
	root.Flags().BoolVar(&flagExecute, "execute", false, "Allow mutating actions")
	root.Flags().BoolVar(&flagScaffold, "scaffold", false, "Force the scaffold route")
	root.Flags().BoolVar(&flagAutoApply, "auto-apply", false, "Request auto-apply for in-scope actions")
	root.Flags().BoolVar(&flagForce, "force", false, "Override confidence and freshness checks")
	root.Flags().BoolVar(&flagInteractive, "interactive", false, "Confirm fulfilment selections interactively")
	root.Flags().BoolVar(&flagAutoConfirm, "auto-confirm", false, "Skip interactive confirmations")
	root.Flags().StringVar(&flagAcceptID, "accept", "", "Accept a tool request by page id")
	root.Flags().StringVar(&flagFromText, "from", "", "Original request text for --accept")
	root.Flags().StringVar(&flagRequirements, "requirements", "", "Extra requirements for the spec")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	runner := buildRunner(cfg, logger)
	a := agent.New(agent.Config{
		Runner:  runner,
		Decider: decider.NewToolDecider(runner, logger),
		Store:   store,
		Paths: agent.Paths{
			SpecsDir:        cfg.Paths.SpecsDir,
			PlansDir:        cfg.Paths.PlansDir,
			RequirementsDir: cfg.Paths.RequirementsDir,
			ToolsDir:        cfg.Paths.ToolsDir,
			PlaybookPath:    cfg.Paths.PlaybookPath,
			DeployCommand:   cfg.Paths.DeployCommand,
		},
		Prompter: newPrompter(),
		Logger:   logger,
	})

	dryRun := true
	if flagExecute {
		dryRun = false
	}
	if flagDryRun {
		dryRun = true
	}

	envelope := a.Run(cmd.Context(), agent.Options{
		Text:         strings.TrimSpace(strings.Join(args, " ")),
		DryRun:       dryRun,
		Scaffold:     flagScaffold,
		AutoApply:    flagAutoApply,
		Force:        flagForce,
		Interactive:  flagInteractive,
		AutoConfirm:  flagAutoConfirm,
		AcceptID:     flagAcceptID,
		FromText:     strings.TrimSpace(flagFromText),
		Requirements: flagRequirements,
	})

	os.Exit(emitEnvelope(os.Stdout, envelope))
	return nil
}

// emitEnvelope prints the JSON envelope and returns the process exit status.
func emitEnvelope(w io.Writer, env agent.Envelope) int {
	fmt.Fprintln(w, env.JSON())
	return env.ExitCode()
}

// openStore builds the configured state backend. The returned closer is a
// no-op for the file backend.
func openStore(cfg config.Config, logger *slog.Logger) (state.Store, func(), error) {
	switch cfg.State.Backend {
	case "badger":
		db, err := state.OpenBadger(filepath.Join(cfg.Paths.StateDir, "badger"), logger)
		if err != nil {
			return nil, nil, err
		}
		return state.NewBadgerStore(db), func() { db.Close() }, nil
	default:
		if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
			return nil, nil, err
		}
		return state.NewFileStore(cfg.Paths.StateDir), func() {}, nil
	}
}

func buildRunner(cfg config.Config, logger *slog.Logger) toolcall.Runner {
	if cfg.Runner.Mode == config.RunnerModeExec {
		return toolcall.NewExecRunner(cfg.Runner.Command, logger)
	}
	return toolcall.NewHTTPRunner(cfg.Runner.BaseURL, logger)
}
