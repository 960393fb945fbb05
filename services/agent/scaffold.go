// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"unicode"
)

// slugify turns free text into a hyphenated filename slug.
func slugify(text string) string {
	slug := strings.Trim(nonAlnumRe.ReplaceAllString(strings.ToLower(text), "-"), "-")
	if slug == "" {
		return "new-tool"
	}
	return slug
}

// slugifyIdentifier turns free text into a Go-safe identifier slug.
func slugifyIdentifier(text string) string {
	slug := strings.Trim(nonAlnumRe.ReplaceAllString(strings.ToLower(text), "_"), "_")
	if slug == "" {
		return "new_tool"
	}
	if unicode.IsDigit(rune(slug[0])) {
		return "tool_" + slug
	}
	return slug
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// ScaffoldResult reports what the scaffold route created.
type ScaffoldResult struct {
	Slug         string   `json:"slug"`
	Module       string   `json:"module"`
	SpecPath     string   `json:"spec_path"`
	PlanPath     string   `json:"plan_path"`
	FilesCreated []string `json:"files_created"`
}

var toolStubTemplate = template.Must(template.New("stub").Parse(`package tools

import "context"

// {{.FuncName}} is a stub tool. Implementation pending.
func {{.FuncName}}(_ context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{
		"summary":      "Stub tool created. Implementation pending.",
		"result":       map[string]any{"request": args["request"]},
		"next_actions": []string{"Implement tool logic in {{.File}}"},
		"errors":       []string{},
	}, nil
}
`))

const registryMarker = "// scaffold:register"

// scaffoldTool generates a stub tool source file in the tools directory,
// registers it, and writes starter spec and plan documents.
func (a *Agent) scaffoldTool(request string) (ScaffoldResult, error) {
	slug := slugify(request)
	moduleSlug := slugifyIdentifier(request)
	modulePath := filepath.Join(a.paths.ToolsDir, moduleSlug+".go")
	registryPath := filepath.Join(a.paths.ToolsDir, "registry.go")

	if _, err := os.Stat(modulePath); err == nil {
		return ScaffoldResult{}, fmt.Errorf("Tool already exists: %s", modulePath)
	}

	var created []string
	var stub strings.Builder
	err := toolStubTemplate.Execute(&stub, struct {
		FuncName string
		File     string
	}{
		FuncName: exportedName(moduleSlug),
		File:     modulePath,
	})
	if err != nil {
		return ScaffoldResult{}, err
	}
	if err := writeText(modulePath, stub.String()); err != nil {
		return ScaffoldResult{}, err
	}
	created = append(created, modulePath)

	if _, err := os.Stat(registryPath); err != nil {
		return ScaffoldResult{}, fmt.Errorf("Missing registry: %s", registryPath)
	}
	if err := a.updateRegistry(moduleSlug, registryPath); err != nil {
		return ScaffoldResult{}, err
	}
	created = append(created, registryPath)

	today := a.now().Format("2006-01-02")
	specPath := filepath.Join(a.paths.SpecsDir, fmt.Sprintf("%s_%s.md", today, slug))
	planPath := filepath.Join(a.paths.PlansDir, fmt.Sprintf("%s_%s.md", today, slug))
	specContent := fmt.Sprintf(
		"# Tool Spec: %s\n\n## Problem\n%s\n\n## v0 proposal\n- Create a minimal read-only tool.\n- Add an explicit apply/confirm step before any writes.\n",
		request, request,
	)
	planContent := fmt.Sprintf(
		"# Plan: %s\n\n1) Confirm inputs/outputs contract.\n2) Implement read-only path first.\n3) Add tests + apply path with confirmation.\n",
		request,
	)
	if err := writeText(specPath, specContent); err != nil {
		return ScaffoldResult{}, err
	}
	if err := writeText(planPath, planContent); err != nil {
		return ScaffoldResult{}, err
	}
	created = append(created, specPath, planPath)

	return ScaffoldResult{
		Slug:         moduleSlug,
		Module:       modulePath,
		SpecPath:     specPath,
		PlanPath:     planPath,
		FilesCreated: created,
	}, nil
}

// updateRegistry inserts the new tool behind the registry marker line,
// skipping the insert when the slug is already registered.
func (a *Agent) updateRegistry(slug, registryPath string) error {
	raw, err := os.ReadFile(registryPath)
	if err != nil {
		return err
	}
	lines := strings.Split(string(raw), "\n")
	markerIdx := -1
	slugRe := regexp.MustCompile(`\b` + regexp.QuoteMeta(slug) + `\b`)
	for i, line := range lines {
		if strings.TrimSpace(line) == registryMarker {
			markerIdx = i
		}
		if slugRe.MatchString(line) {
			return nil
		}
	}
	if markerIdx < 0 {
		return fmt.Errorf("Registry marker not found in %s", registryPath)
	}
	entry := fmt.Sprintf("\t%q: %s,", slug, exportedName(slug))
	lines = append(lines[:markerIdx], append([]string{entry}, lines[markerIdx:]...)...)
	return os.WriteFile(registryPath, []byte(strings.Join(lines, "\n")), 0o644)
}

// exportedName converts a snake_case slug to an exported Go identifier.
func exportedName(slug string) string {
	parts := strings.Split(slug, "_")
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	if b.Len() == 0 {
		return "NewTool"
	}
	return b.String()
}
