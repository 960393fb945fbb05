// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/wishrouter/services/agent"
)

var infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

// newPrompter picks the terminal prompter on a TTY and a line-based
// fallback otherwise, so piped invocations never hang on a form.
func newPrompter() agent.Prompter {
	if isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()) {
		return &ttyPrompter{}
	}
	return &linePrompter{reader: bufio.NewReader(os.Stdin)}
}

// ttyPrompter renders interactive forms with huh.
type ttyPrompter struct{}

func (p *ttyPrompter) Confirm(prompt string, defaultYes bool) (bool, error) {
	answer := defaultYes
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(strings.TrimSpace(prompt)).Value(&answer),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return answer, nil
}

func (p *ttyPrompter) Refine(prompt string) (string, error) {
	var answer string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title(strings.TrimSpace(prompt)).Value(&answer),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return answer, nil
}

func (p *ttyPrompter) Input(prompt string) (string, error) {
	return p.Refine(prompt)
}

func (p *ttyPrompter) Show(text string) {
	fmt.Fprintln(os.Stderr, infoStyle.Render(text))
}

// linePrompter reads plain lines from stdin for non-TTY invocations.
type linePrompter struct {
	reader *bufio.Reader
}

func (p *linePrompter) Confirm(prompt string, defaultYes bool) (bool, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	case "":
		return defaultYes, nil
	default:
		return false, nil
	}
}

func (p *linePrompter) Refine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *linePrompter) Input(prompt string) (string, error) {
	return p.Refine(prompt)
}

func (p *linePrompter) Show(text string) {
	fmt.Fprintln(os.Stderr, text)
}
