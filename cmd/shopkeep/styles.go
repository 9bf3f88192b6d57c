// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/shopkeep/lib/livestock"
)

// styles holds the text styles for human-readable output. The zero
// value renders plain text.
type styles struct {
	heading lipgloss.Style
	label   lipgloss.Style
	faint   lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
}

// newStyles returns colored styles for a terminal and plain ones
// otherwise. Colors are ANSI 256-color codes.
func newStyles(terminal bool) styles {
	if !terminal {
		return styles{}
	}
	return styles{
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		faint:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		good:    lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func (s styles) state(state livestock.State) string {
	switch state {
	case livestock.StateActive:
		return s.good.Render(string(state))
	case livestock.StateLost:
		return s.bad.Render(string(state))
	default:
		return s.warn.Render(string(state))
	}
}

func (s styles) result(result livestock.TickResult) string {
	switch result {
	case "":
		return s.faint.Render("-")
	case livestock.TickFailed:
		return s.bad.Render(string(result))
	case livestock.TickSkipped:
		return s.warn.Render(string(result))
	default:
		return s.good.Render(string(result))
	}
}

func (s styles) toggle(on bool) string {
	if on {
		return s.warn.Render("on")
	}
	return s.good.Render("off")
}
