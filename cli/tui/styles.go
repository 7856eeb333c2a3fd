// Package tui provides Bubble Tea views for the framecap CLI.
//
// TUI is opt-in (--tui). The stats view renders the same payload as the
// json/table/yaml output; the run monitor polls live session statistics
// and never changes session behavior except through Stop.
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette. Text and binary records get their own hues so the two
// record kinds read apart at a glance.
var (
	textColor   = lipgloss.Color("#3B82F6")
	binaryColor = lipgloss.Color("#7C3AED")
	okColor     = lipgloss.Color("#10B981")
	warnColor   = lipgloss.Color("#F59E0B")
	failColor   = lipgloss.Color("#EF4444")
	dimColor    = lipgloss.Color("#6B7280")
	plainColor  = lipgloss.Color("#FFFFFF")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(binaryColor).MarginBottom(1)
	LabelStyle = lipgloss.NewStyle().Foreground(dimColor).Width(16)
	ValueStyle = lipgloss.NewStyle().Foreground(plainColor)
	HelpStyle  = lipgloss.NewStyle().Foreground(dimColor).MarginTop(1)

	SuccessStyle = lipgloss.NewStyle().Foreground(okColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warnColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(failColor)

	tileStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	tileLabelStyle = lipgloss.NewStyle().Foreground(dimColor).Align(lipgloss.Center)
	tileValueStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
)

// field renders one "Label: value" line.
func field(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value) + "\n"
}

// tile renders a bordered counter.
func tile(label string, value int64, color lipgloss.Color) string {
	return tileStyle.BorderForeground(color).Render(lipgloss.JoinVertical(lipgloss.Center,
		tileValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value)),
		tileLabelStyle.Render(label),
	))
}

// PhaseStyle colors a session phase or outcome: green for progress,
// amber for transitional or partial, red for failures.
func PhaseStyle(state string) lipgloss.Style {
	switch state {
	case "collecting", "completed":
		return SuccessStyle
	case "connecting", "authenticating", "stopping", "draining", "incomplete", "drain_incomplete", "canceled":
		return WarningStyle
	case "transport_error", "storage_failure", "protocol_overflow":
		return ErrorStyle
	default:
		return ValueStyle
	}
}
