package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/framecap/cli/reader"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		// Nothing to stop in a read-only view; both bindings quit.
		if key.Matches(msg, quitKey) || key.Matches(msg, stopKey) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_metrics":
		content = m.renderStatsMetrics()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsMetrics() string {
	data, ok := m.data.(*reader.MetricsSnapshot)
	if !ok {
		return "Invalid data type for stats_metrics"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Metrics"))
	b.WriteString("\n")
	b.WriteString(field("Session", data.SessionID))
	b.WriteString(field("Source", data.Source))
	b.WriteString(field("Policy", data.Policy))
	b.WriteString(field("Recorded", data.Ts))
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		tile("Text", data.TextRecords, textColor),
		tile("Binary", data.BinaryRecords, binaryColor),
		tile("Persisted", data.RecordsPersisted, okColor),
		tile("Framing Errors", data.FramingErrors, warnColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		tile("Bytes In", data.BytesReceived, textColor),
		tile("Read Stalls", data.ReadStalls, warnColor),
		tile("Write Failures", data.LodeWriteFailure, failColor),
		tile("Overflows", data.OverflowErrors, failColor),
	))

	if len(data.ErrorsByKind) > 0 {
		b.WriteString("\n\n")
		b.WriteString(LabelStyle.Render("Errors by kind:"))
		kinds := make([]string, 0, len(data.ErrorsByKind))
		for k := range data.ErrorsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			b.WriteString(fmt.Sprintf("\n  %s %s", LabelStyle.Render(k), WarningStyle.Render(fmt.Sprintf("%d", data.ErrorsByKind[k]))))
		}
	}

	return b.String()
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	p := tea.NewProgram(NewStatsModel(viewType, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
