package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/framecap/types"
)

// monitorInterval is how often the monitor polls statistics.
const monitorInterval = 250 * time.Millisecond

// SessionSource is the live session the monitor observes.
// *session.Controller implements it.
type SessionSource interface {
	Statistics() types.Statistics
	Stop()
}

type tickMsg time.Time

type doneMsg struct{}

// MonitorModel is a Bubble Tea model showing live session statistics.
type MonitorModel struct {
	src      SessionSource
	done     <-chan struct{}
	stats    types.Statistics
	started  time.Time
	elapsed  time.Duration
	stopped  bool
	finished bool
	quitting bool
}

// NewMonitorModel creates a monitor over src. done closes when the session ends.
func NewMonitorModel(src SessionSource, done <-chan struct{}) MonitorModel {
	return MonitorModel{
		src:     src,
		done:    done,
		stats:   src.Statistics(),
		started: time.Now(),
	}
}

// Init implements tea.Model.
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(tick(), waitDone(m.done))
}

func tick() tea.Cmd {
	return tea.Tick(monitorInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return doneMsg{}
	}
}

// Update implements tea.Model.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.stats = m.src.Statistics()
		m.elapsed = time.Since(m.started)
		return m, tick()

	case doneMsg:
		m.stats = m.src.Statistics()
		m.finished = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, stopKey):
			if !m.stopped {
				m.stopped = true
				m.src.Stop()
			}
			return m, nil
		case key.Matches(msg, quitKey):
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m MonitorModel) View() string {
	if m.quitting {
		return ""
	}
	s := m.stats

	var b strings.Builder
	b.WriteString(TitleStyle.Render("framecap session"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Phase:"), PhaseStyle(string(s.Phase)).Render(string(s.Phase))))
	target := "none"
	if s.Target > 0 {
		target = fmt.Sprintf("%d", s.Target)
	}
	b.WriteString(field("Target", target))
	b.WriteString(field("Elapsed", m.elapsed.Round(time.Second).String()))
	if s.StopRequested {
		b.WriteString(WarningStyle.Render("STATUS sent, draining"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		tile("Records", s.TotalRecords, okColor),
		tile("Text", s.TextRecords, textColor),
		tile("Binary", s.BinaryRecords, binaryColor),
		tile("Failed", s.FailedRecords, failColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		tile("Bytes In", s.BytesReceived, textColor),
		tile("Pending", s.PendingBytes, dimColor),
		tile("Framing Errors", s.FramingErrors, warnColor),
		tile("Read Stalls", s.ReadStalls, warnColor),
	))

	if s.Target > 0 {
		b.WriteString("\n")
		b.WriteString(progressBar(s.TotalRecords, s.Target, 40))
	}

	help := "s/ctrl+c: send STATUS and drain   q: close monitor"
	if m.finished {
		help = "session ended"
	}
	return b.String() + "\n" + HelpStyle.Render(help)
}

func progressBar(n, target int64, width int) string {
	filled := int(min(n, target) * int64(width) / target)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %d/%d", SuccessStyle.Render(bar), n, target)
}

// RunMonitor shows the live monitor until the session ends or the user
// closes it. Closing the monitor does not stop the session.
func RunMonitor(src SessionSource, done <-chan struct{}) error {
	p := tea.NewProgram(NewMonitorModel(src, done), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
