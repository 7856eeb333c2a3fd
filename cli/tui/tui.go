package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
)

var (
	quitKey = key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit"))
	// stopKey ends collection early: the session sends STATUS and drains.
	stopKey = key.NewBinding(key.WithKeys("s", "ctrl+c"), key.WithHelp("s", "send STATUS and drain"))
)

// statsViews are the read-only views with an interactive rendering. The
// run monitor is not listed; run starts it directly.
var statsViews = []string{"stats_metrics"}

// Run shows data in the interactive view for viewType.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	return RunStatsTUI(viewType, data)
}

// IsTUISupported reports whether viewType has an interactive rendering.
func IsTUISupported(viewType string) bool {
	return slices.Contains(statsViews, viewType)
}

// SupportedTUIViews lists the views accepted by Run.
func SupportedTUIViews() []string {
	return slices.Clone(statsViews)
}
