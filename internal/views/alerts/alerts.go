// Package alerts lists recent safety alerts, newest first.
package alerts

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
	"github.com/meinzeug-cloud/mrsunkwn/internal/theme"
)

// View renders up to limit alerts.
func View(recent []event.SafetyAlert, limit, width int) string {
	title := theme.StyleHeader.Render("Safety")
	if len(recent) == 0 {
		return title + "\n" + theme.StyleDimmed.Render("  No alerts.")
	}
	if limit <= 0 || limit > len(recent) {
		limit = len(recent)
	}

	lines := []string{title}
	for i := len(recent) - 1; i >= len(recent)-limit; i-- {
		a := recent[i]
		level := string(a.Level)
		style := lipgloss.NewStyle().Foreground(theme.SeverityColor(level))
		text := string(a.Type)
		if a.Description != "" {
			text += ": " + a.Description
		}
		if width > 16 {
			text = truncate.StringWithTail(text, uint(width-12), "...")
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s",
			style.Render(theme.SeverityGlyph(level)),
			style.Width(8).Render(level),
			text))
	}
	return strings.Join(lines, "\n")
}
