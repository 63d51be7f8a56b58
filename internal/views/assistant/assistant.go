// Package assistant renders the tutor conversation and parent messages.
// Replies are markdown and go through glamour.
package assistant

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/meinzeug-cloud/mrsunkwn/internal/session"
	"github.com/meinzeug-cloud/mrsunkwn/internal/theme"
)

// DefaultStyle is the glamour style used outside tests.
const DefaultStyle = "dark"

// Model renders conversation state.
type Model struct {
	Style   string
	Width   int
	MaxTurn int // exchanges shown, newest last

	renderer *glamour.TermRenderer
	rendered int // width the renderer was built for
}

func New(style string) Model {
	if style == "" {
		style = DefaultStyle
	}
	return Model{Style: style, MaxTurn: 4}
}

// markdown renders s, falling back to the raw text if glamour fails.
func (m *Model) markdown(s string) string {
	width := m.Width - 4
	if width < 20 {
		width = 20
	}
	if m.renderer == nil || m.rendered != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.Style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return s
		}
		m.renderer, m.rendered = r, width
	}
	out, err := m.renderer.Render(s)
	if err != nil {
		return s
	}
	return strings.Trim(out, "\n")
}

// View renders the latest exchanges and, if set, the parent's message.
func (m *Model) View(a session.Assistant, parentMessage string) string {
	var parts []string

	header := theme.StyleHeader.Render("Tutor")
	if a.Initialized {
		header += theme.StyleDimmed.Render("  " + a.Personality)
	} else {
		header += theme.StyleDimmed.Render("  starting...")
	}
	parts = append(parts, header)

	if parentMessage != "" {
		label := lipgloss.NewStyle().Foreground(theme.ColorParent).Bold(true).Render("Parent:")
		parts = append(parts, label+" "+m.markdown(parentMessage))
	}

	history := a.History
	if m.MaxTurn > 0 && len(history) > m.MaxTurn {
		history = history[len(history)-m.MaxTurn:]
	}
	if len(history) == 0 {
		parts = append(parts, theme.StyleDimmed.Render("Press i to ask a question."))
	}
	you := lipgloss.NewStyle().Foreground(theme.ColorStudent).Bold(true).Render("You:")
	tutor := lipgloss.NewStyle().Foreground(theme.ColorTutor).Bold(true).Render("Tutor:")
	for _, ex := range history {
		parts = append(parts, you+" "+ex.User, tutor+" "+m.markdown(ex.AI))
	}

	return theme.StyleBorder.Width(maxInt(m.Width-2, 20)).Render(strings.Join(parts, "\n"))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
