package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/meinzeug-cloud/mrsunkwn/internal/session"
	"github.com/meinzeug-cloud/mrsunkwn/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Conn       string // stream state name
	Subject    string
	Active     bool
	Blocked    bool
	Duration   int
	Device     string
	CPUPercent float64
	MemPercent float64
	Width      int
}

// New creates a status bar model.
func New() Model {
	return Model{Conn: "closed"}
}

// SetState copies the fields the bar shows from a session snapshot.
func (m *Model) SetState(s session.Slices) {
	m.Subject = s.Session.CurrentSubject
	m.Active = s.Session.IsActive
	m.Blocked = s.Session.Blocked
	m.Duration = s.Session.SessionDurationSec
	m.Device = string(s.Monitoring.DeviceStatus)
	m.CPUPercent = s.Monitoring.CPUPercent
	m.MemPercent = s.Monitoring.MemPercent
}

// FormatDuration renders seconds as h:mm:ss or m:ss.
func FormatDuration(sec int) string {
	if sec < 0 {
		sec = 0
	}
	h, m, s := sec/3600, (sec%3600)/60, sec%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch m.Conn {
	case "open":
		connStr = lipgloss.NewStyle().Foreground(theme.ColorOpen).Render("● Live")
	case "connecting":
		connStr = lipgloss.NewStyle().Foreground(theme.ColorConnecting).Render("◌ Connecting...")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorClosed).Render("○ Offline")
	}

	var sessStr string
	switch {
	case m.Blocked:
		sessStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("blocked")
	case m.Active:
		sessStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("learning " + FormatDuration(m.Duration))
	default:
		sessStr = theme.StyleDimmed.Render("paused " + FormatDuration(m.Duration))
	}

	subject := m.Subject
	if subject == "" {
		subject = "-"
	}
	device := lipgloss.NewStyle().Foreground(theme.DeviceColor(m.Device)).Render(m.Device)
	load := theme.StyleDimmed.Render(fmt.Sprintf("cpu %.0f%%  mem %.0f%%", m.CPUPercent, m.MemPercent))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + subject + sep + sessStr + sep + device + " " + load

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
