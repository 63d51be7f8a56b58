// Package theme provides the Lip Gloss palette and shared styles for the
// terminal client. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Severity colors.
var (
	ColorLow      = lipgloss.Color("#22c55e")
	ColorMedium   = lipgloss.Color("#eab308")
	ColorHigh     = lipgloss.Color("#d97706")
	ColorCritical = lipgloss.Color("#dc2626")
)

// Connection state colors.
var (
	ColorOpen       = lipgloss.Color("#22c55e")
	ColorConnecting = lipgloss.Color("#d97706")
	ColorClosed     = lipgloss.Color("#6b7280")
)

// Chat colors.
var (
	ColorStudent = lipgloss.Color("#3b82f6")
	ColorTutor   = lipgloss.Color("#a855f7")
	ColorParent  = lipgloss.Color("#f59e0b")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// SeverityColor returns the color for an alert level.
func SeverityColor(level string) lipgloss.Color {
	switch level {
	case "low":
		return ColorLow
	case "medium":
		return ColorMedium
	case "high":
		return ColorHigh
	case "critical":
		return ColorCritical
	default:
		return ColorDefault
	}
}

// DeviceColor returns the color for a device status.
func DeviceColor(status string) lipgloss.Color {
	switch status {
	case "secure":
		return ColorHealthy
	case "warning":
		return ColorWarning
	case "compromised":
		return ColorDanger
	case "offline", "disconnected":
		return ColorClosed
	default:
		return ColorDefault
	}
}

// ConnColor returns the color for a stream connection state name.
func ConnColor(state string) lipgloss.Color {
	switch state {
	case "open":
		return ColorOpen
	case "connecting":
		return ColorConnecting
	default:
		return ColorClosed
	}
}

// ScoreColor returns the color of a 0..100 safety score.
func ScoreColor(score float64) lipgloss.Color {
	switch {
	case score < 40:
		return ColorDanger
	case score < 70:
		return ColorWarning
	default:
		return ColorHealthy
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)

// SeverityGlyph returns a symbol for an alert level.
func SeverityGlyph(level string) string {
	switch level {
	case "low":
		return "·"
	case "medium":
		return "!"
	case "high":
		return "!!"
	case "critical":
		return "✗"
	default:
		return "?"
	}
}
