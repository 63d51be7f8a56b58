// Package gauge draws the safety score as a spring-animated bar.
package gauge

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/meinzeug-cloud/mrsunkwn/internal/theme"
)

// FPS is the animation frame rate.
const FPS = 60

// FrameInterval is the delay between animation frames.
const FrameInterval = time.Second / FPS

const settleEpsilon = 0.05

// Model is the gauge state. Pos chases Target each frame.
type Model struct {
	Label  string
	Max    float64
	Pos    float64
	Vel    float64
	Target float64
	Width  int

	spring harmonica.Spring
}

// New returns a gauge resting at value.
func New(label string, max, value float64) Model {
	return Model{
		Label:  label,
		Max:    max,
		Pos:    value,
		Target: value,
		spring: harmonica.NewSpring(harmonica.FPS(FPS), 6.0, 0.7),
	}
}

// SetTarget moves the resting point. It reports whether an animation is now
// needed.
func (m *Model) SetTarget(v float64) bool {
	m.Target = v
	return !m.Settled()
}

// Step advances one frame and reports whether the gauge is still moving.
func (m *Model) Step() bool {
	m.Pos, m.Vel = m.spring.Update(m.Pos, m.Vel, m.Target)
	if m.Settled() {
		m.Pos, m.Vel = m.Target, 0
		return false
	}
	return true
}

// Settled reports whether the gauge has come to rest.
func (m Model) Settled() bool {
	return math.Abs(m.Pos-m.Target) < settleEpsilon && math.Abs(m.Vel) < settleEpsilon
}

// View renders "label [█████░░░] 72".
func (m Model) View() string {
	width := m.Width
	if width < 10 {
		width = 30
	}
	ratio := 0.0
	if m.Max > 0 {
		ratio = m.Pos / m.Max
	}
	ratio = math.Max(0, math.Min(1, ratio))
	filled := int(math.Round(ratio * float64(width)))

	color := theme.ScoreColor(m.Pos / math.Max(m.Max, 1) * 100)
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
		theme.StyleDimmed.Render(strings.Repeat("░", width-filled))

	return fmt.Sprintf("%s [%s] %3.0f", m.Label, bar, m.Target)
}
