// Package eventlog keeps what the client saw on the monitoring stream, the
// polls and the student's own actions, and renders it as a filterable
// overlay. Pushed events keep their tag and severity so alerts and parent
// interventions read differently from connection noise.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
	"github.com/meinzeug-cloud/mrsunkwn/internal/theme"
)

// Capacity is how many entries are kept.
const Capacity = 300

const badgeWidth = 9

// Source says where an entry came from.
type Source int

const (
	SourceStream Source = iota // connection state changes
	SourceEvent                // decoded frames
	SourcePoll
	SourceAction // things the student did
	SourceError
)

func (s Source) String() string {
	switch s {
	case SourceStream:
		return "ws"
	case SourceEvent:
		return "evt"
	case SourcePoll:
		return "poll"
	case SourceAction:
		return "act"
	case SourceError:
		return "err"
	}
	return "?"
}

// Filter selects which entries the overlay shows.
type Filter int

const (
	FilterAll Filter = iota
	FilterEvents
	FilterSafety   // safety alerts and parent interventions
	FilterProblems // errors and high or critical alerts
	filterCount
)

func (f Filter) String() string {
	switch f {
	case FilterEvents:
		return "events"
	case FilterSafety:
		return "safety"
	case FilterProblems:
		return "problems"
	}
	return "all"
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	switch f {
	case FilterEvents:
		return e.Source == SourceEvent
	case FilterSafety:
		return e.Tag == event.TagSafetyAlert || e.Tag == event.TagParentIntervention
	case FilterProblems:
		return e.Source == SourceError || e.Level == event.SeverityHigh || e.Level == event.SeverityCritical
	}
	return true
}

// Entry is one line of the log. Tag and Level are set for pushed events.
type Entry struct {
	At      time.Time
	Source  Source
	Tag     event.Tag
	Level   event.Severity
	Summary string
	Detail  string
}

// Model holds the log.
type Model struct {
	Entries []Entry
	Filter  Filter
	Offset  int // lines scrolled up from the newest match

	now func() time.Time
}

func New() Model {
	return Model{now: time.Now}
}

func (m *Model) append(e Entry) {
	if m.now == nil {
		m.now = time.Now
	}
	if e.At.IsZero() {
		e.At = m.now()
	}
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > Capacity {
		m.Entries = m.Entries[len(m.Entries)-Capacity:]
	}
	m.Offset = 0
}

// Logf records a line that is not a pushed event.
func (m *Model) Logf(src Source, format string, args ...interface{}) {
	m.append(Entry{Source: src, Summary: fmt.Sprintf(format, args...)})
}

// Record logs a decoded frame with its tag and severity.
func (m *Model) Record(p event.Payload) {
	m.append(Describe(p))
}

// Describe turns a payload into an entry.
func Describe(p event.Payload) Entry {
	e := Entry{Source: SourceEvent, Tag: p.Tag()}
	switch v := p.(type) {
	case event.SafetyAlert:
		e.Level = v.Level
		e.Summary = string(v.Type)
		e.Detail = joinNonEmpty(v.Description, arrow(v.RecommendedAction))
	case event.ParentIntervention:
		e.Summary = string(v.Action)
		e.Detail = joinNonEmpty(v.Reason, arrow(v.Target))
	case event.LearningEvent:
		e.Summary = string(v.Type)
		if len(v.Data) > 0 {
			e.Detail = string(v.Data)
		}
	case event.MonitoringUpdate:
		e.Summary = string(v.DeviceStatus)
		if e.Summary == "" {
			e.Summary = "reading"
		}
		var parts []string
		if v.CPUPercent != nil {
			parts = append(parts, fmt.Sprintf("cpu %.0f%%", *v.CPUPercent))
		}
		if v.MemPercent != nil {
			parts = append(parts, fmt.Sprintf("mem %.0f%%", *v.MemPercent))
		}
		e.Detail = strings.Join(parts, " ")
	case event.Unknown:
		e.Summary = "unrecognised frame"
	}
	return e
}

func arrow(s string) string {
	if s == "" {
		return ""
	}
	return "→ " + s
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// CycleFilter moves to the next filter and returns to the newest entry.
func (m *Model) CycleFilter() {
	m.Filter = (m.Filter + 1) % filterCount
	m.Offset = 0
}

// Visible returns the entries passing the current filter, oldest first.
func (m Model) Visible() []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if m.Filter.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

func (m *Model) ScrollUp(n int) {
	m.Offset += n
	if max := len(m.Visible()) - 1; m.Offset > max {
		m.Offset = max
	}
	if m.Offset < 0 {
		m.Offset = 0
	}
}

func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// counts returns how many alerts, interventions and errors are held.
func (m Model) counts() (alerts, parent, errs int) {
	for _, e := range m.Entries {
		switch {
		case e.Tag == event.TagSafetyAlert:
			alerts++
		case e.Tag == event.TagParentIntervention:
			parent++
		case e.Source == SourceError:
			errs++
		}
	}
	return
}

// View renders the overlay.
func (m Model) View(width, height int) string {
	innerW := width - 6
	if innerW < 30 {
		innerW = 30
	}
	rows := height - 7
	if rows < 3 {
		rows = 3
	}

	alerts, parent, errs := m.counts()
	title := theme.StyleHeader.Render(" EVENT LOG ") + theme.StyleDimmed.Render(
		fmt.Sprintf(" %d alerts · %d parent · %d errors", alerts, parent, errs))
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  f:filter (%s)  esc:close", m.Filter))

	shown := m.Visible()
	var body string
	if len(shown) == 0 {
		msg := "Nothing recorded yet."
		if len(m.Entries) > 0 {
			msg = fmt.Sprintf("No %s entries.", m.Filter)
		}
		body = theme.StyleDimmed.Render("  " + msg)
	} else {
		end := len(shown) - m.Offset
		start := end - rows
		if start < 0 {
			start = 0
		}
		lines := make([]string, 0, end-start)
		for _, e := range shown[start:end] {
			lines = append(lines, renderEntry(e, innerW))
		}
		if m.Offset > 0 {
			lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  ↓ %d newer", m.Offset)))
		}
		body = strings.Join(lines, "\n")
	}

	return lipgloss.NewStyle().
		Width(innerW+2).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
}

func renderEntry(e Entry, width int) string {
	label, color := badge(e)
	ts := theme.StyleDimmed.Render(e.At.Format("15:04:05"))
	tag := lipgloss.NewStyle().Foreground(color).Width(badgeWidth).Render(label)

	text := e.Summary
	switch e.Tag {
	case event.TagSafetyAlert:
		text = theme.SeverityGlyph(string(e.Level)) + " " + lipgloss.NewStyle().Bold(true).Render(text)
	case event.TagParentIntervention:
		text = lipgloss.NewStyle().Bold(true).Render(text)
	}
	if e.Detail != "" {
		text += " " + theme.StyleDimmed.Render(e.Detail)
	}
	// clock, badge and two separators
	if avail := width - 8 - badgeWidth - 2; avail > 3 {
		text = truncate.StringWithTail(text, uint(avail), "...")
	}
	return ts + " " + tag + " " + text
}

func badge(e Entry) (string, lipgloss.Color) {
	switch e.Tag {
	case event.TagSafetyAlert:
		return string(e.Level), theme.SeverityColor(string(e.Level))
	case event.TagParentIntervention:
		return "parent", theme.ColorParent
	case event.TagLearningEvent:
		return "learn", theme.ColorTutor
	case event.TagMonitoringUpdate:
		return "device", theme.DeviceColor(e.Summary)
	}
	switch e.Source {
	case SourceStream:
		return e.Source.String(), theme.ConnColor(e.Summary)
	case SourcePoll:
		return e.Source.String(), theme.ColorStudent
	case SourceAction:
		return e.Source.String(), theme.ColorTutor
	case SourceError:
		return e.Source.String(), theme.ColorDanger
	}
	return e.Source.String(), theme.ColorDimmed
}
