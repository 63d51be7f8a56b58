package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/meinzeug-cloud/mrsunkwn/internal/channel"
	"github.com/meinzeug-cloud/mrsunkwn/internal/client"
	"github.com/meinzeug-cloud/mrsunkwn/internal/engine"
	"github.com/meinzeug-cloud/mrsunkwn/internal/poll"
	"github.com/meinzeug-cloud/mrsunkwn/internal/session"
	"github.com/meinzeug-cloud/mrsunkwn/internal/theme"
	"github.com/meinzeug-cloud/mrsunkwn/internal/views/alerts"
	"github.com/meinzeug-cloud/mrsunkwn/internal/views/assistant"
	"github.com/meinzeug-cloud/mrsunkwn/internal/views/eventlog"
	"github.com/meinzeug-cloud/mrsunkwn/internal/views/gauge"
	"github.com/meinzeug-cloud/mrsunkwn/internal/views/lessons"
	"github.com/meinzeug-cloud/mrsunkwn/internal/views/status"
)

// StudentPauseReason is sent when the student pauses from the keyboard.
const StudentPauseReason = "Paused by student"

// Engine is what the model drives. *engine.Engine implements it.
type Engine interface {
	Start(ctx context.Context) error
	Snapshot() session.Slices
	StartLearning(ctx context.Context, subject string) error
	PauseLearning(ctx context.Context, reason string) error
	ResumeLearning() error
	Ask(ctx context.Context, message string) (*client.TutorReply, error)
	Acknowledge()
	Lessons(q poll.ListQuery) (*poll.Subscription[poll.ListPage], error)
}

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayLessons
	OverlayLog
)

// Options tweaks the model.
type Options struct {
	// GlamourStyle is the markdown style for tutor replies.
	GlamourStyle string
}

// Model is the root Bubble Tea model.
type Model struct {
	eng    Engine
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	state session.Slices
	conn  channel.State

	overlay Overlay
	asking  bool
	lastErr string

	animating bool

	statusBar  status.Model
	gauge      gauge.Model
	assistant  assistant.Model
	lessons    lessons.Model
	lessonsSub *poll.Subscription[poll.ListPage]
	log        eventlog.Model
	input      textinput.Model
}

// New creates the root model. The engine is started by Init.
func New(eng Engine, opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())
	in := textinput.New()
	in.Placeholder = "Ask the tutor..."
	in.CharLimit = 500

	state := session.Initial("")
	if eng != nil {
		state = eng.Snapshot()
	}
	sb := status.New()
	sb.SetState(state)

	return Model{
		eng:       eng,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		state:     state,
		conn:      channel.Closed,
		statusBar: sb,
		gauge:     gauge.New("Safety", session.MaxSafetyScore, float64(state.Session.SafetyScore)),
		assistant: assistant.New(opts.GlamourStyle),
		lessons:   lessons.New(state.Session.CurrentSubject),
		log:       eventlog.New(),
		input:     in,
	}
}

// Init starts the engine.
func (m Model) Init() tea.Cmd {
	eng, ctx := m.eng, m.ctx
	return func() tea.Msg {
		return startedMsg{err: eng.Start(ctx)}
	}
}

func frameCmd() tea.Cmd {
	return tea.Tick(gauge.FrameInterval, func(time.Time) tea.Msg { return frameMsg{} })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.gauge.Width = msg.Width / 3
		m.assistant.Width = msg.Width
		m.lessons.Width = msg.Width
		m.input.Width = msg.Width - 8
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case startedMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
			m.log.Logf(eventlog.SourceError, "start: %v", msg.err)
			return m, nil
		}
		m.log.Logf(eventlog.SourceAction, "engine started")
		return m, nil

	case StateMsg:
		m.state = msg.State
		m.statusBar.SetState(msg.State)
		if m.gauge.SetTarget(float64(msg.State.Session.SafetyScore)) && !m.animating {
			m.animating = true
			return m, frameCmd()
		}
		return m, nil

	case frameMsg:
		if m.gauge.Step() {
			return m, frameCmd()
		}
		m.animating = false
		return m, nil

	case ConnMsg:
		m.conn = msg.State
		m.statusBar.Conn = msg.State.String()
		m.log.Logf(eventlog.SourceStream, "%s", msg.State)
		return m, nil

	case AlertMsg:
		m.log.Record(msg.Alert)
		return m, nil

	case InterventionMsg:
		m.log.Record(msg.Intervention)
		return m, nil

	case LearningMsg:
		m.log.Record(msg.Event)
		return m, nil

	case LessonsMsg:
		m.lessons.Result = msg.Result
		if msg.Result.Err != nil {
			m.log.Logf(eventlog.SourcePoll, "lessons: %v", msg.Result.Err)
		}
		return m, nil

	case lessonsOpenedMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
			m.overlay = OverlayNone
			return m, nil
		}
		m.lessonsSub = msg.sub
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.what, msg.err)
			m.log.Logf(eventlog.SourceError, "%s", m.lastErr)
			return m, nil
		}
		m.lastErr = ""
		m.log.Logf(eventlog.SourceAction, "%s", msg.what)
		return m, nil

	case replyMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
			m.log.Logf(eventlog.SourceError, "%s", m.lastErr)
			return m, nil
		}
		m.lastErr = ""
		m.log.Logf(eventlog.SourceAction, "tutor replied (confidence %.2f)", msg.reply.Confidence)
		return m, nil

	case spinner.TickMsg:
		if m.overlay != OverlayLessons {
			return m, nil
		}
		var cmd tea.Cmd
		m.lessons, cmd = m.lessons.Update(msg)
		return m, cmd
	}

	if m.asking {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// action runs fn off the event loop; engine callbacks feed back through
// Send, which needs the loop free.
func action(what string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{what: what, err: fn()}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.asking {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.asking = false
			m.input.Blur()
			m.input.Reset()
			return m, nil
		case key.Matches(msg, m.keys.Enter):
			text := m.input.Value()
			m.asking = false
			m.input.Blur()
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			eng, ctx := m.eng, m.ctx
			return m, func() tea.Msg {
				reply, err := eng.Ask(ctx, text)
				return replyMsg{reply: reply, err: err}
			}
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	if m.overlay != OverlayNone {
		return m.handleOverlayKey(msg)
	}

	eng, ctx := m.eng, m.ctx
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Start):
		subject := m.state.Session.CurrentSubject
		return m, action("start "+subject, func() error { return eng.StartLearning(ctx, subject) })

	case key.Matches(msg, m.keys.Pause):
		return m, action("pause", func() error { return eng.PauseLearning(ctx, StudentPauseReason) })

	case key.Matches(msg, m.keys.Resume):
		return m, action("resume", eng.ResumeLearning)

	case key.Matches(msg, m.keys.Acknowledge):
		return m, action("acknowledge", func() error { eng.Acknowledge(); return nil })

	case key.Matches(msg, m.keys.Ask):
		m.asking = true
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Lessons):
		m.overlay = OverlayLessons
		if m.lessonsSub != nil {
			return m, m.lessons.Spinner.Tick
		}
		q := m.lessons.Query
		return m, tea.Batch(m.lessons.Spinner.Tick, func() tea.Msg {
			sub, err := eng.Lessons(q)
			return lessonsOpenedMsg{sub: sub, err: err}
		})

	case key.Matches(msg, m.keys.Log):
		m.overlay = OverlayLog
		return m, nil
	}
	return m, nil
}

func (m Model) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Escape) {
		m.overlay = OverlayNone
		return m, nil
	}

	switch m.overlay {
	case OverlayLog:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.log.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.log.ScrollDown(1)
		case key.Matches(msg, m.keys.Filter):
			m.log.CycleFilter()
		}
	case OverlayLessons:
		changed := false
		switch {
		case key.Matches(msg, m.keys.NextPage):
			changed = m.lessons.NextPage()
		case key.Matches(msg, m.keys.PrevPage):
			changed = m.lessons.PrevPage()
		}
		if changed && m.lessonsSub != nil {
			sub, ep := m.lessonsSub, m.lessons.Query.Endpoint(engine.LessonsPath)
			return m, func() tea.Msg {
				sub.SetEndpoint(ep)
				return nil
			}
		}
	}
	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	switch m.overlay {
	case OverlayLessons:
		return m.lessons.View()
	case OverlayLog:
		return m.log.View(m.width, m.height)
	}

	sections := []string{m.statusBar.View()}
	if m.conn != channel.Open {
		banner := lipgloss.NewStyle().Foreground(theme.ColorConnecting).Bold(true).
			Render("  DISCONNECTED  Reconnecting to the monitoring stream...")
		sections = append(sections, banner)
	}

	sections = append(sections, "  "+m.gauge.View(), m.sessionLine())
	sections = append(sections, alerts.View(m.state.Monitoring.RecentEvents, 5, m.width))
	sections = append(sections, m.assistant.View(m.state.Assistant, m.state.Session.ParentMessage))

	if m.asking {
		sections = append(sections, "  "+m.input.View())
	}
	if m.lastErr != "" {
		sections = append(sections, theme.StyleError.Render("  "+m.lastErr))
	}
	sections = append(sections, theme.StyleDimmed.Render(
		"  s:start  p:pause  r:resume  i:ask  a:ack  L:lessons  d:log  q:quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) sessionLine() string {
	s := m.state.Session
	line := fmt.Sprintf("  %d tutor questions", s.InteractionCount)
	if s.PendingInterventions > 0 {
		line += lipgloss.NewStyle().Foreground(theme.ColorParent).
			Render(fmt.Sprintf("  %d new from parent (a to acknowledge)", s.PendingInterventions))
	}
	if s.Blocked {
		reason := s.BlockReason
		if reason == "" {
			reason = "blocked by parent"
		}
		line += theme.StyleError.Render("  " + reason)
	}
	return line
}
