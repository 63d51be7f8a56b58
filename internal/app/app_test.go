package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/meinzeug-cloud/mrsunkwn/internal/channel"
	"github.com/meinzeug-cloud/mrsunkwn/internal/client"
	"github.com/meinzeug-cloud/mrsunkwn/internal/poll"
	"github.com/meinzeug-cloud/mrsunkwn/internal/session"
)

type fakeEngine struct {
	mu      sync.Mutex
	calls   []string
	asked   string
	lessons error
}

func (f *fakeEngine) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeEngine) Start(context.Context) error { f.record("start"); return nil }
func (f *fakeEngine) Snapshot() session.Slices    { return session.Initial("math") }
func (f *fakeEngine) StartLearning(_ context.Context, subject string) error {
	f.record("learn " + subject)
	return nil
}
func (f *fakeEngine) PauseLearning(_ context.Context, reason string) error {
	f.record("pause " + reason)
	return nil
}
func (f *fakeEngine) ResumeLearning() error { return errors.New("blocked") }
func (f *fakeEngine) Ask(_ context.Context, msg string) (*client.TutorReply, error) {
	f.asked = msg
	return &client.TutorReply{Message: "Why?", Confidence: 0.9}, nil
}
func (f *fakeEngine) Acknowledge() { f.record("ack") }
func (f *fakeEngine) Lessons(poll.ListQuery) (*poll.Subscription[poll.ListPage], error) {
	return nil, f.lessons
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sized(eng Engine) Model {
	m := New(eng, Options{GlamourStyle: "notty"})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func TestInitializingView(t *testing.T) {
	m := New(nil, Options{})
	if v := m.View(); v != "Initializing..." {
		t.Errorf("View() = %q before the first resize", v)
	}
}

func TestDisconnectBanner(t *testing.T) {
	m := sized(&fakeEngine{})
	if !strings.Contains(m.View(), "DISCONNECTED") {
		t.Error("expected disconnect banner while the stream is closed")
	}

	next, _ := m.Update(ConnMsg{State: channel.Open})
	m = next.(Model)
	v := m.View()
	if strings.Contains(v, "DISCONNECTED") {
		t.Error("banner should disappear once the stream is open")
	}
	if !strings.Contains(v, "Live") {
		t.Errorf("status bar should show the live stream:\n%s", v)
	}
}

func TestInitStartsEngine(t *testing.T) {
	eng := &fakeEngine{}
	m := New(eng, Options{})
	msg := m.Init()()
	if sm, ok := msg.(startedMsg); !ok || sm.err != nil {
		t.Fatalf("Init cmd returned %#v", msg)
	}
	if len(eng.calls) != 1 || eng.calls[0] != "start" {
		t.Errorf("calls = %v", eng.calls)
	}
}

func TestActionKeysRunAsCommands(t *testing.T) {
	tests := []struct {
		key  string
		call string
	}{
		{"s", "learn math"},
		{"p", "pause " + StudentPauseReason},
		{"a", "ack"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			eng := &fakeEngine{}
			m := sized(eng)
			_, cmd := m.Update(runes(tt.key))
			if cmd == nil {
				t.Fatal("expected a command")
			}
			if len(eng.calls) != 0 {
				t.Fatal("engine called inside Update")
			}
			if am, ok := cmd().(actionMsg); !ok || am.err != nil {
				t.Fatalf("unexpected result %#v", am)
			}
			if len(eng.calls) != 1 || eng.calls[0] != tt.call {
				t.Errorf("calls = %v, want [%s]", eng.calls, tt.call)
			}
		})
	}
}

func TestActionErrorShown(t *testing.T) {
	m := sized(&fakeEngine{})
	_, cmd := m.Update(runes("r"))
	next, _ := m.Update(cmd())
	m = next.(Model)
	if !strings.Contains(m.View(), "resume: blocked") {
		t.Errorf("error not rendered:\n%s", m.View())
	}
}

func TestAskFlow(t *testing.T) {
	eng := &fakeEngine{}
	m := sized(eng)

	next, _ := m.Update(runes("i"))
	m = next.(Model)
	if !m.asking {
		t.Fatal("i should open the input")
	}
	// Keys go to the input while asking.
	for _, r := range "hi" {
		next, _ = m.Update(runes(string(r)))
		m = next.(Model)
	}
	if len(eng.calls) != 0 {
		t.Fatalf("typing triggered actions: %v", eng.calls)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if m.asking {
		t.Error("enter should close the input")
	}
	if cmd == nil {
		t.Fatal("enter should send the question")
	}
	rm, ok := cmd().(replyMsg)
	if !ok || rm.err != nil || rm.reply.Confidence != 0.9 {
		t.Fatalf("reply = %#v", rm)
	}
	if eng.asked != "hi" {
		t.Errorf("asked %q, want hi", eng.asked)
	}
}

func TestAskEscape(t *testing.T) {
	eng := &fakeEngine{}
	m := sized(eng)
	next, _ := m.Update(runes("i"))
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	if m.asking || cmd != nil {
		t.Error("esc should cancel without sending")
	}
}

func TestStateAnimatesGauge(t *testing.T) {
	m := sized(&fakeEngine{})
	s := session.Initial("math")
	s.Session.SafetyScore = 40

	next, cmd := m.Update(StateMsg{State: s})
	m = next.(Model)
	if cmd == nil || !m.animating {
		t.Fatal("score change should start the gauge animation")
	}

	// A second update while animating does not start another frame loop.
	s.Session.SafetyScore = 30
	_, cmd = m.Update(StateMsg{State: s})
	if cmd != nil {
		t.Error("expected no extra frame command while animating")
	}

	for i := 0; i < 10000 && m.animating; i++ {
		next, _ = m.Update(frameMsg{})
		m = next.(Model)
	}
	if m.animating || !m.gauge.Settled() {
		t.Error("gauge never settled")
	}
}

func TestSessionLine(t *testing.T) {
	m := sized(&fakeEngine{})
	s := session.Initial("math")
	s.Session.PendingInterventions = 2
	s.Session.Blocked = true
	s.Session.BlockReason = "Bedtime"
	next, _ := m.Update(StateMsg{State: s})
	v := next.(Model).View()
	for _, want := range []string{"2 new from parent", "Bedtime"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestOverlays(t *testing.T) {
	eng := &fakeEngine{lessons: errors.New("not started")}
	m := sized(eng)

	next, _ := m.Update(runes("d"))
	m = next.(Model)
	if m.overlay != OverlayLog {
		t.Fatal("d should open the event log")
	}
	if !strings.Contains(m.View(), "EVENT LOG") {
		t.Error("event log overlay not rendered")
	}
	next, _ = m.Update(runes("f"))
	m = next.(Model)
	if !strings.Contains(m.View(), "filter (events)") {
		t.Error("f should cycle the log filter")
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	if m.overlay != OverlayNone {
		t.Fatal("esc should close the overlay")
	}

	next, cmd := m.Update(runes("L"))
	m = next.(Model)
	if m.overlay != OverlayLessons || cmd == nil {
		t.Fatal("L should open the lesson list")
	}
	next, _ = m.Update(lessonsOpenedMsg{err: eng.lessons})
	m = next.(Model)
	if m.overlay != OverlayNone || m.lastErr != "not started" {
		t.Errorf("failed open should close the overlay, got %v %q", m.overlay, m.lastErr)
	}
}
