package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/meinzeug-cloud/mrsunkwn/internal/channel"
	"github.com/meinzeug-cloud/mrsunkwn/internal/client"
	"github.com/meinzeug-cloud/mrsunkwn/internal/engine"
	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
	"github.com/meinzeug-cloud/mrsunkwn/internal/poll"
	"github.com/meinzeug-cloud/mrsunkwn/internal/session"
)

// Messages delivered from engine callbacks.
type (
	StateMsg        struct{ State session.Slices }
	ConnMsg         struct{ State channel.State }
	AlertMsg        struct{ Alert event.SafetyAlert }
	InterventionMsg struct{ Intervention event.ParentIntervention }
	LearningMsg     struct{ Event event.LearningEvent }
	LessonsMsg      struct{ Result poll.Result[poll.ListPage] }
)

// Messages produced by commands.
type (
	startedMsg struct{ err error }
	actionMsg  struct {
		what string
		err  error
	}
	replyMsg struct {
		reply *client.TutorReply
		err   error
	}
	lessonsOpenedMsg struct {
		sub *poll.Subscription[poll.ListPage]
		err error
	}
	frameMsg struct{}
)

// Wire points the engine callbacks in d at send, which is normally
// (*tea.Program).Send. Send blocks until the program reads the message, so
// the model never calls the engine from Update directly.
func Wire(d *engine.Deps, send func(tea.Msg)) {
	d.Callbacks = session.Callbacks{
		OnLearningEvent:      func(ev event.LearningEvent) { send(LearningMsg{Event: ev}) },
		OnSafetyAlert:        func(a event.SafetyAlert) { send(AlertMsg{Alert: a}) },
		OnParentIntervention: func(iv event.ParentIntervention) { send(InterventionMsg{Intervention: iv}) },
		OnChange:             func(s session.Slices) { send(StateMsg{State: s}) },
	}
	d.OnStateChange = func(s channel.State) { send(ConnMsg{State: s}) }
	d.OnLessons = func(r poll.Result[poll.ListPage]) { send(LessonsMsg{Result: r}) }
}
