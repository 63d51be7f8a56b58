package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
)

const (
	ReasonCriticalAlert = "Critical safety alert detected"
	ReasonParentPause   = "Parent intervention: paused"
)

// Callbacks are invoked synchronously, once per transition, in the order the
// transitions were applied. They must not call back into the Store.
type Callbacks struct {
	OnLearningEvent      func(event.LearningEvent)
	OnSafetyAlert        func(event.SafetyAlert)
	OnParentIntervention func(event.ParentIntervention)
	// OnChange receives a copy of the state after every transition.
	OnChange func(Slices)
}

// Options configures a Store.
type Options struct {
	UserID             string
	Subject            string
	RecentEventsWindow int
	HistoryWindow      int
	Callbacks          Callbacks
	Now                func() time.Time
}

// Store owns the session state. Every change goes through a merge function.
type Store struct {
	opts Options

	emitMu sync.Mutex // held across a transition and its callbacks
	mu     sync.Mutex
	state  Slices
}

func NewStore(opts Options) *Store {
	if opts.RecentEventsWindow <= 0 {
		opts.RecentEventsWindow = DefaultRecentEventsWindow
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		opts:  opts,
		state: Initial(opts.Subject),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Slices {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// transition replaces the state with fn's result, then runs the returned
// effects and OnChange outside the state lock.
func (s *Store) transition(fn func(prior Slices) (Slices, []func())) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	next, effects := fn(s.state)
	s.state = next
	snap := next.Clone()
	s.mu.Unlock()

	for _, e := range effects {
		e()
	}
	if s.opts.Callbacks.OnChange != nil {
		s.opts.Callbacks.OnChange(snap)
	}
}

// Apply merges one pushed event.
func (s *Store) Apply(ev event.Event) {
	at := ev.ReceivedAt
	if at.IsZero() {
		at = s.opts.Now()
	}
	cb := s.opts.Callbacks

	switch p := ev.Payload.(type) {
	case event.SafetyAlert:
		s.transition(func(prior Slices) (Slices, []func()) {
			next := MergeSafetyAlert(prior, p, at, s.opts.RecentEventsWindow)
			var effects []func()
			if cb.OnSafetyAlert != nil {
				effects = append(effects, func() { cb.OnSafetyAlert(p) })
			}
			if p.Level == event.SeverityCritical {
				effects = append(effects, s.audit(event.LearningPause, map[string]string{"reason": ReasonCriticalAlert}, at))
			}
			return next, effects
		})
	case event.ParentIntervention:
		s.transition(func(prior Slices) (Slices, []func()) {
			next := prior.Clone()
			next.Session = MergeIntervention(prior.Session, p)
			var effects []func()
			if p.Action == event.ActionPause {
				effects = append(effects, s.audit(event.LearningPause, map[string]string{"reason": ReasonParentPause}, at))
			}
			if cb.OnParentIntervention != nil {
				effects = append(effects, func() { cb.OnParentIntervention(p) })
			}
			return next, effects
		})
	case event.LearningEvent:
		// Audit records from the server change nothing locally.
		s.emitMu.Lock()
		defer s.emitMu.Unlock()
		if cb.OnLearningEvent != nil {
			cb.OnLearningEvent(p)
		}
	case event.MonitoringUpdate:
		s.transition(func(prior Slices) (Slices, []func()) {
			next := prior.Clone()
			next.Monitoring = MergeMonitoringUpdate(prior.Monitoring, p, at)
			return next, nil
		})
	}
}

// ConnectionChanged records whether the event stream is currently open.
func (s *Store) ConnectionChanged(connected bool) {
	s.transition(func(prior Slices) (Slices, []func()) {
		next := prior.Clone()
		next.Monitoring = MergeConnection(prior.Monitoring, connected)
		return next, nil
	})
}

// StartSession records a session started on the server.
func (s *Store) StartSession(subject, sessionID string) {
	at := s.opts.Now()
	s.transition(func(prior Slices) (Slices, []func()) {
		next := prior.Clone()
		next.Session = StartSession(prior.Session, subject, sessionID)
		return next, []func(){s.audit(event.LearningStart, map[string]string{"subject": subject, "sessionId": sessionID}, at)}
	})
}

// PauseSession records a pause with reason.
func (s *Store) PauseSession(reason string) {
	at := s.opts.Now()
	s.transition(func(prior Slices) (Slices, []func()) {
		next := prior.Clone()
		next.Session = PauseSession(prior.Session)
		return next, []func(){s.audit(event.LearningPause, map[string]string{"reason": reason}, at)}
	})
}

// ResumeSession restarts the session clock.
func (s *Store) ResumeSession() {
	at := s.opts.Now()
	s.transition(func(prior Slices) (Slices, []func()) {
		next := prior.Clone()
		next.Session = ResumeSession(prior.Session)
		return next, []func(){s.audit(event.LearningResume, nil, at)}
	})
}

// Tick advances the session clock. It is a no-op while paused.
func (s *Store) Tick(seconds int) {
	s.mu.Lock()
	active := s.state.Session.IsActive
	s.mu.Unlock()
	if !active {
		return
	}
	s.transition(func(prior Slices) (Slices, []func()) {
		next := prior.Clone()
		next.Session = Tick(prior.Session, seconds)
		return next, nil
	})
}

// RecordInteraction stores one exchange with the assistant.
func (s *Store) RecordInteraction(message, reply string, confidence float64) {
	at := s.opts.Now()
	ex := Exchange{User: message, AI: reply, At: at}
	s.transition(func(prior Slices) (Slices, []func()) {
		next := RecordInteraction(prior, ex, confidence, s.opts.HistoryWindow)
		data := map[string]string{"message": message, "response": reply}
		return next, []func(){s.audit(event.LearningAIInteraction, data, at)}
	})
}

// InitAssistant marks the assistant ready.
func (s *Store) InitAssistant(personality string, ctx json.RawMessage) {
	s.transition(func(prior Slices) (Slices, []func()) {
		next := prior.Clone()
		next.Assistant = InitAssistant(prior.Assistant, personality, ctx)
		return next, nil
	})
}

// MergePolled overlays a polled session summary.
func (s *Store) MergePolled(sum Summary) {
	s.transition(func(prior Slices) (Slices, []func()) {
		next := prior.Clone()
		next.Session = MergePolled(prior.Session, sum)
		return next, nil
	})
}

// AcknowledgeInterventions clears the pending intervention counter and the
// last parent message once the student has seen them.
func (s *Store) AcknowledgeInterventions() {
	s.transition(func(prior Slices) (Slices, []func()) {
		next := prior.Clone()
		next.Session.PendingInterventions = 0
		next.Session.ParentMessage = ""
		return next, nil
	})
}

// audit returns an effect emitting a local learning audit record.
func (s *Store) audit(typ event.LearningType, data map[string]string, at time.Time) func() {
	cb := s.opts.Callbacks.OnLearningEvent
	return func() {
		if cb == nil {
			return
		}
		ev := event.LearningEvent{
			Type:       typ,
			UserID:     s.opts.UserID,
			ReportedAt: at.UTC().Format(time.RFC3339),
		}
		if data != nil {
			ev.Data, _ = json.Marshal(data)
		}
		cb(ev)
	}
}
