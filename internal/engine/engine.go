// Package engine runs the live-sync layer for one student: the monitoring
// stream, the polled session summary and the session store they both feed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meinzeug-cloud/mrsunkwn/internal/backoff"
	"github.com/meinzeug-cloud/mrsunkwn/internal/channel"
	"github.com/meinzeug-cloud/mrsunkwn/internal/client"
	"github.com/meinzeug-cloud/mrsunkwn/internal/config"
	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
	"github.com/meinzeug-cloud/mrsunkwn/internal/poll"
	"github.com/meinzeug-cloud/mrsunkwn/internal/session"
)

// TickInterval is how often the session clock advances.
const TickInterval = time.Second

// LessonsPath is the list endpoint opened by Lessons.
const LessonsPath = "/api/lessons"

var (
	ErrNotStarted     = errors.New("engine not started")
	ErrAlreadyStarted = errors.New("engine already started")
	ErrStopped        = errors.New("engine stopped")
	ErrNoSession      = errors.New("no learning session")
	ErrBlocked        = errors.New("learning session is blocked")
)

// API is the part of the platform API the engine talks to. *client.Client
// implements it.
type API interface {
	poll.Fetcher
	StartLearningSession(ctx context.Context, req client.StartSessionRequest) (*client.LearningSession, error)
	PauseLearningSession(ctx context.Context, sessionID, reason string) error
	InitializeTutor(ctx context.Context, req client.TutorInitRequest) (*client.TutorInit, error)
	SendTutorMessage(ctx context.Context, msg client.TutorMessage) (*client.TutorReply, error)
}

// Deps are the collaborators handed to New.
type Deps struct {
	API       API
	Callbacks session.Callbacks
	// OnStateChange observes the stream connection state.
	OnStateChange func(channel.State)
	// OnLessons receives every result of subscriptions opened by Lessons.
	OnLessons func(poll.Result[poll.ListPage])
	Dialer    *websocket.Dialer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine owns one stream, one summary subscription and the session store.
type Engine struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger

	store *session.Store
	ch    atomic.Pointer[channel.Channel]

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	summary *poll.Subscription[session.Summary]
	lessons []*poll.Subscription[poll.ListPage]
	wg      sync.WaitGroup
}

// New builds a stopped engine. The store is usable before Start.
func New(cfg *config.Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	e := &Engine{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With("subject", cfg.Session.Subject),
	}

	cb := deps.Callbacks
	userAlert := cb.OnSafetyAlert
	cb.OnSafetyAlert = func(a event.SafetyAlert) {
		if userAlert != nil {
			userAlert(a)
		}
		if a.Level == event.SeverityCritical {
			e.pauseRemote(session.ReasonCriticalAlert)
		}
	}
	userIntervention := cb.OnParentIntervention
	cb.OnParentIntervention = func(iv event.ParentIntervention) {
		if userIntervention != nil {
			userIntervention(iv)
		}
		if iv.Action == event.ActionPause {
			e.pauseRemote(session.ReasonParentPause)
		}
	}
	e.store = session.NewStore(session.Options{
		UserID:             e.userID(),
		Subject:            cfg.Session.Subject,
		RecentEventsWindow: cfg.Session.RecentEventsWindow,
		HistoryWindow:      cfg.Session.HistoryWindow,
		Callbacks:          cb,
		Now:                deps.Now,
	})
	return e
}

// Store returns the session store.
func (e *Engine) Store() *session.Store { return e.store }

// Snapshot returns the current session state.
func (e *Engine) Snapshot() session.Slices { return e.store.Snapshot() }

// ConnectionState reports the stream state. It is Closed before Start.
func (e *Engine) ConnectionState() channel.State {
	ch := e.ch.Load()
	if ch == nil {
		return channel.Closed
	}
	return ch.State()
}

func (e *Engine) userID() string {
	if e.cfg.Session.StudentID != "" {
		return e.cfg.Session.StudentID
	}
	return e.cfg.Session.Subject
}

// Start opens the stream and the summary subscription and starts the session
// clock. On error everything already started is torn down. An engine that was
// stopped cannot be started again.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	err := e.startLocked(ctx)
	var stop func()
	if err != nil {
		stop = e.detachLocked()
	}
	e.mu.Unlock()

	if stop != nil {
		stop()
		e.wg.Wait()
		return err
	}
	return nil
}

func (e *Engine) startLocked(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	streamURL, err := channel.StreamURL(e.cfg.StreamOrigin(), e.cfg.Session.Subject)
	if err != nil {
		return fmt.Errorf("engine start: %w", err)
	}
	ch := channel.New(streamURL, e.channelOptions())
	for _, tag := range []event.Tag{
		event.TagSafetyAlert,
		event.TagParentIntervention,
		event.TagLearningEvent,
		event.TagMonitoringUpdate,
	} {
		ch.Handle(tag, e.store.Apply)
	}
	e.ch.Store(ch)
	if err := ch.Start(e.ctx); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}

	e.summary = poll.Subscribe(e.ctx, e.deps.API, e.summaryEndpoint(), poll.Options[session.Summary]{
		AutoRefresh:     e.cfg.Poll.AutoRefresh,
		RefreshInterval: e.cfg.Poll.SessionRefreshInterval,
		OnChange:        e.summaryChanged(),
		Logger:          e.deps.Logger,
	})

	e.wg.Add(1)
	go e.runClock(e.ctx)

	if e.cfg.Session.AssistantEnabled {
		e.wg.Add(1)
		go e.initAssistant(e.ctx)
	}
	e.log.Info("Engine.Start: started", "stream", streamURL)
	return nil
}

func (e *Engine) channelOptions() channel.Options {
	cc := e.cfg.Channel
	header := http.Header{}
	if e.cfg.API.Token != "" {
		header.Set("Authorization", "Bearer "+e.cfg.API.Token)
	}
	return channel.Options{
		Backoff:      backoff.Exponential(cc.ReconnectDelay, cc.MaxReconnectDelay, cc.BackoffFactor),
		MaxAttempts:  cc.MaxAttempts,
		Header:       header,
		Dialer:       e.deps.Dialer,
		PingInterval: cc.PingInterval,
		PongTimeout:  cc.PongTimeout,
		OnStateChange: func(s channel.State) {
			e.store.ConnectionChanged(s == channel.Open)
			if e.deps.OnStateChange != nil {
				e.deps.OnStateChange(s)
			}
		},
		Logger: e.deps.Logger,
	}
}

func (e *Engine) summaryEndpoint() poll.Endpoint {
	sc := e.cfg.Session
	ep := poll.NewEndpoint("/api/learning-sessions/user/" + url.PathEscape(e.userID()))
	if sc.FamilyID != "" {
		ep = ep.With("family_id", sc.FamilyID)
	}
	if sc.StudentID != "" {
		ep = ep.With("student_id", sc.StudentID)
	}
	if len(sc.Subjects) > 0 {
		ep = ep.With("subjects", strings.Join(sc.Subjects, ","))
	}
	return ep
}

// summaryChanged merges each newly fetched summary once.
func (e *Engine) summaryChanged() func(poll.Result[session.Summary]) {
	var last time.Time
	return func(r poll.Result[session.Summary]) {
		if !r.Fresh() || !r.LastFetchedAt.After(last) {
			return
		}
		last = r.LastFetchedAt
		e.store.MergePolled(*r.Data)
	}
}

func (e *Engine) runClock(ctx context.Context) {
	defer e.wg.Done()
	t := time.NewTicker(TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.store.Tick(int(TickInterval / time.Second))
		}
	}
}

func (e *Engine) initAssistant(ctx context.Context) {
	defer e.wg.Done()
	sc := e.cfg.Session
	subjects := sc.Subjects
	if len(subjects) == 0 && sc.Subject != "" {
		subjects = []string{sc.Subject}
	}
	ti, err := e.deps.API.InitializeTutor(ctx, client.TutorInitRequest{
		UserID:          e.userID(),
		LearningMode:    sc.LearningMode,
		SubjectAreas:    subjects,
		DifficultyLevel: sc.DifficultyLevel,
	})
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn("Engine.initAssistant: tutor unavailable", "error", err)
		}
		return
	}
	e.store.InitAssistant(ti.Personality, ti.Context)
}

// pauseRemote tells the server about a pause the client decided on itself.
// It runs in the background and only logs failures.
func (e *Engine) pauseRemote(reason string) {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	ctx := e.ctx
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		id := e.store.Snapshot().Session.SessionID
		if id == "" {
			return
		}
		if err := e.deps.API.PauseLearningSession(ctx, id, reason); err != nil && ctx.Err() == nil {
			e.log.Warn("Engine.pauseRemote: pause not recorded", "session", id, "error", err)
		}
	}()
}

// Stop tears everything down. It is safe to call more than once and after a
// failed Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	stop := e.detachLocked()
	e.mu.Unlock()

	stop()
	e.wg.Wait()
	e.log.Info("Engine.Stop: stopped")
}

// detachLocked marks the engine stopped and returns a func that stops every
// component. The func must run without e.mu held since stream handlers may
// need it.
func (e *Engine) detachLocked() func() {
	e.stopped = true
	cancel, ch, summary, lessons := e.cancel, e.ch.Load(), e.summary, e.lessons
	e.lessons = nil
	return func() {
		if cancel != nil {
			cancel()
		}
		if ch != nil {
			ch.Stop()
		}
		if summary != nil {
			summary.Stop()
		}
		for _, s := range lessons {
			s.Stop()
		}
	}
}

// StartLearning starts a session on the server, then locally.
func (e *Engine) StartLearning(ctx context.Context, subject string) error {
	if subject == "" {
		subject = e.cfg.Session.Subject
	}
	sc := e.cfg.Session
	ls, err := e.deps.API.StartLearningSession(ctx, client.StartSessionRequest{
		UserID:               e.userID(),
		FamilyID:             sc.FamilyID,
		Subject:              subject,
		LearningMode:         sc.LearningMode,
		DifficultyLevel:      sc.DifficultyLevel,
		AIInteractionEnabled: sc.AssistantEnabled,
	})
	if err != nil {
		return fmt.Errorf("start learning: %w", err)
	}
	if ls.Subject != "" {
		subject = ls.Subject
	}
	e.store.StartSession(subject, ls.ID)
	return nil
}

// PauseLearning pauses the current session on the server, then locally.
func (e *Engine) PauseLearning(ctx context.Context, reason string) error {
	id := e.store.Snapshot().Session.SessionID
	if id == "" {
		return ErrNoSession
	}
	if err := e.deps.API.PauseLearningSession(ctx, id, reason); err != nil {
		return fmt.Errorf("pause learning: %w", err)
	}
	e.store.PauseSession(reason)
	return nil
}

// ResumeLearning restarts the session clock unless a parent blocked it.
func (e *Engine) ResumeLearning() error {
	s := e.store.Snapshot().Session
	if s.SessionID == "" {
		return ErrNoSession
	}
	if s.Blocked {
		return fmt.Errorf("%w: %s", ErrBlocked, s.BlockReason)
	}
	e.store.ResumeSession()
	return nil
}

// Ask sends message to the tutor and records the exchange.
func (e *Engine) Ask(ctx context.Context, message string) (*client.TutorReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("ask: empty message")
	}
	snap := e.store.Snapshot()
	reply, err := e.deps.API.SendTutorMessage(ctx, client.TutorMessage{
		Message:         message,
		Context:         snap.Assistant.Context,
		LearningMode:    e.cfg.Session.LearningMode,
		DifficultyLevel: e.cfg.Session.DifficultyLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	e.store.RecordInteraction(message, reply.Message, reply.Confidence)
	return reply, nil
}

// Acknowledge clears pending parent interventions.
func (e *Engine) Acknowledge() {
	e.store.AcknowledgeInterventions()
}

// Lessons opens a list subscription on LessonsPath. It is stopped with the
// engine; callers may stop it earlier.
func (e *Engine) Lessons(q poll.ListQuery) (*poll.Subscription[poll.ListPage], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.stopped {
		return nil, ErrNotStarted
	}
	sub := poll.Subscribe(e.ctx, e.deps.API, q.Endpoint(LessonsPath), poll.Options[poll.ListPage]{
		AutoRefresh:     e.cfg.Poll.AutoRefresh,
		RefreshInterval: e.cfg.Poll.RefreshInterval,
		OnChange:        e.deps.OnLessons,
		Logger:          e.deps.Logger,
	})
	e.lessons = append(e.lessons, sub)
	return sub, nil
}
