package engine

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meinzeug-cloud/mrsunkwn/internal/channel"
	"github.com/meinzeug-cloud/mrsunkwn/internal/client"
	"github.com/meinzeug-cloud/mrsunkwn/internal/config"
	"github.com/meinzeug-cloud/mrsunkwn/internal/devserver"
	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
	"github.com/meinzeug-cloud/mrsunkwn/internal/poll"
	"github.com/meinzeug-cloud/mrsunkwn/internal/session"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

// pauseRecorder wraps a real client and records remote pauses.
type pauseRecorder struct {
	*client.Client
	mu     sync.Mutex
	paused []string
}

func (p *pauseRecorder) PauseLearningSession(ctx context.Context, id, reason string) error {
	p.mu.Lock()
	p.paused = append(p.paused, reason)
	p.mu.Unlock()
	return p.Client.PauseLearningSession(ctx, id, reason)
}

func (p *pauseRecorder) reasons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paused...)
}

type harness struct {
	dev    *devserver.Server
	api    *pauseRecorder
	cfg    *config.Config
	engine *Engine

	mu     sync.Mutex
	states []channel.State
	audits []event.LearningType
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.API.BaseURL = baseURL
	cfg.Channel.ReconnectDelay = 30 * time.Millisecond
	cfg.Poll.RefreshInterval = 50 * time.Millisecond
	cfg.Poll.SessionRefreshInterval = 50 * time.Millisecond
	cfg.Session.Subject = "kid"
	cfg.Session.StudentID = "u1"
	cfg.Session.FamilyID = "fam"
	return cfg
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dev := devserver.NewServer(config.DevServerConfig{}, nil, "", nil)
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)

	h := &harness{
		dev: dev,
		api: &pauseRecorder{Client: client.NewClient(ts.URL)},
		cfg: testConfig(ts.URL),
	}
	h.engine = New(h.cfg, Deps{
		API: h.api,
		Callbacks: session.Callbacks{
			OnLearningEvent: func(ev event.LearningEvent) {
				h.mu.Lock()
				h.audits = append(h.audits, ev.Type)
				h.mu.Unlock()
			},
		},
		OnStateChange: func(s channel.State) {
			h.mu.Lock()
			h.states = append(h.states, s)
			h.mu.Unlock()
		},
	})
	t.Cleanup(h.engine.Stop)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Start(context.Background()))
	require.Eventually(t, func() bool {
		return h.dev.Hub().ClientCount("kid") == 1 && h.engine.ConnectionState() == channel.Open
	}, waitFor, tick)
}

func (h *harness) auditTypes() []event.LearningType {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.LearningType(nil), h.audits...)
}

func (h *harness) publish(t *testing.T, p event.Payload) {
	t.Helper()
	n, err := h.dev.Publish("kid", p)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestEngineFoldsPushedEvents(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	cpu := 42.0
	h.publish(t, event.MonitoringUpdate{DeviceStatus: event.DeviceWarning, CPUPercent: &cpu})
	require.Eventually(t, func() bool {
		return h.engine.Snapshot().Monitoring.DeviceStatus == event.DeviceWarning
	}, waitFor, tick)
	assert.True(t, h.engine.Snapshot().Monitoring.Connected)
	assert.Equal(t, 42.0, h.engine.Snapshot().Monitoring.CPUPercent)

	h.publish(t, event.SafetyAlert{Level: event.SeverityHigh, Type: event.AlertExternalAIUsage})
	require.Eventually(t, func() bool {
		return h.engine.Snapshot().Session.SafetyScore == session.MaxSafetyScore-session.Deduction(event.SeverityHigh)
	}, waitFor, tick)
	assert.Len(t, h.engine.Snapshot().Monitoring.RecentEvents, 1)
}

func TestEngineLearningFlow(t *testing.T) {
	h := newHarness(t)
	// A refresh racing the local writes could overlay an older count.
	h.cfg.Poll.AutoRefresh = false
	h.start(t)
	ctx := context.Background()

	require.Eventually(t, func() bool { return h.engine.Snapshot().Assistant.Initialized }, waitFor, tick)

	require.NoError(t, h.engine.StartLearning(ctx, "math"))
	snap := h.engine.Snapshot().Session
	require.NotEmpty(t, snap.SessionID)
	assert.True(t, snap.IsActive)
	assert.Equal(t, "math", snap.CurrentSubject)

	reply, err := h.engine.Ask(ctx, "how do I add fractions?")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Message)
	snap2 := h.engine.Snapshot()
	assert.Equal(t, 1, snap2.Session.InteractionCount)
	require.Len(t, snap2.Assistant.History, 1)
	assert.Equal(t, reply.Message, snap2.Assistant.History[0].AI)

	require.NoError(t, h.engine.PauseLearning(ctx, "snack"))
	assert.False(t, h.engine.Snapshot().Session.IsActive)
	require.NoError(t, h.engine.ResumeLearning())
	assert.True(t, h.engine.Snapshot().Session.IsActive)

	assert.Equal(t, []event.LearningType{
		event.LearningStart,
		event.LearningAIInteraction,
		event.LearningPause,
		event.LearningResume,
	}, h.auditTypes())
}

func TestEnginePollsSessionSummary(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	// A session started elsewhere shows up through the summary poll.
	ls, err := h.api.StartLearningSession(context.Background(), client.StartSessionRequest{UserID: "u1", Subject: "reading"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := h.engine.Snapshot().Session
		return s.SessionID == ls.ID && s.CurrentSubject == "reading"
	}, waitFor, tick)
	assert.Empty(t, h.auditTypes())
}

func TestEngineBlockPreventsResume(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	require.NoError(t, h.engine.StartLearning(context.Background(), "math"))

	h.publish(t, event.ParentIntervention{Action: event.ActionBlock, Reason: "homework first"})
	require.Eventually(t, func() bool { return h.engine.Snapshot().Session.Blocked }, waitFor, tick)

	err := h.engine.ResumeLearning()
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Contains(t, err.Error(), "homework first")
	assert.Equal(t, 1, h.engine.Snapshot().Session.PendingInterventions)

	h.engine.Acknowledge()
	assert.Zero(t, h.engine.Snapshot().Session.PendingInterventions)
}

func TestEngineCriticalAlertPausesRemotely(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	require.NoError(t, h.engine.StartLearning(context.Background(), "math"))

	h.publish(t, event.SafetyAlert{Level: event.SeverityCritical, Type: event.AlertInappropriateContent})
	require.Eventually(t, func() bool {
		return len(h.api.reasons()) == 1
	}, waitFor, tick)
	assert.Equal(t, []string{session.ReasonCriticalAlert}, h.api.reasons())
	assert.False(t, h.engine.Snapshot().Session.IsActive)
	assert.Contains(t, h.auditTypes(), event.LearningPause)
}

func TestEngineParentPausePausesRemotely(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	require.NoError(t, h.engine.StartLearning(context.Background(), "math"))

	h.publish(t, event.ParentIntervention{Action: event.ActionPause, Reason: "dinner"})
	require.Eventually(t, func() bool {
		return len(h.api.reasons()) == 1
	}, waitFor, tick)
	assert.Equal(t, []string{session.ReasonParentPause}, h.api.reasons())
	assert.False(t, h.engine.Snapshot().Session.IsActive)

	// Other actions stay local.
	h.publish(t, event.ParentIntervention{Action: event.ActionMessage, Reason: "hi"})
	require.Eventually(t, func() bool {
		return h.engine.Snapshot().Session.ParentMessage == "hi"
	}, waitFor, tick)
	assert.Len(t, h.api.reasons(), 1)
}

func TestEngineReconnectsAfterDrop(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.dev.Hub().Disconnect("kid")
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		n := len(h.states)
		return n >= 4 && h.states[n-1] == channel.Open
	}, waitFor, tick)

	h.mu.Lock()
	states := append([]channel.State(nil), h.states...)
	h.mu.Unlock()
	assert.Equal(t, []channel.State{channel.Connecting, channel.Open, channel.Connecting, channel.Open}, states[:4])
	assert.True(t, h.engine.Snapshot().Monitoring.Connected)
}

func TestEngineLessons(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Lessons(poll.ListQuery{})
	assert.ErrorIs(t, err, ErrNotStarted)

	h.start(t)
	sub, err := h.engine.Lessons(poll.ListQuery{PerPage: 2, Filters: map[string]interface{}{"subject": "science"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sub.Snapshot().Fresh() }, waitFor, tick)

	page := sub.Snapshot().Data
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
}

func TestEngineStartFailureTearsDown(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Channel.Origin = "ftp://nowhere"
	e := New(cfg, Deps{API: client.NewClient(cfg.API.BaseURL)})

	err := e.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, channel.Closed, e.ConnectionState())
	assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyStarted)

	_, err = e.Lessons(poll.ListQuery{})
	assert.ErrorIs(t, err, ErrNotStarted)
	e.Stop()
	e.Stop()
}

func TestEngineStopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.engine.Stop()

	h = newHarness(t)
	h.start(t)
	h.engine.Stop()
	h.engine.Stop()
	assert.Equal(t, channel.Closed, h.engine.ConnectionState())
	require.Eventually(t, func() bool { return h.dev.Hub().ClientCount("kid") == 0 }, waitFor, tick)
}

func TestEngineStartAfterStop(t *testing.T) {
	h := newHarness(t)
	h.engine.Stop()

	err := h.engine.Start(context.Background())
	require.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, channel.Closed, h.engine.ConnectionState())
	assert.Zero(t, h.dev.Hub().ClientCount("kid"))

	_, err = h.engine.Lessons(poll.ListQuery{Page: 1})
	assert.ErrorIs(t, err, ErrNotStarted)
}

// failingAPI rejects every call.
type failingAPI struct{ err error }

func (f failingAPI) GetJSON(context.Context, string, interface{}) error { return f.err }
func (f failingAPI) StartLearningSession(context.Context, client.StartSessionRequest) (*client.LearningSession, error) {
	return nil, f.err
}
func (f failingAPI) PauseLearningSession(context.Context, string, string) error { return f.err }
func (f failingAPI) InitializeTutor(context.Context, client.TutorInitRequest) (*client.TutorInit, error) {
	return nil, f.err
}
func (f failingAPI) SendTutorMessage(context.Context, client.TutorMessage) (*client.TutorReply, error) {
	return nil, f.err
}

func TestEngineFailedWritesLeaveStateAlone(t *testing.T) {
	boom := errors.New("boom")
	cfg := testConfig("http://127.0.0.1:1")
	e := New(cfg, Deps{API: failingAPI{err: boom}})
	before := e.Snapshot()
	ctx := context.Background()

	assert.ErrorIs(t, e.StartLearning(ctx, "math"), boom)
	assert.ErrorIs(t, e.PauseLearning(ctx, "x"), ErrNoSession)
	assert.ErrorIs(t, e.ResumeLearning(), ErrNoSession)
	_, err := e.Ask(ctx, "hello there")
	assert.ErrorIs(t, err, boom)
	_, err = e.Ask(ctx, "   ")
	assert.Error(t, err)

	assert.Equal(t, before, e.Snapshot())
}
