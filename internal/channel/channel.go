// Package channel maintains one websocket connection per subject to the
// monitoring stream, reconnecting after every drop until it is stopped, and
// dispatches decoded frames to per-tag handlers in wire order.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meinzeug-cloud/mrsunkwn/internal/backoff"
	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

var (
	ErrClosed            = errors.New("channel closed")
	ErrNotConnected      = errors.New("channel not connected")
	ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")
	errAlreadyStarted    = errors.New("channel already started")
	errUnsupportedOrigin = errors.New("unsupported origin scheme")
)

// State is the connection lifecycle stage.
type State int

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Handler receives one decoded event. Handlers run on the read goroutine, one
// frame at a time, and must not call Stop.
type Handler func(event.Event)

// Options configures a Channel. Zero values select the defaults.
type Options struct {
	// Backoff is the wait before each reconnect. Default: fixed 5s.
	Backoff backoff.Schedule
	// MaxAttempts bounds consecutive reconnects without reaching Open.
	// Zero means retry forever.
	MaxAttempts int

	Header       http.Header
	Dialer       *websocket.Dialer
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration

	// OnStateChange observes every transition, in order.
	OnStateChange func(State)
	Logger        *slog.Logger
}

// Channel is a self-healing event stream connection.
type Channel struct {
	url  string
	opts Options
	log  *slog.Logger

	notifyMu sync.Mutex // orders OnStateChange calls
	writeMu  sync.Mutex // serialises conn writes

	mu       sync.Mutex
	state    State
	started  bool
	handlers map[event.Tag]Handler
	conn     *websocket.Conn
	attempts int
	seq      uint64
	dropped  uint64
	err      error
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a stopped channel for the stream at url.
func New(url string, opts Options) *Channel {
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = backoff.Fixed(DefaultReconnectDelay)
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = DefaultPongTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		url:      url,
		opts:     opts,
		log:      logger.With("url", url),
		state:    Closed,
		handlers: make(map[event.Tag]Handler),
	}
}

// Handle registers h as the handler for tag, replacing any previous one.
func (c *Channel) Handle(tag event.Tag, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		delete(c.handlers, tag)
		return
	}
	c.handlers[tag] = h
}

// Start begins connecting in the background. A channel can be started once,
// and never after Stop.
func (c *Channel) Start(ctx context.Context) error {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	if c.started {
		err := errAlreadyStarted
		if c.state == Closed {
			err = ErrClosed
		}
		c.mu.Unlock()
		return err
	}
	c.started = true
	c.state = Connecting
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.notify(Connecting)
	go c.run(ctx)
	return nil
}

// Stop closes the channel. No reconnect is attempted and no handler runs
// after Stop returns.
func (c *Channel) Stop() {
	c.notifyMu.Lock()
	c.mu.Lock()
	wasClosed := c.state == Closed
	c.state = Closed
	c.started = true
	conn := c.conn
	c.conn = nil
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if !wasClosed {
		c.notify(Closed)
	}
	c.notifyMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}
	if done != nil {
		<-done
	}
}

// State returns the current lifecycle stage.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns how many connections have been dialed so far.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Dropped returns how many inbound frames were discarded as malformed or
// carrying an unknown tag.
func (c *Channel) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Err returns why the channel closed itself, if it did.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes v as a JSON text frame on the open connection.
func (c *Channel) Send(v interface{}) error {
	c.mu.Lock()
	state, conn, started := c.state, c.conn, c.started
	c.mu.Unlock()
	if started && state == Closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return conn.WriteJSON(v)
}

// transition moves to s unless the channel is closed. When conn is non-nil
// it becomes the current connection in the same step.
func (c *Channel) transition(s State, conn *websocket.Conn) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return false
	}
	if conn != nil {
		c.conn = conn
	}
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed {
		c.notify(s)
	}
	return true
}

func (c *Channel) notify(s State) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// closeWith marks the channel closed on its own initiative.
func (c *Channel) closeWith(err error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = Closed
	c.err = err
	c.mu.Unlock()
	c.notify(Closed)
}

// StreamURL derives the monitoring stream address for subject from an HTTP
// origin: http becomes ws and https becomes wss.
func StreamURL(origin, subject string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("stream url: empty subject")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("stream url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("stream url: %w %q", errUnsupportedOrigin, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stream url: missing host in %q", origin)
	}
	base := strings.TrimRight(u.EscapedPath(), "/")
	return fmt.Sprintf("%s://%s%s/ws/monitoring/%s", u.Scheme, u.Host, base, url.PathEscape(subject)), nil
}
