package channel

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meinzeug-cloud/mrsunkwn/internal/backoff"
	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
)

// run owns the connection lifecycle until Stop, context cancellation or the
// reconnect limit.
func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer func() {
		if err := ctx.Err(); err != nil {
			c.closeWith(err)
		}
	}()

	retries := 0
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			c.log.Warn("channel.Channel: dial failed", "error", err)
		} else {
			if !c.transition(Open, conn) {
				conn.Close()
				return
			}
			retries = 0
			c.log.Info("channel.Channel: connected")
			err = c.readLoop(ctx, conn)
			c.log.Info("channel.Channel: connection dropped", "error", err)
		}

		if !c.transition(Connecting, nil) {
			return
		}
		if c.opts.MaxAttempts > 0 && retries >= c.opts.MaxAttempts {
			c.log.Warn("channel.Channel: giving up", "attempts", retries)
			c.closeWith(ErrAttemptsExhausted)
			return
		}
		delay := c.opts.Backoff.Delay(retries)
		retries++
		c.log.Info("channel.Channel: reconnect scheduled", "delay", delay, "retry", retries)
		if err := backoff.Sleep(ctx, delay); err != nil {
			return
		}
		// Stop may have landed while the timer was pending.
		if c.State() == Closed {
			return
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.url, c.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// readLoop reads frames until the connection fails. It always closes conn.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	// ReadMessage does not watch ctx; closing the conn unblocks it.
	stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopWatch()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			c.drop("non-text frame", nil)
			continue
		}
		if !c.dispatch(data) {
			return errors.New("closed during dispatch")
		}
	}
}

// dispatch decodes one frame and runs its handler. It returns false once the
// channel has been closed.
func (c *Channel) dispatch(data []byte) bool {
	payload, err := event.Decode(data)
	if err != nil {
		c.drop("malformed frame", err)
		return true
	}
	if _, ok := payload.(event.Unknown); ok {
		c.drop("unknown tag "+string(payload.Tag()), nil)
		return true
	}

	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return false
	}
	c.seq++
	ev := event.Event{
		Type:       payload.Tag(),
		Seq:        c.seq,
		ReceivedAt: time.Now(),
		Payload:    payload,
	}
	h := c.handlers[ev.Type]
	c.mu.Unlock()

	if h == nil {
		c.log.Debug("channel.Channel: no handler", "type", ev.Type)
		return true
	}
	h(ev)
	return true
}

func (c *Channel) drop(reason string, err error) {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
	if err != nil {
		c.log.Warn("channel.Channel: dropping frame", "reason", reason, "error", err)
		return
	}
	c.log.Warn("channel.Channel: dropping frame", "reason", reason)
}

// pingLoop keeps the connection alive until ctx ends or a write fails.
func (c *Channel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
