package devserver

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
)

const sendBuffer = 64

type subscriber struct {
	id      string
	subject string
	conn    *websocket.Conn
	send    chan []byte
}

func newSubscriber(subject string, conn *websocket.Conn) *subscriber {
	c := &subscriber{
		id:      uuid.NewString(),
		subject: subject,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *subscriber) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub fans frames out to the stream connections of each subject.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*subscriber]bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:     logger,
		clients: make(map[string]map[*subscriber]bool),
	}
}

func (h *Hub) add(subject string, conn *websocket.Conn) *subscriber {
	c := newSubscriber(subject, conn)
	h.mu.Lock()
	if h.clients[subject] == nil {
		h.clients[subject] = make(map[*subscriber]bool)
	}
	h.clients[subject][c] = true
	h.mu.Unlock()
	h.log.Info("devserver.Hub: client connected", "subject", subject, "client", c.id)
	return c
}

func (h *Hub) remove(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.subject]
	if !set[c] {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.subject)
	}
	close(c.send)
	h.log.Info("devserver.Hub: client disconnected", "subject", c.subject, "client", c.id)
}

// Publish encodes p and queues it for every connection of subject. It
// returns how many connections received it. Slow connections are dropped.
func (h *Hub) Publish(subject string, p event.Payload) (int, error) {
	data, err := event.Encode(p)
	if err != nil {
		return 0, err
	}
	return h.PublishRaw(subject, data), nil
}

// PublishRaw queues an already encoded frame.
func (h *Hub) PublishRaw(subject string, data []byte) int {
	// Sends happen under the read lock so remove cannot close a send
	// channel mid-publish.
	var slow []*subscriber
	sent := 0
	h.mu.RLock()
	for c := range h.clients[subject] {
		select {
		case c.send <- data:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("devserver.Hub: client too slow, disconnecting", "subject", subject, "client", c.id)
		c.conn.Close()
		h.remove(c)
	}
	return sent
}

// Subjects lists the subjects with at least one connection.
func (h *Hub) Subjects() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.clients))
	for s := range h.clients {
		out = append(out, s)
	}
	return out
}

// ClientCount returns the number of connections for subject.
func (h *Hub) ClientCount(subject string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[subject])
}

// Disconnect closes every connection of subject, as a network drop would.
func (h *Hub) Disconnect(subject string) int {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.clients[subject]))
	for c := range h.clients[subject] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.conn.Close()
		h.remove(c)
	}
	return len(targets)
}
