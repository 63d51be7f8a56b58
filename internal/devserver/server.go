// Package devserver is a local stand-in for the learning platform backend. It
// serves the REST endpoints the client calls, streams monitoring frames over
// a websocket per subject and can inject 503s to exercise retry handling.
package devserver

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meinzeug-cloud/mrsunkwn/internal/client"
	"github.com/meinzeug-cloud/mrsunkwn/internal/config"
	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
	"github.com/meinzeug-cloud/mrsunkwn/internal/session"
)

const maxBodyBytes = 1 << 20

type learningRecord struct {
	id           string
	userID       string
	subject      string
	startedAt    time.Time
	interactions int
	paused       bool
	pauseReason  string
}

// Server serves the development API.
type Server struct {
	cfg       config.DevServerConfig
	hub       *Hub
	authToken string
	log       *slog.Logger
	now       func() time.Time

	requests atomic.Int64

	mu        sync.Mutex
	byUser    map[string]*learningRecord
	byID      map[string]*learningRecord
	tutorUser string
}

func NewServer(cfg config.DevServerConfig, hub *Hub, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	return &Server{
		cfg:       cfg,
		hub:       hub,
		authToken: authToken,
		log:       logger,
		now:       time.Now,
		byUser:    make(map[string]*learningRecord),
		byID:      make(map[string]*learningRecord),
	}
}

// Hub returns the frame fan-out used by the stream endpoint.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed handler. API routes sit behind the fault
// injector; /dev control routes do not.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/lessons", s.handleLessons)
	api.HandleFunc("GET /api/learning-sessions/user/{id}", s.handleSummary)
	api.HandleFunc("POST /api/learning-sessions/start", s.handleStart)
	api.HandleFunc("POST /api/learning-sessions/{id}/pause", s.handlePause)
	api.HandleFunc("POST /api/ai-tutor/initialize", s.handleTutorInit)
	api.HandleFunc("POST /api/ai-tutor/message", s.handleTutorMessage)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.injectFaults(api))
	mux.HandleFunc("GET /ws/monitoring/{subject}", s.handleStream)
	mux.HandleFunc("POST /dev/monitoring/{subject}/events", s.handleInject)
	mux.HandleFunc("POST /dev/monitoring/{subject}/disconnect", s.handleDisconnect)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return s.securityHeaders(s.requireAuth(mux))
}

func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		if id := r.Header.Get(client.RequestIDHeader); id != "" {
			w.Header().Set(client.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.authToken {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken
}

// injectFaults answers every FailEvery-th request with 503.
func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.requests.Add(1)
		if s.cfg.FailEvery > 0 && n%int64(s.cfg.FailEvery) == 0 {
			s.log.Debug("devserver.Server: injecting 503", "path", r.URL.Path, "request", n)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("devserver.Server: upgrade failed", "error", err)
		return
	}

	c := s.hub.add(subject, conn)
	go func() {
		defer s.hub.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// checkOrigin accepts same-host and loopback origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	// Malformed frames are passed through on purpose so clients can be
	// tested against them.
	n := s.hub.PublishRaw(r.PathValue("subject"), data)
	writeJSON(w, http.StatusAccepted, map[string]int{"delivered": n})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	n := s.hub.Disconnect(r.PathValue("subject"))
	writeJSON(w, http.StatusOK, map[string]int{"disconnected": n})
}

type listResponse struct {
	Items []Lesson `json:"items"`
	Total int      `json:"total"`
}

func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	items, total := listLessons(Catalog(), parseLessonQuery(r.URL.Query()))
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rec := s.byUser[r.PathValue("id")]
	var sum session.Summary
	if rec != nil {
		id, subject := rec.id, rec.subject
		dur := int(s.now().Sub(rec.startedAt) / time.Second)
		count := rec.interactions
		sum = session.Summary{
			SessionID:          &id,
			CurrentSubject:     &subject,
			SessionDurationSec: &dur,
			InteractionCount:   &count,
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req client.StartSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Subject == "" {
		http.Error(w, "userId and subject are required", http.StatusBadRequest)
		return
	}

	rec := &learningRecord{
		id:        uuid.NewString(),
		userID:    req.UserID,
		subject:   req.Subject,
		startedAt: s.now(),
	}
	s.mu.Lock()
	if old := s.byUser[req.UserID]; old != nil {
		delete(s.byID, old.id)
	}
	s.byUser[req.UserID] = rec
	s.byID[rec.id] = rec
	s.mu.Unlock()

	s.log.Info("devserver.Server: learning session started", "user", req.UserID, "session", rec.id, "subject", req.Subject)
	writeJSON(w, http.StatusCreated, client.LearningSession{ID: rec.id, Subject: rec.subject})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")

	s.mu.Lock()
	rec := s.byID[id]
	if rec != nil {
		rec.paused = true
		rec.pauseReason = req.Reason
	}
	s.mu.Unlock()

	if rec == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.log.Info("devserver.Server: learning session paused", "session", id, "reason", req.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleTutorInit(w http.ResponseWriter, r *http.Request) {
	var req client.TutorInitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	s.tutorUser = req.UserID
	s.mu.Unlock()

	mode := req.LearningMode
	if mode == "" {
		mode = "socratic"
	}
	ctx, _ := json.Marshal(map[string]any{
		"learningMode":    mode,
		"subjectAreas":    req.SubjectAreas,
		"difficultyLevel": req.DifficultyLevel,
	})
	writeJSON(w, http.StatusOK, client.TutorInit{Personality: "encouraging", Context: ctx})
}

var socraticPrompts = []string{
	"What do you already know about %s?",
	"Can you explain %s in your own words first?",
	"What would happen if you tried a smaller example of %s?",
	"Which part of %s feels the most confusing right now?",
	"How could you check whether your idea about %s is right?",
}

// socraticReply answers with a guiding question instead of a solution.
func socraticReply(msg string) client.TutorReply {
	topic := strings.TrimSpace(strings.TrimRight(msg, "?!. "))
	if topic == "" {
		return client.TutorReply{Message: "What would you like to explore?", Confidence: 0.5}
	}
	h := fnv.New32a()
	h.Write([]byte(topic))
	prompt := socraticPrompts[h.Sum32()%uint32(len(socraticPrompts))]

	conf := 0.9
	if len(strings.Fields(topic)) < 3 {
		conf = 0.6
	}
	return client.TutorReply{Message: fmt.Sprintf(prompt, topic), Confidence: conf}
}

func (s *Server) handleTutorMessage(w http.ResponseWriter, r *http.Request) {
	var req client.TutorMessage
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	if rec := s.byUser[s.tutorUser]; rec != nil {
		rec.interactions++
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, socraticReply(req.Message))
}

// Publish sends a typed frame to every stream of subject.
func (s *Server) Publish(subject string, p event.Payload) (int, error) {
	return s.hub.Publish(subject, p)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
