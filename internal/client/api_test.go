package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/learning-sessions/start", func(w http.ResponseWriter, r *http.Request) {
		var req StartSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "math", req.Subject)
		json.NewEncoder(w).Encode(LearningSession{ID: "s-1", Subject: req.Subject})
	})
	mux.HandleFunc("POST /api/learning-sessions/{id}/pause", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s-1", r.PathValue("id"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "break", body["reason"])
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/ai-tutor/initialize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"personality":"patient","context":{"topic":"fractions"}}`))
	})
	mux.HandleFunc("POST /api/ai-tutor/message", func(w http.ResponseWriter, r *http.Request) {
		var msg TutorMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		json.NewEncoder(w).Encode(TutorReply{Message: "re: " + msg.Message, Confidence: 0.9})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	sess, err := c.StartLearningSession(ctx, StartSessionRequest{UserID: "u1", Subject: "math"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", sess.ID)

	require.NoError(t, c.PauseLearningSession(ctx, sess.ID, "break"))
	assert.Error(t, c.PauseLearningSession(ctx, "", "break"))

	ti, err := c.InitializeTutor(ctx, TutorInitRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "patient", ti.Personality)
	assert.JSONEq(t, `{"topic":"fractions"}`, string(ti.Context))

	reply, err := c.SendTutorMessage(ctx, TutorMessage{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "re: hi", reply.Message)
	assert.InDelta(t, 0.9, reply.Confidence, 1e-9)
}
