package client

import (
	"context"
	"fmt"
	"net/url"
)

// StartLearningSession sends POST /api/learning-sessions/start.
func (c *Client) StartLearningSession(ctx context.Context, req StartSessionRequest) (*LearningSession, error) {
	var out LearningSession
	if err := c.PostJSON(ctx, "/api/learning-sessions/start", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PauseLearningSession sends POST /api/learning-sessions/{id}/pause.
func (c *Client) PauseLearningSession(ctx context.Context, sessionID, reason string) error {
	if sessionID == "" {
		return fmt.Errorf("pause learning session: empty session id")
	}
	path := fmt.Sprintf("/api/learning-sessions/%s/pause", url.PathEscape(sessionID))
	return c.PostJSON(ctx, path, map[string]string{"reason": reason}, nil)
}

// InitializeTutor sends POST /api/ai-tutor/initialize.
func (c *Client) InitializeTutor(ctx context.Context, req TutorInitRequest) (*TutorInit, error) {
	var out TutorInit
	if err := c.PostJSON(ctx, "/api/ai-tutor/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendTutorMessage sends POST /api/ai-tutor/message.
func (c *Client) SendTutorMessage(ctx context.Context, msg TutorMessage) (*TutorReply, error) {
	var out TutorReply
	if err := c.PostJSON(ctx, "/api/ai-tutor/message", msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
