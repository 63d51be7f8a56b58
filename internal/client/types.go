package client

import "encoding/json"

// StartSessionRequest is the body of POST /api/learning-sessions/start.
type StartSessionRequest struct {
	UserID               string `json:"userId"`
	FamilyID             string `json:"familyId,omitempty"`
	Subject              string `json:"subject"`
	LearningMode         string `json:"learningMode,omitempty"`
	DifficultyLevel      int    `json:"difficultyLevel,omitempty"`
	AIInteractionEnabled bool   `json:"aiInteractionEnabled"`
}

// LearningSession is the server's view of a started session.
type LearningSession struct {
	ID      string `json:"id"`
	Subject string `json:"subject,omitempty"`
}

// TutorInitRequest is the body of POST /api/ai-tutor/initialize.
type TutorInitRequest struct {
	UserID          string   `json:"userId"`
	LearningMode    string   `json:"learningMode,omitempty"`
	SubjectAreas    []string `json:"subjectAreas,omitempty"`
	DifficultyLevel int      `json:"difficultyLevel,omitempty"`
}

// TutorInit is the assistant's initial persona and context.
type TutorInit struct {
	Personality string          `json:"personality,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
}

// TutorMessage is the body of POST /api/ai-tutor/message.
type TutorMessage struct {
	Message         string          `json:"message"`
	Context         json.RawMessage `json:"context,omitempty"`
	LearningMode    string          `json:"learningMode,omitempty"`
	DifficultyLevel int             `json:"difficultyLevel,omitempty"`
}

// TutorReply is the assistant's answer to a TutorMessage.
type TutorReply struct {
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence,omitempty"`
}
