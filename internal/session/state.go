// Package session folds pushed events, polled summaries and local learning
// actions into the client's view of the current learning session.
package session

import (
	"encoding/json"
	"time"

	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
)

const (
	MaxSafetyScore            = 100
	DefaultRecentEventsWindow = 50
	DefaultHistoryWindow      = 100
	DefaultPersonality        = "encouraging"
	DefaultConfidence         = 0.8

	// RedirectFallback is the subject used when a redirect names no target.
	RedirectFallback = "safe_activity"
)

// Session is the learning session as the student sees it.
type Session struct {
	SessionID            string
	IsActive             bool
	CurrentSubject       string
	SessionDurationSec   int
	InteractionCount     int
	SafetyScore          int // 0..100
	PendingInterventions int
	Blocked              bool
	BlockReason          string
	ParentMessage        string
}

// Monitoring is the device health view.
type Monitoring struct {
	DeviceStatus   event.DeviceStatus
	ReportedStatus event.DeviceStatus // last status the device sent, kept across drops
	RecentEvents   []event.SafetyAlert
	LastCheckedAt  time.Time
	Connected      bool
	CPUPercent     float64
	MemPercent     float64
}

// Exchange is one question and answer with the assistant.
type Exchange struct {
	User string
	AI   string
	At   time.Time
}

// Assistant is the AI tutor's conversation state.
type Assistant struct {
	Initialized bool
	Personality string
	Context     json.RawMessage
	History     []Exchange
	Confidence  float64
}

// Slices groups every piece of state the aggregator owns.
type Slices struct {
	Session    Session
	Monitoring Monitoring
	Assistant  Assistant
}

// Initial returns the state of a fresh, inactive session on subject.
func Initial(subject string) Slices {
	return Slices{
		Session: Session{
			CurrentSubject: subject,
			SafetyScore:    MaxSafetyScore,
		},
		Monitoring: Monitoring{
			DeviceStatus:   event.DeviceSecure,
			ReportedStatus: event.DeviceSecure,
		},
		Assistant: Assistant{
			Personality: DefaultPersonality,
			Confidence:  DefaultConfidence,
		},
	}
}

// Clone returns a copy that shares no memory with s.
func (s Slices) Clone() Slices {
	out := s
	out.Monitoring.RecentEvents = append([]event.SafetyAlert(nil), s.Monitoring.RecentEvents...)
	out.Assistant.History = append([]Exchange(nil), s.Assistant.History...)
	out.Assistant.Context = append(json.RawMessage(nil), s.Assistant.Context...)
	return out
}

// Summary is the polled server view of a learning session. Nil fields were
// absent from the response and leave local state alone.
type Summary struct {
	SessionID          *string `json:"sessionId,omitempty"`
	CurrentSubject     *string `json:"currentSubject,omitempty"`
	SessionDurationSec *int    `json:"sessionDuration,omitempty"`
	InteractionCount   *int    `json:"aiInteractions,omitempty"`
}
