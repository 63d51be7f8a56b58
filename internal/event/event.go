// Package event defines the frames pushed over the monitoring stream and
// decodes them into a closed set of typed payloads.
package event

import (
	"encoding/json"
	"time"
)

// Tag identifies the kind of a pushed frame.
type Tag string

const (
	TagSafetyAlert        Tag = "safety_alert"
	TagParentIntervention Tag = "parent_intervention"
	TagLearningEvent      Tag = "learning_event"
	TagMonitoringUpdate   Tag = "monitoring_update"
)

// Known reports whether t is one of the tags with a typed payload.
func (t Tag) Known() bool {
	switch t {
	case TagSafetyAlert, TagParentIntervention, TagLearningEvent, TagMonitoringUpdate:
		return true
	}
	return false
}

// Frame is the envelope for every pushed message.
type Frame struct {
	Type    Tag             `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Severity grades a safety alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertType classifies what a safety alert is about.
type AlertType string

const (
	AlertInappropriateContent AlertType = "inappropriate_content"
	AlertCheatingAttempt      AlertType = "cheating_attempt"
	AlertExternalAIUsage      AlertType = "external_ai_usage"
	AlertTimeViolation        AlertType = "time_violation"
)

// Action is what a parent asked the session to do.
type Action string

const (
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionBlock    Action = "block"
	ActionRedirect Action = "redirect"
	ActionMessage  Action = "message"
)

// LearningType labels a learning audit record.
type LearningType string

const (
	LearningStart         LearningType = "start"
	LearningPause         LearningType = "pause"
	LearningResume        LearningType = "resume"
	LearningComplete      LearningType = "complete"
	LearningAIInteraction LearningType = "ai_interaction"
	LearningAchievement   LearningType = "achievement"
)

// DeviceStatus is the monitored device's health as last reported.
type DeviceStatus string

const (
	DeviceSecure       DeviceStatus = "secure"
	DeviceWarning      DeviceStatus = "warning"
	DeviceCompromised  DeviceStatus = "compromised"
	DeviceOffline      DeviceStatus = "offline"
	DeviceDisconnected DeviceStatus = "disconnected"
)

// Payload is implemented by every decoded frame body. The set is closed:
// only the types in this package satisfy it.
type Payload interface {
	Tag() Tag
	sealed()
}

// SafetyAlert reports something the monitor considers unsafe.
// ReportedAt is informational only; ordering uses the arrival time.
type SafetyAlert struct {
	Level             Severity        `json:"level"`
	Type              AlertType       `json:"type"`
	Description       string          `json:"description"`
	Evidence          json.RawMessage `json:"evidence,omitempty"`
	RecommendedAction string          `json:"recommendedAction,omitempty"`
	ReportedAt        string          `json:"timestamp,omitempty"`
}

// ParentIntervention is a parent's command to the learning session.
type ParentIntervention struct {
	Action     Action `json:"action"`
	Reason     string `json:"reason,omitempty"`
	ParentID   string `json:"parentId,omitempty"`
	Target     string `json:"target,omitempty"`
	ReportedAt string `json:"timestamp,omitempty"`
}

// LearningEvent is an audit record of a learning action.
type LearningEvent struct {
	Type       LearningType    `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	ReportedAt string          `json:"timestamp,omitempty"`
}

// MonitoringUpdate carries device health. Absent fields are left alone.
type MonitoringUpdate struct {
	DeviceStatus DeviceStatus `json:"deviceStatus,omitempty"`
	CPUPercent   *float64     `json:"cpuPercent,omitempty"`
	MemPercent   *float64     `json:"memPercent,omitempty"`
	ReportedAt   string       `json:"timestamp,omitempty"`
}

// Unknown holds a frame whose tag this package does not model.
type Unknown struct {
	Type Tag
	Raw  json.RawMessage
}

func (SafetyAlert) Tag() Tag        { return TagSafetyAlert }
func (ParentIntervention) Tag() Tag { return TagParentIntervention }
func (LearningEvent) Tag() Tag      { return TagLearningEvent }
func (MonitoringUpdate) Tag() Tag   { return TagMonitoringUpdate }
func (u Unknown) Tag() Tag          { return u.Type }

func (SafetyAlert) sealed()        {}
func (ParentIntervention) sealed() {}
func (LearningEvent) sealed()      {}
func (MonitoringUpdate) sealed()   {}
func (Unknown) sealed()            {}

// Event is a decoded frame stamped by the channel that received it.
type Event struct {
	Type       Tag
	Seq        uint64
	ReceivedAt time.Time
	Payload    Payload
}
