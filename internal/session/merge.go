package session

import (
	"encoding/json"
	"time"

	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
)

// UnknownSeverityDeduction applies to alerts with an unrecognised level.
const UnknownSeverityDeduction = 10

var deductions = map[event.Severity]int{
	event.SeverityLow:      5,
	event.SeverityMedium:   15,
	event.SeverityHigh:     30,
	event.SeverityCritical: 50,
}

// Deduction returns how many safety points an alert of level costs.
func Deduction(level event.Severity) int {
	if d, ok := deductions[level]; ok {
		return d
	}
	return UnknownSeverityDeduction
}

// MergeSafetyAlert records a at arrival time at. A critical alert also
// pauses the session. Pending interventions are not touched.
func MergeSafetyAlert(prior Slices, a event.SafetyAlert, at time.Time, window int) Slices {
	next := prior.Clone()

	next.Monitoring.RecentEvents = appendBounded(next.Monitoring.RecentEvents, a, window)
	next.Monitoring.LastCheckedAt = at

	score := next.Session.SafetyScore - Deduction(a.Level)
	if score < 0 {
		score = 0
	}
	next.Session.SafetyScore = score

	if a.Level == event.SeverityCritical {
		next.Session.IsActive = false
	}
	return next
}

func appendBounded(events []event.SafetyAlert, a event.SafetyAlert, window int) []event.SafetyAlert {
	if window <= 0 {
		window = DefaultRecentEventsWindow
	}
	events = append(events, a)
	if over := len(events) - window; over > 0 {
		events = append([]event.SafetyAlert(nil), events[over:]...)
	}
	return events
}

// MergeIntervention applies a parent's command. Every intervention, known or
// not, counts as pending.
func MergeIntervention(prior Session, iv event.ParentIntervention) Session {
	next := prior
	switch iv.Action {
	case event.ActionPause:
		next.IsActive = false
	case event.ActionResume:
		next.IsActive = true
		next.Blocked = false
		next.BlockReason = ""
	case event.ActionBlock:
		next.IsActive = false
		next.Blocked = true
		next.BlockReason = iv.Reason
	case event.ActionRedirect:
		next.CurrentSubject = iv.Target
		if next.CurrentSubject == "" {
			next.CurrentSubject = RedirectFallback
		}
		next.Blocked = false
		next.BlockReason = ""
	case event.ActionMessage:
		next.ParentMessage = iv.Reason
	}
	next.PendingInterventions++
	return next
}

// MergeMonitoringUpdate overlays the fields present in u.
func MergeMonitoringUpdate(prior Monitoring, u event.MonitoringUpdate, at time.Time) Monitoring {
	next := prior
	next.RecentEvents = append([]event.SafetyAlert(nil), prior.RecentEvents...)
	if u.DeviceStatus != "" {
		next.ReportedStatus = u.DeviceStatus
		next.DeviceStatus = u.DeviceStatus
	}
	if u.CPUPercent != nil {
		next.CPUPercent = *u.CPUPercent
	}
	if u.MemPercent != nil {
		next.MemPercent = *u.MemPercent
	}
	next.LastCheckedAt = at
	return next
}

// MergeConnection reflects the stream's reachability. While disconnected the
// device status reads "disconnected"; on reconnect the last reported status
// comes back.
func MergeConnection(prior Monitoring, connected bool) Monitoring {
	next := prior
	next.RecentEvents = append([]event.SafetyAlert(nil), prior.RecentEvents...)
	next.Connected = connected
	if connected {
		next.DeviceStatus = prior.ReportedStatus
		if next.DeviceStatus == "" {
			next.DeviceStatus = event.DeviceSecure
		}
	} else {
		next.DeviceStatus = event.DeviceDisconnected
	}
	return next
}

// StartSession begins a new session on subject.
func StartSession(prior Session, subject, sessionID string) Session {
	next := prior
	next.IsActive = true
	next.CurrentSubject = subject
	next.SessionDurationSec = 0
	next.SessionID = sessionID
	return next
}

// PauseSession stops the session clock.
func PauseSession(prior Session) Session {
	next := prior
	next.IsActive = false
	return next
}

// ResumeSession restarts the session clock.
func ResumeSession(prior Session) Session {
	next := prior
	next.IsActive = true
	return next
}

// Tick adds seconds to the session duration while the session is active.
func Tick(prior Session, seconds int) Session {
	if !prior.IsActive || seconds <= 0 {
		return prior
	}
	next := prior
	next.SessionDurationSec += seconds
	return next
}

// RecordInteraction appends an assistant exchange and counts it. A zero
// confidence keeps the previous value.
func RecordInteraction(prior Slices, ex Exchange, confidence float64, window int) Slices {
	next := prior.Clone()
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	next.Assistant.History = append(next.Assistant.History, ex)
	if over := len(next.Assistant.History) - window; over > 0 {
		next.Assistant.History = append([]Exchange(nil), next.Assistant.History[over:]...)
	}
	if confidence > 0 {
		next.Assistant.Confidence = confidence
	}
	next.Session.InteractionCount++
	return next
}

// InitAssistant marks the assistant ready with the given persona.
func InitAssistant(prior Assistant, personality string, ctx json.RawMessage) Assistant {
	next := prior
	next.History = append([]Exchange(nil), prior.History...)
	next.Initialized = true
	next.Personality = personality
	if next.Personality == "" {
		next.Personality = DefaultPersonality
	}
	next.Context = append(json.RawMessage(nil), ctx...)
	return next
}

// MergePolled overlays the fields present in a polled summary. Whichever of
// poll and push arrives last wins.
func MergePolled(prior Session, s Summary) Session {
	next := prior
	if s.SessionID != nil {
		next.SessionID = *s.SessionID
	}
	if s.CurrentSubject != nil {
		next.CurrentSubject = *s.CurrentSubject
	}
	if s.SessionDurationSec != nil && *s.SessionDurationSec >= 0 {
		next.SessionDurationSec = *s.SessionDurationSec
	}
	if s.InteractionCount != nil && *s.InteractionCount >= 0 {
		next.InteractionCount = *s.InteractionCount
	}
	return next
}
