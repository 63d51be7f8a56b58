package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is wrapped by Decode when a frame cannot be parsed.
var ErrMalformedFrame = errors.New("malformed frame")

// Decode parses one text frame. Frames with an unrecognised tag decode to
// Unknown without error so callers can drop them deliberately.
func Decode(data []byte) (Payload, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch f.Type {
	case TagSafetyAlert:
		var p SafetyAlert
		if err := unmarshalPayload(f, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TagParentIntervention:
		var p ParentIntervention
		if err := unmarshalPayload(f, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TagLearningEvent:
		var p LearningEvent
		if err := unmarshalPayload(f, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TagMonitoringUpdate:
		var p MonitoringUpdate
		if err := unmarshalPayload(f, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return Unknown{Type: f.Type, Raw: f.Payload}, nil
	}
}

func unmarshalPayload(f Frame, out interface{}) error {
	if len(f.Payload) == 0 || string(f.Payload) == "null" {
		return fmt.Errorf("%w: %s without payload", ErrMalformedFrame, f.Type)
	}
	if err := json.Unmarshal(f.Payload, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Type, err)
	}
	return nil
}

// Encode wraps p in a Frame and marshals it.
func Encode(p Payload) ([]byte, error) {
	var raw json.RawMessage
	if u, ok := p.(Unknown); ok {
		raw = u.Raw
	} else {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", p.Tag(), err)
		}
		raw = b
	}
	return json.Marshal(Frame{Type: p.Tag(), Payload: raw})
}
