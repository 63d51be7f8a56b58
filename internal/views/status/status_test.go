package status

import (
	"strings"
	"testing"

	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
	"github.com/meinzeug-cloud/mrsunkwn/internal/session"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		sec  int
		want string
	}{
		{-5, "0:00"},
		{0, "0:00"},
		{75, "1:15"},
		{3600 + 61, "1:01:01"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.sec); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestView(t *testing.T) {
	m := New()
	m.Width = 100
	if !strings.Contains(m.View(), "Offline") {
		t.Error("new bar should read offline")
	}

	s := session.Initial("math")
	s.Session.IsActive = true
	s.Session.SessionDurationSec = 90
	s.Monitoring.DeviceStatus = event.DeviceWarning
	m.SetState(s)
	m.Conn = "open"

	v := m.View()
	for _, want := range []string{"Live", "math", "learning 1:30", "warning"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}

	s.Session.Blocked = true
	m.SetState(s)
	if !strings.Contains(m.View(), "blocked") {
		t.Error("blocked session should say so")
	}
}
