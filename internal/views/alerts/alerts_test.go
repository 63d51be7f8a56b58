package alerts

import (
	"strings"
	"testing"

	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
)

func TestViewEmpty(t *testing.T) {
	if v := View(nil, 5, 80); !strings.Contains(v, "No alerts.") {
		t.Errorf("empty view = %q", v)
	}
}

func TestViewNewestFirstWithLimit(t *testing.T) {
	recent := []event.SafetyAlert{
		{Level: event.SeverityLow, Type: event.AlertTimeViolation, Description: "first"},
		{Level: event.SeverityHigh, Type: event.AlertCheatingAttempt, Description: "second"},
		{Level: event.SeverityCritical, Type: event.AlertExternalAIUsage, Description: "third"},
	}

	v := View(recent, 2, 100)
	if strings.Contains(v, "first") {
		t.Error("alerts past the limit should be hidden")
	}
	second, third := strings.Index(v, "second"), strings.Index(v, "third")
	if second < 0 || third < 0 {
		t.Fatalf("view missing alerts:\n%s", v)
	}
	if third > second {
		t.Errorf("newest alert should come first:\n%s", v)
	}
}

func TestViewTruncatesLongText(t *testing.T) {
	recent := []event.SafetyAlert{{
		Level:       event.SeverityMedium,
		Type:        event.AlertInappropriateContent,
		Description: strings.Repeat("x", 200),
	}}
	v := View(recent, 0, 40)
	if !strings.Contains(v, "...") || strings.Contains(v, strings.Repeat("x", 40)) {
		t.Errorf("long description not truncated:\n%s", v)
	}
}
