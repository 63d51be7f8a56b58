package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/meinzeug-cloud/mrsunkwn/internal/event"
)

// Sample is one reading of device load.
type Sample struct {
	CPUPercent float64
	MemPercent float64
}

// Sampler reads device load.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// HostSampler reads the load of the machine the server runs on.
type HostSampler struct{}

func (HostSampler) Sample(ctx context.Context) (Sample, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Sample{}, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}
	var s Sample
	if len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	s.MemPercent = vm.UsedPercent
	return s, nil
}

// warnThreshold is the load percentage above which a device reports warning.
const warnThreshold = 90.0

// StatusFor maps a load sample to a device status.
func StatusFor(s Sample) event.DeviceStatus {
	if s.CPUPercent > warnThreshold || s.MemPercent > warnThreshold {
		return event.DeviceWarning
	}
	return event.DeviceSecure
}

// Generator publishes a synthetic monitoring feed to every connected subject.
type Generator struct {
	server   *Server
	sampler  Sampler
	interval time.Duration
	rng      *rand.Rand
	log      *slog.Logger
}

func NewGenerator(server *Server, sampler Sampler, interval time.Duration, logger *slog.Logger) *Generator {
	if sampler == nil {
		sampler = HostSampler{}
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		server:   server,
		sampler:  sampler,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      logger,
	}
}

// Run publishes until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick++
			for _, subject := range g.server.Hub().Subjects() {
				for _, p := range g.frames(ctx, tick) {
					if _, err := g.server.Publish(subject, p); err != nil {
						g.log.Warn("devserver.Generator: publish failed", "subject", subject, "error", err)
					}
				}
			}
		}
	}
}

// frames returns the payloads for one tick: a device reading every tick and
// occasional learning, alert and parent frames.
func (g *Generator) frames(ctx context.Context, tick int) []event.Payload {
	now := time.Now().UTC().Format(time.RFC3339)
	var out []event.Payload

	upd := event.MonitoringUpdate{DeviceStatus: event.DeviceSecure, ReportedAt: now}
	if s, err := g.sampler.Sample(ctx); err != nil {
		g.log.Debug("devserver.Generator: sample failed", "error", err)
	} else {
		cpuPct, memPct := s.CPUPercent, s.MemPercent
		upd.DeviceStatus = StatusFor(s)
		upd.CPUPercent = &cpuPct
		upd.MemPercent = &memPct
	}
	out = append(out, upd)

	if tick%4 == 0 {
		data, _ := json.Marshal(map[string]any{"badge": "steady-streak", "tick": tick})
		out = append(out, event.LearningEvent{Type: event.LearningAchievement, Data: data, ReportedAt: now})
	}
	if tick%7 == 0 {
		levels := []event.Severity{event.SeverityLow, event.SeverityMedium, event.SeverityHigh, event.SeverityCritical}
		types := []event.AlertType{event.AlertExternalAIUsage, event.AlertTimeViolation, event.AlertCheatingAttempt}
		out = append(out, event.SafetyAlert{
			Level:             levels[g.rng.Intn(len(levels))],
			Type:              types[g.rng.Intn(len(types))],
			Description:       "Synthetic alert from the development server",
			RecommendedAction: "review",
			ReportedAt:        now,
		})
	}
	if tick%11 == 0 {
		out = append(out, event.ParentIntervention{
			Action:     event.ActionMessage,
			Reason:     "Remember to take a short break soon.",
			ParentID:   "dev-parent",
			ReportedAt: now,
		})
	}
	return out
}
