// Package backoff computes wait schedules for request retries and stream
// reconnects.
package backoff

import (
	"context"
	"time"
)

// Schedule describes the delay before the n-th retry. A Factor of 1 (or
// anything below it) yields a fixed delay of Initial.
type Schedule struct {
	Initial time.Duration
	Max     time.Duration // 0 = no cap
	Factor  float64
}

// Fixed returns a schedule that always waits d.
func Fixed(d time.Duration) Schedule {
	return Schedule{Initial: d, Factor: 1}
}

// Exponential returns a schedule starting at initial, multiplied by factor on
// each retry and capped at max.
func Exponential(initial, max time.Duration, factor float64) Schedule {
	return Schedule{Initial: initial, Max: max, Factor: factor}
}

// Delay returns the wait before retry n (0-based).
func (s Schedule) Delay(n int) time.Duration {
	if s.Initial <= 0 {
		return 0
	}
	d := s.Initial
	if s.Factor > 1 {
		f := float64(s.Initial)
		for i := 0; i < n; i++ {
			f *= s.Factor
			if s.Max > 0 && f >= float64(s.Max) {
				return s.Max
			}
		}
		d = time.Duration(f)
	}
	if s.Max > 0 && d > s.Max {
		d = s.Max
	}
	return d
}

// IsFixed reports whether the schedule never grows.
func (s Schedule) IsFixed() bool {
	return s.Factor <= 1
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
