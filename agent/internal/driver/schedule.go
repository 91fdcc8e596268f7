package driver

import (
	"time"

	"github.com/shotspool/shotspool/agent/internal/config"
)

// Clock supplies the current time. Tests substitute a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// schedule tracks when the next capture is due.
type schedule struct {
	mode     string
	interval time.Duration
	next     time.Time
}

func newSchedule(mode string, interval time.Duration, start time.Time) *schedule {
	// The first cycle fires immediately.
	return &schedule{mode: mode, interval: interval, next: start}
}

func (s *schedule) due(now time.Time) bool {
	return !now.Before(s.next)
}

// advance computes the next fire time after a cycle that was due at s.next
// and finished at now. Precise mode keeps the grid anchored at the previous
// fire time and skips any slots already in the past; best effort restarts
// the interval from now.
func (s *schedule) advance(now time.Time) {
	if s.mode == config.ScheduleBestEffort {
		s.next = now.Add(s.interval)
		return
	}
	s.next = s.next.Add(s.interval)
	if !s.next.After(now) {
		missed := now.Sub(s.next)/s.interval + 1
		s.next = s.next.Add(missed * s.interval)
	}
}

// reset applies a new mode or interval. The pending fire time moves earlier
// if the new interval would have fired sooner; it never moves later.
func (s *schedule) reset(mode string, interval time.Duration, now time.Time) {
	s.mode = mode
	if interval == s.interval {
		return
	}
	s.interval = interval
	if candidate := now.Add(interval); candidate.Before(s.next) {
		s.next = candidate
	}
}
