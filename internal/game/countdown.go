package game

import (
	"time"

	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

// Countdown turns a shared phase window into local readings. Readings are
// always recomputed from the absolute deadline, never decremented, so every
// participant shows the same value regardless of when it started ticking.
type Countdown struct {
	Start time.Time
	End   time.Time
}

// CountdownFor returns the countdown of the room's current phase.
func CountdownFor(state models.RoomState) Countdown {
	var c Countdown
	if state.PhaseStartTime != nil {
		c.Start = *state.PhaseStartTime
	}
	if state.PhaseEndTime != nil {
		c.End = *state.PhaseEndTime
	}
	return c
}

// Remaining returns whole seconds left until the deadline, rounded up and
// clamped to zero.
func (c Countdown) Remaining(now time.Time) int {
	if c.End.IsZero() {
		return 0
	}
	left := c.End.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// Progress returns the elapsed share of the phase in percent, clamped to
// [0, 100]. A non-positive window yields 0.
func (c Countdown) Progress(now time.Time) float64 {
	if c.Start.IsZero() || c.End.IsZero() {
		return 0
	}
	total := c.End.Sub(c.Start)
	if total <= 0 {
		return 0
	}
	p := float64(now.Sub(c.Start)) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Expired reports whether the deadline has been reached.
func (c Countdown) Expired(now time.Time) bool {
	return !c.End.IsZero() && !now.Before(c.End)
}
