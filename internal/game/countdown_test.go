package game_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

func TestCountdown_Remaining(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	cd := game.Countdown{Start: start, End: start.Add(10 * time.Second)}

	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"at start", 0, 10},
		{"partial second rounds up", 300 * time.Millisecond, 10},
		{"one second in", time.Second, 9},
		{"last partial second", 9500 * time.Millisecond, 1},
		{"at deadline", 10 * time.Second, 0},
		{"after deadline", time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cd.Remaining(start.Add(tt.elapsed)))
		})
	}
}

func TestCountdown_Progress(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	cd := game.Countdown{Start: start, End: start.Add(10 * time.Second)}

	assert.Equal(t, 0.0, cd.Progress(start.Add(-time.Second)))
	assert.Equal(t, 0.0, cd.Progress(start))
	assert.InDelta(t, 25.0, cd.Progress(start.Add(2500*time.Millisecond)), 0.001)
	assert.Equal(t, 100.0, cd.Progress(start.Add(time.Hour)))

	skewed := game.Countdown{Start: start, End: start.Add(-time.Second)}
	assert.Equal(t, 0.0, skewed.Progress(start))

	assert.Equal(t, 0.0, game.Countdown{}.Progress(start))
}

func TestCountdownFor(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Second)

	cd := game.CountdownFor(models.RoomState{PhaseStartTime: &start, PhaseEndTime: &end})
	assert.Equal(t, 5, cd.Remaining(start))
	assert.False(t, cd.Expired(start.Add(4*time.Second)))
	assert.True(t, cd.Expired(end))

	empty := game.CountdownFor(models.RoomState{})
	assert.Equal(t, 0, empty.Remaining(start))
	assert.False(t, empty.Expired(start))
}
