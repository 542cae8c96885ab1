package game_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
)

func TestBasePoints(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Second)

	assert.Equal(t, 1000, game.BasePoints(true, start, end, start))
	assert.Equal(t, 900, game.BasePoints(true, start, end, start.Add(time.Second)))
	assert.Equal(t, 500, game.BasePoints(true, start, end, start.Add(5*time.Second)))
	assert.Equal(t, 0, game.BasePoints(true, start, end, end))
	assert.Equal(t, 0, game.BasePoints(true, start, end, end.Add(time.Minute)))
	assert.Equal(t, 0, game.BasePoints(false, start, end, start))

	// A clock behind the phase start cannot push the score over the cap.
	assert.Equal(t, 1000, game.BasePoints(true, start, end, start.Add(-time.Second)))
	// Empty or inverted windows score nothing.
	assert.Equal(t, 0, game.BasePoints(true, start, start, start))
	assert.Equal(t, 0, game.BasePoints(true, end, start, start))
}

func TestBasePoints_StrictlyDecreasing(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Second)

	prev := game.MaxBasePoints + 1
	for elapsed := time.Duration(0); elapsed < 10*time.Second; elapsed += 250 * time.Millisecond {
		got := game.BasePoints(true, start, end, start.Add(elapsed))
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, game.MaxBasePoints)
		assert.Less(t, got, prev, "elapsed %s", elapsed)
		prev = got
	}
}

func TestStreakBonus(t *testing.T) {
	tests := map[int]int{
		0: 0,
		1: 0,
		3: 0,
		4: 100,
		5: 200,
		8: 500,
	}
	for streak, want := range tests {
		assert.Equal(t, want, game.StreakBonus(streak), "streak %d", streak)
	}
}
