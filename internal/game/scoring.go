package game

import (
	"math"
	"time"
)

const (
	MaxBasePoints   = 1000
	streakThreshold = 3
	streakStep      = 100
)

// BasePoints decays linearly from MaxBasePoints at the phase start to zero at
// the deadline. Incorrect votes score nothing.
func BasePoints(correct bool, phaseStart, phaseEnd, now time.Time) int {
	if !correct {
		return 0
	}
	total := phaseEnd.Sub(phaseStart)
	if total <= 0 {
		return 0
	}
	remaining := total - now.Sub(phaseStart)
	if remaining <= 0 {
		return 0
	}
	if remaining > total {
		remaining = total
	}
	return int(math.Round(MaxBasePoints * float64(remaining) / float64(total)))
}

// StreakBonus is 100 points for the 4th consecutive correct vote, 200 for the
// 5th and so on.
func StreakBonus(streak int) int {
	if streak <= streakThreshold {
		return 0
	}
	return (streak - streakThreshold) * streakStep
}
