package game_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

func startedMachine(trackCount int) *game.Machine {
	start := epoch
	end := epoch.Add(5 * time.Second)
	return game.NewMachine(models.RoomState{
		Started:        true,
		CurrentPhase:   models.PhasePreparing,
		PhaseStartTime: &start,
		PhaseEndTime:   &end,
	}, 10*time.Second, trackCount, game.DefaultTiming())
}

func step(t *testing.T, m *game.Machine, now time.Time) game.Transition {
	t.Helper()
	tr, err := m.Plan(now)
	require.NoError(t, err)
	require.True(t, m.Commit(tr))
	return tr
}

func TestMachine_PhaseProgression(t *testing.T) {
	m := startedMachine(2)
	now := epoch

	type visit struct {
		round  int
		phase  models.Phase
		effect game.Effect
	}
	want := []visit{
		{0, models.PhaseVoting, game.EffectStartPlayback},
		{0, models.PhaseResults, game.EffectCloseVoting},
		{0, models.PhaseStandings, game.EffectNone},
		{1, models.PhasePreparing, game.EffectNone},
		{1, models.PhaseVoting, game.EffectStartPlayback},
		{1, models.PhaseResults, game.EffectCloseVoting},
		{1, models.PhaseStandings, game.EffectNone},
		{1, models.PhaseFinished, game.EffectFinish},
	}
	for i, w := range want {
		now = now.Add(time.Second)
		tr := step(t, m, now)
		assert.Equal(t, w.round, tr.To.CurrentRound, "step %d", i)
		assert.Equal(t, w.phase, tr.To.CurrentPhase, "step %d", i)
		assert.Equal(t, w.effect, tr.Effect, "step %d", i)
	}

	st := m.State()
	assert.True(t, st.Finished)
	assert.Nil(t, st.PhaseEndTime)

	_, err := m.Plan(now)
	assert.ErrorIs(t, err, game.ErrGameFinished)
	assert.False(t, m.Expired(now.Add(time.Hour)))
}

func TestMachine_Deadlines(t *testing.T) {
	m := startedMachine(1)
	timing := game.DefaultTiming()

	now := epoch.Add(5 * time.Second)
	tr := step(t, m, now)
	assert.Equal(t, now.Add(10*time.Second), *tr.To.PhaseEndTime, "voting uses the room's time per round")
	assert.Equal(t, now, *tr.To.PhaseStartTime)

	tr = step(t, m, now)
	assert.Equal(t, now.Add(timing.Results), *tr.To.PhaseEndTime)

	tr = step(t, m, now)
	assert.Equal(t, now.Add(timing.Standings), *tr.To.PhaseEndTime)
}

func TestMachine_NotStarted(t *testing.T) {
	m := game.NewMachine(models.RoomState{}, 10*time.Second, 0, game.DefaultTiming())
	_, err := m.Plan(epoch)
	assert.ErrorIs(t, err, game.ErrNotStarted)
	assert.False(t, m.Expired(epoch))
}

func TestMachine_CommitIsIdempotent(t *testing.T) {
	m := startedMachine(2)
	tr, err := m.Plan(epoch)
	require.NoError(t, err)

	assert.True(t, m.Commit(tr))
	assert.False(t, m.Commit(tr), "second commit of the same transition")
	assert.Equal(t, models.PhaseVoting, m.State().CurrentPhase)
}

func TestMachine_ExpiredAtDeadline(t *testing.T) {
	m := startedMachine(2)
	assert.False(t, m.Expired(epoch.Add(4*time.Second)))
	assert.True(t, m.Expired(epoch.Add(5*time.Second)))
}

func TestMachine_ScheduleAdvanceOncePerVotingPhase(t *testing.T) {
	m := startedMachine(2)

	_, ok := m.ScheduleAdvance()
	assert.False(t, ok, "nothing to schedule outside voting")

	step(t, m, epoch)
	tok, ok := m.ScheduleAdvance()
	require.True(t, ok)
	assert.True(t, m.Scheduled())

	_, ok = m.ScheduleAdvance()
	assert.False(t, ok, "second observation must not reschedule")

	assert.True(t, m.ConsumeScheduled(tok))
	assert.False(t, m.ConsumeScheduled(tok), "a token is redeemed once")
}

func TestMachine_StaleTokenRejectedAfterPhaseChange(t *testing.T) {
	m := startedMachine(2)
	step(t, m, epoch)

	tok, ok := m.ScheduleAdvance()
	require.True(t, ok)

	// Skip moves voting on before the grace timer fires.
	step(t, m, epoch.Add(time.Second))
	assert.False(t, m.Scheduled())
	assert.False(t, m.ConsumeScheduled(tok))
}

func TestMachine_CancelScheduledAllowsReschedule(t *testing.T) {
	m := startedMachine(2)
	step(t, m, epoch)

	first, ok := m.ScheduleAdvance()
	require.True(t, ok)
	m.CancelScheduled()
	assert.False(t, m.Scheduled())

	second, ok := m.ScheduleAdvance()
	require.True(t, ok)
	assert.NotEqual(t, first, second)
	assert.False(t, m.ConsumeScheduled(first))
	assert.True(t, m.ConsumeScheduled(second))
}

func TestVotesComplete(t *testing.T) {
	assert.False(t, game.VotesComplete(0, 0))
	assert.False(t, game.VotesComplete(2, 3))
	assert.True(t, game.VotesComplete(3, 3))
	assert.True(t, game.VotesComplete(4, 3))
}
