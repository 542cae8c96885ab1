package game_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

func setState(t *testing.T, f *fixture, round int, phase models.Phase, d time.Duration) models.RoomState {
	t.Helper()
	start := f.clock.Now()
	end := start.Add(d)
	st := models.RoomState{
		Started:        true,
		CurrentRound:   round,
		CurrentPhase:   phase,
		PhaseStartTime: &start,
		PhaseEndTime:   &end,
	}
	require.NoError(t, f.store.UpdateRoomState(context.Background(), testRoom, st))
	return st
}

func TestFollower_WaitingBeforeStart(t *testing.T) {
	f := newFixture(t, defaultConfig(), []string{"alice", "bob"}, 0)
	fol := game.NewFollower(testRoom, "bob", f.store, f.clock)
	require.NoError(t, fol.Sync(context.Background()))

	v := fol.View()
	assert.Equal(t, game.ViewWaiting, v.Kind)
	assert.Len(t, v.Players, 2)
	assert.Nil(t, v.Track)

	_, err := fol.SubmitVote(context.Background(), "alice")
	assert.ErrorIs(t, err, game.ErrNotStarted)
}

func TestFollower_VotingHidesTrackPerConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.RevealArtists = true
	f := newFixture(t, cfg, []string{"alice", "bob"}, 2)
	setState(t, f, 0, models.PhaseVoting, 10*time.Second)

	fol := game.NewFollower(testRoom, "bob", f.store, f.clock)
	require.NoError(t, fol.Sync(context.Background()))

	f.clock.Advance(2500 * time.Millisecond)
	v := fol.View()
	assert.Equal(t, game.ViewVoting, v.Kind)
	assert.Equal(t, 8, v.Remaining)
	assert.InDelta(t, 25.0, v.Progress, 0.001)
	assert.Equal(t, 2, v.TotalRounds)
	require.NotNil(t, v.Track)
	assert.Empty(t, v.Track.Name)
	assert.Empty(t, v.Track.CoverURL)
	assert.Equal(t, []string{"Band"}, v.Track.Artists)
	assert.Empty(t, v.Track.OwnerUserID)
}

func TestFollower_SubmitVoteOnceThenVotedView(t *testing.T) {
	f := newFixture(t, defaultConfig(), []string{"alice", "bob"}, 2)
	setState(t, f, 0, models.PhaseVoting, 10*time.Second)
	ctx := context.Background()

	fol := game.NewFollower(testRoom, "bob", f.store, f.clock)
	require.NoError(t, fol.Sync(ctx))

	f.clock.Advance(time.Second)
	v, err := fol.SubmitVote(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 900, v.Points)

	view := fol.View()
	assert.Equal(t, game.ViewVoted, view.Kind)
	require.NotNil(t, view.MyVote)
	assert.Equal(t, "alice", view.MyVote.VotedForID)
	assert.Equal(t, 1, view.VotesIn)

	again, err := fol.SubmitVote(ctx, "bob")
	assert.ErrorIs(t, err, game.ErrAlreadyVoted)
	assert.Equal(t, "alice", again.VotedForID)

	// A fresh replica sees the stored vote and refuses too.
	other := game.NewFollower(testRoom, "bob", f.store, f.clock)
	require.NoError(t, other.Sync(ctx))
	assert.Equal(t, game.ViewVoted, other.View().Kind)
	_, err = other.SubmitVote(ctx, "bob")
	assert.ErrorIs(t, err, game.ErrAlreadyVoted)
}

func TestFollower_VotingClosed(t *testing.T) {
	f := newFixture(t, defaultConfig(), []string{"alice", "bob"}, 2)
	setState(t, f, 0, models.PhaseResults, 8*time.Second)
	ctx := context.Background()

	fol := game.NewFollower(testRoom, "bob", f.store, f.clock)
	require.NoError(t, fol.Sync(ctx))

	_, err := fol.SubmitVote(ctx, "alice")
	assert.ErrorIs(t, err, game.ErrVotingClosed)

	v := fol.View()
	assert.Equal(t, game.ViewResults, v.Kind)
	require.NotNil(t, v.Track)
	assert.Equal(t, "alice", v.Track.OwnerUserID)
	assert.Equal(t, "Song 0", v.Track.Name)
}

func TestFollower_ApplyChanges(t *testing.T) {
	f := newFixture(t, defaultConfig(), []string{"alice", "bob"}, 2)
	st := setState(t, f, 0, models.PhaseVoting, 10*time.Second)
	ctx := context.Background()

	fol := game.NewFollower(testRoom, "bob", f.store, f.clock)
	require.NoError(t, fol.Sync(ctx))

	resync := fol.Apply(models.Change{
		Kind:   models.ChangeVotes,
		RoomID: testRoom,
		Vote:   &models.Vote{Key: game.VoteKey(testRoom, 0, "alice"), RoomID: testRoom, Round: 0, VoterID: "alice"},
	})
	assert.False(t, resync)
	assert.Equal(t, 1, fol.View().VotesIn)

	resync = fol.Apply(models.Change{
		Kind:   models.ChangePlayers,
		RoomID: testRoom,
		Player: &models.Player{RoomID: testRoom, UserID: "alice", Score: 700},
	})
	assert.False(t, resync)
	assert.Equal(t, "alice", fol.View().Players[0].UserID)
	assert.Equal(t, 700, fol.View().Players[0].Score)

	results := st
	results.CurrentPhase = models.PhaseResults
	assert.False(t, fol.Apply(models.Change{Kind: models.ChangeRoom, RoomID: testRoom, State: &results}))
	assert.Equal(t, game.ViewResults, fol.View().Kind)

	next := st
	next.CurrentRound = 1
	next.CurrentPhase = models.PhasePreparing
	assert.True(t, fol.Apply(models.Change{Kind: models.ChangeRoom, RoomID: testRoom, State: &next}), "new round needs its votes loaded")
	assert.Equal(t, 0, fol.View().VotesIn)

	standings := next
	standings.CurrentPhase = models.PhaseStandings
	assert.True(t, fol.Apply(models.Change{Kind: models.ChangeRoom, RoomID: testRoom, State: &standings}), "missed voting and results")

	assert.True(t, fol.Apply(models.Change{Kind: models.ChangeTracks, RoomID: testRoom}))
	assert.False(t, fol.Apply(models.Change{Kind: models.ChangeVotes, RoomID: "other-room"}))

	assert.False(t, fol.Apply(models.Change{Kind: models.ChangeRoom, RoomID: testRoom, State: &models.RoomState{}}))
	assert.Equal(t, game.ViewWaiting, fol.View().Kind)
	assert.Zero(t, fol.View().Players[0].Score)
}

func TestFollower_NewPlayerJoins(t *testing.T) {
	f := newFixture(t, defaultConfig(), []string{"alice", "bob"}, 0)
	fol := game.NewFollower(testRoom, "bob", f.store, f.clock)
	require.NoError(t, fol.Sync(context.Background()))

	assert.False(t, fol.Apply(models.Change{
		Kind:   models.ChangePlayers,
		RoomID: testRoom,
		Player: &models.Player{RoomID: testRoom, UserID: "carol", DisplayName: "Carol"},
	}))
	assert.Len(t, fol.View().Players, 3)
}

func TestFollower_FinishedView(t *testing.T) {
	f := newFixture(t, defaultConfig(), []string{"alice", "bob"}, 1)
	require.NoError(t, f.store.UpdateRoomState(context.Background(), testRoom, models.RoomState{
		Started: true, Finished: true, CurrentPhase: models.PhaseFinished,
	}))
	require.NoError(t, f.store.UpdatePlayerScore(context.Background(), testRoom, "bob", 1200))

	fol := game.NewFollower(testRoom, "alice", f.store, f.clock)
	require.NoError(t, fol.Sync(context.Background()))

	v := fol.View()
	assert.Equal(t, game.ViewFinished, v.Kind)
	assert.Equal(t, "bob", v.Players[0].UserID)
	assert.Zero(t, v.Remaining)

	_, err := fol.SubmitVote(context.Background(), "bob")
	assert.ErrorIs(t, err, game.ErrGameFinished)
}

func TestFollower_SubmitVoteRereadsPhase(t *testing.T) {
	f := newFixture(t, defaultConfig(), []string{"alice", "bob"}, 2)
	setState(t, f, 0, models.PhaseVoting, 10*time.Second)
	ctx := context.Background()

	fol := game.NewFollower(testRoom, "bob", f.store, f.clock)
	require.NoError(t, fol.Sync(ctx))

	// The host closes voting; this replica has not heard about it yet.
	setState(t, f, 0, models.PhaseResults, 8*time.Second)
	_, err := fol.SubmitVote(ctx, "alice")
	assert.ErrorIs(t, err, game.ErrVotingClosed)
	assert.Equal(t, game.ViewResults, fol.View().Kind)

	votes, err := f.store.GetVotes(ctx, testRoom)
	require.NoError(t, err)
	assert.Empty(t, votes)
}
