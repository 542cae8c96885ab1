package game_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/memory"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

func nextChange(t *testing.T, sub game.Subscription) models.Change {
	t.Helper()
	select {
	case c := <-sub.Changes():
		return c
	case <-time.After(time.Second):
		t.Fatal("no change published")
		return models.Change{}
	}
}

func TestSyncedStore_PublishesAfterWrites(t *testing.T) {
	f := newFixture(t, defaultConfig(), []string{"alice", "bob"}, 1)
	broker := memory.NewBroker()
	defer broker.Close()
	synced := game.NewSyncedStore(f.store, broker, f.clock)
	ctx := context.Background()

	sub, err := synced.Subscribe(ctx, testRoom)
	require.NoError(t, err)
	defer sub.Close()

	st := models.RoomState{Started: true, CurrentPhase: models.PhaseVoting}
	require.NoError(t, synced.UpdateRoomState(ctx, testRoom, st))
	c := nextChange(t, sub)
	assert.Equal(t, models.ChangeRoom, c.Kind)
	require.NotNil(t, c.State)
	assert.Equal(t, models.PhaseVoting, c.State.CurrentPhase)
	assert.Equal(t, epoch, c.At)

	vote := &models.Vote{Key: game.VoteKey(testRoom, 0, "bob"), RoomID: testRoom, VoterID: "bob"}
	created, err := synced.CreateVote(ctx, vote)
	require.NoError(t, err)
	require.True(t, created)
	c = nextChange(t, sub)
	assert.Equal(t, models.ChangeVotes, c.Kind)
	assert.Equal(t, "bob", c.Vote.VoterID)

	// A duplicate key writes nothing and announces nothing.
	created, err = synced.CreateVote(ctx, vote)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, synced.UpdatePlayerScore(ctx, testRoom, "bob", 300))
	c = nextChange(t, sub)
	assert.Equal(t, models.ChangePlayers, c.Kind, "the duplicate vote produced no change")
	assert.Equal(t, 300, c.Player.Score)
}

func TestSyncedStore_FailedWriteIsNotAnnounced(t *testing.T) {
	f := newFixture(t, defaultConfig(), []string{"alice", "bob"}, 1)
	broker := memory.NewBroker()
	defer broker.Close()
	synced := game.NewSyncedStore(f.store, broker, f.clock)
	ctx := context.Background()

	sub, err := synced.Subscribe(ctx, "missing")
	require.NoError(t, err)
	defer sub.Close()

	err = synced.UpdateRoomState(ctx, "missing", models.RoomState{Started: true})
	assert.ErrorIs(t, err, game.ErrRoomNotFound)
	assert.Len(t, sub.Changes(), 0)
}
