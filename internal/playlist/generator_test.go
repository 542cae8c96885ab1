package playlist

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) TopTracks(ctx context.Context, userID string, term models.Term, limit int) ([]models.Track, error) {
	args := m.Called(ctx, userID, term, limit)
	tracks, _ := args.Get(0).([]models.Track)
	return tracks, args.Error(1)
}

func history(ids ...string) []models.Track {
	out := make([]models.Track, len(ids))
	for i, id := range ids {
		out[i] = models.Track{TrackID: id, Name: "Song " + id}
	}
	return out
}

func players(ids ...string) []models.Player {
	out := make([]models.Player, len(ids))
	for i, id := range ids {
		out[i] = models.Player{UserID: id}
	}
	return out
}

func newTestGenerator(src Source) *Generator {
	return NewGeneratorWithRand(src, rand.New(rand.NewSource(1)))
}

func byTrackID(tracks []models.Track) map[string]models.Track {
	out := make(map[string]models.Track, len(tracks))
	for _, t := range tracks {
		out[t.TrackID] = t
	}
	return out
}

func TestGenerate_OwnershipGoesToBestRank(t *testing.T) {
	src := &mockSource{}
	src.On("TopTracks", mock.Anything, "alice", models.TermShort, poolSize).Return(history("a1", "shared", "a2"), nil)
	src.On("TopTracks", mock.Anything, "bob", models.TermShort, poolSize).Return(history("shared", "b1", "b2"), nil)

	tracks, err := newTestGenerator(src).Generate(context.Background(), players("alice", "bob"), 2, models.TermShort)
	require.NoError(t, err)
	require.Len(t, tracks, 4)

	got := byTrackID(tracks)
	shared := got["shared"]
	assert.Equal(t, "bob", shared.OwnerUserID)
	assert.Equal(t, 0, shared.OwnerPosition)
	assert.Equal(t, []models.TrackHolder{{UserID: "alice", Position: 1}}, shared.OtherPlayersWithTrack)

	// bob's quota is filled by shared and b1, alice keeps her own top two.
	assert.Contains(t, got, "a1")
	assert.Contains(t, got, "a2")
	assert.Contains(t, got, "b1")
	assert.NotContains(t, got, "b2")
	src.AssertExpectations(t)
}

func TestGenerate_TieKeepsEarlierJoiner(t *testing.T) {
	src := &mockSource{}
	src.On("TopTracks", mock.Anything, "alice", models.TermMedium, poolSize).Return(history("x", "same"), nil)
	src.On("TopTracks", mock.Anything, "bob", models.TermMedium, poolSize).Return(history("y", "same"), nil)
	src.On("TopTracks", mock.Anything, "carol", models.TermMedium, poolSize).Return(history("same"), nil)

	tracks, err := newTestGenerator(src).Generate(context.Background(), players("alice", "bob", "carol"), 5, models.TermMedium)
	require.NoError(t, err)

	same := byTrackID(tracks)["same"]
	assert.Equal(t, "carol", same.OwnerUserID)
	assert.Equal(t, 0, same.OwnerPosition)
	assert.ElementsMatch(t, []models.TrackHolder{
		{UserID: "alice", Position: 1},
		{UserID: "bob", Position: 1},
	}, same.OtherPlayersWithTrack)

	src2 := &mockSource{}
	src2.On("TopTracks", mock.Anything, "alice", models.TermMedium, poolSize).Return(history("same"), nil)
	src2.On("TopTracks", mock.Anything, "bob", models.TermMedium, poolSize).Return(history("same"), nil)

	tracks, err = newTestGenerator(src2).Generate(context.Background(), players("alice", "bob"), 5, models.TermMedium)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "alice", tracks[0].OwnerUserID)
	assert.Equal(t, []models.TrackHolder{{UserID: "bob", Position: 0}}, tracks[0].OtherPlayersWithTrack)
}

func TestGenerate_CapsPerPlayerAndAssignsOrder(t *testing.T) {
	src := &mockSource{}
	src.On("TopTracks", mock.Anything, "alice", models.TermLong, poolSize).Return(history("a1", "a2", "a3", "a4"), nil)
	src.On("TopTracks", mock.Anything, "bob", models.TermLong, poolSize).Return(history("b1"), nil)

	tracks, err := newTestGenerator(src).Generate(context.Background(), players("alice", "bob"), 2, models.TermLong)
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	var ids []string
	for i, tr := range tracks {
		assert.Equal(t, i, tr.Order)
		ids = append(ids, tr.TrackID)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"a1", "a2", "b1"}, ids)
}

func TestGenerate_SkipsPlayerWithoutHistory(t *testing.T) {
	src := &mockSource{}
	src.On("TopTracks", mock.Anything, "alice", models.TermShort, poolSize).Return(history("a1"), nil)
	src.On("TopTracks", mock.Anything, "guest", models.TermShort, poolSize).Return(nil, errors.New("no token"))

	tracks, err := newTestGenerator(src).Generate(context.Background(), players("alice", "guest"), 3, models.TermShort)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "alice", tracks[0].OwnerUserID)
}

func TestGenerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &mockSource{}
	src.On("TopTracks", mock.Anything, "alice", models.TermShort, poolSize).Return(nil, context.Canceled)

	_, err := newTestGenerator(src).Generate(ctx, players("alice"), 3, models.TermShort)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_Empty(t *testing.T) {
	g := newTestGenerator(&mockSource{})
	tracks, err := g.Generate(context.Background(), nil, 3, models.TermShort)
	require.NoError(t, err)
	assert.Empty(t, tracks)

	tracks, err = g.Generate(context.Background(), players("alice"), 0, models.TermShort)
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestCatalogSource_StablePerUser(t *testing.T) {
	src := DemoCatalog()
	first, err := src.TopTracks(context.Background(), "alice", models.TermShort, 50)
	require.NoError(t, err)
	again, err := src.TopTracks(context.Background(), "alice", models.TermLong, 50)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Len(t, first, 8)

	limited, err := src.TopTracks(context.Background(), "alice", models.TermShort, 3)
	require.NoError(t, err)
	assert.Equal(t, first[:3], limited)

	empty, err := NewCatalogSource(nil).TopTracks(context.Background(), "alice", models.TermShort, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
