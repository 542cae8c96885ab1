package game_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/CarlesMG6/guessify-sub000/pkg/memory"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

const testRoom = "room-1"

var epoch = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	clock *clockwork.FakeClock
}

// newFixture seeds a room whose players own tracks in order: track i belongs
// to players[i%len(players)].
func newFixture(t *testing.T, cfg models.RoomConfig, players []string, trackCount int) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStore()

	require.NoError(t, s.CreateRoom(ctx, &models.Room{
		ID:     testRoom,
		Code:   "QWE123",
		HostID: players[0],
		Name:   "Friday",
		Config: cfg,
	}))
	for i, id := range players {
		_, err := s.AddPlayer(ctx, &models.Player{
			RoomID:      testRoom,
			UserID:      id,
			DisplayName: id,
			JoinedAt:    epoch.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	if trackCount > 0 {
		require.NoError(t, s.ReplaceTracks(ctx, testRoom, makeTracks(players, trackCount)))
	}

	return &fixture{store: s, clock: clockwork.NewFakeClockAt(epoch)}
}

func makeTracks(players []string, n int) []models.Track {
	tracks := make([]models.Track, n)
	for i := range tracks {
		tracks[i] = models.Track{
			Order:       i,
			TrackID:     fmt.Sprintf("track-%d", i),
			Name:        fmt.Sprintf("Song %d", i),
			Artists:     []string{"Band"},
			CoverURL:    "https://img.example/cover.jpg",
			OwnerUserID: players[i%len(players)],
		}
	}
	return tracks
}

func defaultConfig() models.RoomConfig {
	return models.RoomConfig{NumSongs: 1, TimePerRound: 10, Term: models.TermMedium}
}
