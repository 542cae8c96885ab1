package game

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

// SyncedStore publishes a change notification after every successful write,
// giving a plain document store the push semantics the game relies on.
// Publish failures are logged; the write itself has already succeeded.
type SyncedStore struct {
	Store
	notifier Notifier
	clock    clockwork.Clock
}

func NewSyncedStore(store Store, notifier Notifier, clock clockwork.Clock) *SyncedStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SyncedStore{Store: store, notifier: notifier, clock: clock}
}

func (s *SyncedStore) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	return s.notifier.Subscribe(ctx, roomID)
}

func (s *SyncedStore) UpdateRoomState(ctx context.Context, roomID string, state models.RoomState) error {
	if err := s.Store.UpdateRoomState(ctx, roomID, state); err != nil {
		return err
	}
	s.publish(ctx, models.Change{Kind: models.ChangeRoom, RoomID: roomID, State: &state})
	return nil
}

func (s *SyncedStore) UpdatePlayerScore(ctx context.Context, roomID, userID string, score int) error {
	if err := s.Store.UpdatePlayerScore(ctx, roomID, userID, score); err != nil {
		return err
	}
	s.publish(ctx, models.Change{
		Kind:   models.ChangePlayers,
		RoomID: roomID,
		Player: &models.Player{RoomID: roomID, UserID: userID, Score: score},
	})
	return nil
}

func (s *SyncedStore) ReplaceTracks(ctx context.Context, roomID string, tracks []models.Track) error {
	if err := s.Store.ReplaceTracks(ctx, roomID, tracks); err != nil {
		return err
	}
	s.publish(ctx, models.Change{Kind: models.ChangeTracks, RoomID: roomID})
	return nil
}

func (s *SyncedStore) CreateVote(ctx context.Context, vote *models.Vote) (bool, error) {
	created, err := s.Store.CreateVote(ctx, vote)
	if err != nil || !created {
		return created, err
	}
	v := *vote
	s.publish(ctx, models.Change{Kind: models.ChangeVotes, RoomID: vote.RoomID, Vote: &v})
	return true, nil
}

func (s *SyncedStore) ResetRoom(ctx context.Context, roomID string) error {
	if err := s.Store.ResetRoom(ctx, roomID); err != nil {
		return err
	}
	s.publish(ctx, models.Change{Kind: models.ChangeTracks, RoomID: roomID})
	s.publish(ctx, models.Change{Kind: models.ChangeRoom, RoomID: roomID, State: &models.RoomState{}})
	return nil
}

// NotifyPlayerJoined announces a new or returning player.
func (s *SyncedStore) NotifyPlayerJoined(ctx context.Context, player models.Player) {
	p := player
	s.publish(ctx, models.Change{Kind: models.ChangePlayers, RoomID: player.RoomID, Player: &p})
}

func (s *SyncedStore) publish(ctx context.Context, change models.Change) {
	change.At = s.clock.Now()
	if err := s.notifier.Publish(ctx, change); err != nil {
		log.Warn().
			Err(err).
			Str("room_id", change.RoomID).
			Str("kind", string(change.Kind)).
			Msg("failed to publish change")
	}
}
