package game

import (
	"context"
	"time"

	"github.com/CarlesMG6/guessify-sub000/pkg/events"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

// Store is the shared document store the game runs on.
//
// Reads of absent documents return (nil, nil) except GetRoom, which returns
// ErrRoomNotFound.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	UpdateRoomState(ctx context.Context, roomID string, state models.RoomState) error
	GetPlayers(ctx context.Context, roomID string) ([]models.Player, error)
	UpdatePlayerScore(ctx context.Context, roomID, userID string, score int) error
	GetTracks(ctx context.Context, roomID string) ([]models.Track, error)
	ReplaceTracks(ctx context.Context, roomID string, tracks []models.Track) error
	// CreateVote inserts the vote unless its key already exists. It reports
	// whether this call created the entry.
	CreateVote(ctx context.Context, vote *models.Vote) (bool, error)
	GetVote(ctx context.Context, key string) (*models.Vote, error)
	GetVotesForRound(ctx context.Context, roomID string, round int) ([]models.Vote, error)
	GetVotes(ctx context.Context, roomID string) ([]models.Vote, error)
	// ResetRoom deletes votes and tracks, zeroes scores and clears the room state.
	ResetRoom(ctx context.Context, roomID string) error
}

// Subscription is a stream of changes for one room. Close stops delivery
// and closes the Changes channel.
type Subscription interface {
	Changes() <-chan models.Change
	Close() error
}

// Notifier carries change notifications between participants.
type Notifier interface {
	Publish(ctx context.Context, change models.Change) error
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}

// Feed opens change subscriptions for a room.
type Feed interface {
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}

// Playback controls the external audio player.
type Playback interface {
	StartPlayback(ctx context.Context, track models.Track) error
	StopPlayback(ctx context.Context) error
}

// PlaylistGenerator builds the ordered track list for a game.
type PlaylistGenerator interface {
	Generate(ctx context.Context, players []models.Player, perPlayer int, term models.Term) ([]models.Track, error)
}

// EventPublisher records game events for downstream consumers.
type EventPublisher interface {
	PublishGameEvent(ctx context.Context, eventType events.EventType, roomID string, payload interface{}) error
}

// Lease grants one server at a time the right to host a room. Acquire and
// Renew report false when another owner holds the lease.
type Lease interface {
	Acquire(ctx context.Context, roomID, owner string, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, roomID, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, roomID, owner string) error
}

type nopPlayback struct{}

// NopPlayback is used when no audio device is attached to a room.
func NopPlayback() Playback { return nopPlayback{} }

func (nopPlayback) StartPlayback(context.Context, models.Track) error { return nil }
func (nopPlayback) StopPlayback(context.Context) error                { return nil }
