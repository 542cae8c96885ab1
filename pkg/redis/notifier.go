package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

const (
	changeChannelPrefix = "room-changes:"
	changeBuffer        = 256
)

var _ game.Notifier = (*Notifier)(nil)

// Notifier carries room changes over Redis Pub/Sub so every server process
// sees the writes of the others.
type Notifier struct {
	client *redis.Client
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func ChangeChannel(roomID string) string {
	return changeChannelPrefix + roomID
}

func (n *Notifier) Publish(ctx context.Context, change models.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	if err := n.client.Publish(ctx, ChangeChannel(change.RoomID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

func (n *Notifier) Subscribe(ctx context.Context, roomID string) (game.Subscription, error) {
	pubsub := n.client.Subscribe(ctx, ChangeChannel(roomID))
	// Wait for the confirmation so no change published after this call is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room changes: %w", err)
	}

	sub := &subscription{
		pubsub: pubsub,
		ch:     make(chan models.Change, changeBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump(roomID)
	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	ch     chan models.Change
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Changes() <-chan models.Change { return s.ch }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *subscription) pump(roomID string) {
	defer close(s.ch)
	msgs := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			change, err := DecodeChange([]byte(msg.Payload))
			if err != nil {
				log.Warn().Err(err).Str("room_id", roomID).Msg("dropping malformed change")
				continue
			}
			select {
			case s.ch <- change:
			case <-s.done:
				return
			default:
				log.Warn().Str("room_id", roomID).Msg("subscriber buffer full, dropping change")
			}
		}
	}
}

// DecodeChange parses a change published by any notifier backend.
func DecodeChange(payload []byte) (models.Change, error) {
	var change models.Change
	if err := json.Unmarshal(payload, &change); err != nil {
		return models.Change{}, fmt.Errorf("failed to unmarshal change: %w", err)
	}
	return change, nil
}
