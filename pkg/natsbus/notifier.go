// Package natsbus carries room change notifications over NATS core subjects.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

const changeBuffer = 256

var _ game.Notifier = (*Notifier)(nil)

type Notifier struct {
	conn *nats.Conn
}

// Connect dials the server with reconnects enabled for the process lifetime.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("guessify"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

func NewNotifier(conn *nats.Conn) *Notifier {
	return &Notifier{conn: conn}
}

// Subject is the subject a room's changes are published on.
func Subject(roomID string) string {
	return "guessify.rooms." + roomID + ".changes"
}

func (n *Notifier) Publish(_ context.Context, change models.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	if err := n.conn.Publish(Subject(change.RoomID), data); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

func (n *Notifier) Subscribe(_ context.Context, roomID string) (game.Subscription, error) {
	sub := &subscription{ch: make(chan models.Change, changeBuffer)}
	ns, err := n.conn.Subscribe(Subject(roomID), func(msg *nats.Msg) {
		var change models.Change
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("dropping malformed change")
			return
		}
		sub.deliver(roomID, change)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room changes: %w", err)
	}
	sub.nsub = ns
	return sub, nil
}

type subscription struct {
	nsub   *nats.Subscription
	mu     sync.Mutex
	closed bool
	ch     chan models.Change
}

func (s *subscription) Changes() <-chan models.Change { return s.ch }

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.nsub.Unsubscribe()
	close(s.ch)
	return err
}

// deliver is called from the NATS dispatch goroutine.
func (s *subscription) deliver(roomID string, change models.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- change:
	default:
		log.Warn().Str("room_id", roomID).Msg("subscriber buffer full, dropping change")
	}
}
