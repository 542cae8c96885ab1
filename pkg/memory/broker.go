package memory

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

const subscriberBuffer = 256

var _ game.Notifier = (*Broker)(nil)

// Broker fans change notifications out to in-process subscribers. Publish
// never blocks; a subscriber whose buffer is full misses the change and is
// expected to catch up on its next resync.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*subscription]struct{})}
}

func (b *Broker) Publish(_ context.Context, change models.Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[change.RoomID] {
		sub.deliver(change)
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, roomID string) (game.Subscription, error) {
	sub := &subscription{
		broker: b,
		roomID: roomID,
		ch:     make(chan models.Change, subscriberBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub, nil
	}
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[*subscription]struct{})
	}
	b.subs[roomID][sub] = struct{}{}
	return sub, nil
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for sub := range subs {
			sub.closeLocked()
		}
	}
	b.subs = make(map[string]map[*subscription]struct{})
}

func (b *Broker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[sub.roomID]; ok {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			sub.closeLocked()
		}
		if len(subs) == 0 {
			delete(b.subs, sub.roomID)
		}
	}
}

type subscription struct {
	broker *Broker
	roomID string
	ch     chan models.Change
	once   sync.Once
}

func (s *subscription) Changes() <-chan models.Change { return s.ch }

func (s *subscription) Close() error {
	s.broker.remove(s)
	return nil
}

// deliver runs under the broker's read lock, so it never races closeLocked.
func (s *subscription) deliver(change models.Change) {
	select {
	case s.ch <- change:
	default:
		log.Warn().
			Str("room_id", s.roomID).
			Str("kind", string(change.Kind)).
			Msg("subscriber buffer full, dropping change")
	}
}

func (s *subscription) closeLocked() {
	s.once.Do(func() { close(s.ch) })
}
