package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
)

var _ game.Lease = (*HostLease)(nil)

type leaseEntry struct {
	owner   string
	expires time.Time
}

// HostLease is the in-process host lease. Entries expire on the given clock.
type HostLease struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]leaseEntry
}

func NewHostLease(clock clockwork.Clock) *HostLease {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HostLease{clock: clock, entries: make(map[string]leaseEntry)}
}

func (l *HostLease) Acquire(_ context.Context, roomID, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if e, ok := l.entries[roomID]; ok && e.owner != owner && now.Before(e.expires) {
		return false, nil
	}
	l.entries[roomID] = leaseEntry{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (l *HostLease) Renew(_ context.Context, roomID, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	e, ok := l.entries[roomID]
	if !ok || e.owner != owner || !now.Before(e.expires) {
		return false, nil
	}
	l.entries[roomID] = leaseEntry{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (l *HostLease) Release(_ context.Context, roomID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[roomID]; ok && e.owner == owner {
		delete(l.entries, roomID)
	}
	return nil
}
