package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
)

const hostLeaseKeyPrefix = "room:host:"

var _ game.Lease = (*HostLease)(nil)

// Both scripts only touch the key while it still names the caller.
var (
	renewLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// HostLease keeps one server hosting each room, using SET NX with a TTL.
type HostLease struct {
	client *redis.Client
}

func NewHostLease(client *redis.Client) *HostLease {
	return &HostLease{client: client}
}

func HostLeaseKey(roomID string) string {
	return hostLeaseKeyPrefix + roomID
}

func (l *HostLease) Acquire(ctx context.Context, roomID, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, HostLeaseKey(roomID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire host lease: %w", err)
	}
	if ok {
		return true, nil
	}
	// Already ours, e.g. after the previous host loop in this process exited.
	return l.Renew(ctx, roomID, owner, ttl)
}

func (l *HostLease) Renew(ctx context.Context, roomID, owner string, ttl time.Duration) (bool, error) {
	n, err := renewLeaseScript.Run(ctx, l.client, []string{HostLeaseKey(roomID)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to renew host lease: %w", err)
	}
	return n == 1, nil
}

func (l *HostLease) Release(ctx context.Context, roomID, owner string) error {
	if err := releaseLeaseScript.Run(ctx, l.client, []string{HostLeaseKey(roomID)}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release host lease: %w", err)
	}
	return nil
}
