package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	roomCodeKeyPrefix = "room:code:"
	roomCodeTTL       = 24 * time.Hour
)

// RoomCodeCache maps join codes to room IDs so lookups skip the database.
type RoomCodeCache struct {
	client *redis.Client
}

func NewRoomCodeCache(client *redis.Client) *RoomCodeCache {
	return &RoomCodeCache{client: client}
}

func (c *RoomCodeCache) Set(ctx context.Context, code, roomID string) error {
	if err := c.client.Set(ctx, roomCodeKeyPrefix+code, roomID, roomCodeTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache room code: %w", err)
	}
	return nil
}

// Get returns the cached room ID, or "" on a miss.
func (c *RoomCodeCache) Get(ctx context.Context, code string) (string, error) {
	roomID, err := c.client.Get(ctx, roomCodeKeyPrefix+code).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read room code: %w", err)
	}
	return roomID, nil
}
