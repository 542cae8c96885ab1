package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenNotFound = errors.New("token not found")

const tokenKeyPrefix = "token:"

// TokenInfo is a user's Spotify OAuth grant.
type TokenInfo struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is stale at now, keeping a small
// margin so a token is not used in its last seconds.
func (t *TokenInfo) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt.Add(-30 * time.Second))
}

type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// StoreTokens stores the user's Spotify tokens in Redis
func (s *TokenStore) StoreTokens(ctx context.Context, userID string, token *TokenInfo) error {
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	// The refresh token outlives the access token, so the key does not expire.
	if err := s.client.Set(ctx, tokenKeyPrefix+userID, tokenJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	return nil
}

func (s *TokenStore) GetTokens(ctx context.Context, userID string) (*TokenInfo, error) {
	tokenJSON, err := s.client.Get(ctx, tokenKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token TokenInfo
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

func (s *TokenStore) DeleteToken(ctx context.Context, userID string) error {
	return s.client.Del(ctx, tokenKeyPrefix+userID).Err()
}

// RefreshToken updates the access token and its expiry in Redis
func (s *TokenStore) RefreshToken(ctx context.Context, userID string, newAccessToken string, newExpiresAt time.Time) error {
	token, err := s.GetTokens(ctx, userID)
	if err != nil {
		return err
	}

	token.AccessToken = newAccessToken
	token.ExpiresAt = newExpiresAt
	return s.StoreTokens(ctx, userID, token)
}
