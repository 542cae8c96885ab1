package spotify

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/pkg/redis"
)

// TokenStore persists users' OAuth grants.
type TokenStore interface {
	StoreTokens(ctx context.Context, userID string, token *redis.TokenInfo) error
	GetTokens(ctx context.Context, userID string) (*redis.TokenInfo, error)
	RefreshToken(ctx context.Context, userID string, newAccessToken string, newExpiresAt time.Time) error
	DeleteToken(ctx context.Context, userID string) error
}

// Tokens hands out valid access tokens, refreshing expired ones.
type Tokens struct {
	client *Client
	store  TokenStore
	clock  clockwork.Clock
}

func NewTokens(client *Client, store TokenStore, clock clockwork.Clock) *Tokens {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tokens{client: client, store: store, clock: clock}
}

func (t *Tokens) AccessToken(ctx context.Context, userID string) (string, error) {
	info, err := t.store.GetTokens(ctx, userID)
	if err != nil {
		return "", err
	}
	if !info.Expired(t.clock.Now()) {
		return info.AccessToken, nil
	}

	refreshed, err := t.client.RefreshToken(ctx, info.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	expiresAt := refreshed.ExpiresAt(t.clock.Now())
	if err := t.store.RefreshToken(ctx, userID, refreshed.AccessToken, expiresAt); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to save refreshed token")
	}
	return refreshed.AccessToken, nil
}
