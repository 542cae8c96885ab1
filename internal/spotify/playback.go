package spotify

import (
	"context"
	"fmt"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

var _ game.Playback = (*Player)(nil)

// Player plays round tracks on the room host's Spotify device.
type Player struct {
	client   *Client
	tokens   *Tokens
	hostID   string
	deviceID string
}

func NewPlayer(client *Client, tokens *Tokens, hostID, deviceID string) *Player {
	return &Player{client: client, tokens: tokens, hostID: hostID, deviceID: deviceID}
}

func (p *Player) StartPlayback(ctx context.Context, track models.Track) error {
	token, err := p.tokens.AccessToken(ctx, p.hostID)
	if err != nil {
		return fmt.Errorf("no host token: %w", err)
	}
	uri := track.URI
	if uri == "" {
		uri = "spotify:track:" + track.TrackID
	}
	return p.client.PlayTrack(ctx, token, p.deviceID, uri)
}

func (p *Player) StopPlayback(ctx context.Context) error {
	token, err := p.tokens.AccessToken(ctx, p.hostID)
	if err != nil {
		return fmt.Errorf("no host token: %w", err)
	}
	return p.client.Pause(ctx, token, p.deviceID)
}
