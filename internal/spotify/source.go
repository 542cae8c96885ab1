package spotify

import (
	"context"

	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

// TopTracksSource reads players' listening history for playlist generation.
type TopTracksSource struct {
	client *Client
	tokens *Tokens
}

func NewTopTracksSource(client *Client, tokens *Tokens) *TopTracksSource {
	return &TopTracksSource{client: client, tokens: tokens}
}

// TopTracks returns the user's top tracks for term, most played first.
func (s *TopTracksSource) TopTracks(ctx context.Context, userID string, term models.Term, limit int) ([]models.Track, error) {
	token, err := s.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.client.GetTopTracks(ctx, token, term.SpotifyRange(), limit)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(items))
	for _, it := range items {
		tracks = append(tracks, models.Track{
			TrackID:    it.ID,
			Name:       it.Name,
			Artists:    it.ArtistNames(),
			CoverURL:   it.CoverURL(),
			PreviewURL: it.PreviewURL,
			URI:        it.URI,
		})
	}
	return tracks, nil
}
