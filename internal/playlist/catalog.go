package playlist

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

// CatalogSource serves listening histories drawn from a fixed catalog. Each
// user gets a stable, partly overlapping slice of it, which is enough to
// play without Spotify accounts.
type CatalogSource struct {
	tracks []models.Track
}

func NewCatalogSource(tracks []models.Track) *CatalogSource {
	return &CatalogSource{tracks: tracks}
}

// DemoCatalog is a small built-in catalog for development rooms.
func DemoCatalog() *CatalogSource {
	songs := []struct{ name, artist string }{
		{"Midnight Train", "The Lanterns"},
		{"Paper Planes", "Sola"},
		{"Gold Coast", "Harbor Lights"},
		{"Neon Rain", "Kite Theory"},
		{"Slow Burn", "Marisol"},
		{"Northern Sky", "The Lanterns"},
		{"Echo Park", "Velvet Static"},
		{"Wildflower", "June Avenue"},
		{"Satellite", "Kite Theory"},
		{"Tidal", "Harbor Lights"},
		{"Glass House", "Marisol"},
		{"Afterglow", "Sola"},
		{"Static Heart", "Velvet Static"},
		{"Long Way Home", "June Avenue"},
		{"Daydream", "Nova Bloom"},
		{"Firefly", "Nova Bloom"},
	}
	tracks := make([]models.Track, len(songs))
	for i, s := range songs {
		id := fmt.Sprintf("demo%02d", i)
		tracks[i] = models.Track{
			TrackID: id,
			Name:    s.name,
			Artists: []string{s.artist},
			URI:     "spotify:track:" + id,
		}
	}
	return NewCatalogSource(tracks)
}

func (s *CatalogSource) TopTracks(_ context.Context, userID string, _ models.Term, limit int) ([]models.Track, error) {
	n := len(s.tracks)
	if n == 0 {
		return nil, nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	offset := int(h.Sum32() % uint32(n))

	size := n / 2
	if size == 0 {
		size = 1
	}
	if limit > 0 && size > limit {
		size = limit
	}
	out := make([]models.Track, 0, size)
	for i := 0; i < size; i++ {
		out = append(out, s.tracks[(offset+i)%n])
	}
	return out, nil
}
