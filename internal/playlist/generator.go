// Package playlist builds a game's track list from the players' listening
// history.
package playlist

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

// poolSize is how many top tracks are read per player. The pool is larger
// than the per-player quota so shared tracks can be reassigned.
const poolSize = 50

var _ game.PlaylistGenerator = (*Generator)(nil)

// Source returns a user's top tracks for a term, most played first.
type Source interface {
	TopTracks(ctx context.Context, userID string, term models.Term, limit int) ([]models.Track, error)
}

type Generator struct {
	source Source

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(source Source) *Generator {
	return NewGeneratorWithRand(source, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func NewGeneratorWithRand(source Source, rnd *rand.Rand) *Generator {
	return &Generator{source: source, rnd: rnd}
}

type candidate struct {
	track    models.Track
	owner    int // index into players
	position int
	others   []models.TrackHolder
}

// Generate picks up to perPlayer tracks owned by each player and shuffles
// them into a single ordered list.
//
// A track in several players' histories belongs to the player who ranks it
// highest; on equal rank the player who joined first keeps it. Everyone else
// is credited in OtherPlayersWithTrack.
func (g *Generator) Generate(ctx context.Context, players []models.Player, perPlayer int, term models.Term) ([]models.Track, error) {
	if perPlayer <= 0 || len(players) == 0 {
		return nil, nil
	}

	histories := make([][]models.Track, len(players))
	for i, p := range players {
		tracks, err := g.source.TopTracks(ctx, p.UserID, term, poolSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("user_id", p.UserID).Msg("skipping player without listening history")
			continue
		}
		histories[i] = tracks
	}

	byID := make(map[string]*candidate)
	var order []string
	for i, history := range histories {
		for pos, t := range history {
			if t.TrackID == "" {
				continue
			}
			c, ok := byID[t.TrackID]
			if !ok {
				byID[t.TrackID] = &candidate{track: t, owner: i, position: pos}
				order = append(order, t.TrackID)
				continue
			}
			if c.owner == i {
				continue
			}
			holder := models.TrackHolder{UserID: players[i].UserID, Position: pos}
			if pos < c.position {
				c.others = append(c.others, models.TrackHolder{UserID: players[c.owner].UserID, Position: c.position})
				c.owner, c.position = i, pos
				continue
			}
			c.others = append(c.others, holder)
		}
	}

	owned := make([][]*candidate, len(players))
	for _, id := range order {
		c := byID[id]
		owned[c.owner] = append(owned[c.owner], c)
	}

	var picked []models.Track
	for i, list := range owned {
		sort.SliceStable(list, func(a, b int) bool { return list[a].position < list[b].position })
		if len(list) > perPlayer {
			list = list[:perPlayer]
		}
		for _, c := range list {
			t := c.track
			t.OwnerUserID = players[i].UserID
			t.OwnerPosition = c.position
			t.OtherPlayersWithTrack = c.others
			picked = append(picked, t)
		}
	}

	g.mu.Lock()
	g.rnd.Shuffle(len(picked), func(a, b int) { picked[a], picked[b] = picked[b], picked[a] })
	g.mu.Unlock()

	for i := range picked {
		picked[i].Order = i
	}

	log.Info().Int("players", len(players)).Int("tracks", len(picked)).Str("term", string(term)).Msg("playlist generated")
	return picked, nil
}
