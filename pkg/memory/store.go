// Package memory holds in-process twins of the persistent store and the
// change feed. They back development mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

var _ game.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	users   map[string]models.User
	rooms   map[string]models.Room
	players map[string][]models.Player
	tracks  map[string][]models.Track
	votes   map[string]models.Vote
}

func NewStore() *Store {
	return &Store{
		users:   make(map[string]models.User),
		rooms:   make(map[string]models.Room),
		players: make(map[string][]models.Player),
		tracks:  make(map[string][]models.Track),
		votes:   make(map[string]models.Vote),
	}
}

// User operations
func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserBySpotifyID(_ context.Context, spotifyID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.SpotifyID == spotifyID {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

// Room operations
func (s *Store) CreateRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = *room
	return nil
}

func (s *Store) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	return &r, nil
}

func (s *Store) GetRoomByCode(_ context.Context, code string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.Code == code {
			r := r
			return &r, nil
		}
	}
	return nil, game.ErrRoomNotFound
}

func (s *Store) UpdateRoomState(_ context.Context, roomID string, state models.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return game.ErrRoomNotFound
	}
	r.State = state
	s.rooms[roomID] = r
	return nil
}

// Player operations
func (s *Store) AddPlayer(_ context.Context, player *models.Player) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[player.RoomID]; !ok {
		return false, game.ErrRoomNotFound
	}
	for _, p := range s.players[player.RoomID] {
		if p.UserID == player.UserID {
			*player = p
			return false, nil
		}
	}
	s.players[player.RoomID] = append(s.players[player.RoomID], *player)
	return true, nil
}

// GetPlayers returns players in join order.
func (s *Store) GetPlayers(_ context.Context, roomID string) ([]models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.Player(nil), s.players[roomID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *Store) UpdatePlayerScore(_ context.Context, roomID, userID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	players := s.players[roomID]
	for i := range players {
		if players[i].UserID == userID {
			players[i].Score = score
			return nil
		}
	}
	return nil
}

// Track operations
func (s *Store) GetTracks(_ context.Context, roomID string) ([]models.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.Track(nil), s.tracks[roomID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *Store) ReplaceTracks(_ context.Context, roomID string, tracks []models.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]models.Track, len(tracks))
	for i, t := range tracks {
		t.RoomID = roomID
		stored[i] = t
	}
	s.tracks[roomID] = stored
	return nil
}

// Vote operations
func (s *Store) CreateVote(_ context.Context, vote *models.Vote) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.votes[vote.Key]; ok {
		return false, nil
	}
	s.votes[vote.Key] = *vote
	return true, nil
}

func (s *Store) GetVote(_ context.Context, key string) (*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *Store) GetVotesForRound(_ context.Context, roomID string, round int) ([]models.Vote, error) {
	return s.filterVotes(func(v models.Vote) bool {
		return v.RoomID == roomID && v.Round == round
	}), nil
}

func (s *Store) GetVotes(_ context.Context, roomID string) ([]models.Vote, error) {
	return s.filterVotes(func(v models.Vote) bool { return v.RoomID == roomID }), nil
}

func (s *Store) filterVotes(keep func(models.Vote) bool) []models.Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Vote
	for _, v := range s.votes {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (s *Store) ResetRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return game.ErrRoomNotFound
	}
	r.State = models.RoomState{}
	s.rooms[roomID] = r

	delete(s.tracks, roomID)
	for k, v := range s.votes {
		if v.RoomID == roomID {
			delete(s.votes, k)
		}
	}
	players := s.players[roomID]
	for i := range players {
		players[i].Score = 0
	}
	return nil
}
