package models

import (
	"time"
)

type User struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	SpotifyID   string    `json:"spotify_id" gorm:"size:128;index"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Phase is one stage of a round's lifecycle.
type Phase string

const (
	PhasePreparing Phase = "preparing"
	PhaseVoting    Phase = "voting"
	PhaseResults   Phase = "results"
	PhaseStandings Phase = "standings"
	PhaseFinished  Phase = "finished"
)

// Term selects which listening-history window playlists are built from.
type Term string

const (
	TermShort  Term = "short"
	TermMedium Term = "medium"
	TermLong   Term = "long"
)

// SpotifyRange maps a Term to the Spotify time_range query value.
func (t Term) SpotifyRange() string {
	switch t {
	case TermShort:
		return "short_term"
	case TermLong:
		return "long_term"
	default:
		return "medium_term"
	}
}

func (t Term) Valid() bool {
	return t == TermShort || t == TermMedium || t == TermLong
}

// RoomConfig is fixed for the duration of a game.
type RoomConfig struct {
	NumSongs       int  `json:"num_songs"`
	TimePerRound   int  `json:"time_per_round"` // seconds
	AutoStart      bool `json:"auto_start"`
	RevealSongName bool `json:"reveal_song_name"`
	RevealArtists  bool `json:"reveal_artists"`
	RevealCover    bool `json:"reveal_cover"`
	Term           Term `json:"term" gorm:"size:16"`
}

// VotingDuration is the length of the voting phase.
func (c RoomConfig) VotingDuration() time.Duration {
	return time.Duration(c.TimePerRound) * time.Second
}

// RoomState is the shared, host-written part of a room.
type RoomState struct {
	Started        bool       `json:"started"`
	Finished       bool       `json:"finished"`
	CurrentRound   int        `json:"current_round"`
	CurrentPhase   Phase      `json:"current_phase" gorm:"size:16"`
	PhaseStartTime *time.Time `json:"phase_start_time,omitempty"`
	PhaseEndTime   *time.Time `json:"phase_end_time,omitempty"`
}

type Room struct {
	ID        string     `json:"id" gorm:"primaryKey;size:64"`
	Code      string     `json:"code" gorm:"uniqueIndex;size:16"`
	HostID    string     `json:"host_id" gorm:"size:64"`
	Name      string     `json:"name"`
	Config    RoomConfig `json:"config" gorm:"embedded;embeddedPrefix:config_"`
	State     RoomState  `json:"state" gorm:"embedded;embeddedPrefix:state_"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Player struct {
	RoomID      string    `json:"room_id" gorm:"primaryKey;size:64"`
	UserID      string    `json:"user_id" gorm:"primaryKey;size:64"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar" gorm:"size:64"`
	Score       int       `json:"score"`
	JoinedAt    time.Time `json:"joined_at"`
}

// TrackHolder is another player who also has a track in their profile.
type TrackHolder struct {
	UserID   string `json:"user_id"`
	Position int    `json:"position"`
}

type Track struct {
	RoomID                string        `json:"room_id" gorm:"primaryKey;size:64"`
	Order                 int           `json:"order" gorm:"primaryKey;column:track_order"`
	TrackID               string        `json:"track_id" gorm:"size:64;index"`
	Name                  string        `json:"name"`
	Artists               []string      `json:"artists" gorm:"serializer:json"`
	CoverURL              string        `json:"cover_url"`
	PreviewURL            string        `json:"preview_url"`
	URI                   string        `json:"uri"`
	OwnerUserID           string        `json:"owner_user_id" gorm:"size:64"`
	OwnerPosition         int           `json:"owner_position"`
	OtherPlayersWithTrack []TrackHolder `json:"other_players_with_track" gorm:"serializer:json"`
}

type Vote struct {
	Key            string    `json:"key" gorm:"primaryKey;size:200"`
	RoomID         string    `json:"room_id" gorm:"size:64;index:idx_votes_room_round"`
	Round          int       `json:"round" gorm:"index:idx_votes_room_round"`
	VoterID        string    `json:"voter_id" gorm:"size:64"`
	VotedForID     string    `json:"voted_for_id" gorm:"size:64"`
	TrackID        string    `json:"track_id" gorm:"size:64"`
	IsCorrect      bool      `json:"is_correct"`
	BasePoints     int       `json:"base_points"`
	Points         int       `json:"points"`
	StreakCount    int       `json:"streak_count"`
	StreakBonus    int       `json:"streak_bonus"`
	PhaseStartTime time.Time `json:"phase_start_time"`
	PhaseEndTime   time.Time `json:"phase_end_time"`
	CreatedAt      time.Time `json:"created_at"`
}
