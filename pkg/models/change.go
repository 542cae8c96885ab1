package models

import "time"

// ChangeKind names the collection a change notification is about.
type ChangeKind string

const (
	ChangeRoom    ChangeKind = "room"
	ChangePlayers ChangeKind = "players"
	ChangeTracks  ChangeKind = "tracks"
	ChangeVotes   ChangeKind = "votes"
)

// Change is one push notification on a room's feed.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	RoomID string     `json:"room_id"`
	State  *RoomState `json:"state,omitempty"`
	Player *Player    `json:"player,omitempty"`
	Vote   *Vote      `json:"vote,omitempty"`
	At     time.Time  `json:"at"`
}
