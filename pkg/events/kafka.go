package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"

	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

type EventType string

const (
	EventTypeGameStarted  EventType = "game_started"
	EventTypePhaseChanged EventType = "phase_changed"
	EventTypeRoundScored  EventType = "round_scored"
	EventTypeGameFinished EventType = "game_finished"
	EventTypeGameReset    EventType = "game_reset"
)

type Event struct {
	Type      EventType       `json:"type"`
	RoomID    string          `json:"room_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type KafkaClient struct {
	writer *kafka.Writer
	clock  clockwork.Clock
}

func NewKafkaClient(brokers []string, topic string, clock clockwork.Clock) *KafkaClient {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}

	return &KafkaClient{writer: writer, clock: clock}
}

// PublishGameEvent writes one event keyed by room so a room's events stay in
// order within a partition.
func (k *KafkaClient) PublishGameEvent(ctx context.Context, eventType EventType, roomID string, payload interface{}) error {
	event, err := NewEvent(eventType, roomID, payload, k.clock.Now())
	if err != nil {
		return err
	}

	messageJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(roomID),
		Value: messageJSON,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// NewEvent builds the envelope written to the topic, stamped at the given time.
func NewEvent(eventType EventType, roomID string, payload interface{}, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		Type:      eventType,
		RoomID:    roomID,
		Timestamp: at.UTC(),
		Payload:   raw,
	}, nil
}

// Event payload types
type GameStartedPayload struct {
	TrackCount  int `json:"track_count"`
	PlayerCount int `json:"player_count"`
}

type PhaseChangedPayload struct {
	Round        int          `json:"round"`
	Phase        models.Phase `json:"phase"`
	PhaseEndTime *time.Time   `json:"phase_end_time,omitempty"`
	Reason       string       `json:"reason"`
}

type VoteOutcome struct {
	VoterID     string `json:"voter_id"`
	VotedForID  string `json:"voted_for_id"`
	IsCorrect   bool   `json:"is_correct"`
	Points      int    `json:"points"`
	StreakCount int    `json:"streak_count"`
	StreakBonus int    `json:"streak_bonus"`
}

type Standing struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

type RoundScoredPayload struct {
	Round        int                  `json:"round"`
	TrackID      string               `json:"track_id"`
	OwnerUserID  string               `json:"owner_user_id"`
	AlsoListened []models.TrackHolder `json:"also_listened,omitempty"`
	Votes        []VoteOutcome        `json:"votes"`
	Standings    []Standing           `json:"standings"`
}

type GameFinishedPayload struct {
	Rounds    int        `json:"rounds"`
	Standings []Standing `json:"standings"`
}
