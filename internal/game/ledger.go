package game

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

// VoteRequest is one player's guess for a round.
type VoteRequest struct {
	RoomID     string
	VoterID    string
	VotedForID string
	TrackID    string
	Round      int
	PhaseStart time.Time
	PhaseEnd   time.Time
}

// Ledger records at most one scored vote per (voter, round).
type Ledger struct {
	store Store
	clock clockwork.Clock
}

func NewLedger(store Store, clock clockwork.Clock) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ledger{store: store, clock: clock}
}

// VoteKey is the deterministic ledger key of a (voter, round) pair.
func VoteKey(roomID string, round int, voterID string) string {
	return fmt.Sprintf("%s:%d:%s", roomID, round, voterID)
}

// Submit scores and stores a vote. When the voter already has an entry for
// the round the stored entry is returned together with ErrAlreadyVoted.
func (l *Ledger) Submit(ctx context.Context, req VoteRequest) (*models.Vote, error) {
	key := VoteKey(req.RoomID, req.Round, req.VoterID)

	existing, err := l.store.GetVote(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read vote: %w", err)
	}
	if existing != nil {
		return existing, ErrAlreadyVoted
	}

	owner, err := l.trackOwner(ctx, req.RoomID, req.TrackID, req.Round)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	correct := owner != "" && owner == req.VotedForID
	base := BasePoints(correct, req.PhaseStart, req.PhaseEnd, now)

	streak, bonus := 0, 0
	if correct {
		prev, err := l.PreviousStreak(ctx, req.RoomID, req.VoterID, req.Round)
		if err != nil {
			return nil, err
		}
		streak = prev + 1
		bonus = StreakBonus(streak)
	}

	vote := &models.Vote{
		Key:            key,
		RoomID:         req.RoomID,
		Round:          req.Round,
		VoterID:        req.VoterID,
		VotedForID:     req.VotedForID,
		TrackID:        req.TrackID,
		IsCorrect:      correct,
		BasePoints:     base,
		Points:         base + bonus,
		StreakCount:    streak,
		StreakBonus:    bonus,
		PhaseStartTime: req.PhaseStart,
		PhaseEndTime:   req.PhaseEnd,
		CreatedAt:      now,
	}

	created, err := l.store.CreateVote(ctx, vote)
	if err != nil {
		return nil, fmt.Errorf("failed to write vote: %w", err)
	}
	if !created {
		// Lost a race against an identical key; the first write stands.
		stored, err := l.store.GetVote(ctx, key)
		if err != nil || stored == nil {
			return vote, ErrAlreadyVoted
		}
		return stored, ErrAlreadyVoted
	}

	log.Debug().
		Str("room_id", req.RoomID).
		Str("voter_id", req.VoterID).
		Int("round", req.Round).
		Bool("correct", correct).
		Int("points", vote.Points).
		Msg("vote recorded")

	return vote, nil
}

// PreviousStreak returns the streak the voter carries into round. It only
// looks at the entry for round-1; that entry already holds the chained count.
func (l *Ledger) PreviousStreak(ctx context.Context, roomID, voterID string, round int) (int, error) {
	if round <= 0 {
		return 0, nil
	}
	prev, err := l.store.GetVote(ctx, VoteKey(roomID, round-1, voterID))
	if err != nil {
		return 0, fmt.Errorf("failed to read previous vote: %w", err)
	}
	if prev == nil || !prev.IsCorrect {
		return 0, nil
	}
	return prev.StreakCount, nil
}

// trackOwner resolves the owner of the voted track. An unknown track yields
// an empty owner so the vote is scored as incorrect.
func (l *Ledger) trackOwner(ctx context.Context, roomID, trackID string, round int) (string, error) {
	if trackID == "" {
		return "", nil
	}
	tracks, err := l.store.GetTracks(ctx, roomID)
	if err != nil {
		return "", fmt.Errorf("failed to read tracks: %w", err)
	}
	owner := ""
	for _, t := range tracks {
		if t.TrackID != trackID {
			continue
		}
		if t.Order == round {
			return t.OwnerUserID, nil
		}
		if owner == "" {
			owner = t.OwnerUserID
		}
	}
	if owner == "" {
		log.Warn().Str("room_id", roomID).Str("track_id", trackID).Msg("vote references unknown track")
	}
	return owner, nil
}
