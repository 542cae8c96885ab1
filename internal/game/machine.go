package game

import (
	"time"

	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

// Timing holds the fixed phase durations. Voting length comes from the room.
type Timing struct {
	Preparing time.Duration
	Results   time.Duration
	Standings time.Duration
	// Grace is the pause between the last vote landing and closing voting.
	Grace time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Preparing: 5 * time.Second,
		Results:   8 * time.Second,
		Standings: 6 * time.Second,
		Grace:     1500 * time.Millisecond,
	}
}

// Effect is the side effect the host performs around a transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectStartPlayback
	EffectCloseVoting
	EffectFinish
)

// Transition is a planned move from one room state to the next.
type Transition struct {
	From   models.RoomState
	To     models.RoomState
	Effect Effect
}

// scheduleToken identifies a pending advance. It is only honoured while the
// machine is still in the phase and round it was issued for.
type scheduleToken struct {
	round int
	phase models.Phase
	seq   uint64
}

// Machine is the authoritative holder of a room's phase, round and deadline.
// It performs no I/O; the host persists a planned transition and then
// commits it.
type Machine struct {
	state          models.RoomState
	votingDuration time.Duration
	trackCount     int
	timing         Timing

	pending *scheduleToken
	seq     uint64
}

func NewMachine(state models.RoomState, votingDuration time.Duration, trackCount int, timing Timing) *Machine {
	return &Machine{
		state:          state,
		votingDuration: votingDuration,
		trackCount:     trackCount,
		timing:         timing,
	}
}

func (m *Machine) State() models.RoomState { return m.state }

func (m *Machine) TrackCount() int { return m.trackCount }

// Reset replaces the state wholesale, dropping any pending advance.
func (m *Machine) Reset(state models.RoomState, trackCount int) {
	m.state = state
	m.trackCount = trackCount
	m.pending = nil
}

// Plan computes the transition out of the current phase.
func (m *Machine) Plan(now time.Time) (Transition, error) {
	cur := m.state
	if !cur.Started {
		return Transition{}, ErrNotStarted
	}
	if cur.Finished || cur.CurrentPhase == models.PhaseFinished {
		return Transition{}, ErrGameFinished
	}

	next := cur
	effect := EffectNone

	switch cur.CurrentPhase {
	case models.PhasePreparing:
		next.CurrentPhase = models.PhaseVoting
		setWindow(&next, now, m.votingDuration)
		effect = EffectStartPlayback
	case models.PhaseVoting:
		next.CurrentPhase = models.PhaseResults
		setWindow(&next, now, m.timing.Results)
		effect = EffectCloseVoting
	case models.PhaseResults:
		next.CurrentPhase = models.PhaseStandings
		setWindow(&next, now, m.timing.Standings)
	case models.PhaseStandings:
		if cur.CurrentRound+1 < m.trackCount {
			next.CurrentRound = cur.CurrentRound + 1
			next.CurrentPhase = models.PhasePreparing
			setWindow(&next, now, m.timing.Preparing)
		} else {
			next.Finished = true
			next.CurrentPhase = models.PhaseFinished
			next.PhaseStartTime = nil
			next.PhaseEndTime = nil
			effect = EffectFinish
		}
	default:
		// Unknown phase from storage: restart the current round cleanly.
		next.CurrentPhase = models.PhasePreparing
		setWindow(&next, now, m.timing.Preparing)
	}

	return Transition{From: cur, To: next, Effect: effect}, nil
}

// Commit applies a persisted transition. It is a no-op when the machine has
// already moved past t.From, which makes retried writes harmless.
func (m *Machine) Commit(t Transition) bool {
	if m.state.CurrentRound != t.From.CurrentRound || m.state.CurrentPhase != t.From.CurrentPhase {
		return false
	}
	if t.To.CurrentPhase != m.state.CurrentPhase || t.To.CurrentRound != m.state.CurrentRound {
		m.pending = nil
	}
	m.state = t.To
	return true
}

// Expired reports whether the running phase has reached its deadline.
func (m *Machine) Expired(now time.Time) bool {
	if !m.state.Started || m.state.Finished {
		return false
	}
	return CountdownFor(m.state).Expired(now)
}

// VotesComplete reports whether every player has a ledger entry.
func VotesComplete(voters, players int) bool {
	return players > 0 && voters >= players
}

// ScheduleAdvance issues a token for closing the current voting phase. Only
// one token exists per (round, voting); later calls return false.
func (m *Machine) ScheduleAdvance() (scheduleToken, bool) {
	if m.state.CurrentPhase != models.PhaseVoting || m.state.Finished {
		return scheduleToken{}, false
	}
	if m.pending != nil && m.pending.round == m.state.CurrentRound && m.pending.phase == m.state.CurrentPhase {
		return scheduleToken{}, false
	}
	m.seq++
	tok := scheduleToken{round: m.state.CurrentRound, phase: m.state.CurrentPhase, seq: m.seq}
	m.pending = &tok
	return tok, true
}

// Scheduled reports whether an advance is pending for the current phase.
func (m *Machine) Scheduled() bool {
	return m.pending != nil &&
		m.pending.round == m.state.CurrentRound &&
		m.pending.phase == m.state.CurrentPhase
}

// ConsumeScheduled redeems a token. Stale tokens are rejected.
func (m *Machine) ConsumeScheduled(tok scheduleToken) bool {
	if m.pending == nil || *m.pending != tok {
		return false
	}
	m.pending = nil
	return tok.round == m.state.CurrentRound && tok.phase == m.state.CurrentPhase
}

// CancelScheduled drops any pending advance.
func (m *Machine) CancelScheduled() {
	m.pending = nil
}

func setWindow(s *models.RoomState, now time.Time, d time.Duration) {
	start := now
	end := now.Add(d)
	s.PhaseStartTime = &start
	s.PhaseEndTime = &end
}
