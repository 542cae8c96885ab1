package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/pkg/events"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

const (
	tickInterval    = time.Second
	defaultLeaseTTL = 10 * time.Second
)

type HostOptions struct {
	Store      Store
	Feed       Feed
	Playback   Playback
	Playlist   PlaylistGenerator
	Events     EventPublisher
	Clock      clockwork.Clock
	Timing     Timing
	MinPlayers int

	// Lease is optional. When set, Claim must succeed before Run and the
	// lease is renewed on every tick.
	Lease    Lease
	Owner    string
	LeaseTTL time.Duration
}

type hostCommand struct {
	fn    func() error
	reply chan error
}

// Host drives one room. It is the only writer of the room state and of
// player scores. All work happens on the Run goroutine; the exported
// mutators hand closures to it and wait for the result.
type Host struct {
	roomID     string
	store      Store
	feed       Feed
	playback   Playback
	playlist   PlaylistGenerator
	events     EventPublisher
	clock      clockwork.Clock
	timing     Timing
	minPlayers int

	lease        Lease
	owner        string
	leaseTTL     time.Duration
	leased       bool
	leaseRenewed time.Time

	mu      sync.RWMutex
	room    models.Room
	tracks  []models.Track
	machine *Machine

	grace      clockwork.Timer
	graceToken scheduleToken

	cmds chan hostCommand
	done chan struct{}
}

func NewHost(roomID string, opts HostOptions) *Host {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Playback == nil {
		opts.Playback = NopPlayback()
	}
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if opts.MinPlayers <= 0 {
		opts.MinPlayers = 2
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = defaultLeaseTTL
	}
	if opts.Owner == "" {
		opts.Owner = uuid.NewString()
	}
	return &Host{
		roomID:     roomID,
		store:      opts.Store,
		feed:       opts.Feed,
		playback:   opts.Playback,
		playlist:   opts.Playlist,
		events:     opts.Events,
		clock:      opts.Clock,
		timing:     opts.Timing,
		minPlayers: opts.MinPlayers,
		lease:      opts.Lease,
		owner:      opts.Owner,
		leaseTTL:   opts.LeaseTTL,
		machine:    NewMachine(models.RoomState{}, 0, 0, opts.Timing),
		cmds:       make(chan hostCommand),
		done:       make(chan struct{}),
	}
}

// Load reads the room and its track list, resuming a game in progress.
func (h *Host) Load(ctx context.Context) error {
	room, err := h.store.GetRoom(ctx, h.roomID)
	if err != nil {
		return err
	}
	tracks, err := h.store.GetTracks(ctx, h.roomID)
	if err != nil {
		return fmt.Errorf("failed to load tracks: %w", err)
	}

	h.mu.Lock()
	h.room = *room
	h.tracks = tracks
	h.machine = NewMachine(room.State, room.Config.VotingDuration(), len(tracks), h.timing)
	h.mu.Unlock()

	log.Info().
		Str("room_id", h.roomID).
		Bool("started", room.State.Started).
		Int("round", room.State.CurrentRound).
		Str("phase", string(room.State.CurrentPhase)).
		Msg("host loaded room")
	return nil
}

// Claim takes the room's host lease. It returns ErrHostedElsewhere while
// another server holds it.
func (h *Host) Claim(ctx context.Context) error {
	if h.lease == nil {
		return nil
	}
	ok, err := h.lease.Acquire(ctx, h.roomID, h.owner, h.leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire host lease: %w", err)
	}
	if !ok {
		return ErrHostedElsewhere
	}
	h.leased = true
	h.leaseRenewed = h.clock.Now()
	return nil
}

// Run is the room's event loop. It returns when ctx is cancelled, when the
// host lease is lost, or once the game has finished.
func (h *Host) Run(ctx context.Context) error {
	defer close(h.done)
	defer h.releaseLease(ctx)

	sub, err := h.feed.Subscribe(ctx, h.roomID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to room feed: %w", err)
	}
	defer sub.Close()

	ticker := h.clock.NewTicker(tickInterval)
	defer ticker.Stop()
	defer h.cancelGrace()

	changes := sub.Changes()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("room_id", h.roomID).Msg("host stopped")
			return nil
		case cmd := <-h.cmds:
			cmd.reply <- cmd.fn()
		case <-ticker.Chan():
			if !h.renewLease(ctx) {
				return nil
			}
			h.tick(ctx)
		case change, ok := <-changes:
			if !ok {
				log.Warn().Str("room_id", h.roomID).Msg("room feed closed, relying on ticks")
				changes = nil
				continue
			}
			h.handleChange(ctx, change)
		case <-h.graceChan():
			h.fireGrace(ctx)
		}

		if h.machine.State().Finished {
			log.Info().Str("room_id", h.roomID).Msg("game over, host exiting")
			return nil
		}
	}
}

// Done is closed once Run has returned.
func (h *Host) Done() <-chan struct{} { return h.done }

// Start generates the playlist and opens the first round.
func (h *Host) Start(ctx context.Context) error {
	return h.do(ctx, func() error { return h.startGame(ctx) })
}

// Skip advances immediately, cancelling any pending timer.
func (h *Host) Skip(ctx context.Context) error {
	return h.do(ctx, func() error { return h.skip(ctx, "skip") })
}

// Reset clears votes, tracks and scores while keeping the room and its config.
func (h *Host) Reset(ctx context.Context) error {
	return h.do(ctx, func() error { return h.resetGame(ctx) })
}

// State returns the last committed room state.
func (h *Host) State() models.RoomState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.machine.State()
}

func (h *Host) Room() models.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.room
	r.State = h.machine.State()
	return r
}

func (h *Host) do(ctx context.Context, fn func() error) error {
	cmd := hostCommand{fn: fn, reply: make(chan error, 1)}
	select {
	case h.cmds <- cmd:
	case <-h.done:
		return ErrHostStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) startGame(ctx context.Context) error {
	st := h.machine.State()
	if st.Finished {
		return ErrGameFinished
	}
	if st.Started {
		return ErrAlreadyStarted
	}

	players, err := h.store.GetPlayers(ctx, h.roomID)
	if err != nil {
		return fmt.Errorf("failed to load players: %w", err)
	}
	if len(players) < h.minPlayers {
		return ErrNotEnoughPlayers
	}

	cfg := h.room.Config
	tracks, err := h.playlist.Generate(ctx, players, cfg.NumSongs, cfg.Term)
	if err != nil {
		return fmt.Errorf("failed to generate playlist: %w", err)
	}
	if len(tracks) == 0 {
		return ErrNotEnoughTracks
	}
	if err := h.store.ReplaceTracks(ctx, h.roomID, tracks); err != nil {
		return fmt.Errorf("failed to store tracks: %w", err)
	}

	state := models.RoomState{
		Started:      true,
		CurrentRound: 0,
		CurrentPhase: models.PhasePreparing,
	}
	setWindow(&state, h.clock.Now(), h.timing.Preparing)
	if err := h.store.UpdateRoomState(ctx, h.roomID, state); err != nil {
		return fmt.Errorf("failed to write room state: %w", err)
	}

	h.mu.Lock()
	h.tracks = tracks
	h.machine.Reset(state, len(tracks))
	h.mu.Unlock()

	log.Info().
		Str("room_id", h.roomID).
		Int("tracks", len(tracks)).
		Int("players", len(players)).
		Msg("game started")
	h.publish(ctx, events.EventTypeGameStarted, events.GameStartedPayload{
		TrackCount:  len(tracks),
		PlayerCount: len(players),
	})
	return nil
}

func (h *Host) resetGame(ctx context.Context) error {
	h.cancelGrace()
	if st := h.machine.State(); st.Started && st.CurrentPhase == models.PhaseVoting {
		h.stopPlayback(ctx)
	}
	if err := h.store.ResetRoom(ctx, h.roomID); err != nil {
		return fmt.Errorf("failed to reset room: %w", err)
	}

	h.mu.Lock()
	h.tracks = nil
	h.machine.Reset(models.RoomState{}, 0)
	h.mu.Unlock()

	log.Info().Str("room_id", h.roomID).Msg("game reset")
	h.publish(ctx, events.EventTypeGameReset, struct{}{})
	return nil
}

func (h *Host) tick(ctx context.Context) {
	now := h.clock.Now()
	if h.machine.Expired(now) {
		var err error
		if h.room.Config.AutoStart {
			err = h.skip(ctx, "deadline")
		} else {
			err = h.advance(ctx, "deadline")
		}
		if err != nil {
			log.Error().Err(err).Str("room_id", h.roomID).Msg("deadline transition failed, retrying next tick")
		}
		return
	}
	// Notifications may be dropped; completeness is re-derived every tick.
	if h.machine.State().CurrentPhase == models.PhaseVoting && !h.machine.Scheduled() {
		h.checkVotes(ctx)
	}
}

func (h *Host) handleChange(ctx context.Context, change models.Change) {
	switch change.Kind {
	case models.ChangeVotes, models.ChangePlayers:
		if h.machine.State().CurrentPhase == models.PhaseVoting {
			h.checkVotes(ctx)
		}
	case models.ChangeRoom:
		if change.State != nil && !samePhase(*change.State, h.machine.State()) {
			h.reload(ctx)
		}
	}
}

// reload adopts the stored room state when someone else has written it. Late
// echoes of this host's own writes leave the store matching the machine and
// are ignored.
func (h *Host) reload(ctx context.Context) {
	room, err := h.store.GetRoom(ctx, h.roomID)
	if err != nil {
		log.Warn().Err(err).Str("room_id", h.roomID).Msg("failed to reload room")
		return
	}
	current := h.machine.State()
	if samePhase(room.State, current) {
		return
	}
	tracks, err := h.store.GetTracks(ctx, h.roomID)
	if err != nil {
		log.Warn().Err(err).Str("room_id", h.roomID).Msg("failed to reload tracks")
		return
	}

	h.cancelGrace()
	h.mu.Lock()
	h.room = *room
	h.tracks = tracks
	h.machine.Reset(room.State, len(tracks))
	h.mu.Unlock()

	log.Warn().
		Str("room_id", h.roomID).
		Int("round", current.CurrentRound).
		Str("phase", string(current.CurrentPhase)).
		Int("stored_round", room.State.CurrentRound).
		Str("stored_phase", string(room.State.CurrentPhase)).
		Msg("room state written elsewhere, reloaded")
}

func (h *Host) renewLease(ctx context.Context) bool {
	if !h.leased {
		return true
	}
	now := h.clock.Now()
	ok, err := h.lease.Renew(ctx, h.roomID, h.owner, h.leaseTTL)
	if err != nil {
		log.Warn().Err(err).Str("room_id", h.roomID).Msg("failed to renew host lease")
		if now.Sub(h.leaseRenewed) < h.leaseTTL {
			return true
		}
		ok = false
	}
	if !ok {
		log.Warn().Str("room_id", h.roomID).Msg("host lease lost, stopping")
		h.leased = false
		return false
	}
	h.leaseRenewed = now
	return true
}

func (h *Host) releaseLease(ctx context.Context) {
	if !h.leased {
		return
	}
	h.leased = false
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := h.lease.Release(rctx, h.roomID, h.owner); err != nil {
		log.Warn().Err(err).Str("room_id", h.roomID).Msg("failed to release host lease")
	}
}

// checkVotes schedules the grace-delayed advance once every player has voted.
func (h *Host) checkVotes(ctx context.Context) {
	st := h.machine.State()
	if st.CurrentPhase != models.PhaseVoting || st.Finished || h.machine.Scheduled() {
		return
	}

	votes, err := h.store.GetVotesForRound(ctx, h.roomID, st.CurrentRound)
	if err != nil {
		log.Warn().Err(err).Str("room_id", h.roomID).Msg("failed to read round votes")
		return
	}
	players, err := h.store.GetPlayers(ctx, h.roomID)
	if err != nil {
		log.Warn().Err(err).Str("room_id", h.roomID).Msg("failed to read players")
		return
	}

	voters := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		voters[v.VoterID] = struct{}{}
	}
	if !VotesComplete(len(voters), len(players)) {
		return
	}

	tok, ok := h.machine.ScheduleAdvance()
	if !ok {
		return
	}
	h.grace = h.clock.NewTimer(h.timing.Grace)
	h.graceToken = tok

	log.Info().
		Str("room_id", h.roomID).
		Int("round", st.CurrentRound).
		Int("votes", len(voters)).
		Msg("all votes in, closing voting after grace delay")
}

func (h *Host) graceChan() <-chan time.Time {
	if h.grace == nil {
		return nil
	}
	return h.grace.Chan()
}

func (h *Host) fireGrace(ctx context.Context) {
	tok := h.graceToken
	h.grace = nil
	if !h.machine.ConsumeScheduled(tok) {
		log.Debug().Str("room_id", h.roomID).Msg("ignoring stale scheduled advance")
		return
	}
	if err := h.advance(ctx, "all votes in"); err != nil {
		log.Error().Err(err).Str("room_id", h.roomID).Msg("vote-complete transition failed, retrying next tick")
	}
}

func (h *Host) cancelGrace() {
	if h.grace != nil {
		stopAndDrainTimer(h.grace)
		h.grace = nil
	}
	h.machine.CancelScheduled()
}

func (h *Host) skip(ctx context.Context, reason string) error {
	h.cancelGrace()
	return h.advance(ctx, reason)
}

// advance persists the next transition and only then applies it locally. A
// failed write leaves the machine where it was so the next trigger retries.
func (h *Host) advance(ctx context.Context, reason string) error {
	t, err := h.machine.Plan(h.clock.Now())
	if err != nil {
		return err
	}

	// Scores are summed again at the end so votes that landed after the last
	// round closed still count.
	var result *events.RoundScoredPayload
	if t.Effect == EffectCloseVoting || t.Effect == EffectFinish {
		result, err = h.scoreRound(ctx, t.From.CurrentRound)
		if err != nil {
			log.Error().
				Err(err).
				Str("room_id", h.roomID).
				Int("round", t.From.CurrentRound).
				Msg("round scoring failed")
			return err
		}
	}

	if err := h.store.UpdateRoomState(ctx, h.roomID, t.To); err != nil {
		log.Error().
			Err(err).
			Str("room_id", h.roomID).
			Int("round", t.From.CurrentRound).
			Str("phase", string(t.From.CurrentPhase)).
			Msg("failed to write phase transition")
		return fmt.Errorf("failed to write room state: %w", err)
	}

	h.mu.Lock()
	applied := h.machine.Commit(t)
	h.mu.Unlock()
	if !applied {
		return nil
	}
	if t.To.CurrentPhase != t.From.CurrentPhase {
		h.cancelGrace()
	}

	log.Info().
		Str("room_id", h.roomID).
		Int("round", t.To.CurrentRound).
		Str("from", string(t.From.CurrentPhase)).
		Str("to", string(t.To.CurrentPhase)).
		Str("reason", reason).
		Msg("phase transition")

	switch t.Effect {
	case EffectStartPlayback:
		if track, ok := h.trackAt(t.To.CurrentRound); ok {
			if err := h.playback.StartPlayback(ctx, track); err != nil {
				log.Warn().Err(err).Str("room_id", h.roomID).Str("track_id", track.TrackID).Msg("playback failed to start")
			}
		}
	case EffectCloseVoting:
		h.stopPlayback(ctx)
		h.publish(ctx, events.EventTypeRoundScored, result)
	}

	h.publish(ctx, events.EventTypePhaseChanged, events.PhaseChangedPayload{
		Round:        t.To.CurrentRound,
		Phase:        t.To.CurrentPhase,
		PhaseEndTime: t.To.PhaseEndTime,
		Reason:       reason,
	})

	if t.Effect == EffectFinish {
		h.publish(ctx, events.EventTypeGameFinished, events.GameFinishedPayload{
			Rounds:    h.machine.TrackCount(),
			Standings: result.Standings,
		})
		log.Info().Str("room_id", h.roomID).Msg("game finished")
	}
	return nil
}

// scoreRound sets every player's score to the sum of their ledger points.
// Votes are immutable and non-negative, so repeating this is harmless and
// scores never go down.
func (h *Host) scoreRound(ctx context.Context, round int) (*events.RoundScoredPayload, error) {
	votes, err := h.store.GetVotes(ctx, h.roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to read votes: %w", err)
	}
	players, err := h.store.GetPlayers(ctx, h.roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to read players: %w", err)
	}

	totals := make(map[string]int, len(players))
	result := &events.RoundScoredPayload{Round: round}
	for _, v := range votes {
		totals[v.VoterID] += v.Points
		if v.Round == round {
			result.Votes = append(result.Votes, events.VoteOutcome{
				VoterID:     v.VoterID,
				VotedForID:  v.VotedForID,
				IsCorrect:   v.IsCorrect,
				Points:      v.Points,
				StreakCount: v.StreakCount,
				StreakBonus: v.StreakBonus,
			})
		}
	}

	for i := range players {
		p := &players[i]
		score := totals[p.UserID]
		if score == p.Score {
			continue
		}
		if err := h.store.UpdatePlayerScore(ctx, h.roomID, p.UserID, score); err != nil {
			return nil, fmt.Errorf("failed to update score for %s: %w", p.UserID, err)
		}
		p.Score = score
	}

	if track, ok := h.trackAt(round); ok {
		result.TrackID = track.TrackID
		result.OwnerUserID = track.OwnerUserID
		result.AlsoListened = track.OtherPlayersWithTrack
	}
	result.Standings = toStandings(players)
	return result, nil
}

func (h *Host) trackAt(round int) (models.Track, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, t := range h.tracks {
		if t.Order == round {
			return t, true
		}
	}
	return models.Track{}, false
}

func (h *Host) stopPlayback(ctx context.Context) {
	if err := h.playback.StopPlayback(ctx); err != nil {
		log.Warn().Err(err).Str("room_id", h.roomID).Msg("playback failed to stop")
	}
}

func (h *Host) publish(ctx context.Context, eventType events.EventType, payload interface{}) {
	if h.events == nil {
		return
	}
	if err := h.events.PublishGameEvent(ctx, eventType, h.roomID, payload); err != nil {
		log.Warn().Err(err).Str("room_id", h.roomID).Str("event_type", string(eventType)).Msg("failed to publish game event")
	}
}

// SortStandings orders players by score, highest first, keeping join order
// between equal scores.
func SortStandings(players []models.Player) []models.Player {
	out := append([]models.Player(nil), players...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func toStandings(players []models.Player) []events.Standing {
	sorted := SortStandings(players)
	out := make([]events.Standing, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, events.Standing{UserID: p.UserID, DisplayName: p.DisplayName, Score: p.Score})
	}
	return out
}

func samePhase(a, b models.RoomState) bool {
	return a.Started == b.Started &&
		a.Finished == b.Finished &&
		a.CurrentRound == b.CurrentRound &&
		a.CurrentPhase == b.CurrentPhase
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
