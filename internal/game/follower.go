package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

// ViewKind is the screen a participant should be showing.
type ViewKind string

const (
	ViewWaiting   ViewKind = "waiting"
	ViewPreparing ViewKind = "preparing"
	ViewVoting    ViewKind = "voting"
	ViewVoted     ViewKind = "voted"
	ViewResults   ViewKind = "results"
	ViewStandings ViewKind = "standings"
	ViewFinished  ViewKind = "finished"
)

type TrackView struct {
	Order        int                  `json:"order"`
	Name         string               `json:"name,omitempty"`
	Artists      []string             `json:"artists,omitempty"`
	CoverURL     string               `json:"cover_url,omitempty"`
	PreviewURL   string               `json:"preview_url,omitempty"`
	OwnerUserID  string               `json:"owner_user_id,omitempty"`
	AlsoListened []models.TrackHolder `json:"also_listened,omitempty"`
}

type PlayerView struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	Score       int    `json:"score"`
	HasVoted    bool   `json:"has_voted"`
}

// View is everything a participant renders for the current moment.
type View struct {
	Kind         ViewKind      `json:"kind"`
	RoomID       string        `json:"room_id"`
	Round        int           `json:"round"`
	TotalRounds  int           `json:"total_rounds"`
	Phase        models.Phase  `json:"phase,omitempty"`
	PhaseEndTime *time.Time    `json:"phase_end_time,omitempty"`
	Remaining    int           `json:"remaining"`
	Progress     float64       `json:"progress"`
	Track        *TrackView    `json:"track,omitempty"`
	MyVote       *models.Vote  `json:"my_vote,omitempty"`
	VotesIn      int           `json:"votes_in"`
	Players      []PlayerView  `json:"players"`
	RoundVotes   []models.Vote `json:"round_votes,omitempty"`
}

// Follower is one participant's read replica of a room. It derives phase and
// round from the host-written state and never writes anything but its own
// votes. A Follower is not safe for concurrent use.
type Follower struct {
	roomID string
	userID string
	store  Store
	ledger *Ledger
	clock  clockwork.Clock

	room       *models.Room
	tracks     []models.Track
	players    []models.Player
	roundVotes map[string]models.Vote
	myVotes    map[int]models.Vote
}

func NewFollower(roomID, userID string, store Store, clock clockwork.Clock) *Follower {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Follower{
		roomID:     roomID,
		userID:     userID,
		store:      store,
		ledger:     NewLedger(store, clock),
		clock:      clock,
		roundVotes: make(map[string]models.Vote),
		myVotes:    make(map[int]models.Vote),
	}
}

// Sync reloads the replica from the store.
func (f *Follower) Sync(ctx context.Context) error {
	room, err := f.store.GetRoom(ctx, f.roomID)
	if err != nil {
		return err
	}
	tracks, err := f.store.GetTracks(ctx, f.roomID)
	if err != nil {
		return fmt.Errorf("failed to load tracks: %w", err)
	}
	players, err := f.store.GetPlayers(ctx, f.roomID)
	if err != nil {
		return fmt.Errorf("failed to load players: %w", err)
	}

	roundVotes := make(map[string]models.Vote)
	myVotes := make(map[int]models.Vote)
	if room.State.Started {
		votes, err := f.store.GetVotesForRound(ctx, f.roomID, room.State.CurrentRound)
		if err != nil {
			return fmt.Errorf("failed to load votes: %w", err)
		}
		for _, v := range votes {
			roundVotes[v.VoterID] = v
			if v.VoterID == f.userID {
				myVotes[v.Round] = v
			}
		}
	}

	f.room = room
	f.tracks = tracks
	f.players = players
	f.roundVotes = roundVotes
	f.myVotes = myVotes
	return nil
}

// Apply folds a change notification into the replica. It reports whether the
// change could not be applied incrementally and a Sync is needed.
func (f *Follower) Apply(change models.Change) bool {
	if change.RoomID != f.roomID || f.room == nil {
		return f.room == nil
	}

	switch change.Kind {
	case models.ChangeRoom:
		if change.State == nil {
			return true
		}
		prev := f.room.State
		f.room.State = *change.State
		if !change.State.Started {
			f.tracks = nil
			f.roundVotes = make(map[string]models.Vote)
			f.myVotes = make(map[int]models.Vote)
			for i := range f.players {
				f.players[i].Score = 0
			}
			return false
		}
		if prev.CurrentRound != change.State.CurrentRound || !prev.Started {
			// A new round's votes may already exist.
			f.roundVotes = make(map[string]models.Vote)
			return true
		}
		// A skipped phase means notifications were lost on the way.
		return prev.CurrentPhase != change.State.CurrentPhase &&
			nextPhase(prev.CurrentPhase) != change.State.CurrentPhase

	case models.ChangePlayers:
		if change.Player == nil {
			return true
		}
		for i := range f.players {
			if f.players[i].UserID == change.Player.UserID {
				f.players[i].Score = change.Player.Score
				if change.Player.DisplayName != "" {
					f.players[i].DisplayName = change.Player.DisplayName
					f.players[i].Avatar = change.Player.Avatar
				}
				return false
			}
		}
		if change.Player.DisplayName == "" {
			return true
		}
		f.players = append(f.players, *change.Player)
		return false

	case models.ChangeVotes:
		if change.Vote == nil {
			return true
		}
		v := *change.Vote
		if v.VoterID == f.userID {
			f.myVotes[v.Round] = v
		}
		if f.room.State.Started && v.Round == f.room.State.CurrentRound {
			f.roundVotes[v.VoterID] = v
		}
		return false

	default:
		return true
	}
}

// SubmitVote records the participant's guess for the current round. The
// vote is accepted after the deadline but then scores no base points.
func (f *Follower) SubmitVote(ctx context.Context, votedForID string) (*models.Vote, error) {
	if err := f.refreshState(ctx); err != nil {
		return nil, err
	}
	if f.room == nil || !f.room.State.Started {
		return nil, ErrNotStarted
	}
	st := f.room.State
	if st.Finished || st.CurrentPhase == models.PhaseFinished {
		return nil, ErrGameFinished
	}
	if st.CurrentPhase != models.PhaseVoting {
		return nil, ErrVotingClosed
	}
	if v, ok := f.myVotes[st.CurrentRound]; ok {
		return &v, ErrAlreadyVoted
	}

	req := VoteRequest{
		RoomID:     f.roomID,
		VoterID:    f.userID,
		VotedForID: votedForID,
		Round:      st.CurrentRound,
	}
	if t, ok := f.trackAt(st.CurrentRound); ok {
		req.TrackID = t.TrackID
	}
	if st.PhaseStartTime != nil {
		req.PhaseStart = *st.PhaseStartTime
	}
	if st.PhaseEndTime != nil {
		req.PhaseEnd = *st.PhaseEndTime
	}

	vote, err := f.ledger.Submit(ctx, req)
	if vote != nil && (err == nil || errors.Is(err, ErrAlreadyVoted)) {
		f.myVotes[vote.Round] = *vote
		f.roundVotes[vote.VoterID] = *vote
	}
	return vote, err
}

// refreshState rereads the room state so a vote is never filed against a
// phase the host has already closed.
func (f *Follower) refreshState(ctx context.Context) error {
	room, err := f.store.GetRoom(ctx, f.roomID)
	if err != nil {
		return err
	}
	if f.room == nil || !samePhase(room.State, f.room.State) {
		return f.Sync(ctx)
	}
	f.room.State = room.State
	return nil
}

// View renders the replica at the follower's clock.
func (f *Follower) View() View {
	v := View{RoomID: f.roomID, Kind: ViewWaiting, TotalRounds: len(f.tracks)}
	if f.room == nil {
		return v
	}
	st := f.room.State
	v.Players = f.playerViews()
	if !st.Started {
		return v
	}

	now := f.clock.Now()
	cd := CountdownFor(st)
	v.Round = st.CurrentRound
	v.Phase = st.CurrentPhase
	v.PhaseEndTime = st.PhaseEndTime
	v.Remaining = cd.Remaining(now)
	v.Progress = cd.Progress(now)
	v.VotesIn = len(f.roundVotes)
	if mine, ok := f.myVotes[st.CurrentRound]; ok {
		v.MyVote = &mine
	}

	track, hasTrack := f.trackAt(st.CurrentRound)

	switch {
	case st.Finished || st.CurrentPhase == models.PhaseFinished:
		v.Kind = ViewFinished
		v.MyVote = nil
		v.VotesIn = 0
	case st.CurrentPhase == models.PhasePreparing:
		v.Kind = ViewPreparing
	case st.CurrentPhase == models.PhaseVoting:
		v.Kind = ViewVoting
		if v.MyVote != nil {
			v.Kind = ViewVoted
		}
		if hasTrack {
			v.Track = f.hiddenTrack(track)
		}
	case st.CurrentPhase == models.PhaseResults, st.CurrentPhase == models.PhaseStandings:
		v.Kind = ViewResults
		if st.CurrentPhase == models.PhaseStandings {
			v.Kind = ViewStandings
		}
		if hasTrack {
			v.Track = revealedTrack(track)
		}
		v.RoundVotes = f.sortedRoundVotes()
	default:
		v.Kind = ViewPreparing
	}
	return v
}

func (f *Follower) hiddenTrack(t models.Track) *TrackView {
	cfg := f.room.Config
	tv := &TrackView{Order: t.Order, PreviewURL: t.PreviewURL}
	if cfg.RevealSongName {
		tv.Name = t.Name
	}
	if cfg.RevealArtists {
		tv.Artists = t.Artists
	}
	if cfg.RevealCover {
		tv.CoverURL = t.CoverURL
	}
	return tv
}

func revealedTrack(t models.Track) *TrackView {
	return &TrackView{
		Order:        t.Order,
		Name:         t.Name,
		Artists:      t.Artists,
		CoverURL:     t.CoverURL,
		PreviewURL:   t.PreviewURL,
		OwnerUserID:  t.OwnerUserID,
		AlsoListened: t.OtherPlayersWithTrack,
	}
}

func (f *Follower) playerViews() []PlayerView {
	sorted := SortStandings(f.players)
	out := make([]PlayerView, 0, len(sorted))
	for _, p := range sorted {
		_, voted := f.roundVotes[p.UserID]
		out = append(out, PlayerView{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Avatar:      p.Avatar,
			Score:       p.Score,
			HasVoted:    voted,
		})
	}
	return out
}

// sortedRoundVotes lists the round's votes in player join order.
func (f *Follower) sortedRoundVotes() []models.Vote {
	out := make([]models.Vote, 0, len(f.roundVotes))
	seen := make(map[string]bool, len(f.roundVotes))
	for _, p := range f.players {
		if v, ok := f.roundVotes[p.UserID]; ok {
			out = append(out, v)
			seen[p.UserID] = true
		}
	}
	for voter, v := range f.roundVotes {
		if !seen[voter] {
			out = append(out, v)
		}
	}
	return out
}

func (f *Follower) trackAt(round int) (models.Track, bool) {
	for _, t := range f.tracks {
		if t.Order == round {
			return t, true
		}
	}
	return models.Track{}, false
}

func nextPhase(p models.Phase) models.Phase {
	switch p {
	case models.PhasePreparing:
		return models.PhaseVoting
	case models.PhaseVoting:
		return models.PhaseResults
	case models.PhaseResults:
		return models.PhaseStandings
	case models.PhaseStandings:
		return models.PhaseFinished
	}
	return ""
}
