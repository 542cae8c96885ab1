package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

const (
	codeLength   = 6
	codeAttempts = 5

	minSongs        = 1
	maxSongs        = 20
	minTimePerRound = 5
	maxTimePerRound = 120
)

var (
	ErrNotHost          = errors.New("only the room host can do that")
	ErrNotPlayer        = errors.New("user has not joined this room")
	ErrRoomCodeNotFound = errors.New("no room with that code")
	ErrInvalidConfig    = errors.New("invalid room config")
)

// Repository is the document store plus the room lifecycle writes.
type Repository interface {
	game.Store
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	// AddPlayer inserts the player unless they already joined. On a re-join
	// the stored player is copied into player and false is returned.
	AddPlayer(ctx context.Context, player *models.Player) (bool, error)
}

// CodeCache maps join codes to room IDs. Get returns "" on a miss.
type CodeCache interface {
	Set(ctx context.Context, code, roomID string) error
	Get(ctx context.Context, code string) (string, error)
}

// PlaybackFactory returns the audio player for a room's host.
type PlaybackFactory func(room models.Room) game.Playback

type Options struct {
	Repo       Repository
	Notifier   game.Notifier
	Playlist   game.PlaylistGenerator
	Events     game.EventPublisher
	Playback   PlaybackFactory
	Codes      CodeCache
	Clock      clockwork.Clock
	Timing     game.Timing
	MinPlayers int
	// Lease keeps a room hosted by one server when several share the store.
	Lease game.Lease
}

type Service struct {
	repo       Repository
	synced     *game.SyncedStore
	playlist   game.PlaylistGenerator
	events     game.EventPublisher
	playback   PlaybackFactory
	codes      CodeCache
	clock      clockwork.Clock
	timing     game.Timing
	minPlayers int
	lease      game.Lease
	owner      string

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	hosts map[string]*game.Host
	wg    sync.WaitGroup

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewService(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Playback == nil {
		opts.Playback = func(models.Room) game.Playback { return game.NopPlayback() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:       opts.Repo,
		synced:     game.NewSyncedStore(opts.Repo, opts.Notifier, opts.Clock),
		playlist:   opts.Playlist,
		events:     opts.Events,
		playback:   opts.Playback,
		codes:      opts.Codes,
		clock:      opts.Clock,
		timing:     opts.Timing,
		minPlayers: opts.MinPlayers,
		lease:      opts.Lease,
		owner:      uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		hosts:      make(map[string]*game.Host),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Store is the change-publishing store shared by hosts and followers.
func (s *Service) Store() *game.SyncedStore { return s.synced }

// Close stops every running host and waits for their loops to exit.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

type CreateRoomParams struct {
	HostID      string
	DisplayName string
	Avatar      string
	Name        string
	Config      models.RoomConfig
}

func ValidateConfig(cfg models.RoomConfig) error {
	if cfg.NumSongs < minSongs || cfg.NumSongs > maxSongs {
		return fmt.Errorf("%w: num_songs must be between %d and %d", ErrInvalidConfig, minSongs, maxSongs)
	}
	if cfg.TimePerRound < minTimePerRound || cfg.TimePerRound > maxTimePerRound {
		return fmt.Errorf("%w: time_per_round must be between %d and %d seconds", ErrInvalidConfig, minTimePerRound, maxTimePerRound)
	}
	if !cfg.Term.Valid() {
		return fmt.Errorf("%w: term must be short, medium or long", ErrInvalidConfig)
	}
	return nil
}

// CreateRoom stores a new room and joins the host as its first player.
func (s *Service) CreateRoom(ctx context.Context, p CreateRoomParams) (*models.Room, error) {
	if p.Config.Term == "" {
		p.Config.Term = models.TermMedium
	}
	if err := ValidateConfig(p.Config); err != nil {
		return nil, err
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	room := &models.Room{
		ID:        uuid.NewString(),
		Code:      code,
		HostID:    p.HostID,
		Name:      p.Name,
		Config:    p.Config,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	if s.codes != nil {
		if err := s.codes.Set(ctx, room.Code, room.ID); err != nil {
			log.Warn().Err(err).Str("room_id", room.ID).Msg("failed to cache room code")
		}
	}

	if _, err := s.JoinRoom(ctx, room.ID, p.HostID, p.DisplayName, p.Avatar); err != nil {
		return nil, err
	}

	log.Info().Str("room_id", room.ID).Str("code", room.Code).Str("host_id", room.HostID).Msg("room created")
	return room, nil
}

// JoinRoom adds the user to the room. Joining again returns the existing
// player with its score intact.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID, displayName, avatar string) (*models.Player, error) {
	if _, err := s.repo.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	player := &models.Player{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
		Avatar:      avatar,
		JoinedAt:    s.clock.Now(),
	}
	created, err := s.repo.AddPlayer(ctx, player)
	if err != nil {
		return nil, fmt.Errorf("failed to add player: %w", err)
	}
	if created {
		s.synced.NotifyPlayerJoined(ctx, *player)
		log.Info().Str("room_id", roomID).Str("user_id", userID).Msg("player joined")
	}
	return player, nil
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.repo.GetRoom(ctx, roomID)
}

func (s *Service) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	if s.codes != nil {
		roomID, err := s.codes.Get(ctx, code)
		if err != nil {
			log.Warn().Err(err).Str("code", code).Msg("room code cache unavailable")
		}
		if roomID != "" {
			room, err := s.repo.GetRoom(ctx, roomID)
			if err == nil {
				return room, nil
			}
			if !errors.Is(err, game.ErrRoomNotFound) {
				return nil, err
			}
		}
	}

	room, err := s.repo.GetRoomByCode(ctx, code)
	if errors.Is(err, game.ErrRoomNotFound) {
		return nil, ErrRoomCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.codes != nil {
		if err := s.codes.Set(ctx, room.Code, room.ID); err != nil {
			log.Warn().Err(err).Str("room_id", room.ID).Msg("failed to cache room code")
		}
	}
	return room, nil
}

func (s *Service) StartGame(ctx context.Context, roomID, userID string) error {
	return s.command(ctx, roomID, userID, (*game.Host).Start)
}

func (s *Service) Skip(ctx context.Context, roomID, userID string) error {
	return s.command(ctx, roomID, userID, (*game.Host).Skip)
}

func (s *Service) ResetGame(ctx context.Context, roomID, userID string) error {
	return s.command(ctx, roomID, userID, (*game.Host).Reset)
}

// command runs a host control. A host that exits while the command is in
// flight, as it does once its game finishes, is replaced and the command
// retried once.
func (s *Service) command(ctx context.Context, roomID, userID string, fn func(*game.Host, context.Context) error) error {
	for attempt := 0; ; attempt++ {
		h, err := s.hostFor(ctx, roomID, userID)
		if err != nil {
			return err
		}
		err = fn(h, ctx)
		if attempt > 0 || !errors.Is(err, game.ErrHostStopped) || s.ctx.Err() != nil {
			return err
		}
	}
}

// Follower returns a synced replica of the room for one participant.
func (s *Service) Follower(ctx context.Context, roomID, userID string) (*game.Follower, error) {
	f := game.NewFollower(roomID, userID, s.synced, s.clock)
	if err := f.Sync(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Attach returns a follower for one of the room's players and makes sure a
// game in progress has a running host.
func (s *Service) Attach(ctx context.Context, roomID, userID string) (*game.Follower, error) {
	if err := s.requirePlayer(ctx, roomID, userID); err != nil {
		return nil, err
	}
	f, err := s.Follower(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	s.resume(ctx, roomID)
	return f, nil
}

// View renders the room as the given participant sees it right now.
func (s *Service) View(ctx context.Context, roomID, userID string) (game.View, error) {
	f, err := s.Follower(ctx, roomID, userID)
	if err != nil {
		return game.View{}, err
	}
	s.resume(ctx, roomID)
	return f.View(), nil
}

// SubmitVote records the user's guess for the current round.
func (s *Service) SubmitVote(ctx context.Context, roomID, userID, votedForID string) (*models.Vote, error) {
	f, err := s.Attach(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	return f.SubmitVote(ctx, votedForID)
}

func (s *Service) RoundVotes(ctx context.Context, roomID string, round int) ([]models.Vote, error) {
	if _, err := s.repo.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.repo.GetVotesForRound(ctx, roomID, round)
}

func (s *Service) Players(ctx context.Context, roomID string) ([]models.Player, error) {
	if _, err := s.repo.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.repo.GetPlayers(ctx, roomID)
}

// Standings returns the room's players ordered by score.
func (s *Service) Standings(ctx context.Context, roomID string) ([]models.Player, error) {
	players, err := s.Players(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return game.SortStandings(players), nil
}

func (s *Service) requirePlayer(ctx context.Context, roomID, userID string) error {
	players, err := s.Players(ctx, roomID)
	if err != nil {
		return err
	}
	for _, p := range players {
		if p.UserID == userID {
			return nil
		}
	}
	return ErrNotPlayer
}

func (s *Service) hostFor(ctx context.Context, roomID, userID string) (*game.Host, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostID != userID {
		return nil, ErrNotHost
	}
	return s.host(ctx, *room)
}

// resume restarts the host of a game left running by a previous process.
func (s *Service) resume(ctx context.Context, roomID string) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil || !room.State.Started || room.State.Finished {
		return
	}
	_, err = s.host(ctx, *room)
	switch {
	case errors.Is(err, game.ErrHostedElsewhere):
		log.Debug().Str("room_id", roomID).Msg("room is hosted by another server")
	case err != nil:
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to resume room host")
	}
}

// host returns the running host for room, starting one if needed. Without
// the room's lease it returns ErrHostedElsewhere.
func (s *Service) host(ctx context.Context, room models.Room) (*game.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.hosts[room.ID]; ok {
		select {
		case <-h.Done():
		default:
			return h, nil
		}
	}
	if s.ctx.Err() != nil {
		return nil, game.ErrHostStopped
	}

	h := game.NewHost(room.ID, game.HostOptions{
		Store:      s.synced,
		Feed:       s.synced,
		Playback:   s.playback(room),
		Playlist:   s.playlist,
		Events:     s.events,
		Clock:      s.clock,
		Timing:     s.timing,
		MinPlayers: s.minPlayers,
		Lease:      s.lease,
		Owner:      s.owner,
	})
	if err := h.Load(ctx); err != nil {
		return nil, err
	}
	if err := h.Claim(ctx); err != nil {
		return nil, err
	}
	s.hosts[room.ID] = h

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := h.Run(s.ctx); err != nil {
			log.Error().Err(err).Str("room_id", room.ID).Msg("room host exited")
		}
		s.forget(room.ID, h)
	}()
	return h, nil
}

// forget drops a host whose loop has exited.
func (s *Service) forget(roomID string, h *game.Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hosts[roomID] == h {
		delete(s.hosts, roomID)
	}
}

func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := s.generateCode()
		_, err := s.repo.GetRoomByCode(ctx, code)
		if errors.Is(err, game.ErrRoomNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check room code: %w", err)
		}
	}
	return "", errors.New("could not allocate a unique room code")
}

func (s *Service) generateCode() string {
	// 0/O and 1/I are left out
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = charset[s.rnd.Intn(len(charset))]
	}
	return string(code)
}
