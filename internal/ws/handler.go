package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/internal/room"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = time.Minute
	refreshEvery = time.Second
	resyncEvery  = 5  // refreshes
	pingEvery    = 30 // refreshes
)

const (
	MessageView  = "view"
	MessageVote  = "vote"
	MessageError = "error"
)

// ClientMessage is what a participant sends over the socket.
type ClientMessage struct {
	Type     string `json:"type"`
	VotedFor string `json:"voted_for"`
}

type ServerMessage struct {
	Type  string       `json:"type"`
	View  *game.View   `json:"view,omitempty"`
	Vote  *models.Vote `json:"vote,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Handler pushes follower views to participants. Each connection owns one
// Follower replica fed by the room's change stream.
type Handler struct {
	rooms    *room.Service
	clock    clockwork.Clock
	upgrader websocket.Upgrader
}

func NewHandler(rooms *room.Service, clock clockwork.Clock, allowedOrigins []string) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		rooms: rooms,
		clock: clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := c.GetString("user_id")

	follower, err := h.rooms.Attach(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(room.StatusFor(err), gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to upgrade connection")
		return
	}

	s := &session{
		roomID:   roomID,
		userID:   userID,
		conn:     conn,
		follower: follower,
		feed:     h.rooms.Store(),
		clock:    h.clock,
		limiter:  rate.NewLimiter(1, 3),
	}
	s.run(c.Request.Context())
}

type session struct {
	roomID   string
	userID   string
	conn     *websocket.Conn
	follower *game.Follower
	feed     game.Feed
	clock    clockwork.Clock
	limiter  *rate.Limiter
}

// run owns every write to the connection. The reader goroutine only hands
// decoded messages over.
func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer s.conn.Close()

	log.Info().Str("room_id", s.roomID).Str("user_id", s.userID).Msg("websocket connected")
	defer log.Info().Str("room_id", s.roomID).Str("user_id", s.userID).Msg("websocket disconnected")

	sub, err := s.feed.Subscribe(ctx, s.roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", s.roomID).Msg("failed to subscribe to room feed")
		s.close(websocket.CloseInternalServerErr, "feed unavailable")
		return
	}
	defer sub.Close()

	incoming := make(chan ClientMessage)
	go s.read(ctx, cancel, incoming)

	ticker := s.clock.NewTicker(refreshEvery)
	defer ticker.Stop()

	// The replica may have missed changes between Attach and Subscribe.
	if err := s.follower.Sync(ctx); err != nil {
		log.Warn().Err(err).Str("room_id", s.roomID).Msg("initial sync failed")
	}
	if err := s.sendView(); err != nil {
		return
	}

	changes := sub.Changes()
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			s.close(websocket.CloseNormalClosure, "")
			return
		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if s.follower.Apply(change) {
				if err := s.follower.Sync(ctx); err != nil {
					log.Warn().Err(err).Str("room_id", s.roomID).Msg("resync failed")
				}
			}
			if err := s.sendView(); err != nil {
				return
			}
		case <-ticker.Chan():
			ticks++
			// The feed may drop changes under load, so reload now and then.
			if changes == nil || ticks%resyncEvery == 0 {
				if err := s.follower.Sync(ctx); err != nil {
					log.Warn().Err(err).Str("room_id", s.roomID).Msg("resync failed")
				}
			}
			if err := s.sendView(); err != nil {
				return
			}
			if ticks%pingEvery == 0 {
				if err := s.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		case msg := <-incoming:
			if err := s.handle(ctx, msg); err != nil {
				return
			}
		}
	}
}

func (s *session) read(ctx context.Context, cancel context.CancelFunc, out chan<- ClientMessage) {
	defer cancel()

	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("room_id", s.roomID).Str("user_id", s.userID).Msg("websocket read failed")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Str("user_id", s.userID).Msg("ignoring malformed message")
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// handle returns an error only when the connection is no longer writable.
func (s *session) handle(ctx context.Context, msg ClientMessage) error {
	switch msg.Type {
	case MessageVote:
		if !s.limiter.Allow() {
			return s.sendError(errors.New("too many requests"))
		}
		if msg.VotedFor == "" {
			return s.sendError(errors.New("voted_for is required"))
		}
		vote, err := s.follower.SubmitVote(ctx, msg.VotedFor)
		if err != nil && !errors.Is(err, game.ErrAlreadyVoted) {
			return s.sendError(err)
		}
		if err := s.send(ServerMessage{Type: MessageVote, Vote: vote}); err != nil {
			return err
		}
		return s.sendView()
	default:
		return s.sendError(errors.New("unknown message type"))
	}
}

func (s *session) sendView() error {
	v := s.follower.View()
	return s.send(ServerMessage{Type: MessageView, View: &v})
}

func (s *session) sendError(err error) error {
	return s.send(ServerMessage{Type: MessageError, Error: err.Error()})
}

func (s *session) send(msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal message")
		return nil
	}
	return s.write(websocket.TextMessage, data)
}

func (s *session) write(messageType int, data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		log.Debug().Err(err).Str("user_id", s.userID).Msg("websocket write failed")
		return err
	}
	return nil
}

func (s *session) close(code int, text string) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
