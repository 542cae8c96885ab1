package room

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rooms := r.Group("/rooms")
	{
		rooms.POST("", h.createRoom)
		rooms.GET("/code/:code", h.getRoomByCode)
		rooms.GET("/:id", h.getRoom)
		rooms.POST("/:id/join", h.joinRoom)
		rooms.GET("/:id/players", h.getPlayers)
		rooms.GET("/:id/standings", h.getStandings)
		rooms.GET("/:id/view", h.getView)
		rooms.GET("/:id/votes", h.getVotes)
		rooms.POST("/:id/votes", h.submitVote)
		rooms.POST("/:id/start", h.startGame)
		rooms.POST("/:id/skip", h.skip)
		rooms.POST("/:id/reset", h.reset)
	}
}

type CreateRoomRequest struct {
	Name        string            `json:"name" binding:"required"`
	DisplayName string            `json:"display_name" binding:"required"`
	Avatar      string            `json:"avatar"`
	Config      models.RoomConfig `json:"config"`
}

func (h *Handler) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), CreateRoomParams{
		HostID:      c.GetString("user_id"),
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
		Name:        req.Name,
		Config:      req.Config,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *Handler) getRoom(c *gin.Context) {
	room, err := h.service.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *Handler) getRoomByCode(c *gin.Context) {
	room, err := h.service.GetRoomByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

type JoinRoomRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Avatar      string `json:"avatar"`
}

func (h *Handler) joinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	player, err := h.service.JoinRoom(c.Request.Context(), c.Param("id"), c.GetString("user_id"), req.DisplayName, req.Avatar)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, player)
}

func (h *Handler) getPlayers(c *gin.Context) {
	players, err := h.service.Players(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"players": players})
}

func (h *Handler) getStandings(c *gin.Context) {
	players, err := h.service.Standings(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"standings": players})
}

func (h *Handler) getView(c *gin.Context) {
	view, err := h.service.View(c.Request.Context(), c.Param("id"), c.GetString("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) getVotes(c *gin.Context) {
	round, err := strconv.Atoi(c.Query("round"))
	if err != nil || round < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "round must be a non-negative integer"})
		return
	}

	votes, err := h.service.RoundVotes(c.Request.Context(), c.Param("id"), round)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"votes": votes})
}

type SubmitVoteRequest struct {
	VotedFor string `json:"voted_for" binding:"required"`
}

func (h *Handler) submitVote(c *gin.Context) {
	var req SubmitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vote, err := h.service.SubmitVote(c.Request.Context(), c.Param("id"), c.GetString("user_id"), req.VotedFor)
	if errors.Is(err, game.ErrAlreadyVoted) && vote != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "vote": vote})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, vote)
}

func (h *Handler) startGame(c *gin.Context) {
	if err := h.service.StartGame(c.Request.Context(), c.Param("id"), c.GetString("user_id")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) skip(c *gin.Context) {
	if err := h.service.Skip(c.Request.Context(), c.Param("id"), c.GetString("user_id")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) reset(c *gin.Context) {
	if err := h.service.ResetGame(c.Request.Context(), c.Param("id"), c.GetString("user_id")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error) {
	c.JSON(StatusFor(err), gin.H{"error": err.Error()})
}

// StatusFor maps service and game errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrRoomNotFound), errors.Is(err, ErrRoomCodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotHost), errors.Is(err, ErrNotPlayer):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrAlreadyVoted),
		errors.Is(err, game.ErrVotingClosed),
		errors.Is(err, game.ErrNotStarted),
		errors.Is(err, game.ErrAlreadyStarted),
		errors.Is(err, game.ErrGameFinished),
		errors.Is(err, game.ErrNotEnoughPlayers),
		errors.Is(err, game.ErrNotEnoughTracks):
		return http.StatusConflict
	case errors.Is(err, game.ErrHostStopped):
		return http.StatusServiceUnavailable
	default:
		log.Error().Err(err).Msg("request failed")
		return http.StatusInternalServerError
	}
}
