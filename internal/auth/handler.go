package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/internal/spotify"
	"github.com/CarlesMG6/guessify-sub000/pkg/jwt"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
	"github.com/CarlesMG6/guessify-sub000/pkg/redis"
)

const (
	stateCookie    = "oauth_state"
	maxDisplayName = 32
)

// UserStore persists accounts. Lookups return (nil, nil) when absent.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserBySpotifyID(ctx context.Context, spotifyID string) (*models.User, error)
}

type Options struct {
	Users UserStore
	JWT   *jwt.Manager
	// Spotify and Tokens are nil when Spotify login is not configured.
	Spotify      *spotify.Client
	Tokens       spotify.TokenStore
	FrontendURL  string
	SecureCookie bool
	Clock        clockwork.Clock
}

type Handler struct {
	users        UserStore
	jwt          *jwt.Manager
	spotify      *spotify.Client
	tokens       spotify.TokenStore
	frontendURL  string
	secureCookie bool
	clock        clockwork.Clock
}

func NewHandler(opts Options) *Handler {
	if opts.FrontendURL == "" {
		opts.FrontendURL = "/"
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Handler{
		users:        opts.Users,
		jwt:          opts.JWT,
		spotify:      opts.Spotify,
		tokens:       opts.Tokens,
		frontendURL:  opts.FrontendURL,
		secureCookie: opts.SecureCookie,
		clock:        opts.Clock,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.GET("/login", h.login)
		auth.GET("/callback", h.callback)
		auth.POST("/guest", h.guest)
		auth.POST("/logout", h.logout)

		protected := auth.Group("", Middleware(h.jwt))
		protected.GET("/me", h.me)
	}
}

func (h *Handler) login(c *gin.Context) {
	if h.spotify == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Spotify login is not configured"})
		return
	}
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, 600, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"url": h.spotify.GetAuthURL(state)})
}

func (h *Handler) callback(c *gin.Context) {
	if h.spotify == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Spotify login is not configured"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if expected, err := c.Cookie(stateCookie); err != nil || expected == "" || expected != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
		return
	}
	ctx := c.Request.Context()

	token, err := h.spotify.ExchangeToken(ctx, code)
	if err != nil {
		log.Error().Err(err).Msg("spotify token exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to exchange code"})
		return
	}
	profile, err := h.spotify.GetCurrentUser(ctx, token.AccessToken)
	if err != nil {
		log.Error().Err(err).Msg("failed to read spotify profile")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read Spotify profile"})
		return
	}

	user, err := h.findOrCreateSpotifyUser(ctx, profile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	info := &redis.TokenInfo{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt(h.clock.Now()).UTC(),
	}
	if err := h.tokens.StoreTokens(ctx, user.ID, info); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("failed to store spotify tokens")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store tokens"})
		return
	}

	session, err := h.jwt.GenerateToken(user.ID, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	h.setSession(c, session)
	c.SetCookie(stateCookie, "", -1, "/", "", h.secureCookie, true)

	log.Info().Str("user_id", user.ID).Msg("spotify login")
	c.Redirect(http.StatusFound, h.frontendURL)
}

func (h *Handler) findOrCreateSpotifyUser(ctx context.Context, profile *spotify.Profile) (*models.User, error) {
	user, err := h.users.GetUserBySpotifyID(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	name := profile.DisplayName
	if name == "" {
		name = profile.ID
	}
	now := h.clock.Now()
	user = &models.User{
		ID:          uuid.NewString(),
		SpotifyID:   profile.ID,
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

type GuestRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// guest creates an account without Spotify. Guests can play but contribute
// no tracks unless the server runs with the built-in catalog.
func (h *Handler) guest(c *gin.Context) {
	var req GuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" || len(name) > maxDisplayName {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("display_name must be 1 to %d characters", maxDisplayName)})
		return
	}

	now := h.clock.Now()
	user := &models.User{ID: uuid.NewString(), DisplayName: name, CreatedAt: now, UpdatedAt: now}
	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	session, err := h.jwt.GenerateToken(user.ID, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	h.setSession(c, session)

	c.JSON(http.StatusCreated, gin.H{"token": session, "user": user})
}

// logout clears the session cookie and forgets the user's Spotify grant.
func (h *Handler) logout(c *gin.Context) {
	if raw := tokenFromRequest(c); raw != "" && h.tokens != nil {
		if claims, err := h.jwt.ValidateToken(raw); err == nil && !claims.Guest {
			if err := h.tokens.DeleteToken(c.Request.Context(), claims.UserID); err != nil {
				log.Warn().Err(err).Str("user_id", claims.UserID).Msg("failed to delete spotify tokens")
			}
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName, "", -1, "/", "", h.secureCookie, true)
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.users.GetUserByID(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "guest": c.GetBool("guest")})
}

func (h *Handler) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName, token, 0, "/", "", h.secureCookie, true)
}
