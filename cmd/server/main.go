package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/internal/auth"
	"github.com/CarlesMG6/guessify-sub000/internal/config"
	"github.com/CarlesMG6/guessify-sub000/internal/game"
	"github.com/CarlesMG6/guessify-sub000/internal/playlist"
	"github.com/CarlesMG6/guessify-sub000/internal/room"
	"github.com/CarlesMG6/guessify-sub000/internal/spotify"
	"github.com/CarlesMG6/guessify-sub000/internal/ws"
	"github.com/CarlesMG6/guessify-sub000/pkg/database"
	"github.com/CarlesMG6/guessify-sub000/pkg/events"
	"github.com/CarlesMG6/guessify-sub000/pkg/jwt"
	"github.com/CarlesMG6/guessify-sub000/pkg/memory"
	"github.com/CarlesMG6/guessify-sub000/pkg/models"
	"github.com/CarlesMG6/guessify-sub000/pkg/natsbus"
	"github.com/CarlesMG6/guessify-sub000/pkg/redis"
)

const devJWTSecret = "guessify-dev-secret"

// repository is everything the server needs from the document store.
type repository interface {
	room.Repository
	auth.UserStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	var repo repository
	switch cfg.StoreBackend {
	case config.StoreMySQL:
		db, err := database.NewMySQLDB(cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Database, !cfg.Production())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		closers = append(closers, func() { _ = db.Close() })
		repo = db
	default:
		log.Warn().Msg("using in-memory store, data is lost on restart")
		repo = memory.NewStore()
	}

	var redisClient *goredis.Client
	if cfg.FeedBackend == config.FeedRedis || cfg.Spotify.Enabled() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var notifier game.Notifier
	switch cfg.FeedBackend {
	case config.FeedRedis:
		notifier = redis.NewNotifier(redisClient)
	case config.FeedNATS:
		nc, err := natsbus.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		closers = append(closers, func() { _ = nc.Drain() })
		notifier = natsbus.NewNotifier(nc)
	default:
		broker := memory.NewBroker()
		closers = append(closers, broker.Close)
		notifier = broker
	}

	clock := clockwork.NewRealClock()

	var gameEvents game.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient := events.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.Topic, clock)
		closers = append(closers, func() { _ = kafkaClient.Close() })
		gameEvents = kafkaClient
	} else {
		log.Info().Msg("KAFKA_BROKERS not set, game events are not published")
	}

	var (
		spotifyClient *spotify.Client
		tokenStore    *redis.TokenStore
		source        playlist.Source = playlist.DemoCatalog()
		playback                      = func(models.Room) game.Playback { return game.NopPlayback() }
	)
	if cfg.Spotify.Enabled() {
		spotifyClient = spotify.NewClient(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURI)
		tokenStore = redis.NewTokenStore(redisClient)
		tokens := spotify.NewTokens(spotifyClient, tokenStore, clock)
		source = spotify.NewTopTracksSource(spotifyClient, tokens)
		playback = func(r models.Room) game.Playback {
			return spotify.NewPlayer(spotifyClient, tokens, r.HostID, cfg.Spotify.DeviceID)
		}
	} else {
		log.Warn().Msg("Spotify is not configured, playlists come from the built-in catalog")
	}

	var (
		codes room.CodeCache
		lease game.Lease
	)
	if redisClient != nil {
		codes = redis.NewRoomCodeCache(redisClient)
		lease = redis.NewHostLease(redisClient)
	} else if cfg.StoreBackend == config.StoreMySQL {
		log.Warn().Msg("Redis not configured, run a single server per database")
	}

	roomService := room.NewService(room.Options{
		Repo:       repo,
		Notifier:   notifier,
		Playlist:   playlist.NewGenerator(source),
		Events:     gameEvents,
		Playback:   playback,
		Codes:      codes,
		Clock:      clock,
		Timing:     cfg.Game.Timing(),
		MinPlayers: cfg.Game.MinPlayers,
		Lease:      lease,
	})

	secret := cfg.JWTSecret
	if secret == "" {
		log.Warn().Msg("JWT_SECRET not set, using the development secret")
		secret = devJWTSecret
	}
	sessions := jwt.NewManager(secret, cfg.JWTTTL)

	authOpts := auth.Options{
		Users:        repo,
		JWT:          sessions,
		FrontendURL:  cfg.FrontendURL,
		SecureCookie: cfg.Production(),
		Clock:        clock,
	}
	if spotifyClient != nil {
		authOpts.Spotify = spotifyClient
		authOpts.Tokens = tokenStore
	}
	authHandler := auth.NewHandler(authOpts)
	roomHandler := room.NewHandler(roomService)
	wsHandler := ws.NewHandler(roomService, clock, cfg.AllowedOrigins)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	authHandler.RegisterRoutes(v1)

	protected := v1.Group("/")
	protected.Use(auth.Middleware(sessions))
	{
		roomHandler.RegisterRoutes(protected)
		protected.GET("/ws/:roomId", wsHandler.HandleWebSocket)
	}

	// Serve the built frontend with an SPA fallback.
	router.NoRoute(func(c *gin.Context) {
		filePath := filepath.Join("frontend/dist", filepath.Clean(c.Request.URL.Path))
		if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
			c.File(filePath)
			return
		}
		c.File("frontend/dist/index.html")
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreBackend).Str("feed", cfg.FeedBackend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	roomService.Close()
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if !cfg.Production() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
