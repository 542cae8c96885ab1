package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/CarlesMG6/guessify-sub000/internal/game"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"

	FeedRedis  = "redis"
	FeedNATS   = "nats"
	FeedMemory = "memory"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"development"`
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"mysql"`
	FeedBackend  string `env:"FEED_BACKEND" envDefault:"redis"`

	MySQL   MySQL
	Redis   Redis
	NATSURL string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Kafka   Kafka
	Spotify Spotify

	JWTSecret      string        `env:"JWT_SECRET"`
	JWTTTL         time.Duration `env:"JWT_TTL" envDefault:"168h"`
	FrontendURL    string        `env:"FRONTEND_URL" envDefault:"/"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	Game Game
}

type MySQL struct {
	Host     string `env:"MYSQL_HOST" envDefault:"localhost"`
	Port     string `env:"MYSQL_PORT" envDefault:"3306"`
	User     string `env:"MYSQL_USER" envDefault:"root"`
	Password string `env:"MYSQL_PASSWORD"`
	Database string `env:"MYSQL_DATABASE" envDefault:"guessify"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

func (r Redis) Addr() string { return r.Host + ":" + r.Port }

// Kafka publishing is disabled when no brokers are configured.
type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"guessify-game-events"`
}

type Spotify struct {
	ClientID     string `env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	RedirectURI  string `env:"SPOTIFY_REDIRECT_URI" envDefault:"http://localhost:8080/api/v1/auth/callback"`
	DeviceID     string `env:"SPOTIFY_DEVICE_ID"`
}

func (s Spotify) Enabled() bool { return s.ClientID != "" && s.ClientSecret != "" }

// Game holds the fixed phase durations shared by every room.
type Game struct {
	Preparing  time.Duration `env:"PREPARING_DURATION" envDefault:"5s"`
	Results    time.Duration `env:"RESULTS_DURATION" envDefault:"8s"`
	Standings  time.Duration `env:"STANDINGS_DURATION" envDefault:"6s"`
	Grace      time.Duration `env:"VOTE_GRACE_DELAY" envDefault:"1500ms"`
	MinPlayers int           `env:"MIN_PLAYERS" envDefault:"2"`
}

func (g Game) Timing() game.Timing {
	return game.Timing{
		Preparing: g.Preparing,
		Results:   g.Results,
		Standings: g.Standings,
		Grace:     g.Grace,
	}
}

func (c Config) Production() bool { return c.Env == "production" }

// Load reads .env when present and parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}
	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreMySQL, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.FeedBackend {
	case FeedRedis, FeedNATS, FeedMemory:
	default:
		return fmt.Errorf("unknown FEED_BACKEND %q", c.FeedBackend)
	}
	if c.StoreBackend == StoreMemory && c.FeedBackend != FeedMemory {
		return errors.New("STORE_BACKEND=memory requires FEED_BACKEND=memory")
	}
	if c.Production() && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}
	if c.Game.MinPlayers < 1 {
		return fmt.Errorf("MIN_PLAYERS must be at least 1, got %d", c.Game.MinPlayers)
	}
	for name, d := range map[string]time.Duration{
		"PREPARING_DURATION": c.Game.Preparing,
		"RESULTS_DURATION":   c.Game.Results,
		"STANDINGS_DURATION": c.Game.Standings,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Game.Grace < 0 {
		return fmt.Errorf("VOTE_GRACE_DELAY must not be negative, got %s", c.Game.Grace)
	}
	return nil
}
