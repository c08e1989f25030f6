// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/store"
)

// ErrMissingSecret is returned when authentication is required but no JWT
// secret is configured.
var ErrMissingSecret = errors.New("JWT_SECRET is required when AUTH_REQUIRED is true")

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
// Fields tagged env are decoded from the environment; the rest are derived
// by sanitizeConfig.
type Config struct {
	Env                  string        `env:"ENV,default=development"`
	Port                 string        `env:"SERVER_PORT,default=:8080"`
	RawAllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	RateLimitBurst       int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitRefillSecs  int           `env:"RATE_LIMIT_REFILL_INTERVAL,default=1"`
	JWTSecret            string        `env:"JWT_SECRET"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	AuthRequired         bool          `env:"AUTH_REQUIRED,default=true"`
	StoreDriver          string        `env:"STORE_DRIVER,default=badger"`
	BadgerPath           string        `env:"BADGER_PATH,default=./data"`
	DatabaseURL          string        `env:"DATABASE_URL"`
	RedisURL             string        `env:"REDIS_URL"`
	HistoryLimit         int           `env:"HISTORY_LIMIT,default=100"`
	StoreTimeout         time.Duration `env:"STORE_TIMEOUT,default=5s"`
	RawBannedWords       string        `env:"BANNED_WORDS"`
	CensorCharacter      string        `env:"CENSOR_CHARACTER,default=*"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	AllowedOrigins       []string
	BannedWords          []string
	RateLimit            RateLimitConfig
	allowAllOrigins      bool
	invalidOrigins       []string
	normalizedOriginsSet map[string]struct{}
}

func defaultConfig() Config {
	return Config{
		Env:            "development",
		Port:           ":8080",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		AuthTokenDuration: 24 * time.Hour,
		AuthRequired:      true,
		StoreDriver:       store.DriverBadger,
		BadgerPath:        "./data",
		HistoryLimit:      presence.DefaultHistoryLimit,
		StoreTimeout:      5 * time.Second,
		CensorCharacter:   "*",
		LogLevel:          "info",
		ShutdownTimeout:   10 * time.Second,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.AuthTokenDuration <= 0 {
		cfg.AuthTokenDuration = 24 * time.Hour
	}

	if cfg.StoreDriver == "" {
		cfg.StoreDriver = store.DriverBadger
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = presence.DefaultHistoryLimit
	}

	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	if cfg.CensorCharacter == "" {
		cfg.CensorCharacter = "*"
	}

	normalizedOrigins, allowAll, invalid := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins
	cfg.invalidOrigins = invalid
	cfg.allowAllOrigins = allowAll
	cfg.normalizedOriginsSet = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		cfg.normalizedOriginsSet[origin] = struct{}{}
	}

	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := sanitizeConfig(defaultConfig())
	return &cfg
}

// Sanitized returns a copy of cfg with defaults applied to zero values and
// the origin allow-list normalized. Tests build configs by hand and pass
// them through here.
func (c Config) Sanitized() *Config {
	cfg := c
	cfg.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	cfg.BannedWords = append([]string(nil), c.BannedWords...)
	cfg = sanitizeConfig(cfg)
	return &cfg
}

// NewConfigFromEnv loads .env (when present) and decodes the environment.
// Variables that are unset fall back to their defaults.
func NewConfigFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.AllowedOrigins = parseList(cfg.RawAllowedOrigins)
	cfg.BannedWords = parseList(cfg.RawBannedWords)
	cfg.RateLimit = RateLimitConfig{
		Burst:          cfg.RateLimitBurst,
		RefillInterval: time.Duration(cfg.RateLimitRefillSecs) * time.Second,
	}

	sanitized := sanitizeConfig(cfg)
	if err := sanitized.Validate(); err != nil {
		return nil, err
	}
	return &sanitized, nil
}

// Validate reports settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.AuthRequired && c.JWTSecret == "" {
		return ErrMissingSecret
	}
	switch c.StoreDriver {
	case store.DriverBadger:
	case store.DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case store.DriverRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownDriver, c.StoreDriver)
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// CensorRune is the replacement rune for banned words.
func (c Config) CensorRune() rune {
	for _, r := range c.CensorCharacter {
		return r
	}
	return '*'
}

func parseList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
