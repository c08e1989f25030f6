// Package server constructs and starts the roomchat HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/moderation"
	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/store"
)

// Server bundles the hub, the HTTP surface and their dependencies.
type Server struct {
	cfg      *Config
	hub      *Hub
	store    store.Store
	issuer   *auth.TokenIssuer
	upgrader websocket.Upgrader
	log      zerolog.Logger
	http     *http.Server
	now      func() time.Time
}

// New wires a server around st. The hub is not running until StartHub.
func New(cfg *Config, st store.Store, log zerolog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	log = log.With().Str("component", "server").Logger()

	for _, origin := range cfg.invalidOrigins {
		log.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.AuthRequired {
			return nil, ErrMissingSecret
		}
		generated, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		secret = generated
		log.Warn().Msg("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}

	opts := presence.Options{
		History:      st,
		Seen:         st,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       log,
	}
	if len(cfg.BannedWords) > 0 {
		moderator, err := moderation.NewModerator(cfg.BannedWords, cfg.CensorRune())
		if err != nil {
			return nil, fmt.Errorf("build moderator: %w", err)
		}
		opts.Censor = moderator
	}

	s := &Server{
		cfg:    cfg,
		hub:    NewHub(presence.NewBroker(opts), cfg.StoreTimeout, log),
		store:  st,
		issuer: auth.NewTokenIssuer(secret, cfg.AuthTokenDuration),
		log:    log,
		now:    time.Now,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg, log),
	}
	s.http = CreateServer(cfg.Port, s.Handler())
	return s, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Issuer returns the token issuer used for sessions.
func (s *Server) Issuer() *auth.TokenIssuer {
	return s.issuer
}

// StartHub starts the hub loop in a separate goroutine.
// This should be called before the HTTP server accepts connections.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info().Msg("hub started and ready to manage websocket connections")
}

// ListenAndServe starts the HTTP server and blocks until it stops. A
// graceful shutdown is not reported as an error.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting HTTP requests, then closes every websocket and
// waits for the hub's goroutines, all within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http server")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("http server shutdown")
		errs = append(errs, err)
	}

	timeout := s.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := s.hub.Shutdown(timeout); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		s.log.Info().Msg("http server shutdown completed")
	}
	return errors.Join(errs...)
}

func (s *Server) secureCookies() bool {
	return !s.cfg.IsDevelopment()
}
