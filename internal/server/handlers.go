// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const (
	anonymousPrefix = "anon-"
	maxNameLength   = 32
)

// handleWebSocket authenticates the request, upgrades the HTTP connection
// to WebSocket and hands the new Client to the hub, which starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identify(r)
	if err != nil {
		s.log.Info().Err(err).Str("remote_addr", r.RemoteAddr).Msg("refusing unauthenticated websocket")
		jsonError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, identity, r.RemoteAddr, s.cfg)
	if err := s.hub.Join(client); err != nil {
		client.log.Info().Err(err).Msg("hub not accepting connections")
		_ = conn.Close()
	}
}

// identify resolves the connection's identity from its token. Without
// AUTH_REQUIRED, requests lacking a valid token get an anonymous identity.
func (s *Server) identify(r *http.Request) (chat.Identity, error) {
	claims, err := s.issuer.Authenticate(r)
	if err == nil {
		return claims.Identity(), nil
	}
	if s.cfg.AuthRequired {
		return chat.Identity{}, err
	}
	return anonymousIdentity(r.URL.Query().Get("name")), nil
}

func anonymousIdentity(name string) chat.Identity {
	id := uuid.NewString()
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	if name == "" || chat.IsReservedName(name) {
		name = "guest-" + id[:4]
	}
	return chat.Identity{UserID: anonymousPrefix + id, DisplayName: name}
}

type healthResponse struct {
	Status      string `json:"status"`
	Store       string `json:"store"`
	Connections int    `json:"connections"`
	Timestamp   string `json:"timestamp"`
}

// handleHealth reports whether the store answers and how many clients are
// connected.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "healthy",
		Store:       "pass",
		Connections: s.hub.ClientCount(),
		Timestamp:   s.now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("store health check failed")
		resp.Status = "degraded"
		resp.Store = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleTestPage serves an HTML page for trying the websocket protocol by hand.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(testPage)); err != nil {
		s.log.Debug().Err(err).Msg("writing test page")
	}
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError sends a JSON error response with the given status code.
func jsonError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
