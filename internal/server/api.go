package server

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/store"
)

const maxBodyBytes = 8 * 1024

// UserResponse is the public view of an account.
type UserResponse struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	LastSeen time.Time `json:"lastSeen,omitzero"`
	Online   bool      `json:"online"`
}

// SessionResponse answers register and login.
type SessionResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
	Token   string       `json:"token"`
}

func newUserResponse(u chat.User, online bool) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, LastSeen: u.LastSeen, Online: online}
}

func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (auth.Credentials, bool) {
	var creds auth.Credentials
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return auth.Credentials{}, false
	}
	return creds.Normalize(), true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	if err := auth.ValidateCredentials(creds); err != nil {
		jsonError(w, http.StatusBadRequest, auth.ValidationMessage(err))
		return
	}
	if chat.IsReservedName(creds.Username) {
		jsonError(w, http.StatusBadRequest, "username is reserved")
		return
	}

	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("hashing password")
		jsonError(w, http.StatusInternalServerError, "server error")
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	user := chat.NewUser(creds.Username, hash, s.now())
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			jsonError(w, http.StatusBadRequest, "username already exists")
			return
		}
		s.log.Error().Err(err).Msg("creating user")
		jsonError(w, http.StatusInternalServerError, "server error")
		return
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	s.startSession(w, user, http.StatusCreated, "user registered successfully")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	if err := auth.ValidateCredentials(creds); err != nil {
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	user, err := s.store.UserByName(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			jsonError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.log.Error().Err(err).Msg("looking up user")
		jsonError(w, http.StatusInternalServerError, "server error")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, creds.Password); err != nil {
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	user.LastSeen = s.now().UTC()
	if err := s.store.MarkSeen(ctx, user.ID, user.LastSeen); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("recording last seen on login")
	}

	s.startSession(w, user, http.StatusOK, "login successful")
}

func (s *Server) startSession(w http.ResponseWriter, user chat.User, status int, message string) {
	token, err := s.issuer.Issue(user)
	if err != nil {
		s.log.Error().Err(err).Msg("issuing token")
		jsonError(w, http.StatusInternalServerError, "server error")
		return
	}
	auth.SetCookie(w, token, s.issuer.Duration(), s.secureCookies())
	writeJSON(w, status, SessionResponse{
		Message: message,
		User:    newUserResponse(user, false),
		Token:   token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	auth.ClearCookie(w, s.secureCookies())
	writeJSON(w, http.StatusOK, map[string]string{"message": "logout successful"})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())

	ctx, cancel := s.storeContext(r)
	defer cancel()

	user, err := s.store.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			jsonError(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.Error().Err(err).Msg("looking up current user")
		jsonError(w, http.StatusInternalServerError, "server error")
		return
	}

	online := s.onlineUsers(r.Context())
	writeJSON(w, http.StatusOK, map[string]UserResponse{"user": newUserResponse(user, online[user.ID])})
}

// handleUsers lists every account except the caller, by username.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())

	ctx, cancel := s.storeContext(r)
	defer cancel()

	users, err := s.store.Users(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("listing users")
		jsonError(w, http.StatusInternalServerError, "server error")
		return
	}

	online := s.onlineUsers(r.Context())
	others := lo.Filter(users, func(u chat.User, _ int) bool { return u.ID != claims.UserID })
	resp := lo.Map(others, func(u chat.User, _ int) UserResponse { return newUserResponse(u, online[u.ID]) })
	slices.SortFunc(resp, func(a, b UserResponse) int { return cmp.Compare(a.Username, b.Username) })
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrivateMessages(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	peerID := chi.URLParam(r, "userId")

	ctx, cancel := s.storeContext(r)
	defer cancel()

	messages, err := s.store.QueryPrivate(ctx, claims.UserID, peerID, s.cfg.HistoryLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("querying private history")
		jsonError(w, http.StatusInternalServerError, "server error")
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// handleRooms lists every room that ever held a message or a member.
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	stored, err := s.store.Rooms(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("listing rooms")
		jsonError(w, http.StatusInternalServerError, "server error")
		return
	}

	var used []string
	if err := s.hub.Inspect(r.Context(), func(b *presence.Broker) {
		used = b.Rooms().HistoricalRooms()
	}); err != nil {
		s.log.Debug().Err(err).Msg("reading rooms from hub")
	}

	rooms := lo.Uniq(append(stored, used...))
	slices.Sort(rooms)
	if rooms == nil {
		rooms = []string{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// onlineUsers returns the ids of users with at least one live connection.
func (s *Server) onlineUsers(ctx context.Context) map[string]bool {
	online := make(map[string]bool)
	if err := s.hub.Inspect(ctx, func(b *presence.Broker) {
		for _, conn := range b.Registry().All() {
			online[conn.UserID] = true
		}
	}); err != nil {
		s.log.Debug().Err(err).Msg("reading presence from hub")
	}
	return online
}
