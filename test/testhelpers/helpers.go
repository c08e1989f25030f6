// Package testhelpers provides common utilities for end-to-end tests of the
// roomchat server.
//
// It starts a complete server (router, hub and an in-memory Badger store)
// behind httptest and offers a small websocket client that speaks the JSON
// envelope protocol.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/store"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every read in the helpers below.
const ReadTimeout = 2 * time.Second

// Env is a running server under test.
type Env struct {
	Server *server.Server
	Store  store.Store
	HTTP   *httptest.Server
	Config *server.Config
}

// StartServer runs a server with anonymous websocket access and an in-memory
// store. customize may adjust the config before it is sanitized.
func StartServer(t *testing.T, customize func(cfg *server.Config)) *Env {
	t.Helper()

	st, err := store.OpenBadger("", false, zerolog.Nop())
	require.NoError(t, err)

	raw := server.Config{
		AllowedOrigins: []string{TestOrigin},
		AuthRequired:   false,
		JWTSecret:      "integration-secret",
		RateLimit:      server.RateLimitConfig{Burst: 100, RefillInterval: time.Second},
	}
	if customize != nil {
		customize(&raw)
	}
	cfg := raw.Sanitized()

	srv, err := server.New(cfg, st, zerolog.Nop())
	require.NoError(t, err)
	srv.StartHub()
	ts := httptest.NewServer(srv.Handler())

	env := &Env{Server: srv, Store: st, HTTP: ts, Config: cfg}
	t.Cleanup(func() {
		_ = srv.Hub().Shutdown(2 * time.Second)
		ts.Close()
		_ = st.Close()
	})
	return env
}

// WebSocketURL returns the ws:// URL of the endpoint with query appended.
func (e *Env) WebSocketURL(query url.Values) string {
	u := "ws" + strings.TrimPrefix(e.HTTP.URL, "http") + "/ws"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if the handshake fails, along with
// the handshake status code when one was received.
func ConnectWebSocket(rawURL, origin string) (*websocket.Conn, int, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(rawURL, headers)
	status := 0
	if resp != nil {
		status = resp.StatusCode
		_ = resp.Body.Close()
	}
	return conn, status, err
}

// Event is one decoded server frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v))
}

// Client is a websocket participant in a test.
type Client struct {
	t    *testing.T
	Conn *websocket.Conn
}

// Connect opens an anonymous connection named name and consumes the
// connect greeting (welcome, user list, room list).
func (e *Env) Connect(t *testing.T, name string) *Client {
	t.Helper()
	return e.ConnectWith(t, url.Values{"name": []string{name}})
}

// ConnectWith opens a connection with the given query and consumes the
// connect greeting.
func (e *Env) ConnectWith(t *testing.T, query url.Values) *Client {
	t.Helper()
	conn, _, err := ConnectWebSocket(e.WebSocketURL(query), TestOrigin)
	require.NoError(t, err)
	c := &Client{t: t, Conn: conn}
	t.Cleanup(func() { _ = conn.Close() })

	require.Equal(t, "message", c.Next().Event)
	require.Equal(t, "userList", c.Next().Event)
	require.Equal(t, "roomList", c.Next().Event)
	return c
}

// Send writes one intent envelope.
func (c *Client) Send(event string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.Conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// Next reads the next event.
func (c *Client) Next() Event {
	c.t.Helper()
	require.NoError(c.t, c.Conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	var ev Event
	require.NoError(c.t, c.Conn.ReadJSON(&ev))
	return ev
}

// WaitFor skips events until one named name satisfies match (nil matches
// anything).
func (c *Client) WaitFor(name string, match func(Event) bool) Event {
	c.t.Helper()
	for {
		ev := c.Next()
		if ev.Event == name && (match == nil || match(ev)) {
			return ev
		}
	}
}

// WaitForText waits for a message event carrying text.
func (c *Client) WaitForText(text string) Event {
	c.t.Helper()
	return c.WaitFor("message", func(ev Event) bool {
		var m struct {
			Text string `json:"text"`
		}
		return json.Unmarshal(ev.Data, &m) == nil && m.Text == text
	})
}

// EnterRoom joins room and waits for the room history that ends the join.
func (c *Client) EnterRoom(room string) Event {
	c.t.Helper()
	c.Send("enterRoom", map[string]string{"room": room})
	return c.WaitFor("roomHistory", nil)
}

// ExpectNoEvent fails if any event arrives within timeout, ignoring events
// for which ignore returns true. A timed out read leaves the connection
// unusable, so this must be the client's last read.
func (c *Client) ExpectNoEvent(timeout time.Duration, ignore func(Event) bool) {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		require.NoError(c.t, c.Conn.SetReadDeadline(deadline))
		var ev Event
		err := c.Conn.ReadJSON(&ev)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return
			}
			c.t.Fatalf("unexpected read error: %v", err)
		}
		if ignore != nil && ignore(ev) {
			continue
		}
		c.t.Fatalf("expected no event, got %s %s", ev.Event, ev.Data)
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() {
	_ = c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.Conn.Close()
}

// PostJSON posts body as JSON to path and returns the response.
func (e *Env) PostJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.HTTP.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// Get issues an authenticated GET when token is not empty.
func (e *Env) Get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.HTTP.URL+path, http.NoBody)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// Register creates an account and returns its session.
func (e *Env) Register(t *testing.T, username, password string) server.SessionResponse {
	t.Helper()
	resp := e.PostJSON(t, "/api/register", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session server.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	return session
}
