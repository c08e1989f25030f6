package integration

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/test/testhelpers"
)

func TestOriginValidation(t *testing.T) {
	env := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"http://example.com"}
	})
	wsURL := env.WebSocketURL(url.Values{"name": {"probe"}})

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"missing", "", false},
		{"listed", "http://example.com", true},
		{"case insensitive", "HTTP://Example.COM", true},
		{"other host", "http://evil.com", false},
		{"other scheme", "https://example.com", false},
		{"not a url", "not-a-url", false},
		{"script scheme", "javascript:alert(1)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, status, err := testhelpers.ConnectWebSocket(wsURL, tt.origin)
			if tt.allowed {
				require.NoError(t, err)
				require.Equal(t, http.StatusSwitchingProtocols, status)
				_ = conn.Close()
				return
			}
			require.Error(t, err)
			require.Equal(t, http.StatusForbidden, status)
		})
	}
}

func TestOriginValidation_Wildcard(t *testing.T) {
	env := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"*"}
	})

	for _, origin := range []string{"http://example.com", "https://another.com", "http://localhost:3000"} {
		conn, _, err := testhelpers.ConnectWebSocket(env.WebSocketURL(nil), origin)
		require.NoError(t, err, origin)
		_ = conn.Close()
	}

	_, status, err := testhelpers.ConnectWebSocket(env.WebSocketURL(nil), "")
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, status)
}

func TestAuthRequired(t *testing.T) {
	env := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.AuthRequired = true
	})

	_, status, err := testhelpers.ConnectWebSocket(env.WebSocketURL(url.Values{"name": {"intruder"}}), testhelpers.TestOrigin)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, status)

	_, status, err = testhelpers.ConnectWebSocket(env.WebSocketURL(url.Values{"token": {"forged.token.value"}}), testhelpers.TestOrigin)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, status)

	session := env.Register(t, "alice", "secret1")
	alice := env.ConnectWith(t, url.Values{"token": {session.Token}})
	alice.EnterRoom("lobby")
	alice.Send("message", map[string]any{"text": "authenticated"})
	ev := alice.WaitForText("authenticated")

	var m struct {
		SenderID   string `json:"senderId"`
		SenderName string `json:"senderName"`
	}
	ev.Decode(t, &m)
	require.Equal(t, session.User.ID, m.SenderID)
	require.Equal(t, "alice", m.SenderName)
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	env := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 256
	})
	watcher := env.Connect(t, "watcher")
	offender := env.Connect(t, "offender")
	watcher.EnterRoom("lobby")
	offender.EnterRoom("lobby")
	watcher.WaitForText("offender joined the room")

	// A frame just under the limit is still accepted.
	offender.Send("message", map[string]any{"text": strings.Repeat("a", 150)})
	watcher.WaitForText(strings.Repeat("a", 150))

	offender.Send("message", map[string]any{"text": strings.Repeat("b", 1024)})
	watcher.WaitForText("offender left the room")

	require.NoError(t, offender.Conn.SetReadDeadline(time.Now().Add(testhelpers.ReadTimeout)))
	for {
		if _, _, err := offender.Conn.ReadMessage(); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatalf("connection was not closed: %v", err)
			}
			break
		}
	}
}

func TestRateLimitDropsExcessIntents(t *testing.T) {
	env := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 4, RefillInterval: time.Minute}
	})
	receiver := env.Connect(t, "receiver")
	sender := env.Connect(t, "sender")
	receiver.EnterRoom("lobby")
	// Entering the room spends the first token.
	sender.EnterRoom("lobby")
	receiver.WaitForText("sender joined the room")

	for _, text := range []string{"m0", "m1", "m2", "over"} {
		sender.Send("message", map[string]any{"text": text})
	}
	for _, text := range []string{"m0", "m1", "m2"} {
		receiver.WaitForText(text)
	}
	receiver.ExpectNoEvent(300*time.Millisecond, isPresenceUpdate)

	// The sender keeps its connection.
	sender.WaitForText("m2")
}

func TestBannedWordsAreMasked(t *testing.T) {
	env := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.BannedWords = []string{"toad"}
	})
	alice := env.Connect(t, "alice")
	alice.EnterRoom("pond")

	alice.Send("message", map[string]any{"text": "you TOAD, read toadstool"})
	alice.WaitForText("you ****, read toadstool")
}
