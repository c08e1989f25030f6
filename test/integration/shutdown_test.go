package integration

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/test/testhelpers"
)

// requireClosed reads until the server closes conn.
func requireClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testhelpers.ReadTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("connection still open after shutdown: %v", err)
		}
		return
	}
}

func TestGracefulShutdownWithClients(t *testing.T) {
	env := testhelpers.StartServer(t, nil)

	const numClients = 5
	clients := make([]*testhelpers.Client, numClients)
	for i := range clients {
		clients[i] = env.Connect(t, "user")
		clients[i].EnterRoom("lobby")
	}
	require.Equal(t, numClients, env.Server.Hub().ClientCount())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, env.Server.Shutdown(ctx))

	for _, c := range clients {
		requireClosed(t, c.Conn)
	}
	require.Zero(t, env.Server.Hub().ClientCount())
}

func TestShutdownRefusesNewConnections(t *testing.T) {
	env := testhelpers.StartServer(t, nil)
	require.NoError(t, env.Server.Hub().Shutdown(time.Second))

	conn, _, err := testhelpers.ConnectWebSocket(env.WebSocketURL(nil), testhelpers.TestOrigin)
	if err != nil {
		return
	}
	// The upgrade may succeed before the hub refuses the client; the
	// connection must still be closed straight away.
	requireClosed(t, conn)
}

func TestShutdownWithNoClients(t *testing.T) {
	env := testhelpers.StartServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.Server.Shutdown(ctx))
}

func TestConcurrentShutdown(t *testing.T) {
	env := testhelpers.StartServer(t, nil)
	env.Connect(t, "alice")

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- env.Server.Hub().Shutdown(2 * time.Second)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}
