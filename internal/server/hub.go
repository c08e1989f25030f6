// Package server coordinates client registration, intent handling, and
// connection cleanup for the chat WebSocket system via the Hub type.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/metrics"
	"github.com/Tyrowin/roomchat/internal/presence"
)

// ErrHubStopped is returned when the hub no longer accepts work.
var ErrHubStopped = errors.New("hub stopped")

// Hub is the single serialization point of the chat. Its Run loop owns the
// presence broker: every registration, intent and disconnect is applied
// there, one at a time, and the resulting emissions are dispatched before
// the next one is read. Storage follow-ups run on their own goroutines and
// hand their emissions back to the loop.
type Hub struct {
	broker       *presence.Broker
	clients      map[presence.ConnectionID]*Client
	register     chan *Client
	unregister   chan *Client
	intents      chan intent
	deliveries   chan []presence.Emission
	inspect      chan func(*presence.Broker)
	storeTimeout time.Duration
	log          zerolog.Logger
	mutex        sync.RWMutex
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewHub creates a hub around broker. The returned Hub is ready to manage
// WebSocket connections once Run is started.
func NewHub(broker *presence.Broker, storeTimeout time.Duration, log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Hub{
		broker:       broker,
		clients:      make(map[presence.ConnectionID]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		intents:      make(chan intent),
		deliveries:   make(chan []presence.Emission),
		inspect:      make(chan func(*presence.Broker)),
		storeTimeout: storeTimeout,
		log:          log.With().Str("component", "hub").Logger(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Join registers client with the hub; the hub launches its pumps.
func (h *Hub) Join(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) submit(in intent) bool {
	select {
	case h.intents <- in:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Inspect runs fn inside the hub loop, so it sees a consistent broker state.
// fn must not retain the broker.
func (h *Hub) Inspect(ctx context.Context, fn func(*presence.Broker)) error {
	finished := make(chan struct{})
	wrapped := func(b *presence.Broker) {
		defer close(finished)
		fn(b)
	}
	select {
	case h.inspect <- wrapped:
	case <-h.ctx.Done():
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, intents and storage results. This method should be called
// in a separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case in := <-h.intents:
			h.handleIntent(in)

		case emissions := <-h.deliveries:
			h.dispatch(presence.Outcome{Emissions: emissions})

		case fn := <-h.inspect:
			fn(h.broker)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.log.Warn().Msg("received nil client registration; skipping")
		return
	}

	out, err := h.broker.Connect(client.id, client.identity)
	if err != nil {
		h.log.Error().Err(err).Str("connection_id", string(client.id)).Msg("rejecting client registration")
		close(client.send)
		if client.conn != nil {
			_ = client.conn.Close()
		}
		return
	}

	h.mutex.Lock()
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	metrics.ConnectionsActive.Set(float64(clientCount))
	client.log.Info().Int("total_clients", clientCount).Msg("client registered")

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump()
		}()
	}

	h.dispatch(out)
}

func (h *Hub) handleUnregister(client *Client) {
	if !h.removeClient(client.id) {
		return
	}
	client.log.Info().Int("total_clients", h.ClientCount()).Msg("client unregistered")
	h.dispatch(h.broker.Disconnect(client.id))
}

// removeClient deletes the client from the map and closes its send channel.
// It reports false when the client was already gone.
func (h *Hub) removeClient(id presence.ConnectionID) bool {
	h.mutex.Lock()
	client, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return false
	}
	// Close the channel after releasing the lock
	close(client.send)
	metrics.ConnectionsActive.Set(float64(clientCount))
	return true
}

func (h *Hub) handleIntent(in intent) {
	if _, ok := h.clients[in.client.id]; !ok {
		// Disconnect won the race; the intent has nothing left to act on.
		return
	}

	out, err := in.apply(h.broker, in.client.id)
	result := "ok"
	if err != nil {
		result = "rejected"
		in.client.log.Debug().Err(err).Str("intent", in.name).Msg("intent rejected")
	}
	metrics.IntentsTotal.WithLabelValues(intentLabel(in.name), result).Inc()
	h.dispatch(out)
}

// dispatch delivers the emissions in order, then starts the follow-ups.
// Clients whose buffer is full are dropped and their disconnect is applied
// immediately, which may in turn produce more emissions.
func (h *Hub) dispatch(out presence.Outcome) {
	for {
		failed := h.deliver(out.Emissions)
		h.startFollowups(out.Followups)
		if len(failed) == 0 {
			return
		}
		out = presence.Outcome{}
		for _, id := range failed {
			if !h.removeClient(id) {
				continue
			}
			metrics.ClientsDropped.Inc()
			h.log.Warn().Str("connection_id", string(id)).Msg("client removed due to full send buffer")
			next := h.broker.Disconnect(id)
			out.Emissions = append(out.Emissions, next.Emissions...)
			out.Followups = append(out.Followups, next.Followups...)
		}
	}
}

// deliver returns the connections whose send buffer was full.
func (h *Hub) deliver(emissions []presence.Emission) []presence.ConnectionID {
	var failed []presence.ConnectionID
	seen := make(map[presence.ConnectionID]struct{})

	for _, emission := range emissions {
		payload, err := encodeEvent(emission.Event)
		if err != nil {
			h.log.Error().Err(err).Str("event", emission.Event.Name).Msg("encoding event")
			continue
		}
		metrics.EmissionsTotal.WithLabelValues(emission.Event.Name).Inc()

		for _, id := range emission.To {
			client, ok := h.clients[id]
			if !ok {
				continue
			}
			if _, dropped := seen[id]; dropped {
				continue
			}
			select {
			case client.send <- payload:
			default:
				seen[id] = struct{}{}
				failed = append(failed, id)
			}
		}
	}
	return failed
}

func (h *Hub) startFollowups(followups []presence.Followup) {
	for _, f := range followups {
		h.wg.Add(1)
		go func(f presence.Followup) {
			defer h.wg.Done()
			h.runFollowup(f)
		}(f)
	}
}

// runFollowup completes f against storage. In-flight writes survive hub
// cancellation up to the store timeout.
func (h *Hub) runFollowup(f presence.Followup) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), h.storeTimeout)
	defer cancel()

	op := followupLabel(f)
	start := time.Now()
	emissions, err := h.broker.Complete(ctx, f)
	metrics.StorageLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageFailures.WithLabelValues(op).Inc()
		h.log.Warn().Err(err).Str("operation", op).Msg("storage follow-up failed")
	}
	if len(emissions) == 0 {
		return
	}

	select {
	case h.deliveries <- emissions:
	case <-h.ctx.Done():
	}
}

func followupLabel(f presence.Followup) string {
	switch f.(type) {
	case presence.PersistMessage:
		return "append"
	case presence.LoadRoomHistory:
		return "query_room"
	case presence.LoadPrivateHistory:
		return "query_private"
	case presence.RecordLastSeen:
		return "mark_seen"
	default:
		return "unknown"
	}
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.log.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, id)
	}
	h.mutex.Unlock()
	metrics.ConnectionsActive.Set(0)

	for _, client := range clients {
		// Closing send makes the write pump send a close frame and exit.
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				client.log.Debug().Err(err).Msg("closing client connection")
			}
		}
	}

	h.log.Info().Int("closed", len(clients)).Msg("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.cancel()

	// Wait for Run() to complete
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
