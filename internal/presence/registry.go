// Package presence implements the room and presence broker: the registry of
// live connections, the room index derived from it, and the state machine
// that decides which events every connect, room switch, message and
// disconnect produces, and for whom.
//
// Nothing in this package is safe for concurrent use except Broker.Complete.
// The caller funnels every transition through a single goroutine.
package presence

import (
	"sort"

	"github.com/google/uuid"
)

// ConnectionID identifies one live transport session.
type ConnectionID string

// NewConnectionID returns a fresh random connection id.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Connection is the registry entry of a live session. Room is empty while
// the connection is idle.
type Connection struct {
	ID          ConnectionID
	UserID      string
	DisplayName string
	Room        string

	seq uint64
}

// InRoom reports whether the connection currently has a room.
func (c Connection) InRoom() bool {
	return c.Room != ""
}

// Registry maps live connections to their identity and current room. It also
// remembers every room used since the process started.
type Registry struct {
	conns   map[ConnectionID]*Connection
	used    map[string]struct{}
	nextSeq uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[ConnectionID]*Connection),
		used:  make(map[string]struct{}),
	}
}

// Register adds an idle connection.
func (r *Registry) Register(id ConnectionID, userID, displayName string) (Connection, error) {
	if _, exists := r.conns[id]; exists {
		return Connection{}, ErrDuplicateConnection
	}
	r.nextSeq++
	conn := &Connection{
		ID:          id,
		UserID:      userID,
		DisplayName: displayName,
		seq:         r.nextSeq,
	}
	r.conns[id] = conn
	return *conn, nil
}

// SetRoom moves the connection to room. An empty room makes it idle.
func (r *Registry) SetRoom(id ConnectionID, room string) error {
	conn, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	conn.Room = room
	if room != "" {
		r.used[room] = struct{}{}
	}
	return nil
}

// Unregister removes the connection and returns the removed entry. Removing
// an absent connection is not an error.
func (r *Registry) Unregister(id ConnectionID) (Connection, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	delete(r.conns, id)
	return *conn, true
}

// Lookup returns the connection, if registered.
func (r *Registry) Lookup(id ConnectionID) (Connection, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// MembersOf returns the connections currently in room, in registration order.
func (r *Registry) MembersOf(room string) []Connection {
	if room == "" {
		return nil
	}
	return r.collect(func(c *Connection) bool { return c.Room == room })
}

// ConnectionsOf returns every live connection of userID, in registration order.
func (r *Registry) ConnectionsOf(userID string) []Connection {
	return r.collect(func(c *Connection) bool { return c.UserID == userID })
}

// All returns every live connection, in registration order.
func (r *Registry) All() []Connection {
	return r.collect(func(*Connection) bool { return true })
}

func (r *Registry) collect(keep func(*Connection) bool) []Connection {
	out := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		if keep(conn) {
			out = append(out, *conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *Registry) usedRooms() []string {
	rooms := make([]string, 0, len(r.used))
	for room := range r.used {
		rooms = append(rooms, room)
	}
	return rooms
}
