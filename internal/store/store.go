// Package store persists chat history and user accounts. Badger is the
// default embedded backend; PostgreSQL and Redis are available for shared
// deployments.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Supported drivers.
const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

var (
	// ErrUserExists is returned when a username is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when no account matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Store is the durable side of the chat: message history, the user directory
// and the list of rooms that ever held a message.
type Store interface {
	Append(ctx context.Context, message chat.Message) error
	QueryRoom(ctx context.Context, room string, limit int) ([]chat.Message, error)
	QueryPrivate(ctx context.Context, userA, userB string, limit int) ([]chat.Message, error)
	Rooms(ctx context.Context) ([]string, error)

	CreateUser(ctx context.Context, user chat.User) error
	UserByName(ctx context.Context, username string) (chat.User, error)
	UserByID(ctx context.Context, id string) (chat.User, error)
	Users(ctx context.Context) ([]chat.User, error)
	MarkSeen(ctx context.Context, userID string, at time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver      string
	BadgerPath  string
	DatabaseURL string
	RedisURL    string
	// ReadOnly opens Badger without taking the write lock. Other drivers
	// ignore it.
	ReadOnly bool
	Logger   zerolog.Logger
}

// Open connects the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	log := opts.Logger.With().Str("component", "store").Str("driver", opts.Driver).Logger()
	switch opts.Driver {
	case DriverBadger, "":
		return OpenBadger(opts.BadgerPath, opts.ReadOnly, log)
	case DriverPostgres:
		return NewPostgresStore(ctx, opts.DatabaseURL, log)
	case DriverRedis:
		return NewRedisStore(ctx, opts.RedisURL, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

// userRecord is the stored form of an account. chat.User hides the password
// hash from JSON, so backends that encode users as JSON go through this.
type userRecord struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
	LastSeen     time.Time `json:"lastSeen"`
}

func toRecord(u chat.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		LastSeen:     u.LastSeen,
	}
}

func (r userRecord) user() chat.User {
	return chat.User{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		LastSeen:     r.LastSeen.UTC(),
	}
}

// reverse flips a newest-first scan into chronological order in place.
func reverse(messages []chat.Message) []chat.Message {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages
}
