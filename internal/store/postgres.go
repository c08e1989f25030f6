package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	last_seen     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	sender_id    TEXT NOT NULL,
	sender_name  TEXT NOT NULL,
	room         TEXT NOT NULL DEFAULT '',
	recipient_id TEXT NOT NULL DEFAULT '',
	pair_key     TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL,
	sent_at      TIMESTAMPTZ NOT NULL,
	is_private   BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS messages_room_idx ON messages (room, id) WHERE NOT is_private;
CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (pair_key, id) WHERE is_private;
`

const messageColumns = `id, sender_id, sender_name, room, recipient_id, body, sent_at, is_private`

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool and
// makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string, log zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool, log: log}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables and indexes if they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return err
	}
	s.log.Debug().Msg("schema ready")
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append inserts a message.
func (s *PostgresStore) Append(ctx context.Context, message chat.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	var pairKey string
	if message.IsPrivate {
		pairKey = chat.PairKey(message.SenderID, message.RecipientID)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender_id, sender_name, room, recipient_id, pair_key, body, sent_at, is_private)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, message.ID, message.SenderID, message.SenderName, message.Room, message.RecipientID,
		pairKey, message.Text, message.Timestamp, message.IsPrivate)
	return err
}

// QueryRoom returns the newest limit messages of room, oldest first.
func (s *PostgresStore) QueryRoom(ctx context.Context, room string, limit int) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE room = $1 AND NOT is_private
		ORDER BY id DESC LIMIT $2
	`, room, sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// QueryPrivate returns the newest limit messages between two users, oldest
// first.
func (s *PostgresStore) QueryPrivate(ctx context.Context, userA, userB string, limit int) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE pair_key = $1 AND is_private
		ORDER BY id DESC LIMIT $2
	`, chat.PairKey(userA, userB), sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// sqlLimit maps a non-positive limit to NULL, which Postgres reads as no
// limit.
func sqlLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func collectMessages(rows pgx.Rows) ([]chat.Message, error) {
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (chat.Message, error) {
		var m chat.Message
		err := row.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.Room, &m.RecipientID, &m.Text, &m.Timestamp, &m.IsPrivate)
		m.Timestamp = m.Timestamp.UTC()
		return m, err
	})
	if err != nil {
		return nil, err
	}
	return reverse(messages), nil
}

// Rooms returns the distinct rooms that have messages.
func (s *PostgresStore) Rooms(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT room FROM messages WHERE NOT is_private ORDER BY room
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// CreateUser inserts an account. A taken username yields ErrUserExists.
func (s *PostgresStore) CreateUser(ctx context.Context, user chat.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Username, user.PasswordHash, user.CreatedAt, user.LastSeen)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrUserExists
	}
	return err
}

// UserByName retrieves an account by username.
func (s *PostgresStore) UserByName(ctx context.Context, username string) (chat.User, error) {
	return s.queryUser(ctx, `
		SELECT id, username, password_hash, created_at, last_seen
		FROM users WHERE username = $1
	`, username)
}

// UserByID retrieves an account by id.
func (s *PostgresStore) UserByID(ctx context.Context, id string) (chat.User, error) {
	return s.queryUser(ctx, `
		SELECT id, username, password_hash, created_at, last_seen
		FROM users WHERE id = $1
	`, id)
}

func (s *PostgresStore) queryUser(ctx context.Context, query string, arg string) (chat.User, error) {
	var u chat.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.User{}, ErrUserNotFound
		}
		return chat.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.LastSeen = u.LastSeen.UTC()
	return u, nil
}

// Users lists every account sorted by username.
func (s *PostgresStore) Users(ctx context.Context) ([]chat.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, password_hash, created_at, last_seen
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (chat.User, error) {
		var u chat.User
		err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.LastSeen)
		u.CreatedAt = u.CreatedAt.UTC()
		u.LastSeen = u.LastSeen.UTC()
		return u, err
	})
}

// MarkSeen updates the last seen time. Unknown users are ignored.
func (s *PostgresStore) MarkSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_seen = $2 WHERE id = $1`, userID, at.UTC())
	return err
}
