package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Key layout. Room names and user pairs are hex encoded inside message keys
// so that one room's prefix can never be a prefix of another room's keys.
//
//	msg:room:{hex(room)}:{ulid}   message JSON
//	msg:dm:{hex(pair)}:{ulid}     message JSON
//	room:{room}                   empty marker
//	user:id:{id}                  userRecord JSON
//	user:name:{username}          user id
const (
	roomMessagePrefix    = "msg:room:"
	privateMessagePrefix = "msg:dm:"
	roomPrefix           = "room:"
	userIDPrefix         = "user:id:"
	userNamePrefix       = "user:name:"
)

// seekSuffix sorts after every ULID character, so a reverse seek to
// prefix+seekSuffix lands on the newest key of the prefix.
const seekSuffix = "\xff"

// BadgerStore keeps everything in an embedded Badger database.
type BadgerStore struct {
	db  *badger.DB
	log zerolog.Logger
}

// OpenBadger opens (or creates) the database at path. An empty path opens an
// in-memory database.
func OpenBadger(path string, readOnly bool, log zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{log: log}).
		WithLoggingLevel(badger.WARNING).
		WithReadOnly(readOnly).
		WithBypassLockGuard(readOnly)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db, log: log}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still open.
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

func roomMessagesKey(room string) string {
	return roomMessagePrefix + hex.EncodeToString([]byte(room)) + ":"
}

func privateMessagesKey(userA, userB string) string {
	return privateMessagePrefix + hex.EncodeToString([]byte(chat.PairKey(userA, userB))) + ":"
}

// Append stores a message under its room or conversation prefix.
func (s *BadgerStore) Append(_ context.Context, message chat.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(message)
	if err != nil {
		return err
	}
	var key string
	if message.IsPrivate {
		key = privateMessagesKey(message.SenderID, message.RecipientID) + message.ID
	} else {
		key = roomMessagesKey(message.Room) + message.ID
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if !message.IsPrivate {
			if err := txn.Set([]byte(roomPrefix+message.Room), nil); err != nil {
				return err
			}
		}
		return txn.Set([]byte(key), value)
	})
}

// QueryRoom returns the newest limit messages of room, oldest first.
func (s *BadgerStore) QueryRoom(_ context.Context, room string, limit int) ([]chat.Message, error) {
	return s.newest(roomMessagesKey(room), limit)
}

// QueryPrivate returns the newest limit messages between the two users,
// oldest first. The argument order does not matter.
func (s *BadgerStore) QueryPrivate(_ context.Context, userA, userB string, limit int) ([]chat.Message, error) {
	return s.newest(privateMessagesKey(userA, userB), limit)
}

// newest walks the prefix backwards from its last key and stops once limit
// messages are collected.
func (s *BadgerStore) newest(prefix string, limit int) ([]chat.Message, error) {
	messages := make([]chat.Message, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix + seekSuffix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			var message chat.Message
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &message)
			})
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reverse(messages), nil
}

// Rooms returns every room that has stored messages, sorted.
func (s *BadgerStore) Rooms(context.Context) ([]string, error) {
	rooms := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(roomPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rooms = append(rooms, strings.TrimPrefix(string(it.Item().Key()), roomPrefix))
		}
		return nil
	})
	return rooms, err
}

// CreateUser stores a new account. The username must be free.
func (s *BadgerStore) CreateUser(_ context.Context, user chat.User) error {
	value, err := json.Marshal(toRecord(user))
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		nameKey := []byte(userNamePrefix + user.Username)
		_, err := txn.Get(nameKey)
		switch {
		case err == nil:
			return ErrUserExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(nameKey, []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(userIDPrefix+user.ID), value)
	})
}

// UserByName looks an account up by its username.
func (s *BadgerStore) UserByName(_ context.Context, username string) (chat.User, error) {
	var user chat.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userNamePrefix + username))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUser(txn, string(id))
		return err
	})
	return user, notFound(err)
}

// UserByID looks an account up by its id.
func (s *BadgerStore) UserByID(_ context.Context, id string) (chat.User, error) {
	var user chat.User
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, notFound(err)
}

// Users lists every account sorted by username.
func (s *BadgerStore) Users(context.Context) ([]chat.User, error) {
	users := make([]chat.User, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userIDPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var record userRecord
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			users = append(users, record.user())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// MarkSeen updates the last seen time. Unknown users are ignored, since
// anonymous connections have no account.
func (s *BadgerStore) MarkSeen(_ context.Context, userID string, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		user, err := getUser(txn, userID)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		user.LastSeen = at.UTC()
		value, err := json.Marshal(toRecord(user))
		if err != nil {
			return err
		}
		return txn.Set([]byte(userIDPrefix+userID), value)
	})
}

func getUser(txn *badger.Txn, id string) (chat.User, error) {
	item, err := txn.Get([]byte(userIDPrefix + id))
	if err != nil {
		return chat.User{}, err
	}
	var record userRecord
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &record)
	})
	return record.user(), err
}

func notFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrUserNotFound
	}
	return err
}

// badgerLogger routes Badger's internal logging into zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}
