package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const (
	roomsKey = "rooms"
	usersKey = "users"
)

// RedisStore keeps history in sorted sets scored by send time. Members are
// the message JSON, which starts with the ULID, so equal scores still sort in
// send order.
type RedisStore struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string, log zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewRedisStoreFromClient(client, log), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, log zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func roomHistoryKey(room string) string {
	return fmt.Sprintf("room:%s:messages", room)
}

func privateHistoryKey(userA, userB string) string {
	return fmt.Sprintf("dm:%s:messages", chat.PairKey(userA, userB))
}

func userKey(id string) string {
	return fmt.Sprintf("user:%s", id)
}

func usernameKey(username string) string {
	return fmt.Sprintf("username:%s", username)
}

// Append adds the message to its room or conversation sorted set.
func (s *RedisStore) Append(ctx context.Context, message chat.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	z := redis.Z{Score: float64(message.Timestamp.UnixMilli()), Member: string(data)}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if message.IsPrivate {
			pipe.ZAdd(ctx, privateHistoryKey(message.SenderID, message.RecipientID), z)
			return nil
		}
		pipe.ZAdd(ctx, roomHistoryKey(message.Room), z)
		pipe.SAdd(ctx, roomsKey, message.Room)
		return nil
	})
	return err
}

// QueryRoom returns the newest limit messages of room, oldest first.
func (s *RedisStore) QueryRoom(ctx context.Context, room string, limit int) ([]chat.Message, error) {
	return s.newest(ctx, roomHistoryKey(room), limit)
}

// QueryPrivate returns the newest limit messages between two users, oldest
// first.
func (s *RedisStore) QueryPrivate(ctx context.Context, userA, userB string, limit int) ([]chat.Message, error) {
	return s.newest(ctx, privateHistoryKey(userA, userB), limit)
}

func (s *RedisStore) newest(ctx context.Context, key string, limit int) ([]chat.Message, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	results, err := s.client.ZRevRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]chat.Message, 0, len(results))
	for _, data := range results {
		var msg chat.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("skipping undecodable message")
			continue
		}
		messages = append(messages, msg)
	}
	return reverse(messages), nil
}

// Rooms returns every room that has stored messages, sorted.
func (s *RedisStore) Rooms(ctx context.Context) ([]string, error) {
	rooms, err := s.client.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(rooms)
	return rooms, nil
}

// CreateUser reserves the username and stores the account.
func (s *RedisStore) CreateUser(ctx context.Context, user chat.User) error {
	data, err := json.Marshal(toRecord(user))
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, usernameKey(user.Username), user.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserExists
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, userKey(user.ID), data, 0)
		pipe.SAdd(ctx, usersKey, user.ID)
		return nil
	})
	if err != nil {
		// Release the name so the account can be created again.
		if delErr := s.client.Del(context.WithoutCancel(ctx), usernameKey(user.Username)).Err(); delErr != nil {
			s.log.Warn().Err(delErr).Str("username", user.Username).Msg("releasing username after failed write")
		}
		return err
	}
	return nil
}

// UserByName retrieves an account by username.
func (s *RedisStore) UserByName(ctx context.Context, username string) (chat.User, error) {
	id, err := s.client.Get(ctx, usernameKey(username)).Result()
	if err != nil {
		return chat.User{}, redisNotFound(err)
	}
	return s.UserByID(ctx, id)
}

// UserByID retrieves an account by id.
func (s *RedisStore) UserByID(ctx context.Context, id string) (chat.User, error) {
	data, err := s.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		return chat.User{}, redisNotFound(err)
	}
	var record userRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return chat.User{}, err
	}
	return record.user(), nil
}

// Users lists every account sorted by username.
func (s *RedisStore) Users(ctx context.Context) ([]chat.User, error) {
	ids, err := s.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, err
	}
	users := make([]chat.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var record userRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable user")
			continue
		}
		users = append(users, record.user())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// MarkSeen updates the last seen time. Unknown users are ignored.
func (s *RedisStore) MarkSeen(ctx context.Context, userID string, at time.Time) error {
	user, err := s.UserByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	user.LastSeen = at.UTC()
	data, err := json.Marshal(toRecord(user))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, userKey(userID), data, 0).Err()
}

func redisNotFound(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrUserNotFound
	}
	return err
}
