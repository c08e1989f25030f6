package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

var errWriteFailed = errors.New("write failed")

// failingTx answers single commands locally and fails every pipeline, so
// no server is needed.
type failingTx struct {
	deleted []string
}

func (h *failingTx) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *failingTx) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		switch c := cmd.(type) {
		case *redis.BoolCmd:
			c.SetVal(true)
		case *redis.IntCmd:
			if cmd.Name() == "del" {
				h.deleted = append(h.deleted, fmt.Sprint(cmd.Args()[1]))
			}
			c.SetVal(1)
		}
		return nil
	}
}

func (h *failingTx) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(context.Context, []redis.Cmder) error {
		return errWriteFailed
	}
}

func TestRedisStore_CreateUserReleasesNameOnFailedWrite(t *testing.T) {
	hook := &failingTx{}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(hook)
	s := NewRedisStoreFromClient(client, zerolog.Nop())
	t.Cleanup(func() { _ = s.Close() })

	user := chat.NewUser("alice", "hash", time.Now())
	err := s.CreateUser(context.Background(), user)

	require.ErrorIs(t, err, errWriteFailed)
	require.Equal(t, []string{usernameKey("alice")}, hook.deleted)
}
