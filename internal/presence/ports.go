//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=../mocks/mock_presence.go -package=mocks
package presence

import (
	"context"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// HistoryGateway is the durable message store. Query results are ordered
// oldest first and hold at most limit messages, the most recent ones.
type HistoryGateway interface {
	Append(ctx context.Context, message chat.Message) error
	QueryRoom(ctx context.Context, room string, limit int) ([]chat.Message, error)
	QueryPrivate(ctx context.Context, userA, userB string, limit int) ([]chat.Message, error)
}

// SeenRecorder stores when a user was last connected.
type SeenRecorder interface {
	MarkSeen(ctx context.Context, userID string, at time.Time) error
}

// Censor rewrites message text before it is delivered or stored.
type Censor interface {
	Censor(text string) string
}

type nopHistory struct{}

func (nopHistory) Append(context.Context, chat.Message) error { return nil }

func (nopHistory) QueryRoom(context.Context, string, int) ([]chat.Message, error) {
	return nil, nil
}

func (nopHistory) QueryPrivate(context.Context, string, string, int) ([]chat.Message, error) {
	return nil, nil
}
