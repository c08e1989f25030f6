// Package chat contains the domain types shared by the presence broker, the
// storage backends and the HTTP API.
package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// AdminName is the sender name used for system generated notices.
const AdminName = "Admin"

// IsReservedName reports whether name would pass for the system sender.
func IsReservedName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), AdminName)
}

// ErrInvalidMessage is returned when a message does not target exactly one of
// a room or a recipient.
var ErrInvalidMessage = errors.New("message must target exactly one of room or recipient")

// Message is one chat utterance. Messages are immutable once created.
// Exactly one of Room and RecipientID is set.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	RecipientID string    `json:"recipientId,omitempty"`
	Room        string    `json:"room,omitempty"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"time"`
	IsPrivate   bool      `json:"isPrivate"`
}

// NewRoomMessage builds a message addressed to a room.
func NewRoomMessage(sender Identity, room, text string, at time.Time) Message {
	return Message{
		ID:         newID(at),
		SenderID:   sender.UserID,
		SenderName: sender.DisplayName,
		Room:       room,
		Text:       text,
		Timestamp:  at.UTC(),
	}
}

// NewPrivateMessage builds a message addressed to a single user.
func NewPrivateMessage(sender Identity, recipientID, text string, at time.Time) Message {
	return Message{
		ID:          newID(at),
		SenderID:    sender.UserID,
		SenderName:  sender.DisplayName,
		RecipientID: recipientID,
		Text:        text,
		Timestamp:   at.UTC(),
		IsPrivate:   true,
	}
}

// Validate checks the room/recipient exclusivity invariant.
func (m Message) Validate() error {
	hasRoom := m.Room != ""
	hasRecipient := m.RecipientID != ""
	if hasRoom == hasRecipient {
		return ErrInvalidMessage
	}
	if m.IsPrivate != hasRecipient {
		return ErrInvalidMessage
	}
	return nil
}

// NormalizeRoom trims surrounding whitespace. Room names stay case-sensitive.
func NormalizeRoom(room string) string {
	return strings.TrimSpace(room)
}

// PairKey returns an order independent key for the private conversation
// between two users.
func PairKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}

// DefaultEntropy is monotonic and goroutine safe, so ids created within the
// same millisecond still sort in creation order.
func newID(at time.Time) string {
	if at.IsZero() {
		return ulid.Make().String()
	}
	id, err := ulid.New(ulid.Timestamp(at), ulid.DefaultEntropy())
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}
