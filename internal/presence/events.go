package presence

import (
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Server event names.
const (
	EventMessage            = "message"
	EventUserList           = "userList"
	EventRoomList           = "roomList"
	EventActivity           = "activity"
	EventRoomHistory        = "roomHistory"
	EventPrivateChatHistory = "privateChatHistory"
)

// Event is one server to client notification.
type Event struct {
	Name    string
	Payload any
}

// MessagePayload is the body of a message event, both for user messages and
// admin notices.
type MessagePayload struct {
	ID          string    `json:"id,omitempty"`
	SenderID    string    `json:"senderId,omitempty"`
	SenderName  string    `json:"senderName"`
	Text        string    `json:"text"`
	Time        time.Time `json:"time"`
	Room        string    `json:"room,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	IsAdmin     bool      `json:"isAdmin"`
	IsPrivate   bool      `json:"isPrivate"`
}

// UserEntry is one line of a user list.
type UserEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Room string `json:"room"`
}

// UserListPayload carries either the global online list (Room empty) or the
// member list of one room.
type UserListPayload struct {
	Room  string      `json:"room,omitempty"`
	Users []UserEntry `json:"users"`
}

// RoomListPayload lists the active rooms.
type RoomListPayload struct {
	Rooms []string `json:"rooms"`
}

// ActivityPayload is an ephemeral typing notice.
type ActivityPayload struct {
	Name     string `json:"name"`
	IsTyping bool   `json:"isTyping"`
}

// RoomHistoryPayload is the persisted tail of a room.
type RoomHistoryPayload struct {
	Room     string           `json:"room"`
	Messages []MessagePayload `json:"messages"`
}

// PrivateChatHistoryPayload is the persisted tail of a private conversation.
type PrivateChatHistoryPayload struct {
	PeerID   string           `json:"peerId"`
	Messages []MessagePayload `json:"messages"`
}

// Emission is one event addressed to an explicit set of connections. The
// recipients are resolved when the transition runs, so every member of a
// room sees the same snapshot.
type Emission struct {
	To    []ConnectionID
	Event Event
}

// Outcome is the result of one transition: emissions to dispatch now, in
// order, and storage work to run outside the serialization point.
type Outcome struct {
	Emissions []Emission
	Followups []Followup
}

// Followup is storage work produced by a transition.
type Followup interface {
	followup()
}

// PersistMessage appends a delivered message to history.
type PersistMessage struct {
	Origin  ConnectionID
	Message chat.Message
}

// LoadRoomHistory sends the tail of Room to Origin.
type LoadRoomHistory struct {
	Origin ConnectionID
	Room   string
}

// LoadPrivateHistory sends the conversation between UserID and PeerID to Origin.
type LoadPrivateHistory struct {
	Origin ConnectionID
	UserID string
	PeerID string
}

// RecordLastSeen stores the time a user was last connected.
type RecordLastSeen struct {
	UserID string
	At     time.Time
}

func (PersistMessage) followup()     {}
func (LoadRoomHistory) followup()    {}
func (LoadPrivateHistory) followup() {}
func (RecordLastSeen) followup()     {}

func (o *Outcome) emit(to []ConnectionID, name string, payload any) {
	if len(to) == 0 {
		return
	}
	o.Emissions = append(o.Emissions, Emission{To: to, Event: Event{Name: name, Payload: payload}})
}

func (o *Outcome) then(f Followup) {
	o.Followups = append(o.Followups, f)
}

func messagePayload(m chat.Message) MessagePayload {
	return MessagePayload{
		ID:          m.ID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		Text:        m.Text,
		Time:        m.Timestamp,
		Room:        m.Room,
		RecipientID: m.RecipientID,
		IsPrivate:   m.IsPrivate,
	}
}

func messagePayloads(messages []chat.Message) []MessagePayload {
	out := make([]MessagePayload, 0, len(messages))
	for _, m := range messages {
		out = append(out, messagePayload(m))
	}
	return out
}
