package presence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// DefaultHistoryLimit is the number of messages loaded on room entry.
const DefaultHistoryLimit = 100

// Options configures a Broker.
type Options struct {
	History      HistoryGateway
	Seen         SeenRecorder
	Censor       Censor
	HistoryLimit int
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Broker is the presence state machine. It exclusively owns its Registry.
type Broker struct {
	registry *Registry
	rooms    RoomIndex
	history  HistoryGateway
	seen     SeenRecorder
	censor   Censor
	limit    int
	now      func() time.Time
	log      zerolog.Logger
}

// SendRequest is a message intent.
type SendRequest struct {
	Text        string
	IsPrivate   bool
	RecipientID string
}

// NewBroker builds a broker with an empty registry.
func NewBroker(opts Options) *Broker {
	registry := NewRegistry()
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.History == nil {
		opts.History = nopHistory{}
	}
	return &Broker{
		registry: registry,
		rooms:    NewRoomIndex(registry),
		history:  opts.History,
		seen:     opts.Seen,
		censor:   opts.Censor,
		limit:    opts.HistoryLimit,
		now:      opts.Now,
		log:      opts.Logger.With().Str("component", "broker").Logger(),
	}
}

// Registry exposes the registry for read-only inspection.
func (b *Broker) Registry() *Registry {
	return b.registry
}

// Rooms exposes the room index.
func (b *Broker) Rooms() RoomIndex {
	return b.rooms
}

// Connect registers an authenticated connection with no room.
func (b *Broker) Connect(id ConnectionID, identity chat.Identity) (Outcome, error) {
	conn, err := b.registry.Register(id, identity.UserID, identity.DisplayName)
	if err != nil {
		return Outcome{}, fmt.Errorf("connect %s: %w", id, err)
	}
	var out Outcome
	out.emit(self(id), EventMessage, b.notice(fmt.Sprintf("Welcome to the chat app, %s!", conn.DisplayName)))
	b.emitOnlineUsers(&out)
	b.emitRoomList(&out)
	return out, nil
}

// EnterRoom moves the connection into room, leaving its previous room first.
func (b *Broker) EnterRoom(id ConnectionID, room string) (Outcome, error) {
	conn, ok := b.registry.Lookup(id)
	if !ok {
		return Outcome{}, ErrUnknownConnection
	}
	room = chat.NormalizeRoom(room)
	if room == "" {
		return b.reject(id, "Room name cannot be empty.", ErrEmptyRoomName)
	}

	var out Outcome
	if conn.Room == room {
		out.emit(self(id), EventMessage, b.notice(fmt.Sprintf("You joined room %s", room)))
		out.emit(self(id), EventUserList, b.memberList(room))
		out.then(LoadRoomHistory{Origin: id, Room: room})
		return out, nil
	}

	b.leave(&out, conn)

	if err := b.registry.SetRoom(id, room); err != nil {
		return Outcome{}, err
	}
	members := ids(b.registry.MembersOf(room))
	out.emit(self(id), EventMessage, b.notice(fmt.Sprintf("You joined room %s", room)))
	out.emit(without(members, id), EventMessage, b.notice(fmt.Sprintf("%s joined the room", conn.DisplayName)))
	out.emit(members, EventUserList, b.memberList(room))
	b.emitRoomList(&out)
	out.then(LoadRoomHistory{Origin: id, Room: room})
	return out, nil
}

// LeaveRoom returns the connection to the idle state. Leaving while idle is
// a no-op.
func (b *Broker) LeaveRoom(id ConnectionID) (Outcome, error) {
	conn, ok := b.registry.Lookup(id)
	if !ok {
		return Outcome{}, ErrUnknownConnection
	}
	if !conn.InRoom() {
		return Outcome{}, nil
	}
	var out Outcome
	b.leave(&out, conn)
	b.emitRoomList(&out)
	return out, nil
}

// SendMessage delivers a room or private message and schedules its
// persistence.
func (b *Broker) SendMessage(id ConnectionID, req SendRequest) (Outcome, error) {
	conn, ok := b.registry.Lookup(id)
	if !ok {
		return Outcome{}, ErrUnknownConnection
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return b.reject(id, "Message text cannot be empty.", ErrEmptyMessageText)
	}
	if b.censor != nil {
		text = b.censor.Censor(text)
	}
	sender := chat.Identity{UserID: conn.UserID, DisplayName: conn.DisplayName}

	if req.IsPrivate {
		recipientID := strings.TrimSpace(req.RecipientID)
		if recipientID == "" {
			return b.reject(id, "Choose a recipient for a private message.", ErrMissingRecipient)
		}
		return b.sendPrivate(id, sender, recipientID, text), nil
	}

	if !conn.InRoom() {
		return b.reject(id, "Join a room before sending messages.", ErrNotInRoom)
	}
	msg := chat.NewRoomMessage(sender, conn.Room, text, b.now())
	var out Outcome
	out.emit(ids(b.registry.MembersOf(conn.Room)), EventMessage, messagePayload(msg))
	out.then(PersistMessage{Origin: id, Message: msg})
	return out, nil
}

func (b *Broker) sendPrivate(id ConnectionID, sender chat.Identity, recipientID, text string) Outcome {
	msg := chat.NewPrivateMessage(sender, recipientID, text, b.now())
	recipients := ids(b.registry.ConnectionsOf(recipientID))

	var out Outcome
	out.emit(lo.Uniq(append(self(id), recipients...)), EventMessage, messagePayload(msg))
	if len(recipients) == 0 {
		out.emit(self(id), EventMessage, b.notice(fmt.Sprintf("%s is offline. Message will be delivered when they come online.", recipientID)))
	}
	out.then(PersistMessage{Origin: id, Message: msg})
	return out
}

// Typing relays a typing notice to the other members of the sender's room.
func (b *Broker) Typing(id ConnectionID) (Outcome, error) {
	conn, ok := b.registry.Lookup(id)
	if !ok {
		return Outcome{}, ErrUnknownConnection
	}
	if !conn.InRoom() {
		return Outcome{}, ErrNotInRoom
	}
	var out Outcome
	others := without(ids(b.registry.MembersOf(conn.Room)), id)
	out.emit(others, EventActivity, ActivityPayload{Name: conn.DisplayName, IsTyping: true})
	return out, nil
}

// RequestRoomHistory schedules a history read for any room.
func (b *Broker) RequestRoomHistory(id ConnectionID, room string) (Outcome, error) {
	if _, ok := b.registry.Lookup(id); !ok {
		return Outcome{}, ErrUnknownConnection
	}
	room = chat.NormalizeRoom(room)
	if room == "" {
		return b.reject(id, "Room name cannot be empty.", ErrEmptyRoomName)
	}
	var out Outcome
	out.then(LoadRoomHistory{Origin: id, Room: room})
	return out, nil
}

// RequestPrivateHistory schedules a read of the conversation with peerID.
func (b *Broker) RequestPrivateHistory(id ConnectionID, peerID string) (Outcome, error) {
	conn, ok := b.registry.Lookup(id)
	if !ok {
		return Outcome{}, ErrUnknownConnection
	}
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return b.reject(id, "Choose a user to chat with.", ErrMissingRecipient)
	}
	var out Outcome
	out.then(LoadPrivateHistory{Origin: id, UserID: conn.UserID, PeerID: peerID})
	return out, nil
}

// Disconnect removes the connection. Disconnecting twice is harmless: the
// second call finds nothing and emits nothing.
func (b *Broker) Disconnect(id ConnectionID) Outcome {
	conn, ok := b.registry.Unregister(id)
	if !ok {
		return Outcome{}
	}
	var out Outcome
	if conn.InRoom() {
		b.emitLeft(&out, conn)
	}
	b.emitOnlineUsers(&out)
	b.emitRoomList(&out)
	if b.seen != nil {
		out.then(RecordLastSeen{UserID: conn.UserID, At: b.now()})
	}
	return out
}

// Complete runs one follow-up against storage and returns the emissions it
// produces. It does not touch the registry and may run on any goroutine.
func (b *Broker) Complete(ctx context.Context, f Followup) ([]Emission, error) {
	var out Outcome
	switch task := f.(type) {
	case PersistMessage:
		if err := b.history.Append(ctx, task.Message); err != nil {
			b.log.Warn().Err(err).Str("message_id", task.Message.ID).Msg("message delivered but not saved")
			out.emit(self(task.Origin), EventMessage, b.notice("Message not saved: it was delivered but will not appear in history."))
			return out.Emissions, fmt.Errorf("%w: %w", ErrStorageAppendFailed, err)
		}
	case LoadRoomHistory:
		messages, err := b.history.QueryRoom(ctx, task.Room, b.limit)
		if err != nil {
			b.log.Warn().Err(err).Str("room", task.Room).Msg("room history unavailable")
			messages = nil
		}
		out.emit(self(task.Origin), EventRoomHistory, RoomHistoryPayload{Room: task.Room, Messages: messagePayloads(messages)})
		if err != nil {
			return out.Emissions, fmt.Errorf("%w: %w", ErrStorageReadFailed, err)
		}
	case LoadPrivateHistory:
		messages, err := b.history.QueryPrivate(ctx, task.UserID, task.PeerID, b.limit)
		if err != nil {
			b.log.Warn().Err(err).Str("peer_id", task.PeerID).Msg("private history unavailable")
			messages = nil
		}
		out.emit(self(task.Origin), EventPrivateChatHistory, PrivateChatHistoryPayload{PeerID: task.PeerID, Messages: messagePayloads(messages)})
		if err != nil {
			return out.Emissions, fmt.Errorf("%w: %w", ErrStorageReadFailed, err)
		}
	case RecordLastSeen:
		if b.seen == nil {
			return nil, nil
		}
		if err := b.seen.MarkSeen(ctx, task.UserID, task.At); err != nil {
			b.log.Warn().Err(err).Str("user_id", task.UserID).Msg("last seen not recorded")
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported follow-up %T", f)
	}
	return out.Emissions, nil
}

// leave clears the connection's room and notifies the remaining members.
// It must complete before any join events are computed.
func (b *Broker) leave(out *Outcome, conn Connection) {
	if !conn.InRoom() {
		return
	}
	_ = b.registry.SetRoom(conn.ID, "")
	b.emitLeft(out, conn)
}

func (b *Broker) emitLeft(out *Outcome, conn Connection) {
	remaining := ids(b.registry.MembersOf(conn.Room))
	out.emit(remaining, EventMessage, b.notice(fmt.Sprintf("%s left the room", conn.DisplayName)))
	out.emit(remaining, EventUserList, b.memberList(conn.Room))
}

func (b *Broker) emitOnlineUsers(out *Outcome) {
	all := b.registry.All()
	users := lo.Uniq(lo.Map(all, func(c Connection, _ int) UserEntry { return userEntry(c) }))
	out.emit(ids(all), EventUserList, UserListPayload{Users: users})
}

func (b *Broker) emitRoomList(out *Outcome) {
	out.emit(ids(b.registry.All()), EventRoomList, RoomListPayload{Rooms: b.rooms.ActiveRooms()})
}

func (b *Broker) memberList(room string) UserListPayload {
	members := b.registry.MembersOf(room)
	return UserListPayload{
		Room:  room,
		Users: lo.Map(members, func(c Connection, _ int) UserEntry { return userEntry(c) }),
	}
}

func (b *Broker) notice(text string) MessagePayload {
	return MessagePayload{
		SenderName: chat.AdminName,
		Text:       text,
		Time:       b.now().UTC(),
		IsAdmin:    true,
	}
}

func (b *Broker) reject(id ConnectionID, text string, err error) (Outcome, error) {
	var out Outcome
	out.emit(self(id), EventMessage, b.notice(text))
	return out, err
}

func userEntry(c Connection) UserEntry {
	return UserEntry{ID: c.UserID, Name: c.DisplayName, Room: c.Room}
}

func ids(conns []Connection) []ConnectionID {
	return lo.Map(conns, func(c Connection, _ int) ConnectionID { return c.ID })
}

func without(list []ConnectionID, id ConnectionID) []ConnectionID {
	return lo.Without(list, id)
}

func self(id ConnectionID) []ConnectionID {
	return []ConnectionID{id}
}
