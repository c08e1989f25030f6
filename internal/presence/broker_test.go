package presence

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/mocks"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBroker(opts Options) *Broker {
	opts.Now = func() time.Time { return fixedNow }
	opts.Logger = zerolog.Nop()
	return NewBroker(opts)
}

func connect(t *testing.T, b *Broker, id ConnectionID, user string) {
	t.Helper()
	_, err := b.Connect(id, chat.Identity{UserID: "u-" + user, DisplayName: user})
	require.NoError(t, err)
}

func enter(t *testing.T, b *Broker, id ConnectionID, room string) Outcome {
	t.Helper()
	out, err := b.EnterRoom(id, room)
	require.NoError(t, err)
	return out
}

// received returns the events addressed to id, in emission order.
func received(out Outcome, id ConnectionID) []Event {
	var events []Event
	for _, e := range out.Emissions {
		for _, to := range e.To {
			if to == id {
				events = append(events, e.Event)
			}
		}
	}
	return events
}

func adminTexts(events []Event) []string {
	var texts []string
	for _, e := range events {
		if p, ok := e.Payload.(MessagePayload); ok && p.IsAdmin {
			texts = append(texts, p.Text)
		}
	}
	return texts
}

func memberListFor(t *testing.T, out Outcome, room string) (UserListPayload, []ConnectionID) {
	t.Helper()
	for _, e := range out.Emissions {
		if p, ok := e.Event.Payload.(UserListPayload); ok && p.Room == room {
			return p, e.To
		}
	}
	t.Fatalf("no member list emitted for room %q", room)
	return UserListPayload{}, nil
}

func TestBroker_ConnectEmitsWelcomeUsersAndRooms(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(Options{})
	connect(t, b, "c1", "alice")

	out, err := b.Connect("c2", chat.Identity{UserID: "u-bob", DisplayName: "bob"})
	req.NoError(err)

	mine := received(out, "c2")
	req.Len(mine, 3)
	req.Equal(EventMessage, mine[0].Name)
	req.Equal("Welcome to the chat app, bob!", mine[0].Payload.(MessagePayload).Text)
	req.Equal(EventUserList, mine[1].Name)
	req.Len(mine[1].Payload.(UserListPayload).Users, 2)
	req.Equal(EventRoomList, mine[2].Name)

	others := received(out, "c1")
	req.Equal([]string{EventUserList, EventRoomList}, []string{others[0].Name, others[1].Name})

	_, err = b.Connect("c2", chat.Identity{UserID: "u-bob", DisplayName: "bob"})
	req.ErrorIs(err, ErrDuplicateConnection)
}

func TestBroker_EnterRoomNotifiesOthersButNotJoiner(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(Options{})
	connect(t, b, "a", "alice")
	connect(t, b, "b", "bob")
	enter(t, b, "a", "general")

	out := enter(t, b, "b", "general")

	req.Equal([]string{"You joined room general"}, adminTexts(received(out, "b")))
	req.Equal([]string{"bob joined the room"}, adminTexts(received(out, "a")))

	list, to := memberListFor(t, out, "general")
	req.ElementsMatch([]ConnectionID{"a", "b"}, to)
	req.Equal([]UserEntry{
		{ID: "u-alice", Name: "alice", Room: "general"},
		{ID: "u-bob", Name: "bob", Room: "general"},
	}, list.Users)

	req.Equal([]Followup{LoadRoomHistory{Origin: "b", Room: "general"}}, out.Followups)
}

func TestBroker_SwitchRoomAppliesLeaveBeforeJoin(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(Options{})
	connect(t, b, "x", "xavier")
	connect(t, b, "g", "gina")
	connect(t, b, "r", "rita")
	enter(t, b, "g", "general")
	enter(t, b, "r", "random")
	enter(t, b, "x", "general")

	out := enter(t, b, "x", "random")

	general, generalTo := memberListFor(t, out, "general")
	req.Equal([]ConnectionID{"g"}, generalTo)
	for _, u := range general.Users {
		req.NotEqual("xavier", u.Name)
	}
	random, randomTo := memberListFor(t, out, "random")
	req.ElementsMatch([]ConnectionID{"r", "x"}, randomTo)
	req.Contains(random.Users, UserEntry{ID: "u-xavier", Name: "xavier", Room: "random"})

	req.Equal([]string{"xavier left the room"}, adminTexts(received(out, "g")))
	req.Equal([]string{"xavier joined the room"}, adminTexts(received(out, "r")))

	leftAt, joinedAt := -1, -1
	for i, e := range out.Emissions {
		if p, ok := e.Event.Payload.(MessagePayload); ok {
			switch p.Text {
			case "xavier left the room":
				leftAt = i
			case "xavier joined the room":
				joinedAt = i
			}
		}
	}
	req.Less(leftAt, joinedAt)

	rooms := out.Emissions[len(out.Emissions)-1]
	req.Equal(EventRoomList, rooms.Event.Name)
	req.Equal([]string{"general", "random"}, rooms.Event.Payload.(RoomListPayload).Rooms)
}

func TestBroker_ReenterSameRoomOnlyRefreshesEntrant(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(Options{})
	connect(t, b, "a", "alice")
	connect(t, b, "b", "bob")
	enter(t, b, "a", "general")
	enter(t, b, "b", "general")

	out := enter(t, b, "a", "general")

	req.Empty(received(out, "b"))
	req.Equal([]string{"You joined room general"}, adminTexts(received(out, "a")))
	req.Len(out.Followups, 1)
}

func TestBroker_EnterRoomRejectsBlankName(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(Options{})
	connect(t, b, "a", "alice")

	out, err := b.EnterRoom("a", "   ")
	req.ErrorIs(err, ErrEmptyRoomName)
	req.Len(out.Emissions, 1)
	req.Equal([]ConnectionID{"a"}, out.Emissions[0].To)
	req.Empty(b.Rooms().ActiveRooms())
}

func TestBroker_RoomMessageReachesEveryMemberOnce(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(Options{})
	for _, name := range []string{"a", "b", "c", "d"} {
		connect(t, b, ConnectionID(name), name)
	}
	enter(t, b, "a", "general")
	enter(t, b, "b", "general")
	enter(t, b, "c", "general")
	enter(t, b, "d", "random")

	out, err := b.SendMessage("a", SendRequest{Text: "  hello  "})
	req.NoError(err)

	req.Len(out.Emissions, 1)
	req.ElementsMatch([]ConnectionID{"a", "b", "c"}, out.Emissions[0].To)
	payload := out.Emissions[0].Event.Payload.(MessagePayload)
	req.Equal("hello", payload.Text)
	req.Equal("general", payload.Room)
	req.False(payload.IsAdmin)

	req.Len(out.Followups, 1)
	persist := out.Followups[0].(PersistMessage)
	req.Equal("general", persist.Message.Room)
	req.NoError(persist.Message.Validate())
}

func TestBroker_SendMessageRejections(t *testing.T) {
	b := newTestBroker(Options{})
	connect(t, b, "a", "alice")

	tests := []struct {
		name    string
		req     SendRequest
		wantErr error
	}{
		{name: "blank text", req: SendRequest{Text: " \n "}, wantErr: ErrEmptyMessageText},
		{name: "not in a room", req: SendRequest{Text: "hi"}, wantErr: ErrNotInRoom},
		{name: "private without recipient", req: SendRequest{Text: "hi", IsPrivate: true}, wantErr: ErrMissingRecipient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := b.SendMessage("a", tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			require.Len(t, out.Emissions, 1)
			require.Equal(t, []ConnectionID{"a"}, out.Emissions[0].To)
			require.Empty(t, out.Followups)
		})
	}

	_, err := b.SendMessage("ghost", SendRequest{Text: "hi"})
	require.ErrorIs(t, err, ErrUnknownConnection)
}

func TestBroker_PrivateMessageToOnlineUserReachesAllDevices(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(Options{})
	connect(t, b, "a", "alice")
	_, _ = b.Connect("b-phone", chat.Identity{UserID: "u-bob", DisplayName: "bob"})
	_, _ = b.Connect("b-laptop", chat.Identity{UserID: "u-bob", DisplayName: "bob"})
	connect(t, b, "c", "carol")

	out, err := b.SendMessage("a", SendRequest{Text: "psst", IsPrivate: true, RecipientID: "u-bob"})
	req.NoError(err)

	req.Len(out.Emissions, 1)
	req.Equal([]ConnectionID{"a", "b-phone", "b-laptop"}, out.Emissions[0].To)
	payload := out.Emissions[0].Event.Payload.(MessagePayload)
	req.True(payload.IsPrivate)
	req.Equal("u-bob", payload.RecipientID)
	req.Empty(received(out, "c"))
}

func TestBroker_PrivateMessageToOfflineUser(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(Options{})
	connect(t, b, "a", "alice")
	connect(t, b, "c", "carol")

	out, err := b.SendMessage("a", SendRequest{Text: "psst", IsPrivate: true, RecipientID: "u-nobody"})
	req.NoError(err)

	for _, e := range out.Emissions {
		req.Equal([]ConnectionID{"a"}, e.To)
	}
	notices := adminTexts(received(out, "a"))
	req.Len(notices, 1)
	req.Contains(notices[0], "offline")
	req.Len(out.Followups, 1)
}

func TestBroker_PrivateMessageToSelfIsDeliveredOnce(t *testing.T) {
	b := newTestBroker(Options{})
	connect(t, b, "a", "alice")

	out, err := b.SendMessage("a", SendRequest{Text: "note to self", IsPrivate: true, RecipientID: "u-alice"})
	require.NoError(t, err)
	require.Len(t, out.Emissions, 1)
	require.Equal(t, []ConnectionID{"a"}, out.Emissions[0].To)
}

func TestBroker_CensorRewritesText(t *testing.T) {
	ctrl := gomock.NewController(t)
	censor := mocks.NewMockCensor(ctrl)
	censor.EXPECT().Censor("darn it").Return("**** it")

	b := newTestBroker(Options{Censor: censor})
	connect(t, b, "a", "alice")
	enter(t, b, "a", "general")

	out, err := b.SendMessage("a", SendRequest{Text: "darn it"})
	require.NoError(t, err)
	require.Equal(t, "**** it", out.Emissions[0].Event.Payload.(MessagePayload).Text)
	require.Equal(t, "**** it", out.Followups[0].(PersistMessage).Message.Text)
}

func TestBroker_TypingReachesOthersOnlyAndIsNotPersisted(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	history := mocks.NewMockHistoryGateway(ctrl)
	history.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)
	history.EXPECT().QueryRoom(gomock.Any(), "general", DefaultHistoryLimit).Return(nil, nil)

	b := newTestBroker(Options{History: history})
	connect(t, b, "x", "xavier")
	connect(t, b, "y", "yara")
	connect(t, b, "z", "zoe")
	enter(t, b, "x", "general")
	enter(t, b, "y", "general")
	enter(t, b, "z", "general")

	out, err := b.Typing("x")
	req.NoError(err)
	req.Empty(out.Followups)
	req.Len(out.Emissions, 1)
	req.ElementsMatch([]ConnectionID{"y", "z"}, out.Emissions[0].To)
	req.Equal(ActivityPayload{Name: "xavier", IsTyping: true}, out.Emissions[0].Event.Payload)

	emissions, err := b.Complete(context.Background(), LoadRoomHistory{Origin: "x", Room: "general"})
	req.NoError(err)
	req.Empty(emissions[0].Event.Payload.(RoomHistoryPayload).Messages)

	connect(t, b, "idle", "ivan")
	_, err = b.Typing("idle")
	req.ErrorIs(err, ErrNotInRoom)
}

func TestBroker_DisconnectSoleMemberRemovesRoom(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(Options{})
	connect(t, b, "m", "mia")
	connect(t, b, "o", "otto")
	enter(t, b, "m", "music")
	req.Equal([]string{"music"}, b.Rooms().ActiveRooms())

	out := b.Disconnect("m")

	req.Empty(b.Rooms().ActiveRooms())
	events := received(out, "o")
	req.Len(events, 2)
	req.Equal(EventUserList, events[0].Name)
	req.Equal(UserListPayload{Users: []UserEntry{{ID: "u-otto", Name: "otto"}}}, events[0].Payload)
	req.Equal(RoomListPayload{Rooms: []string{}}, events[1].Payload)
}

func TestBroker_DisconnectTwiceEmitsOnce(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	seen := mocks.NewMockSeenRecorder(ctrl)

	b := newTestBroker(Options{Seen: seen})
	connect(t, b, "a", "alice")
	connect(t, b, "b", "bob")
	enter(t, b, "a", "general")
	enter(t, b, "b", "general")

	first := b.Disconnect("a")
	req.Equal([]string{"alice left the room"}, adminTexts(received(first, "b")))
	req.Equal([]Followup{RecordLastSeen{UserID: "u-alice", At: fixedNow}}, first.Followups)

	second := b.Disconnect("a")
	req.Empty(second.Emissions)
	req.Empty(second.Followups)
	req.Equal(1, b.Rooms().MemberCount("general"))

	seen.EXPECT().MarkSeen(gomock.Any(), "u-alice", fixedNow).Return(nil)
	emissions, err := b.Complete(context.Background(), first.Followups[0])
	req.NoError(err)
	req.Empty(emissions)
}

func TestBroker_IntentsAfterDisconnectAreUnknown(t *testing.T) {
	b := newTestBroker(Options{})
	connect(t, b, "a", "alice")
	b.Disconnect("a")

	_, err := b.EnterRoom("a", "general")
	require.ErrorIs(t, err, ErrUnknownConnection)
	_, err = b.LeaveRoom("a")
	require.ErrorIs(t, err, ErrUnknownConnection)
	_, err = b.Typing("a")
	require.ErrorIs(t, err, ErrUnknownConnection)
	_, err = b.RequestRoomHistory("a", "general")
	require.ErrorIs(t, err, ErrUnknownConnection)
	_, err = b.RequestPrivateHistory("a", "u-bob")
	require.ErrorIs(t, err, ErrUnknownConnection)
}

func TestBroker_LeaveRoom(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(Options{})
	connect(t, b, "a", "alice")
	connect(t, b, "b", "bob")
	enter(t, b, "a", "general")
	enter(t, b, "b", "general")

	out, err := b.LeaveRoom("a")
	req.NoError(err)
	req.Equal([]string{"alice left the room"}, adminTexts(received(out, "b")))
	conn, _ := b.Registry().Lookup("a")
	req.False(conn.InRoom())

	out, err = b.LeaveRoom("a")
	req.NoError(err)
	req.Empty(out.Emissions)
}

func TestBroker_CompleteAppendFailureNotifiesSenderOnly(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	history := mocks.NewMockHistoryGateway(ctrl)
	history.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	b := newTestBroker(Options{History: history})
	connect(t, b, "a", "alice")
	connect(t, b, "b", "bob")
	enter(t, b, "a", "general")
	enter(t, b, "b", "general")

	out, err := b.SendMessage("a", SendRequest{Text: "hello"})
	req.NoError(err)
	req.ElementsMatch([]ConnectionID{"a", "b"}, out.Emissions[0].To)

	emissions, err := b.Complete(context.Background(), out.Followups[0])
	req.ErrorIs(err, ErrStorageAppendFailed)
	req.Len(emissions, 1)
	req.Equal([]ConnectionID{"a"}, emissions[0].To)
	req.True(emissions[0].Event.Payload.(MessagePayload).IsAdmin)
	req.Contains(emissions[0].Event.Payload.(MessagePayload).Text, "not saved")
}

func TestBroker_CompleteReadFailureDegradesToEmptyHistory(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	history := mocks.NewMockHistoryGateway(ctrl)
	history.EXPECT().QueryRoom(gomock.Any(), "general", 25).Return(nil, errors.New("timeout"))
	history.EXPECT().QueryPrivate(gomock.Any(), "u-alice", "u-bob", 25).Return(nil, errors.New("timeout"))

	b := newTestBroker(Options{History: history, HistoryLimit: 25})
	connect(t, b, "a", "alice")

	emissions, err := b.Complete(context.Background(), LoadRoomHistory{Origin: "a", Room: "general"})
	req.ErrorIs(err, ErrStorageReadFailed)
	req.Equal(EventRoomHistory, emissions[0].Event.Name)
	req.Equal(RoomHistoryPayload{Room: "general", Messages: []MessagePayload{}}, emissions[0].Event.Payload)

	out, err := b.RequestPrivateHistory("a", "u-bob")
	req.NoError(err)
	emissions, err = b.Complete(context.Background(), out.Followups[0])
	req.ErrorIs(err, ErrStorageReadFailed)
	req.Equal(PrivateChatHistoryPayload{PeerID: "u-bob", Messages: []MessagePayload{}}, emissions[0].Event.Payload)
}

func TestBroker_CompleteRoomHistoryKeepsOrder(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	history := mocks.NewMockHistoryGateway(ctrl)
	alice := chat.Identity{UserID: "u-alice", DisplayName: "alice"}
	stored := []chat.Message{
		chat.NewRoomMessage(alice, "general", "first", fixedNow),
		chat.NewRoomMessage(alice, "general", "second", fixedNow.Add(time.Second)),
	}
	history.EXPECT().QueryRoom(gomock.Any(), "general", DefaultHistoryLimit).Return(stored, nil)

	b := newTestBroker(Options{History: history})
	emissions, err := b.Complete(context.Background(), LoadRoomHistory{Origin: "a", Room: "general"})
	req.NoError(err)

	payload := emissions[0].Event.Payload.(RoomHistoryPayload)
	req.Len(payload.Messages, 2)
	req.Equal("first", payload.Messages[0].Text)
	req.Equal("second", payload.Messages[1].Text)
}

func TestBroker_MembershipStaysDisjoint(t *testing.T) {
	b := newTestBroker(Options{})
	rng := rand.New(rand.NewSource(42))
	rooms := []string{"general", "random", "music"}
	conns := make([]ConnectionID, 12)
	for i := range conns {
		conns[i] = ConnectionID(fmt.Sprintf("c%d", i))
		connect(t, b, conns[i], fmt.Sprintf("user%d", i%5))
	}

	for step := 0; step < 500; step++ {
		id := conns[rng.Intn(len(conns))]
		switch rng.Intn(4) {
		case 0, 1:
			_, _ = b.EnterRoom(id, rooms[rng.Intn(len(rooms))])
		case 2:
			_, _ = b.LeaveRoom(id)
		case 3:
			b.Disconnect(id)
			_, _ = b.Connect(id, chat.Identity{UserID: "u-" + string(id), DisplayName: string(id)})
		}

		seen := make(map[ConnectionID]string)
		for _, room := range rooms {
			for _, member := range b.Registry().MembersOf(room) {
				prev, dup := seen[member.ID]
				require.Falsef(t, dup, "step %d: %s in both %s and %s", step, member.ID, prev, room)
				seen[member.ID] = room
			}
		}
	}
}
