package server

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/presence"
)

func TestDecodeIntent_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"missing event", `{"data":{}}`},
		{"unknown event", `{"event":"shout","data":{}}`},
		{"wrong data type", `{"event":"enterRoom","data":{"room":42}}`},
		{"room too long", `{"event":"enterRoom","data":{"room":"` + strings.Repeat("r", 65) + `"}}`},
		{"text too long", `{"event":"message","data":{"text":"` + strings.Repeat("x", 4097) + `"}}`},
		{"data not an object", `{"event":"startPrivateChat","data":"bob"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, apply, err := decodeIntent([]byte(tt.raw))
			require.ErrorIs(t, err, errMalformedIntent)
			require.Nil(t, apply)
		})
	}
}

func TestDecodeIntent_AppliesToBroker(t *testing.T) {
	broker := presence.NewBroker(presence.Options{Logger: zerolog.Nop()})
	id := presence.ConnectionID("c1")
	_, err := broker.Connect(id, chat.Identity{UserID: "u1", DisplayName: "alice"})
	require.NoError(t, err)

	apply := func(raw string) (presence.Outcome, error) {
		t.Helper()
		name, transition, err := decodeIntent([]byte(raw))
		require.NoError(t, err)
		require.NotEmpty(t, name)
		return transition(broker, id)
	}

	_, err = apply(`{"event":"enterRoom","data":{"room":"  lobby "}}`)
	require.NoError(t, err)
	conn, ok := broker.Registry().Lookup(id)
	require.True(t, ok)
	require.Equal(t, "lobby", conn.Room)

	out, err := apply(`{"event":"message","data":{"text":"hi"}}`)
	require.NoError(t, err)
	require.NotEmpty(t, out.Emissions)

	_, err = apply(`{"event":"enterRoom","data":{"room":""}}`)
	require.ErrorIs(t, err, presence.ErrEmptyRoomName)

	_, err = apply(`{"event":"message","data":{"text":"psst","isPrivate":true}}`)
	require.ErrorIs(t, err, presence.ErrMissingRecipient)

	out, err = apply(`{"event":"requestRoomHistory","data":{"room":"other"}}`)
	require.NoError(t, err)
	require.Equal(t, []presence.Followup{presence.LoadRoomHistory{Origin: id, Room: "other"}}, out.Followups)

	out, err = apply(`{"event":"startPrivateChat","data":{"peerId":"u2"}}`)
	require.NoError(t, err)
	require.Equal(t, []presence.Followup{presence.LoadPrivateHistory{Origin: id, UserID: "u1", PeerID: "u2"}}, out.Followups)

	_, err = apply(`{"event":"leaveRoom"}`)
	require.NoError(t, err)
	conn, _ = broker.Registry().Lookup(id)
	require.False(t, conn.InRoom())

	_, err = apply(`{"event":"activity","data":{}}`)
	require.ErrorIs(t, err, presence.ErrNotInRoom)
}

func TestEncodeEvent(t *testing.T) {
	frame, err := encodeEvent(presence.Event{
		Name:    presence.EventRoomList,
		Payload: presence.RoomListPayload{Rooms: []string{"a", "b"}},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"roomList","data":{"rooms":["a","b"]}}`, string(frame))

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	require.Equal(t, presence.EventRoomList, env.Event)
}

func TestIntentLabel(t *testing.T) {
	require.Equal(t, IntentMessage, intentLabel(IntentMessage))
	require.Equal(t, "unknown", intentLabel("drop table"))
	require.Equal(t, "unknown", intentLabel(""))
}
