// Package server defines the websocket envelope, the client intents it
// carries, and utility helpers shared by client and hub logic.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/roomchat/internal/presence"
)

// Client intents.
const (
	IntentEnterRoom          = "enterRoom"
	IntentLeaveRoom          = "leaveRoom"
	IntentMessage            = "message"
	IntentActivity           = "activity"
	IntentRequestRoomHistory = "requestRoomHistory"
	IntentStartPrivateChat   = "startPrivateChat"
)

var validate = validator.New()

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event" validate:"required,oneof=enterRoom leaveRoom message activity requestRoomHistory startPrivateChat"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EnterRoomData is the payload of enterRoom and requestRoomHistory. Blank
// names pass validation so the broker can answer with a notice.
type EnterRoomData struct {
	Room string `json:"room" validate:"max=64"`
}

// MessageData is the payload of message.
type MessageData struct {
	Text        string `json:"text" validate:"max=4096"`
	IsPrivate   bool   `json:"isPrivate"`
	RecipientID string `json:"recipientId" validate:"max=128"`
}

// PrivateChatData is the payload of startPrivateChat.
type PrivateChatData struct {
	PeerID string `json:"peerId" validate:"max=128"`
}

// transition is one broker call, bound to the connection that asked for it.
type transition func(b *presence.Broker, id presence.ConnectionID) (presence.Outcome, error)

// intent is a decoded client request waiting for the hub loop.
type intent struct {
	client *Client
	name   string
	apply  transition
}

var errMalformedIntent = errors.New("malformed intent")

// decodeIntent parses and validates one inbound frame.
func decodeIntent(raw []byte) (string, transition, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %w", errMalformedIntent, err)
	}
	if err := validate.Struct(env); err != nil {
		return "", nil, fmt.Errorf("%w: %w", errMalformedIntent, err)
	}

	switch env.Event {
	case IntentEnterRoom:
		var data EnterRoomData
		if err := decodeData(env.Data, &data); err != nil {
			return env.Event, nil, err
		}
		return env.Event, func(b *presence.Broker, id presence.ConnectionID) (presence.Outcome, error) {
			return b.EnterRoom(id, data.Room)
		}, nil

	case IntentLeaveRoom:
		return env.Event, func(b *presence.Broker, id presence.ConnectionID) (presence.Outcome, error) {
			return b.LeaveRoom(id)
		}, nil

	case IntentMessage:
		var data MessageData
		if err := decodeData(env.Data, &data); err != nil {
			return env.Event, nil, err
		}
		req := presence.SendRequest(data)
		return env.Event, func(b *presence.Broker, id presence.ConnectionID) (presence.Outcome, error) {
			return b.SendMessage(id, req)
		}, nil

	case IntentActivity:
		return env.Event, func(b *presence.Broker, id presence.ConnectionID) (presence.Outcome, error) {
			return b.Typing(id)
		}, nil

	case IntentRequestRoomHistory:
		var data EnterRoomData
		if err := decodeData(env.Data, &data); err != nil {
			return env.Event, nil, err
		}
		return env.Event, func(b *presence.Broker, id presence.ConnectionID) (presence.Outcome, error) {
			return b.RequestRoomHistory(id, data.Room)
		}, nil

	case IntentStartPrivateChat:
		var data PrivateChatData
		if err := decodeData(env.Data, &data); err != nil {
			return env.Event, nil, err
		}
		return env.Event, func(b *presence.Broker, id presence.ConnectionID) (presence.Outcome, error) {
			return b.RequestPrivateHistory(id, data.PeerID)
		}, nil
	}
	return env.Event, nil, errMalformedIntent
}

func decodeData(raw json.RawMessage, target any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("%w: %w", errMalformedIntent, err)
		}
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %w", errMalformedIntent, err)
	}
	return nil
}

func encodeEvent(event presence.Event) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Event: event.Name, Data: event.Payload})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
