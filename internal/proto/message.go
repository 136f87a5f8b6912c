package proto

import "encoding/json"

// Outbound is the envelope for messages the client sends to the channel.
type Outbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	OutboundTypeHello = "hello"
	OutboundTypeJoin  = "join"
	OutboundTypeLeave = "leave"
	OutboundTypeMsg   = "msg"

	InboundTypeEvent = "event"
	InboundTypeError = "error"

	EventMessage        = "message"
	EventRoomDeleted    = "room_deleted"
	EventUserBanned     = "user_banned"
	EventProfileUpdated = "profile_updated"
)

// HelloData introduces the client after each (re)connect.
type HelloData struct {
	User     string `json:"user"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinData scopes push delivery to a room. The same shape serves leave.
type JoinData struct {
	Room string `json:"room"`
}

// MsgData is a chat message dispatched for broadcast.
type MsgData struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

// Inbound is the envelope for messages the channel pushes to the client.
type Inbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// EventMessageData is a room-scoped message push.
type EventMessageData struct {
	Room string `json:"room"`
	User string `json:"user"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

// EventRoomDeletedData notifies that a room was removed.
type EventRoomDeletedData struct {
	Room string `json:"room"`
}

// EventUserBannedData notifies that a user was banned or kicked.
type EventUserBannedData struct {
	User   string `json:"username"`
	Reason string `json:"reason,omitempty"`
	Until  string `json:"until,omitempty"`
}

// EventProfileUpdatedData is a cosmetic avatar or nickname change.
type EventProfileUpdatedData struct {
	User   string `json:"user"`
	Field  string `json:"field"`
	Value  string `json:"value,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Error describes a protocol-level error push.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
