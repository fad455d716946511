package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeMsg    = "msg"
	InboundTypeTyping = "typing"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventSnapshot = "snapshot"
	EventMessage  = "message"
	EventCleared  = "cleared"
	EventClosed   = "closed"
	EventTyping   = "typing"
)

// MsgData is a chat message from the client. The sender comes from the session.
type MsgData struct {
	Text string `json:"text"`
}

// TypingData toggles the client's typing indicator.
type TypingData struct {
	Typing bool `json:"typing"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Message is a committed chat message.
type Message struct {
	ID       int64  `json:"id"`
	Room     string `json:"room"`
	Sequence int64  `json:"seq"`
	Sender   string `json:"sender"`
	Text     string `json:"text"`
	TS       int64  `json:"ts"`
}

// EventSnapshotData carries the room log at subscription time.
type EventSnapshotData struct {
	Protocol  int       `json:"protocol"`
	Room      string    `json:"room"`
	ExpiresAt int64     `json:"expires_at"`
	Messages  []Message `json:"messages"`
}

// EventClearedData notifies that the room log was emptied.
type EventClearedData struct {
	Room string `json:"room"`
}

// EventClosedData notifies that the room is gone.
type EventClosedData struct {
	Room   string `json:"room"`
	Reason string `json:"reason"`
}

// EventTypingData reports a participant's typing indicator.
type EventTypingData struct {
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Typing bool   `json:"typing"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
