package core

import "github.com/vovakirdan/privroom/internal/store"

// EventKind is a notification the core emits to subscribers.
type EventKind int

const (
	// EventMessageAppended notifies subscribers about a committed message.
	EventMessageAppended EventKind = iota
	// EventMessagesCleared notifies subscribers that the room log was emptied.
	EventMessagesCleared
	// EventRoomClosed notifies subscribers that the room was deleted or expired.
	// It is always the last event a subscription receives.
	EventRoomClosed
	// EventTypingChanged carries an ephemeral typing indicator.
	EventTypingChanged
)

func (k EventKind) String() string {
	switch k {
	case EventMessageAppended:
		return "message"
	case EventMessagesCleared:
		return "cleared"
	case EventRoomClosed:
		return "closed"
	case EventTypingChanged:
		return "typing"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers to describe what happened in a room.
type Event struct {
	Kind    EventKind
	Room    string
	Message *store.Message // EventMessageAppended
	Sender  string         // EventTypingChanged
	Typing  bool           // EventTypingChanged
	Reason  string         // EventRoomClosed: "expired" or "deleted"
}
