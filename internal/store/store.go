package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a room does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when creating a room whose id is already taken.
	ErrConflict = errors.New("conflict")
)

// Room is a persisted chat room.
type Room struct {
	ID           string
	PasswordHash string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	// LastSequence is the highest message sequence ever assigned in the room.
	// It is not reset by ClearMessages so order keys are never reused.
	LastSequence int64
}

// Expired reports whether the room's expiry has elapsed at now.
func (r *Room) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Message is a persisted chat message. Messages are keyed by (RoomID, Sequence).
type Message struct {
	ID        int64
	RoomID    string
	Sequence  int64
	Sender    string
	Text      string
	CreatedAt time.Time
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom inserts a new room. Returns ErrConflict if the id exists.
	CreateRoom(ctx context.Context, room *Room) error

	// GetRoom retrieves a room by id. Returns ErrNotFound if absent.
	GetRoom(ctx context.Context, id string) (*Room, error)

	// DeleteRoom removes a room together with all of its messages.
	// Returns false if the room did not exist.
	DeleteRoom(ctx context.Context, id string) (bool, error)

	// ListExpiredRooms returns ids of rooms whose expiry is at or before now.
	ListExpiredRooms(ctx context.Context, now time.Time) ([]string, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage assigns the next room sequence and a message id to msg
	// and persists it. Returns ErrNotFound if the room does not exist.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns all messages of a room in sequence order.
	ListMessages(ctx context.Context, roomID string) ([]*Message, error)

	// ClearMessages deletes every message of a room and returns how many were removed.
	ClearMessages(ctx context.Context, roomID string) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore
	MessageStore

	// Close closes the underlying database.
	Close() error
}
