// Package pebblestore implements store.Store on top of a Pebble key-value database.
//
// Key layout:
//
//	room/<id>                 JSON room record
//	msg/<id>/<be64 sequence>  JSON message record
//	meta/next_message_id      be64 counter
package pebblestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/vovakirdan/privroom/internal/store"
)

var nextIDKey = []byte("meta/next_message_id")

// Store implements store.Store for Pebble. Writes are serialized by a single
// writer mutex; reads go straight to the database.
type Store struct {
	db     *pebble.DB
	mu     sync.Mutex
	nextID int64
}

type roomRecord struct {
	ID           string `json:"id"`
	PasswordHash string `json:"password_hash"`
	ExpiresAt    int64  `json:"expires_at"`
	CreatedAt    int64  `json:"created_at"`
	LastSequence int64  `json:"last_sequence"`
}

type messageRecord struct {
	ID        int64  `json:"id"`
	RoomID    string `json:"room_id"`
	Sequence  int64  `json:"sequence"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// Open opens (or creates) a Pebble database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pebble dir: %w", err)
	}
	return OpenWithOptions(filepath.Clean(dir), &pebble.Options{})
}

// OpenWithOptions opens a Pebble database with caller-provided options.
// Tests pass an in-memory filesystem through opts.FS.
func OpenWithOptions(dir string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	s := &Store{db: db}
	v, closer, err := db.Get(nextIDKey)
	switch {
	case err == nil:
		if len(v) == 8 {
			s.nextID = int64(binary.BigEndian.Uint64(v))
		}
		_ = closer.Close()
	case errors.Is(err, pebble.ErrNotFound):
	default:
		_ = db.Close()
		return nil, fmt.Errorf("read message counter: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func roomKey(id string) []byte {
	return []byte("room/" + id)
}

// messageBounds returns [lower, upper) covering all messages of a room.
// Room ids never contain '/', and '0' is the byte after '/'.
func messageBounds(roomID string) ([]byte, []byte) {
	return []byte("msg/" + roomID + "/"), []byte("msg/" + roomID + "0")
}

func messageKey(roomID string, seq int64) []byte {
	lower, _ := messageBounds(roomID)
	key := make([]byte, len(lower)+8)
	copy(key, lower)
	binary.BigEndian.PutUint64(key[len(lower):], uint64(seq))
	return key
}

func encodeCounter(n int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

func (s *Store) getRoom(id string) (*roomRecord, error) {
	v, closer, err := s.db.Get(roomKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("room %q: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	defer closer.Close()

	var rec roomRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &rec, nil
}

// ==== RoomStore implementation ====

// CreateRoom inserts a new room.
func (s *Store) CreateRoom(_ context.Context, room *store.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getRoom(room.ID); err == nil {
		return fmt.Errorf("insert room %q: %w", room.ID, store.ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	data, err := json.Marshal(roomRecord{
		ID:           room.ID,
		PasswordHash: room.PasswordHash,
		ExpiresAt:    room.ExpiresAt.UnixNano(),
		CreatedAt:    room.CreatedAt.UnixNano(),
		LastSequence: room.LastSequence,
	})
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	if err := s.db.Set(roomKey(room.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by id.
func (s *Store) GetRoom(_ context.Context, id string) (*store.Room, error) {
	rec, err := s.getRoom(id)
	if err != nil {
		return nil, err
	}
	return rec.toRoom(), nil
}

// DeleteRoom removes a room and its messages in one batch.
func (s *Store) DeleteRoom(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getRoom(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	lower, upper := messageBounds(id)
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(lower, upper, nil); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	if err := b.Delete(roomKey(id), nil); err != nil {
		return false, fmt.Errorf("delete room: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ListExpiredRooms returns ids of rooms with an expiry at or before now.
func (s *Store) ListExpiredRooms(_ context.Context, now time.Time) ([]string, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("room/"),
		UpperBound: []byte("room0"),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	defer func() { _ = it.Close() }()

	cutoff := now.UnixNano()
	var ids []string
	for it.First(); it.Valid(); it.Next() {
		var rec roomRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode room: %w", err)
		}
		if rec.ExpiresAt <= cutoff {
			ids = append(ids, rec.ID)
		}
	}
	return ids, it.Error()
}

// ==== MessageStore implementation ====

// AppendMessage bumps the room sequence and writes the message in one batch.
func (s *Store) AppendMessage(_ context.Context, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getRoom(msg.RoomID)
	if err != nil {
		return err
	}

	seq := rec.LastSequence + 1
	id := s.nextID + 1
	rec.LastSequence = seq

	roomData, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	msgData, err := json.Marshal(messageRecord{
		ID:        id,
		RoomID:    msg.RoomID,
		Sequence:  seq,
		Sender:    msg.Sender,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(roomKey(msg.RoomID), roomData, nil); err != nil {
		return fmt.Errorf("stage room: %w", err)
	}
	if err := b.Set(messageKey(msg.RoomID, seq), msgData, nil); err != nil {
		return fmt.Errorf("stage message: %w", err)
	}
	if err := b.Set(nextIDKey, encodeCounter(id), nil); err != nil {
		return fmt.Errorf("stage counter: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.nextID = id
	msg.ID = id
	msg.Sequence = seq
	return nil
}

// ListMessages returns all messages of a room ordered by sequence.
func (s *Store) ListMessages(_ context.Context, roomID string) ([]*store.Message, error) {
	lower, upper := messageBounds(roomID)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	defer func() { _ = it.Close() }()

	messages := make([]*store.Message, 0)
	for it.First(); it.Valid(); it.Next() {
		var rec messageRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, rec.toMessage())
	}
	return messages, it.Error()
}

// ClearMessages deletes all messages of a room, keeping the room record.
func (s *Store) ClearMessages(_ context.Context, roomID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower, upper := messageBounds(roomID)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, fmt.Errorf("iterate messages: %w", err)
	}
	var n int64
	for it.First(); it.Valid(); it.Next() {
		n++
	}
	if err := it.Close(); err != nil {
		return 0, fmt.Errorf("close iterator: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	if err := s.db.DeleteRange(lower, upper, pebble.Sync); err != nil {
		return 0, fmt.Errorf("clear messages: %w", err)
	}
	return n, nil
}

func (r *roomRecord) toRoom() *store.Room {
	return &store.Room{
		ID:           r.ID,
		PasswordHash: r.PasswordHash,
		ExpiresAt:    time.Unix(0, r.ExpiresAt),
		CreatedAt:    time.Unix(0, r.CreatedAt),
		LastSequence: r.LastSequence,
	}
}

func (r *messageRecord) toMessage() *store.Message {
	return &store.Message{
		ID:        r.ID,
		RoomID:    r.RoomID,
		Sequence:  r.Sequence,
		Sender:    r.Sender,
		Text:      r.Text,
		CreatedAt: time.Unix(0, r.CreatedAt),
	}
}
