// Package storetest holds behaviour checks shared by every store.Store backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/privroom/internal/store"
)

// Factory returns an empty store. The store is closed by the suite.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"CreateAndGetRoom", testCreateAndGetRoom},
		{"CreateRoomConflict", testCreateRoomConflict},
		{"GetMissingRoom", testGetMissingRoom},
		{"AppendAssignsSequence", testAppendAssignsSequence},
		{"AppendMissingRoom", testAppendMissingRoom},
		{"ConcurrentAppendUniqueSequence", testConcurrentAppend},
		{"ClearKeepsRoomAndSequence", testClearKeepsRoom},
		{"DeleteCascadesAndIsIdempotent", testDeleteCascades},
		{"ListExpiredRooms", testListExpired},
		{"RoomsAreIsolated", testRoomsIsolated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { _ = st.Close() })
			tt.fn(t, st)
		})
	}
}

var base = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newRoom(id string) *store.Room {
	return &store.Room{
		ID:           id,
		PasswordHash: "hash-" + id,
		CreatedAt:    base,
		ExpiresAt:    base.Add(48 * time.Hour),
	}
}

func mustCreate(t *testing.T, st store.Store, room *store.Room) {
	t.Helper()
	if err := st.CreateRoom(context.Background(), room); err != nil {
		t.Fatalf("create room %s: %v", room.ID, err)
	}
}

func mustAppend(t *testing.T, st store.Store, roomID, sender, text string) *store.Message {
	t.Helper()
	msg := &store.Message{RoomID: roomID, Sender: sender, Text: text, CreatedAt: base}
	if err := st.AppendMessage(context.Background(), msg); err != nil {
		t.Fatalf("append %q: %v", text, err)
	}
	return msg
}

func testCreateAndGetRoom(t *testing.T, st store.Store) {
	mustCreate(t, st, newRoom("r1"))

	got, err := st.GetRoom(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.ID != "r1" || got.PasswordHash != "hash-r1" {
		t.Fatalf("unexpected room: %+v", got)
	}
	if !got.CreatedAt.Equal(base) || !got.ExpiresAt.Equal(base.Add(48*time.Hour)) {
		t.Fatalf("timestamps not preserved: created=%v expires=%v", got.CreatedAt, got.ExpiresAt)
	}
	if got.LastSequence != 0 {
		t.Fatalf("expected last sequence 0, got %d", got.LastSequence)
	}
}

func testCreateRoomConflict(t *testing.T, st store.Store) {
	mustCreate(t, st, newRoom("r1"))

	dup := newRoom("r1")
	dup.PasswordHash = "other"
	if err := st.CreateRoom(context.Background(), dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := st.GetRoom(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.PasswordHash != "hash-r1" {
		t.Fatalf("original room overwritten: %+v", got)
	}
}

func testGetMissingRoom(t *testing.T, st store.Store) {
	if _, err := st.GetRoom(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testAppendAssignsSequence(t *testing.T, st store.Store) {
	mustCreate(t, st, newRoom("r1"))

	first := mustAppend(t, st, "r1", "alice", "hi")
	second := mustAppend(t, st, "r1", "bob", "hello")

	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("unexpected sequences: %d, %d", first.Sequence, second.Sequence)
	}
	if second.ID <= first.ID {
		t.Fatalf("message ids not increasing: %d, %d", first.ID, second.ID)
	}

	msgs, err := st.ListMessages(context.Background(), "r1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "hi" || msgs[0].Sender != "alice" || msgs[1].Text != "hello" || msgs[1].Sender != "bob" {
		t.Fatalf("unexpected order: %+v, %+v", msgs[0], msgs[1])
	}
	if !msgs[0].CreatedAt.Equal(base) {
		t.Fatalf("created_at not preserved: %v", msgs[0].CreatedAt)
	}
}

func testAppendMissingRoom(t *testing.T, st store.Store) {
	msg := &store.Message{RoomID: "ghost", Sender: "alice", Text: "hi", CreatedAt: base}
	if err := st.AppendMessage(context.Background(), msg); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testConcurrentAppend(t *testing.T, st store.Store) {
	mustCreate(t, st, newRoom("r1"))

	const writers, perWriter = 8, 10
	var wg sync.WaitGroup
	errCh := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				msg := &store.Message{RoomID: "r1", Sender: "w", Text: "x", CreatedAt: base}
				if err := st.AppendMessage(context.Background(), msg); err != nil {
					errCh <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent append: %v", err)
	}

	msgs, err := st.ListMessages(context.Background(), "r1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != writers*perWriter {
		t.Fatalf("expected %d messages, got %d", writers*perWriter, len(msgs))
	}
	for i, msg := range msgs {
		if msg.Sequence != int64(i+1) {
			t.Fatalf("sequence gap or duplicate at %d: %d", i, msg.Sequence)
		}
	}
}

func testClearKeepsRoom(t *testing.T, st store.Store) {
	mustCreate(t, st, newRoom("r1"))
	mustAppend(t, st, "r1", "alice", "one")
	mustAppend(t, st, "r1", "alice", "two")

	n, err := st.ClearMessages(context.Background(), "r1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cleared, got %d", n)
	}

	msgs, err := st.ListMessages(context.Background(), "r1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty log, got %d", len(msgs))
	}

	next := mustAppend(t, st, "r1", "alice", "three")
	if next.Sequence != 3 {
		t.Fatalf("sequence reused after clear: %d", next.Sequence)
	}
}

func testDeleteCascades(t *testing.T, st store.Store) {
	ctx := context.Background()
	mustCreate(t, st, newRoom("r1"))
	mustAppend(t, st, "r1", "alice", "hi")

	deleted, err := st.DeleteRoom(ctx, "r1")
	if err != nil || !deleted {
		t.Fatalf("expected deletion, got deleted=%v err=%v", deleted, err)
	}
	if _, err := st.GetRoom(ctx, "r1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	msgs, err := st.ListMessages(ctx, "r1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages survived room deletion: %d", len(msgs))
	}

	deleted, err = st.DeleteRoom(ctx, "r1")
	if err != nil || deleted {
		t.Fatalf("second delete should be a no-op, got deleted=%v err=%v", deleted, err)
	}

	// Recreating the id starts from an empty log.
	mustCreate(t, st, newRoom("r1"))
	msg := mustAppend(t, st, "r1", "bob", "again")
	if msg.Sequence != 1 {
		t.Fatalf("expected fresh sequence, got %d", msg.Sequence)
	}
}

func testListExpired(t *testing.T, st store.Store) {
	early := newRoom("early")
	early.ExpiresAt = base.Add(time.Hour)
	late := newRoom("late")
	late.ExpiresAt = base.Add(3 * time.Hour)
	mustCreate(t, st, early)
	mustCreate(t, st, late)

	ids, err := st.ListExpiredRooms(context.Background(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(ids) != 1 || ids[0] != "early" {
		t.Fatalf("expected [early], got %v", ids)
	}

	ids, err = st.ListExpiredRooms(context.Background(), base)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected none expired, got %v", ids)
	}
}

func testRoomsIsolated(t *testing.T, st store.Store) {
	// "r1" is a prefix of "r10"; key layouts must not leak across rooms.
	mustCreate(t, st, newRoom("r1"))
	mustCreate(t, st, newRoom("r10"))
	mustAppend(t, st, "r1", "alice", "in r1")
	mustAppend(t, st, "r10", "bob", "in r10")

	msgs, err := st.ListMessages(context.Background(), "r1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "in r1" {
		t.Fatalf("unexpected r1 log: %+v", msgs)
	}

	if _, err := st.ClearMessages(context.Background(), "r1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	msgs, err = st.ListMessages(context.Background(), "r10")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("clearing r1 touched r10: %+v", msgs)
	}
}
