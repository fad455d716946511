package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vovakirdan/privroom/internal/store"
)

func message(room string, seq int64) *Event {
	return &Event{
		Kind:    EventMessageAppended,
		Room:    room,
		Message: &store.Message{RoomID: room, Sequence: seq, Text: fmt.Sprintf("m%d", seq)},
	}
}

func TestHubFanOutPreservesOrder(t *testing.T) {
	hub := NewHub(0, nil, nil)
	defer hub.Close()

	handlerA, alice := collect(64)
	handlerB, bob := collect(64)
	if _, err := hub.Subscribe("general", handlerA); err != nil {
		t.Fatalf("subscribe alice: %v", err)
	}
	if _, err := hub.Subscribe("general", handlerB); err != nil {
		t.Fatalf("subscribe bob: %v", err)
	}

	const n = 50
	for i := int64(1); i <= n; i++ {
		hub.Publish(message("general", i))
	}

	for _, ch := range []<-chan *Event{alice, bob} {
		for i := int64(1); i <= n; i++ {
			ev := nextEvent(t, ch)
			if ev.Kind != EventMessageAppended || ev.Message.Sequence != i {
				t.Fatalf("expected message %d, got %+v", i, ev)
			}
		}
	}
}

func TestHubRoomClosedIsLastEvent(t *testing.T) {
	hub := NewHub(0, nil, nil)
	defer hub.Close()

	handler, events := collect(16)
	sub, err := hub.Subscribe("general", handler)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	hub.Publish(message("general", 1))
	if n := hub.CloseRoom("general", "deleted"); n != 1 {
		t.Fatalf("expected 1 subscriber closed, got %d", n)
	}
	hub.Publish(message("general", 2))
	hub.PublishTyping("general", true, "bob")

	if ev := nextEvent(t, events); ev.Kind != EventMessageAppended {
		t.Fatalf("expected message first, got %+v", ev)
	}
	closed := nextEvent(t, events)
	if closed.Kind != EventRoomClosed || closed.Reason != "deleted" {
		t.Fatalf("expected room closed, got %+v", closed)
	}

	waitDone(t, sub)
	expectNoEvent(t, events, 50*time.Millisecond)
	if !errors.Is(sub.Err(), ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed, got %v", sub.Err())
	}
	if hub.SubscriberCount("general") != 0 {
		t.Fatalf("closed room still has subscribers")
	}

	// Closing again is a no-op.
	if n := hub.CloseRoom("general", "deleted"); n != 0 {
		t.Fatalf("expected no subscribers on second close, got %d", n)
	}
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(0, nil, nil)
	defer hub.Close()

	handler, events := collect(16)
	sub, err := hub.Subscribe("general", handler)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	hub.Publish(message("general", 1))
	mustEvent(t, events, EventMessageAppended)

	sub.Unsubscribe()
	sub.Unsubscribe()
	hub.Unsubscribe(sub)

	waitDone(t, sub)
	if sub.Err() != nil {
		t.Fatalf("expected nil error after unsubscribe, got %v", sub.Err())
	}

	hub.Publish(message("general", 2))
	expectNoEvent(t, events, 50*time.Millisecond)
	if hub.SubscriberCount("general") != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestHubDetachesSlowConsumer(t *testing.T) {
	hub := NewHub(2, nil, nil)
	defer hub.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	sub, err := hub.Subscribe("general", func(*Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	hub.Publish(message("general", 1))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never invoked")
	}

	// Handler is blocked on event 1; two fit in the queue, the next overflows.
	for i := int64(2); i <= 5; i++ {
		hub.Publish(message("general", i))
	}
	close(release)

	waitDone(t, sub)
	if !errors.Is(sub.Err(), ErrSlowConsumer) {
		t.Fatalf("expected ErrSlowConsumer, got %v", sub.Err())
	}
	if hub.SubscriberCount("general") != 0 {
		t.Fatalf("slow subscriber still attached")
	}
}

func TestHubRoomsAreIndependent(t *testing.T) {
	hub := NewHub(0, nil, nil)
	defer hub.Close()

	handlerA, roomA := collect(4)
	handlerB, roomB := collect(4)
	if _, err := hub.Subscribe("a", handlerA); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if _, err := hub.Subscribe("b", handlerB); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	hub.Publish(message("a", 1))
	hub.CloseRoom("a", "expired")

	mustEvent(t, roomA, EventMessageAppended)
	mustEvent(t, roomA, EventRoomClosed)
	expectNoEvent(t, roomB, 50*time.Millisecond)
	if hub.SubscriberCount("b") != 1 {
		t.Fatalf("room b lost its subscriber")
	}
}

func TestHubResubscribeAfterCloseRoom(t *testing.T) {
	hub := NewHub(0, nil, nil)
	defer hub.Close()

	first, firstEvents := collect(4)
	if _, err := hub.Subscribe("general", first); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	hub.CloseRoom("general", "deleted")
	mustEvent(t, firstEvents, EventRoomClosed)

	second, secondEvents := collect(4)
	if _, err := hub.Subscribe("general", second); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	hub.Publish(message("general", 1))

	mustEvent(t, secondEvents, EventMessageAppended)
	expectNoEvent(t, firstEvents, 50*time.Millisecond)
}

func TestHubCloseStopsEverything(t *testing.T) {
	hub := NewHub(0, nil, nil)

	handler, _ := collect(4)
	sub, err := hub.Subscribe("general", handler)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	hub.Close()
	hub.Close()

	waitDone(t, sub)
	if !errors.Is(sub.Err(), ErrHubClosed) {
		t.Fatalf("expected ErrHubClosed, got %v", sub.Err())
	}
	if _, err := hub.Subscribe("general", handler); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("expected ErrHubClosed on subscribe, got %v", err)
	}
}

func TestCoreErrorMatchesByCode(t *testing.T) {
	err := fmt.Errorf("append: %w", NewError(ErrCodeInvalidInput, "message text is empty"))

	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected match on invalid_input")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected match on not_found")
	}
	if code := ErrorCode(err); code != ErrCodeInvalidInput {
		t.Fatalf("unexpected code %q", code)
	}
	if code := ErrorCode(errors.New("plain")); code != "" {
		t.Fatalf("expected empty code, got %q", code)
	}
}
