package rooms

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/store"
	"github.com/vovakirdan/privroom/internal/store/sqlite"
)

// flakyStore fails the first failures DeleteRoom calls.
type flakyStore struct {
	store.Store
	failures atomic.Int32
}

func (s *flakyStore) DeleteRoom(ctx context.Context, id string) (bool, error) {
	if s.failures.Add(-1) >= 0 {
		return false, errors.New("disk on fire")
	}
	return s.Store.DeleteRoom(ctx, id)
}

func TestSweepOnce_ClosesOnlyExpiredRooms(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	sweeper := NewSweeper(f.svc, 0)

	f.join(t, "old")
	f.send(t, "old", "hi", "alice")
	f.clock.Add(24 * time.Hour)
	f.join(t, "young")

	handler, events := collect(8)
	if _, _, err := f.svc.Subscribe(ctx, "old", handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if n, err := sweeper.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("premature sweep: n=%d err=%v", n, err)
	}

	f.clock.Add(24 * time.Hour)
	n, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 room closed, got %d", n)
	}

	ev := mustEvent(t, events, core.EventRoomClosed)
	if ev.Reason != "expired" {
		t.Fatalf("unexpected reason %q", ev.Reason)
	}
	if _, err := f.store.GetRoom(ctx, "old"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired room still stored: %v", err)
	}
	if _, err := f.svc.Get(ctx, "young"); err != nil {
		t.Fatalf("young room swept: %v", err)
	}
	if _, err := f.svc.Append(ctx, "old", "late", "alice"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after sweep, got %v", err)
	}

	// Sweeping again and deleting manually converge on the same no-op.
	if n, err := sweeper.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
	if err := f.svc.Delete(ctx, "old"); err != nil {
		t.Fatalf("delete after sweep: %v", err)
	}
	expectNoEvent(t, events, 50*time.Millisecond)
}

func TestSweepOnce_RetriesFailedDeletion(t *testing.T) {
	base, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = base.Close() })

	flaky := &flakyStore{Store: base}
	flaky.failures.Store(1)

	f := newFixtureWithStore(t, flaky, Options{})
	ctx := context.Background()
	sweeper := NewSweeper(f.svc, 0)

	f.join(t, "general")
	handler, events := collect(8)
	if _, _, err := f.svc.Subscribe(ctx, "general", handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	f.clock.Add(DefaultRoomTTL)
	if n, err := sweeper.SweepOnce(ctx); err == nil || n != 0 {
		t.Fatalf("expected failed sweep, got n=%d err=%v", n, err)
	}

	// Subscribers were already told; the room refuses writes until it is gone.
	mustEvent(t, events, core.EventRoomClosed)
	if _, err := f.svc.Append(ctx, "general", "hi", "alice"); !errors.Is(err, core.ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed while closing, got %v", err)
	}

	n, err := sweeper.SweepOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("retry sweep: n=%d err=%v", n, err)
	}
	expectNoEvent(t, events, 50*time.Millisecond)
	if f.svc.isClosing("general") {
		t.Fatalf("closing marker left behind")
	}
}

func TestSweepOnce_RetriesFailedManualDelete(t *testing.T) {
	base, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = base.Close() })

	flaky := &flakyStore{Store: base}
	flaky.failures.Store(1)

	f := newFixtureWithStore(t, flaky, Options{})
	ctx := context.Background()
	sweeper := NewSweeper(f.svc, 0)

	f.join(t, "general")
	f.send(t, "general", "hi", "alice")

	if err := f.svc.Delete(ctx, "general"); err == nil {
		t.Fatalf("expected delete to fail")
	}
	if !f.svc.isClosing("general") {
		t.Fatalf("failed delete must leave the room closing")
	}

	// The room is far from expiry; the sweeper still finishes the teardown.
	n, err := sweeper.SweepOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("retry sweep: n=%d err=%v", n, err)
	}
	if _, err := f.store.GetRoom(ctx, "general"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("room still stored after retry: %v", err)
	}
	if f.svc.isClosing("general") {
		t.Fatalf("closing marker left behind")
	}

	// A new instance under the same id is untouched by later sweeps.
	f.join(t, "general")
	if n, err := sweeper.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("sweep after rejoin: n=%d err=%v", n, err)
	}
	if _, err := f.svc.Get(ctx, "general"); err != nil {
		t.Fatalf("fresh instance swept: %v", err)
	}
}

func TestSweeper_RunClosesOnTick(t *testing.T) {
	f := newFixture(t, Options{RoomTTL: 10 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())

	f.join(t, "general")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		NewSweeper(f.svc, time.Second).Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		f.clock.Add(time.Second)
		_, err := f.store.GetRoom(context.Background(), "general")
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweeper never removed the room")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop on cancel")
	}
}
