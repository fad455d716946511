package rooms

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/privroom/internal/core"
	"github.com/vovakirdan/privroom/internal/store"
	"github.com/vovakirdan/privroom/internal/store/sqlite"
)

type fixture struct {
	svc   *Service
	hub   *core.Hub
	store store.Store
	clock *clock.Mock
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return newFixtureWithStore(t, st, opts)
}

func newFixtureWithStore(t *testing.T, st store.Store, opts Options) *fixture {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if opts.Clock == nil {
		opts.Clock = mock
	}

	hub := core.NewHub(0, nil, nil)
	t.Cleanup(hub.Close)

	return &fixture{
		svc:   New(st, hub, core.NewTypingTracker(hub, opts.Clock, time.Second), opts),
		hub:   hub,
		store: st,
		clock: mock,
	}
}

func (f *fixture) join(t *testing.T, id string) *store.Room {
	t.Helper()

	room, err := f.svc.Join(context.Background(), id, "secret")
	if err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return room
}

func (f *fixture) send(t *testing.T, id, text, sender string) *store.Message {
	t.Helper()

	msg, err := f.svc.Append(context.Background(), id, text, sender)
	if err != nil {
		t.Fatalf("append to %s: %v", id, err)
	}
	return msg
}

func collect(size int) (core.Handler, <-chan *core.Event) {
	ch := make(chan *core.Event, size)
	return func(ev *core.Event) { ch <- ev }, ch
}

func mustEvent(t *testing.T, ch <-chan *core.Event, kind core.EventKind) *core.Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func expectNoEvent(t *testing.T, ch <-chan *core.Event, wait time.Duration) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(wait):
	}
}
