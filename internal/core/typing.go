package core

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTypingTimeout is how long a typing indicator stays on without a new keystroke.
const DefaultTypingTimeout = time.Second

type typingKey struct {
	room   string
	sender string
}

type typingState struct {
	timer *clock.Timer
	gen   uint64
}

// TypingTracker debounces typing signals per (room, sender): the first signal
// publishes typing=true, later ones re-arm the timer, and typing=false is
// published on timeout or explicit stop.
type TypingTracker struct {
	hub     *Hub
	clock   clock.Clock
	timeout time.Duration

	mu     sync.Mutex
	active map[typingKey]*typingState
	gen    uint64
}

// NewTypingTracker builds a tracker publishing through hub.
func NewTypingTracker(hub *Hub, clk clock.Clock, timeout time.Duration) *TypingTracker {
	if clk == nil {
		clk = clock.New()
	}
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingTracker{
		hub:     hub,
		clock:   clk,
		timeout: timeout,
		active:  make(map[typingKey]*typingState),
	}
}

// Set records a typing signal from sender in room.
func (t *TypingTracker) Set(room, sender string, typing bool) {
	key := typingKey{room: room, sender: sender}

	t.mu.Lock()
	st, wasTyping := t.active[key]
	if wasTyping {
		st.timer.Stop()
	}

	if !typing {
		delete(t.active, key)
		t.mu.Unlock()
		if wasTyping {
			t.hub.PublishTyping(room, false, sender)
		}
		return
	}

	t.gen++
	gen := t.gen
	t.active[key] = &typingState{
		gen:   gen,
		timer: t.clock.AfterFunc(t.timeout, func() { t.expire(key, gen) }),
	}
	t.mu.Unlock()

	if !wasTyping {
		t.hub.PublishTyping(room, true, sender)
	}
}

func (t *TypingTracker) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	st, ok := t.active[key]
	if !ok || st.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.active, key)
	t.mu.Unlock()

	t.hub.PublishTyping(key.room, false, key.sender)
}

// ForgetRoom cancels every pending indicator of room without publishing.
func (t *TypingTracker) ForgetRoom(room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, st := range t.active {
		if key.room == room {
			st.timer.Stop()
			delete(t.active, key)
		}
	}
}

// IsTyping reports whether sender currently shows as typing in room.
func (t *TypingTracker) IsTyping(room, sender string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.active[typingKey{room: room, sender: sender}]
	return ok
}
