package core

import "sync"

// Handler receives events of one subscription. Calls are serialized per
// subscription and happen on a goroutine owned by the subscription.
type Handler func(*Event)

type subState int

const (
	subActive subState = iota
	// subFinishing: a terminal event is queued; nothing more is accepted.
	subFinishing
	// subStopped: delivery ended; queued events are discarded.
	subStopped
)

// Subscription is a registered watcher of one room.
type Subscription struct {
	ID   string
	Room string

	hub        *Hub
	handler    Handler
	maxPending int

	mu    sync.Mutex
	queue []*Event
	state subState
	err   error

	wake chan struct{}
	done chan struct{}
}

func newSubscription(id, room string, hub *Hub, handler Handler, maxPending int) *Subscription {
	return &Subscription{
		ID:         id,
		Room:       room,
		hub:        hub,
		handler:    handler,
		maxPending: maxPending,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Unsubscribe stops delivery. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	s.hub.Unsubscribe(s)
}

// Done is closed once no further events will be delivered.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why delivery ended: nil after Unsubscribe, ErrRoomClosed,
// ErrSlowConsumer or ErrHubClosed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// enqueue appends ev to the delivery queue. It reports whether the event was
// accepted and whether the subscription overflowed and got stopped.
func (s *Subscription) enqueue(ev *Event) (accepted, overflow bool) {
	s.mu.Lock()
	if s.state != subActive {
		s.mu.Unlock()
		return false, false
	}
	if s.maxPending > 0 && len(s.queue) >= s.maxPending {
		s.state = subStopped
		s.queue = nil
		s.err = ErrSlowConsumer
		s.mu.Unlock()
		s.signal()
		return false, true
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.signal()
	return true, false
}

// finish queues a terminal event; the subscription ends after delivering it.
func (s *Subscription) finish(ev *Event, err error) {
	s.mu.Lock()
	if s.state != subActive {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.state = subFinishing
	s.err = err
	s.mu.Unlock()
	s.signal()
}

// stop ends delivery immediately. Returns false if already stopped.
func (s *Subscription) stop(err error) bool {
	s.mu.Lock()
	if s.state == subStopped {
		s.mu.Unlock()
		return false
	}
	wasFinishing := s.state == subFinishing
	s.state = subStopped
	s.queue = nil
	if !wasFinishing {
		s.err = err
	}
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *Subscription) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == subStopped
}

func (s *Subscription) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		if s.state == subStopped {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		finishing := s.state == subFinishing
		s.mu.Unlock()

		for _, ev := range batch {
			if s.stopped() {
				return
			}
			s.handler(ev)
		}

		if finishing {
			s.mu.Lock()
			s.state = subStopped
			s.mu.Unlock()
			return
		}
		if len(batch) == 0 {
			<-s.wake
		}
	}
}
