package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/privroom/internal/metrics"
	"github.com/vovakirdan/privroom/internal/utils"
)

// Hub fans room events out to subscriptions. Each subscription owns a FIFO
// queue, so publishers never block on slow handlers and every subscriber sees
// a room's events in publish order.
type Hub struct {
	maxPending int
	metrics    *metrics.Metrics
	log        *zerolog.Logger

	mu     sync.RWMutex
	rooms  map[string]*roomSubscribers
	closed bool
}

// NewHub creates a hub. maxPending bounds each subscription queue (0 = unbounded);
// a subscriber that falls further behind is detached with ErrSlowConsumer.
func NewHub(maxPending int, m *metrics.Metrics, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		maxPending: maxPending,
		metrics:    m,
		log:        logger,
		rooms:      make(map[string]*roomSubscribers),
	}
}

// Subscribe registers handler for events of room and returns immediately.
func (h *Hub) Subscribe(room string, handler Handler) (*Subscription, error) {
	sub := newSubscription(utils.NewID(), room, h, handler, h.maxPending)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	rs, ok := h.rooms[room]
	if !ok {
		rs = newRoomSubscribers(room)
		h.rooms[room] = rs
	}
	rs.add(sub)
	h.mu.Unlock()

	h.metrics.SubscriberAdded()
	go sub.run()

	h.log.Debug().Str("room_id", room).Str("subscription_id", sub.ID).Msg("subscribed")
	return sub, nil
}

// Unsubscribe stops delivery to sub. Safe to call multiple times.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	removed := h.detach(sub)
	sub.stop(nil)
	if removed {
		h.metrics.SubscribersRemoved(1)
		h.log.Debug().Str("room_id", sub.Room).Str("subscription_id", sub.ID).Msg("unsubscribed")
	}
}

func (h *Hub) detach(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[sub.Room]
	if !ok || !rs.remove(sub) {
		return false
	}
	if rs.empty() {
		delete(h.rooms, sub.Room)
	}
	return true
}

// Publish queues ev for every subscriber of ev.Room.
func (h *Hub) Publish(ev *Event) {
	h.mu.RLock()
	rs, ok := h.rooms[ev.Room]
	var overflowed []*Subscription
	if ok {
		overflowed = rs.broadcast(ev)
	}
	h.mu.RUnlock()

	for _, sub := range overflowed {
		if h.detach(sub) {
			h.metrics.SubscribersRemoved(1)
		}
		h.metrics.SubscriptionDropped()
		h.log.Warn().Str("room_id", sub.Room).Str("subscription_id", sub.ID).Msg("slow subscriber detached")
	}
}

// PublishTyping fans out an ephemeral typing signal. Nothing is stored.
func (h *Hub) PublishTyping(room string, typing bool, sender string) {
	h.Publish(&Event{Kind: EventTypingChanged, Room: room, Sender: sender, Typing: typing})
}

// CloseRoom delivers EventRoomClosed as the final event to every subscriber
// of room and detaches them. Later subscribers of the same id are unaffected.
func (h *Hub) CloseRoom(room, reason string) int {
	h.mu.Lock()
	rs, ok := h.rooms[room]
	if ok {
		delete(h.rooms, room)
	}
	h.mu.Unlock()

	if !ok {
		return 0
	}

	ev := &Event{Kind: EventRoomClosed, Room: room, Reason: reason}
	for sub := range rs.subs {
		sub.finish(ev, ErrRoomClosed)
	}
	h.metrics.SubscribersRemoved(rs.count())
	return rs.count()
}

// SubscriberCount returns how many subscriptions watch room.
func (h *Hub) SubscriberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if rs, ok := h.rooms[room]; ok {
		return rs.count()
	}
	return 0
}

// Close detaches every subscription with ErrHubClosed and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	rooms := h.rooms
	h.rooms = make(map[string]*roomSubscribers)
	h.mu.Unlock()

	total := 0
	for _, rs := range rooms {
		for sub := range rs.subs {
			sub.stop(ErrHubClosed)
		}
		total += rs.count()
	}
	h.metrics.SubscribersRemoved(total)
}
