package core

// roomSubscribers groups subscriptions watching the same room.
type roomSubscribers struct {
	name string
	subs map[*Subscription]struct{}
}

func newRoomSubscribers(name string) *roomSubscribers {
	return &roomSubscribers{
		name: name,
		subs: make(map[*Subscription]struct{}),
	}
}

// add inserts a subscription. Returns true if newly added.
func (r *roomSubscribers) add(s *Subscription) bool {
	if _, exists := r.subs[s]; exists {
		return false
	}
	r.subs[s] = struct{}{}
	return true
}

// remove deletes a subscription. Returns true if removed.
func (r *roomSubscribers) remove(s *Subscription) bool {
	if _, exists := r.subs[s]; !exists {
		return false
	}
	delete(r.subs, s)
	return true
}

// broadcast queues ev on every subscription and returns those that overflowed.
func (r *roomSubscribers) broadcast(ev *Event) []*Subscription {
	var overflowed []*Subscription
	for s := range r.subs {
		if _, overflow := s.enqueue(ev); overflow {
			overflowed = append(overflowed, s)
		}
	}
	return overflowed
}

func (r *roomSubscribers) empty() bool {
	return len(r.subs) == 0
}

func (r *roomSubscribers) count() int {
	return len(r.subs)
}
