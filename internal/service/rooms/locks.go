package rooms

import "sync"

type roomLock struct {
	mu   sync.Mutex
	refs int
}

// lockRegistry hands out one mutex per room id. Entries live only while
// someone holds or waits for them, so ids that are never touched again do
// not accumulate.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*roomLock)}
}

// lock acquires the mutex of id and returns its release function.
func (r *lockRegistry) lock(id string) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &roomLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}

func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
