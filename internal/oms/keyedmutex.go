package oms

import "sync"

// lockRegistry hands out one mutex per order id. Entries are created
// lazily, refcounted, and evicted when the last holder releases, so the
// map never grows with the order history.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*orderLock)}
}

// Lock blocks until the per-order mutex is held and returns the release
// function. Operations on different orders never contend.
func (r *lockRegistry) Lock(id string) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &orderLock{}
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

// size reports the number of live entries, for tests.
func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
