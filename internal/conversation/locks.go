// ABOUTME: Thread-safe TTL registry of per-token mutexes serializing turn appends
// ABOUTME: Idle locks are cleaned up by a background goroutine

package conversation

import (
	"sync"
	"time"
)

// lockEntry tracks one token's mutex, how many holders or waiters it has,
// and when it was last released.
type lockEntry struct {
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

// lockRegistry hands out a mutex per conversation token so that two
// concurrent turns on the same token cannot interleave their message
// appends, while different tokens proceed independently.
type lockRegistry struct {
	mu     sync.Mutex
	locks  map[string]*lockEntry
	ttl    time.Duration
	done   chan struct{}
	closed bool
}

// newLockRegistry creates a registry whose idle locks expire after ttl.
// A background goroutine periodically removes unused entries.
func newLockRegistry(ttl time.Duration) *lockRegistry {
	r := &lockRegistry{
		locks: make(map[string]*lockEntry),
		ttl:   ttl,
		done:  make(chan struct{}),
	}
	go r.cleanup()
	return r
}

// acquire locks the token's mutex and returns the unlock function.
// The reference count covers waiters as well as the holder, so cleanup can
// never remove an entry another goroutine is about to lock.
func (r *lockRegistry) acquire(token string) func() {
	r.mu.Lock()
	entry, ok := r.locks[token]
	if !ok {
		entry = &lockEntry{}
		r.locks[token] = entry
	}
	entry.refs++
	r.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		r.mu.Lock()
		entry.refs--
		entry.lastUsed = time.Now()
		r.mu.Unlock()
	}
}

// cleanup runs in a background goroutine, periodically removing idle locks.
func (r *lockRegistry) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runCleanup()
		case <-r.done:
			return
		}
	}
}

// runCleanup removes entries idle longer than the TTL. An entry with a
// holder or waiter has refs > 0 and is always kept.
func (r *lockRegistry) runCleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for token, entry := range r.locks {
		if entry.refs == 0 && now.Sub(entry.lastUsed) > r.ttl {
			delete(r.locks, token)
		}
	}
}

// close stops the background cleanup goroutine. Safe to call multiple times.
func (r *lockRegistry) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed {
		close(r.done)
		r.closed = true
	}
}
