/*
Package keylock provides per-key mutual exclusion.

Callers touching state owned by one key (for example the last artifact of a
session) serialize against each other, while callers on different keys never
contend beyond a short map lookup. Entries are reference counted and removed as
soon as nobody holds or waits for them, so the map does not grow with the
number of keys ever seen.
*/
package keylock

import "sync"

// entry holds the mutex and the reference count.
type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out one mutex per key.
type Locker struct {
	mu    sync.Mutex        // Guards the map
	locks map[string]*entry // Active keys
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// acquire gets or creates an entry and increments its reference count.
// The caller MUST lock entry.mu, and then call release(key) after unlocking.
func (l *Locker) acquire(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.locks[key]
	if !exists {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	return e
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (l *Locker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.locks[key]
	if !exists {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.locks, key)
	}
}

// WithLock executes fn while holding the lock for key.
func (l *Locker) WithLock(key string, fn func()) {
	e := l.acquire(key)
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		l.release(key)
	}()
	fn()
}

// Len returns the number of keys currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
