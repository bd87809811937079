// Package dedup rejects consecutive identical artifacts per session.
//
// Identical consecutive frames usually mean the page did not re-render, so
// they carry no new evidence. Only the most recent accepted artifact of each
// session is remembered, and only for comparison.
package dedup

import (
	"bytes"
	"sync"

	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/keylock"
)

// Deduplicator remembers the last accepted artifact of every session.
type Deduplicator struct {
	locks *keylock.Locker

	mu   sync.RWMutex
	last map[string][]byte
}

// New creates an empty Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{
		locks: keylock.New(),
		last:  make(map[string][]byte),
	}
}

// CheckAndUpdate compares data with the last artifact accepted for sessionID.
// Equal bytes yield VerdictDuplicate and leave the cache untouched; anything
// else replaces the cache entry and yields VerdictAccepted. The first
// submission of a session is always accepted.
func (d *Deduplicator) CheckAndUpdate(sessionID string, data []byte) domain.Verdict {
	verdict := domain.VerdictAccepted

	d.locks.WithLock(sessionID, func() {
		d.mu.RLock()
		prev, seen := d.last[sessionID]
		d.mu.RUnlock()

		if seen && bytes.Equal(prev, data) {
			verdict = domain.VerdictDuplicate
			return
		}

		cp := make([]byte, len(data))
		copy(cp, data)

		d.mu.Lock()
		d.last[sessionID] = cp
		d.mu.Unlock()
	})

	return verdict
}

// Last returns the artifact currently cached for sessionID, or nil.
func (d *Deduplicator) Last(sessionID string) []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last[sessionID]
}

// Restore puts prev back as the cached artifact of sessionID, undoing an
// accepted update whose artifact was never persisted. A nil prev forgets the
// session.
func (d *Deduplicator) Restore(sessionID string, prev []byte) {
	d.locks.WithLock(sessionID, func() {
		d.mu.Lock()
		if prev == nil {
			delete(d.last, sessionID)
		} else {
			d.last[sessionID] = prev
		}
		d.mu.Unlock()
	})
}

// Forget drops the cached artifact of a session.
func (d *Deduplicator) Forget(sessionID string) {
	d.locks.WithLock(sessionID, func() {
		d.mu.Lock()
		delete(d.last, sessionID)
		d.mu.Unlock()
	})
}

// Len returns the number of sessions with a cached artifact.
func (d *Deduplicator) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.last)
}
