// Package registry owns the set of active capture sessions of a run.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/ports"
)

// Registry maps session IDs to their automation handles.
// It is the only owner of the handles: callers borrow them through Lookup
// and only the caller of Detach may close one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]ports.Session
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]ports.Session),
	}
}

// Register adds a session.
// Returns domain.ErrDuplicateSession if the ID is already present.
func (r *Registry) Register(id string, s ports.Session) error {
	if id == "" {
		return fmt.Errorf("session id is required: %w", domain.ErrInvalidName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSession, id)
	}
	r.sessions[id] = s
	return nil
}

// Lookup returns the handle registered under id.
// Returns domain.ErrUnknownSession if absent.
func (r *Registry) Lookup(id string) (ports.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSession, id)
	}
	return s, nil
}

// Remove deletes the session if present and reports whether the registry is now empty.
// Removing an absent session is a no-op.
func (r *Registry) Remove(id string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return len(r.sessions) == 0
}

// Detach removes the session and hands its handle to the caller, who becomes
// responsible for closing it. It also reports whether the registry is now empty.
func (r *Registry) Detach(id string) (ports.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, len(r.sessions) == 0, fmt.Errorf("%w: %s", domain.ErrUnknownSession, id)
	}
	delete(r.sessions, id)
	return s, len(r.sessions) == 0, nil
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the registered session IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// CloseAll detaches and closes every remaining session.
// It is used when a run is aborted before all sessions completed.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]ports.Session)
	r.mu.Unlock()

	var errs []error
	for id, s := range sessions {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
