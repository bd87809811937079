// Package remote provides passive sessions for browsers driven outside the
// capture process (a device lab, a developer's own browser). The page under
// test must send its screenshots; the server cannot take them.
package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/ports"
)

// NavigateFunc receives the URL a remote browser should open.
type NavigateFunc func(sessionID, url string)

// Launcher creates passive sessions.
type Launcher struct {
	onNavigate NavigateFunc
}

// NewLauncher creates a Launcher. onNavigate may be nil.
func NewLauncher(onNavigate NavigateFunc) *Launcher {
	return &Launcher{onNavigate: onNavigate}
}

// Launch implements ports.Launcher.
func (l *Launcher) Launch(ctx context.Context, id string) (ports.Session, error) {
	return &Session{id: id, onNavigate: l.onNavigate}, nil
}

// Session is a placeholder handle for a browser the service does not control.
type Session struct {
	id         string
	onNavigate NavigateFunc

	mu     sync.Mutex
	url    string
	closed bool
}

// Navigate hands url to the operator instead of opening it.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()

	if s.onNavigate != nil {
		s.onNavigate(s.id, url)
	}
	return nil
}

// Capture always fails: remote pages must post the image themselves.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("remote session %s cannot capture server-side: %w", s.id, domain.ErrEmptyArtifact)
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// URL returns the last navigation target.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
