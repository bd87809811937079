package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/capture/pkg/ports"
)

// FakeSession is an in-memory ports.Session for tests.
type FakeSession struct {
	ID         string
	Frame      []byte
	CaptureErr error
	NavErr     error
	CloseErr   error
	CloseDelay time.Duration

	// When set, Capture signals Capturing and blocks until Release is closed.
	Capturing chan struct{}
	Release   chan struct{}

	mu       sync.Mutex
	visited  []string
	captures int
	closes   int
	closed   chan struct{}
}

// NewFakeSession creates a fake session that captures frame.
func NewFakeSession(id string, frame []byte) *FakeSession {
	return &FakeSession{ID: id, Frame: frame, closed: make(chan struct{})}
}

func (f *FakeSession) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited = append(f.visited, url)
	return f.NavErr
}

func (f *FakeSession) Capture(ctx context.Context) ([]byte, error) {
	if f.Capturing != nil {
		f.Capturing <- struct{}{}
	}
	if f.Release != nil {
		<-f.Release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	return append([]byte(nil), f.Frame...), nil
}

func (f *FakeSession) Close() error {
	if f.CloseDelay > 0 {
		time.Sleep(f.CloseDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if f.closes == 1 && f.closed != nil {
		close(f.closed)
	}
	return f.CloseErr
}

// Visited returns the URLs the session navigated to.
func (f *FakeSession) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visited...)
}

// Captures returns how many times Capture was called.
func (f *FakeSession) Captures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures
}

// Closes returns how many times Close was called.
func (f *FakeSession) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Closed is closed after the first Close call.
func (f *FakeSession) Closed() <-chan struct{} {
	return f.closed
}

// FakeLauncher hands out FakeSessions and remembers them by ID.
type FakeLauncher struct {
	Frame     []byte
	LaunchErr error

	mu       sync.Mutex
	sessions map[string]*FakeSession
}

// Launch implements ports.Launcher.
func (l *FakeLauncher) Launch(ctx context.Context, id string) (ports.Session, error) {
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sessions == nil {
		l.sessions = make(map[string]*FakeSession)
	}
	s := NewFakeSession(id, l.Frame)
	l.sessions[id] = s
	return s, nil
}

// Session returns the fake launched for id, or nil.
func (l *FakeLauncher) Session(id string) *FakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions[id]
}
