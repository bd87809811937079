package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventArtifactStored    EventType = "artifact_stored"
	EventArtifactDuplicate EventType = "artifact_duplicate"
	EventArtifactFailed    EventType = "artifact_failed"
	EventSessionClosed     EventType = "session_closed"
	EventRunComplete       EventType = "run_complete"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// ArtifactEvent is emitted once per submission.
type ArtifactEvent struct {
	EventBase
	SessionID string        `json:"session_id"`
	Group     string        `json:"group"`
	Path      string        `json:"path,omitempty"`
	Bytes     int           `json:"bytes"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// SessionEvent is emitted when a session finishes its teardown.
type SessionEvent struct {
	EventBase
	SessionID string `json:"session_id"`
	Err       error  `json:"-"`
}

// CaptureHooks defines callbacks for ingestion observability.
// Nil callbacks are skipped.
type CaptureHooks struct {
	OnArtifactStored    func(context.Context, *ArtifactEvent)
	OnArtifactDuplicate func(context.Context, *ArtifactEvent)
	OnArtifactFailed    func(context.Context, *ArtifactEvent)
	OnSessionClosed     func(context.Context, *SessionEvent)
	OnRunComplete       func(context.Context, *EventBase)
}
