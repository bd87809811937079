package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/capture/pkg/domain"
)

// Chain merges several hook sets; callbacks run in the given order.
func Chain(sets ...domain.CaptureHooks) domain.CaptureHooks {
	return domain.CaptureHooks{
		OnArtifactStored: func(ctx context.Context, e *domain.ArtifactEvent) {
			for _, h := range sets {
				if h.OnArtifactStored != nil {
					h.OnArtifactStored(ctx, e)
				}
			}
		},
		OnArtifactDuplicate: func(ctx context.Context, e *domain.ArtifactEvent) {
			for _, h := range sets {
				if h.OnArtifactDuplicate != nil {
					h.OnArtifactDuplicate(ctx, e)
				}
			}
		},
		OnArtifactFailed: func(ctx context.Context, e *domain.ArtifactEvent) {
			for _, h := range sets {
				if h.OnArtifactFailed != nil {
					h.OnArtifactFailed(ctx, e)
				}
			}
		},
		OnSessionClosed: func(ctx context.Context, e *domain.SessionEvent) {
			for _, h := range sets {
				if h.OnSessionClosed != nil {
					h.OnSessionClosed(ctx, e)
				}
			}
		},
		OnRunComplete: func(ctx context.Context, e *domain.EventBase) {
			for _, h := range sets {
				if h.OnRunComplete != nil {
					h.OnRunComplete(ctx, e)
				}
			}
		},
	}
}

// DebugHooks logs every capture event at debug level.
func DebugHooks(logger *slog.Logger) domain.CaptureHooks {
	return domain.CaptureHooks{
		OnArtifactStored: func(ctx context.Context, e *domain.ArtifactEvent) {
			logger.Debug("Artifact Stored", "session_id", e.SessionID, "group", e.Group, "path", e.Path, "bytes", e.Bytes)
		},
		OnArtifactDuplicate: func(ctx context.Context, e *domain.ArtifactEvent) {
			logger.Debug("Artifact Duplicate", "session_id", e.SessionID, "group", e.Group)
		},
		OnArtifactFailed: func(ctx context.Context, e *domain.ArtifactEvent) {
			logger.Debug("Artifact Failed", "session_id", e.SessionID, "group", e.Group, "err", e.Err)
		},
		OnSessionClosed: func(ctx context.Context, e *domain.SessionEvent) {
			logger.Debug("Session Closed", "session_id", e.SessionID, "err", e.Err)
		},
		OnRunComplete: func(ctx context.Context, e *domain.EventBase) {
			logger.Debug("Run Complete", "run_id", e.RunID)
		},
	}
}
