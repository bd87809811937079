package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	h := m.Hooks()
	ctx := context.Background()

	h.OnArtifactStored(ctx, &domain.ArtifactEvent{SessionID: "a", Bytes: 10})
	h.OnArtifactStored(ctx, &domain.ArtifactEvent{SessionID: "a", Bytes: 20})
	h.OnArtifactDuplicate(ctx, &domain.ArtifactEvent{SessionID: "a"})
	h.OnArtifactFailed(ctx, &domain.ArtifactEvent{SessionID: "b"})
	h.OnSessionClosed(ctx, &domain.SessionEvent{SessionID: "a"})
	h.OnRunComplete(ctx, &domain.EventBase{RunID: "r"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Artifacts.WithLabelValues("a", "stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Artifacts.WithLabelValues("a", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Artifacts.WithLabelValues("b", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsClosed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsComplete))

	n, err := testutil.GatherAndCount(reg, "capture_artifacts_total")
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestChain_RunsAllInOrder(t *testing.T) {
	var order []string
	first := domain.CaptureHooks{
		OnRunComplete: func(ctx context.Context, e *domain.EventBase) { order = append(order, "first") },
	}
	second := domain.CaptureHooks{
		OnRunComplete: func(ctx context.Context, e *domain.EventBase) { order = append(order, "second") },
	}

	h := observability.Chain(first, domain.CaptureHooks{}, second)
	h.OnRunComplete(context.Background(), &domain.EventBase{})
	h.OnArtifactStored(context.Background(), &domain.ArtifactEvent{}) // nil callbacks are skipped

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDebugHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	observability.DebugHooks(logger).OnArtifactStored(context.Background(),
		&domain.ArtifactEvent{SessionID: "firefox", Group: "home", Path: "/out/home1.png"})

	assert.Contains(t, buf.String(), "Artifact Stored")
	assert.Contains(t, buf.String(), "session_id=firefox")
}
