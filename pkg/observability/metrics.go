package observability

import (
	"context"

	"github.com/aretw0/capture/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one capture process.
type Metrics struct {
	Artifacts      *prometheus.CounterVec
	ArtifactBytes  prometheus.Histogram
	WriteDuration  prometheus.Histogram
	SessionsClosed prometheus.Counter
	RunsComplete   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg skips registration (useful in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Artifacts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_artifacts_total",
				Help: "Artifacts received, by session and outcome",
			},
			[]string{"session", "outcome"},
		),
		ArtifactBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "capture_artifact_bytes",
			Help:    "Size of stored artifacts",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "capture_write_duration_seconds",
			Help: "Time spent allocating and writing an artifact",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capture_sessions_closed_total",
			Help: "Sessions that completed their teardown",
		}),
		RunsComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capture_runs_complete_total",
			Help: "Runs whose sessions all completed",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Artifacts, m.ArtifactBytes, m.WriteDuration, m.SessionsClosed, m.RunsComplete)
	}
	return m
}

// Hooks returns capture hooks that record into m.
func (m *Metrics) Hooks() domain.CaptureHooks {
	return domain.CaptureHooks{
		OnArtifactStored: func(ctx context.Context, e *domain.ArtifactEvent) {
			m.Artifacts.WithLabelValues(e.SessionID, string(domain.OutcomeStored)).Inc()
			m.ArtifactBytes.Observe(float64(e.Bytes))
			m.WriteDuration.Observe(e.Duration.Seconds())
		},
		OnArtifactDuplicate: func(ctx context.Context, e *domain.ArtifactEvent) {
			m.Artifacts.WithLabelValues(e.SessionID, string(domain.OutcomeDuplicate)).Inc()
		},
		OnArtifactFailed: func(ctx context.Context, e *domain.ArtifactEvent) {
			m.Artifacts.WithLabelValues(e.SessionID, string(domain.OutcomeFailed)).Inc()
		},
		OnSessionClosed: func(ctx context.Context, e *domain.SessionEvent) {
			m.SessionsClosed.Inc()
		},
		OnRunComplete: func(ctx context.Context, e *domain.EventBase) {
			m.RunsComplete.Inc()
		},
	}
}
