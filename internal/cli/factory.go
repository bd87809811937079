package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/capture/internal/config"
	chromedpAdapter "github.com/aretw0/capture/pkg/adapters/chromedp"
	"github.com/aretw0/capture/pkg/adapters/file"
	"github.com/aretw0/capture/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/capture/pkg/adapters/redis"
	"github.com/aretw0/capture/pkg/adapters/remote"
	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/observability"
	"github.com/aretw0/capture/pkg/ports"
	"github.com/aretw0/capture/pkg/runid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// resolveRunID prefers the configured id and falls back to the repository HEAD.
func resolveRunID(cfg *config.Config, logger *slog.Logger) (string, error) {
	if cfg.RunID != "" {
		return cfg.RunID, nil
	}
	var opts []runid.Option
	if cfg.RunIDDirty {
		opts = append(opts, runid.WithDirtySuffix())
	}
	id, err := runid.Resolve(cfg.Repo, opts...)
	if err != nil {
		return "", fmt.Errorf("resolve run id: %w", err)
	}
	logger.Debug("Run id resolved", "run_id", id.Value, "source", id.Source)
	return id.Value, nil
}

// createCounter returns the sequence counter and a func releasing it.
func createCounter(ctx context.Context, cfg *config.Config, runID string) (ports.SequenceCounter, func(), error) {
	switch cfg.Counter.Backend {
	case config.BackendRedis:
		r := cfg.Counter.Redis
		c := redisAdapter.New(r.Addr, r.Password, r.DB, runID,
			redisAdapter.WithPrefix(r.Prefix),
			redisAdapter.WithTTL(r.TTL),
		)
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", r.Addr, err)
		}
		return c, func() { c.Close() }, nil
	default:
		return memory.NewCounter(), func() {}, nil
	}
}

// createWriter applies the storage permissions and durability settings.
func createWriter(cfg *config.Config) *file.Writer {
	opts := []file.Option{file.WithPerm(cfg.Storage.DirMode, cfg.Storage.FileMode)}
	if !cfg.Storage.Sync {
		opts = append(opts, file.WithoutSync())
	}
	return file.NewWriter(opts...)
}

// createObservability wires the debug log hooks and, when enabled, the
// Prometheus collectors served on /metrics.
func createObservability(cfg *config.Config, logger *slog.Logger) (domain.CaptureHooks, http.Handler) {
	debug := observability.DebugHooks(logger)
	if !cfg.Metrics {
		return debug, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)
	return observability.Chain(metrics.Hooks(), debug), promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// createLauncher picks chromedp browsers or passive remote sessions.
func createLauncher(cfg *config.Config, mode Mode, out io.Writer, logger *slog.Logger) ports.Launcher {
	if mode == ModeRemote {
		return remote.NewLauncher(func(sessionID, url string) {
			printSystemMessage(out, "Open %s in browser %q", url, sessionID)
		})
	}

	opts := []chromedpAdapter.Option{chromedpAdapter.WithLogger(logger)}
	for _, s := range cfg.Sessions {
		opts = append(opts, chromedpAdapter.WithSession(s.ID, chromedpAdapter.SessionOptions{
			Headless: s.Headless,
			Width:    s.Width,
			Height:   s.Height,
		}))
	}
	if cfg.Browser.ExecPath != "" {
		opts = append(opts, chromedpAdapter.WithExecPath(cfg.Browser.ExecPath))
	}
	if cfg.Browser.RemoteURL != "" {
		opts = append(opts, chromedpAdapter.WithRemoteURL(cfg.Browser.RemoteURL))
	}
	if cfg.Browser.NoSandbox {
		opts = append(opts, chromedpAdapter.WithNoSandbox())
	}
	return chromedpAdapter.NewLauncher(opts...)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// syncWriter serializes writes from the banner, navigation and summary.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
