package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/aretw0/capture/internal/logging"
	"github.com/aretw0/capture/pkg/adapters/file"
	httpAdapter "github.com/aretw0/capture/pkg/adapters/http"
	"github.com/aretw0/capture/pkg/adapters/memory"
	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/ingest"
	"github.com/aretw0/capture/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds the graceful HTTP shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// Config describes one capture run.
type Config struct {
	Run      domain.RunContext
	Host     string
	Port     int
	Target   string // Test page URL. Empty means sessions are driven elsewhere.
	Filter   string
	Sessions []string

	// Parallel bounds concurrent session launches (0 = all at once).
	Parallel        int
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// Runner drives a capture run from listener bind to run completion.
type Runner struct {
	cfg      Config
	launcher ports.Launcher
	counter  ports.SequenceCounter
	hooks    domain.CaptureHooks
	metrics  http.Handler
	writer   *file.Writer
	logger   *slog.Logger

	service *ingest.Service
	ready   chan string
}

// Option configures the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithCounter replaces the in-memory sequence counter (e.g. with Redis).
func WithCounter(c ports.SequenceCounter) Option {
	return func(r *Runner) {
		r.counter = c
	}
}

// WithCaptureHooks registers observability hooks on the ingestion service.
func WithCaptureHooks(hooks domain.CaptureHooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithMetrics exposes h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(r *Runner) {
		r.metrics = h
	}
}

// WithWriter replaces the default artifact writer.
func WithWriter(w *file.Writer) Option {
	return func(r *Runner) {
		r.writer = w
	}
}

// New validates cfg and prepares the ingestion service.
func New(cfg Config, launcher ports.Launcher, opts ...Option) (*Runner, error) {
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if len(cfg.Sessions) == 0 {
		return nil, errors.New("at least one session is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	r := &Runner{
		cfg:      cfg,
		launcher: launcher,
		ready:    make(chan string, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	if r.counter == nil {
		r.counter = memory.NewCounter()
	}

	ingestOpts := []ingest.Option{
		ingest.WithLogger(r.logger),
		ingest.WithCaptureHooks(r.hooks),
	}
	if r.writer != nil {
		ingestOpts = append(ingestOpts, ingest.WithWriter(r.writer))
	}
	svc, err := ingest.New(cfg.Run, r.counter, ingestOpts...)
	if err != nil {
		return nil, err
	}
	r.service = svc
	return r, nil
}

// Service exposes the ingestion service (status, completion) of the run.
func (r *Runner) Service() *ingest.Service {
	return r.service
}

// Ready yields the server URL once sessions are launched and pointed at it.
func (r *Runner) Ready() <-chan string {
	return r.ready
}

// Run executes the capture run. It returns when every session completed,
// the server failed, or ctx was cancelled (in which case the error is ctx.Err()).
func (r *Runner) Run(ctx context.Context) (domain.Status, error) {
	addr := net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return r.service.Status(), &domain.ListenError{URL: serverURL(r.cfg.Host, r.cfg.Port), Err: err}
	}
	url := serverURL(r.cfg.Host, ln.Addr().(*net.TCPAddr).Port)
	r.logger.Info("Capture server bound", "url", url)

	if err := r.launch(ctx); err != nil {
		ln.Close()
		r.closeRemaining()
		return r.service.Status(), err
	}

	handler := httpAdapter.NewHandler(r.service,
		httpAdapter.WithLogger(r.logger),
		httpAdapter.WithMaxUploadBytes(r.cfg.MaxUploadBytes),
		httpAdapter.WithMetrics(r.metrics),
	)
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ln)
	}()

	var runErr error
	if err := r.navigate(ctx, url); err != nil {
		runErr = err
	} else {
		select {
		case r.ready <- url:
		default:
		}

		select {
		case <-r.service.Done():
			r.logger.Info("All sessions completed")
		case err := <-serverErrors:
			runErr = fmt.Errorf("capture server stopped: %w", err)
		case <-ctx.Done():
			r.logger.Info("Run interrupted", "reason", ctx.Err())
			runErr = ctx.Err()
		}
	}

	r.shutdown(srv)
	return r.service.Status(), runErr
}

func (r *Runner) launch(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	if r.cfg.Parallel > 0 {
		g.SetLimit(r.cfg.Parallel)
	}

	for _, id := range r.cfg.Sessions {
		g.Go(func() error {
			session, err := r.launcher.Launch(gCtx, id)
			if err != nil {
				return fmt.Errorf("launch session %s: %w", id, err)
			}
			if err := r.service.Register(id, session); err != nil {
				session.Close()
				return err
			}
			r.logger.Debug("Session launched", "session_id", id)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) navigate(ctx context.Context, server string) error {
	if r.cfg.Target == "" {
		r.logger.Info("No target page configured, waiting for remote sessions")
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, id := range r.cfg.Sessions {
		g.Go(func() error {
			target, err := NavigationURL(r.cfg.Target, server, id, r.cfg.Filter)
			if err != nil {
				return err
			}
			session, err := r.service.Lookup(id)
			if err != nil {
				// Already completed.
				return nil
			}
			r.logger.Debug("Navigating session", "session_id", id, "url", target)
			if err := session.Navigate(gCtx, target); err != nil {
				return fmt.Errorf("navigate session %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		r.logger.Warn("Graceful shutdown did not complete", "timeout", r.cfg.ShutdownTimeout, "err", err)
		if err := srv.Close(); err != nil {
			r.logger.Error("Error killing server", "err", err)
		}
	}
	if err := r.service.Wait(ctx); err != nil {
		r.logger.Warn("Session teardown did not finish", "err", err)
	}
	r.closeRemaining()
}

func (r *Runner) closeRemaining() {
	if err := r.service.CloseAll(context.Background()); err != nil {
		r.logger.Warn("Failed to close sessions", "err", err)
	}
}

func serverURL(host string, port int) string {
	return "http://" + net.JoinHostPort(displayHost(host), strconv.Itoa(port)) + "/"
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "localhost"
	}
	return host
}
