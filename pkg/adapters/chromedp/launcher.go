// Package chromedp drives Chrome sessions over the DevTools protocol.
package chromedp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/capture/internal/logging"
	"github.com/aretw0/capture/pkg/ports"
	"github.com/chromedp/chromedp"
)

// SessionOptions configure one browser window.
type SessionOptions struct {
	Headless bool
	Width    int
	Height   int
}

// DefaultSessionOptions is used for sessions without explicit options.
var DefaultSessionOptions = SessionOptions{Headless: true, Width: 1280, Height: 1024}

// Launcher starts one Chrome process (or remote tab) per session.
type Launcher struct {
	defaults  SessionOptions
	sessions  map[string]SessionOptions
	execPath  string
	remoteURL string
	noSandbox bool
	logger    *slog.Logger
}

// Option configures the Launcher.
type Option func(*Launcher)

// WithDefaults sets the options of sessions without an explicit entry.
func WithDefaults(o SessionOptions) Option {
	return func(l *Launcher) {
		l.defaults = o
	}
}

// WithSession sets the options of one session.
func WithSession(id string, o SessionOptions) Option {
	return func(l *Launcher) {
		l.sessions[id] = o
	}
}

// WithExecPath selects the browser binary.
func WithExecPath(path string) Option {
	return func(l *Launcher) {
		l.execPath = path
	}
}

// WithRemoteURL attaches to an already running browser (DevTools websocket URL)
// instead of starting a local process.
func WithRemoteURL(url string) Option {
	return func(l *Launcher) {
		l.remoteURL = url
	}
}

// WithNoSandbox disables the Chrome sandbox (needed in most containers).
func WithNoSandbox() Option {
	return func(l *Launcher) {
		l.noSandbox = true
	}
}

// WithLogger sets the logger receiving browser diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// NewLauncher creates a Launcher.
func NewLauncher(opts ...Option) *Launcher {
	l := &Launcher{
		defaults: DefaultSessionOptions,
		sessions: make(map[string]SessionOptions),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logging.NewNop()
	}
	return l
}

var _ ports.Launcher = (*Launcher)(nil)

// Launch implements ports.Launcher. The browser outlives ctx; it is released by Session.Close.
func (l *Launcher) Launch(ctx context.Context, id string) (ports.Session, error) {
	o, ok := l.sessions[id]
	if !ok {
		o = l.defaults
	}
	logger := l.logger.With("session_id", id)

	parent := context.WithoutCancel(ctx)
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if l.remoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, l.remoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, l.allocatorOptions(o)...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn(fmt.Sprintf(format, args...))
		}),
	)

	// The first Run allocates the browser and binds it to browserCtx, so it
	// must not go through a cancellable child.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	if l.remoteURL != "" && o.Width > 0 && o.Height > 0 {
		if err := run(ctx, browserCtx, chromedp.EmulateViewport(int64(o.Width), int64(o.Height))); err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}

	return &Session{
		id:            id,
		ctx:           browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

func (l *Launcher) allocatorOptions(o SessionOptions) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-gpu", o.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("window-position", "0,0"),
	)
	if o.Width > 0 && o.Height > 0 {
		opts = append(opts, chromedp.WindowSize(o.Width, o.Height))
	} else {
		opts = append(opts, chromedp.Flag("start-maximized", true))
	}
	if l.noSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.execPath != "" {
		opts = append(opts, chromedp.ExecPath(l.execPath))
	}
	return opts
}

// Session is one Chrome tab.
type Session struct {
	id            string
	ctx           context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

var _ ports.Session = (*Session)(nil)

// Navigate loads url in the tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return run(ctx, s.ctx, chromedp.Navigate(url))
}

// Capture returns a full-page PNG of the current document.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := run(ctx, s.ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close shuts the browser down. Subsequent calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.browserCancel()
		s.allocCancel()
	})
	return s.closeErr
}

// run executes actions on the browser context while honouring the caller's cancellation.
func run(caller, browser context.Context, actions ...chromedp.Action) error {
	ctx, cancel := context.WithCancel(browser)
	defer cancel()
	stop := context.AfterFunc(caller, cancel)
	defer stop()

	return chromedp.Run(ctx, actions...)
}
