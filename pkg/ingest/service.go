// Package ingest implements the capture ingestion service: it accepts
// artifacts from registered sessions, deduplicates them, persists the
// accepted ones and detects when every session of the run has completed.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/capture/internal/logging"
	"github.com/aretw0/capture/pkg/adapters/file"
	"github.com/aretw0/capture/pkg/alloc"
	"github.com/aretw0/capture/pkg/dedup"
	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/keylock"
	"github.com/aretw0/capture/pkg/ports"
	"github.com/aretw0/capture/pkg/registry"
)

// Service coordinates submissions and session completion for one run.
type Service struct {
	run      domain.RunContext
	registry *registry.Registry
	dedup    *dedup.Deduplicator
	locks    *keylock.Locker
	alloc    *alloc.Allocator
	writer   *file.Writer
	hooks    domain.CaptureHooks
	logger   *slog.Logger

	mu         sync.Mutex
	configured []string
	stats      map[string]*domain.SessionStats
	pending    int
	teardown   sync.WaitGroup

	done     chan struct{}
	doneOnce sync.Once
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithCaptureHooks registers observability hooks.
func WithCaptureHooks(hooks domain.CaptureHooks) Option {
	return func(s *Service) {
		s.hooks = hooks
	}
}

// WithWriter replaces the default artifact writer.
func WithWriter(w *file.Writer) Option {
	return func(s *Service) {
		s.writer = w
	}
}

// New creates a Service for run, numbering artifacts with counter.
func New(run domain.RunContext, counter ports.SequenceCounter, opts ...Option) (*Service, error) {
	if err := alloc.ValidateSegment(run.RunID); err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	if run.OutputRoot == "" {
		return nil, fmt.Errorf("output root is required")
	}
	if counter == nil {
		return nil, fmt.Errorf("sequence counter is required")
	}

	s := &Service{
		run:      run,
		registry: registry.NewRegistry(),
		dedup:    dedup.New(),
		locks:    keylock.New(),
		alloc:    alloc.New(run.OutputRoot, counter),
		stats:    make(map[string]*domain.SessionStats),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.writer == nil {
		s.writer = file.NewWriter()
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.logger = s.logger.With("run_id", run.RunID)
	return s, nil
}

// Run returns the run identity.
func (s *Service) Run() domain.RunContext {
	return s.run
}

// Register makes a session eligible for submissions.
func (s *Service) Register(id string, session ports.Session) error {
	if err := alloc.ValidateSegment(id); err != nil {
		return fmt.Errorf("session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.Register(id, session); err != nil {
		return err
	}
	s.configured = append(s.configured, id)
	s.stats[id] = &domain.SessionStats{State: domain.SessionActive}
	s.logger.Debug("Session registered", "session_id", id)
	return nil
}

// Lookup returns the handle of an active session.
func (s *Service) Lookup(id string) (ports.Session, error) {
	return s.registry.Lookup(id)
}

// Submit ingests one artifact. An empty data slice asks the session itself for
// a capture. Duplicates are reported through the receipt, not as an error.
//
// Submissions of one session are serialized with each other and with the
// teardown of that session; different sessions never wait on each other.
func (s *Service) Submit(ctx context.Context, sessionID, group string, data []byte) (receipt domain.Receipt, err error) {
	s.locks.WithLock(sessionID, func() {
		receipt, err = s.submit(ctx, sessionID, group, data)
	})
	return receipt, err
}

func (s *Service) submit(ctx context.Context, sessionID, group string, data []byte) (domain.Receipt, error) {
	start := time.Now()
	receipt := domain.Receipt{SessionID: sessionID, Group: group}

	session, err := s.registry.Lookup(sessionID)
	if err != nil {
		s.logger.Warn("Submission for unknown session", "session_id", sessionID, "group", group)
		return receipt, err
	}

	if len(data) == 0 {
		data, err = session.Capture(ctx)
		if err != nil {
			return s.fail(ctx, receipt, start, fmt.Errorf("capture session %s: %w", sessionID, err))
		}
		if len(data) == 0 {
			return s.fail(ctx, receipt, start, domain.ErrEmptyArtifact)
		}
	}
	receipt.Bytes = len(data)

	prev := s.dedup.Last(sessionID)
	if s.dedup.CheckAndUpdate(sessionID, data) == domain.VerdictDuplicate {
		receipt.Outcome = domain.OutcomeDuplicate
		s.record(sessionID, func(st *domain.SessionStats) { st.Duplicates++ })
		s.logger.Debug("Duplicate artifact skipped", "session_id", sessionID, "group", group)
		if s.hooks.OnArtifactDuplicate != nil {
			s.hooks.OnArtifactDuplicate(ctx, s.artifactEvent(domain.EventArtifactDuplicate, receipt, start, nil))
		}
		return receipt, nil
	}

	dest, err := s.persist(ctx, sessionID, group, data)
	receipt.Destination = dest
	if err != nil {
		// The artifact never reached the disk, so a resubmission must not be
		// taken for a duplicate of it.
		s.dedup.Restore(sessionID, prev)
		return s.fail(ctx, receipt, start, fmt.Errorf("%w: %w", domain.ErrIO, err))
	}

	receipt.Outcome = domain.OutcomeStored
	s.record(sessionID, func(st *domain.SessionStats) { st.Stored++ })
	s.logger.Debug("Artifact stored", "session_id", sessionID, "path", dest.Path(), "bytes", receipt.Bytes)
	if s.hooks.OnArtifactStored != nil {
		s.hooks.OnArtifactStored(ctx, s.artifactEvent(domain.EventArtifactStored, receipt, start, nil))
	}
	return receipt, nil
}

func (s *Service) persist(ctx context.Context, sessionID, group string, data []byte) (domain.Destination, error) {
	dest, err := s.alloc.Allocate(ctx, s.run.RunID, sessionID, group)
	if err != nil {
		return dest, err
	}
	if err := s.writer.EnsureDir(dest.Dir); err != nil {
		return dest, err
	}
	return dest, s.writer.Write(dest.Path(), data)
}

func (s *Service) fail(ctx context.Context, receipt domain.Receipt, start time.Time, err error) (domain.Receipt, error) {
	receipt.Outcome = domain.OutcomeFailed
	s.record(receipt.SessionID, func(st *domain.SessionStats) { st.Failures++ })
	s.logger.Error("Artifact failed", "session_id", receipt.SessionID, "group", receipt.Group, "err", err)
	if s.hooks.OnArtifactFailed != nil {
		s.hooks.OnArtifactFailed(ctx, s.artifactEvent(domain.EventArtifactFailed, receipt, start, err))
	}
	return receipt, err
}

// Complete marks a session finished. The session stops accepting submissions
// before Complete returns; closing its handle happens in the background.
func (s *Service) Complete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	session, _, err := s.registry.Detach(sessionID)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("Completion for unknown session", "session_id", sessionID)
		return err
	}
	s.pending++
	s.teardown.Add(1)
	if st, ok := s.stats[sessionID]; ok {
		st.State = domain.SessionClosing
	}
	s.mu.Unlock()

	go s.closeSession(context.WithoutCancel(ctx), sessionID, session)
	return nil
}

func (s *Service) closeSession(ctx context.Context, id string, session ports.Session) {
	defer s.teardown.Done()

	// Waits for a submission that looked the session up before it was detached.
	var closeErr error
	s.locks.WithLock(id, func() {
		if session != nil {
			closeErr = session.Close()
		}
		s.dedup.Forget(id)
	})
	if closeErr != nil {
		s.logger.Warn("Session close failed", "session_id", id, "err", closeErr)
	}

	s.mu.Lock()
	if st, ok := s.stats[id]; ok {
		st.State = domain.SessionClosed
	}
	s.pending--
	last := s.pending == 0 && s.registry.Count() == 0
	s.mu.Unlock()

	s.logger.Info("Session closed", "session_id", id)
	if s.hooks.OnSessionClosed != nil {
		s.hooks.OnSessionClosed(ctx, &domain.SessionEvent{
			EventBase: s.eventBase(domain.EventSessionClosed),
			SessionID: id,
			Err:       closeErr,
		})
	}

	if last {
		s.finish(ctx)
	}
}

func (s *Service) finish(ctx context.Context) {
	s.doneOnce.Do(func() {
		close(s.done)
		s.logger.Info("Run complete")
		if s.hooks.OnRunComplete != nil {
			base := s.eventBase(domain.EventRunComplete)
			s.hooks.OnRunComplete(ctx, &base)
		}
	})
}

// Done is closed once every registered session has completed and been torn down.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until all background teardowns have finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.teardown.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseAll force-closes the sessions that never completed.
func (s *Service) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	ids := s.registry.IDs()
	for _, id := range ids {
		if st, ok := s.stats[id]; ok {
			st.State = domain.SessionClosed
		}
	}
	s.mu.Unlock()

	err := s.registry.CloseAll(ctx)
	for _, id := range ids {
		s.locks.WithLock(id, func() { s.dedup.Forget(id) })
	}
	if err != nil {
		return fmt.Errorf("close remaining sessions: %w", err)
	}
	return nil
}

// Status returns a snapshot of the run.
func (s *Service) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	configured := append([]string(nil), s.configured...)
	sort.Strings(configured)

	sessions := make(map[string]domain.SessionStats, len(s.stats))
	for id, st := range s.stats {
		sessions[id] = *st
	}

	complete := false
	select {
	case <-s.done:
		complete = true
	default:
	}

	return domain.Status{
		RunID:      s.run.RunID,
		OutputRoot: s.run.OutputRoot,
		Configured: configured,
		Active:     s.registry.IDs(),
		Complete:   complete,
		Sessions:   sessions,
	}
}

func (s *Service) record(id string, fn func(*domain.SessionStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stats[id]; ok {
		fn(st)
	}
}

func (s *Service) eventBase(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: time.Now(),
		Type:      t,
		RunID:     s.run.RunID,
	}
}

func (s *Service) artifactEvent(t domain.EventType, r domain.Receipt, start time.Time, err error) *domain.ArtifactEvent {
	ev := &domain.ArtifactEvent{
		EventBase: s.eventBase(t),
		SessionID: r.SessionID,
		Group:     r.Group,
		Bytes:     r.Bytes,
		Duration:  time.Since(start),
		Err:       err,
	}
	if r.Outcome == domain.OutcomeStored {
		ev.Path = r.Destination.Path()
	}
	return ev
}
