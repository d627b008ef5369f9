package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-relay/instrumentation"
	"github.com/giantswarm/oauth-relay/internal/util"
	"github.com/giantswarm/oauth-relay/storage"
)

// storageType is reported on every storage span
const storageType = "memory"

// result is a code awaiting retrieval in pull mode
type result struct {
	code     string
	storedAt time.Time
}

// Store is an in-memory implementation of SessionStore and ResultStore.
type Store struct {
	mu sync.RWMutex

	sessions map[string]storage.Sink
	results  map[string]result

	// resultTTL bounds how long an unretrieved code is kept; 0 keeps it forever
	resultTTL time.Duration

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	sessionsCountAtomic atomic.Int64
	resultsCountAtomic  atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.SessionStore = (*Store)(nil)
	_ storage.ResultStore  = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		sessions:        make(map[string]storage.Sink),
		results:         make(map[string]result),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetResultTTL sets how long a stored result survives without being
// retrieved. Zero or negative keeps results until they are taken.
func (s *Store) SetResultTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl < 0 {
		ttl = 0
	}
	s.resultTTL = ttl
	if ttl > 0 {
		s.logger.Info("Set result TTL", "ttl", ttl)
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	// Initialize atomic counters with current counts
	s.sessionsCountAtomic.Store(int64(len(s.sessions)))
	s.resultsCountAtomic.Store(int64(len(s.results)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.sessionsCountAtomic.Load() },
			func() int64 { return s.resultsCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// ============================================================
// SessionStore Implementation
// ============================================================

// RegisterSession binds state to sink, replacing any earlier session
func (s *Store) RegisterSession(ctx context.Context, state string, sink storage.Sink) (bool, error) {
	ctx, span := s.startStorageSpan(ctx, "register_session")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "register_session", err, startTime)
	}()

	if state == "" {
		err = storage.ErrEmptyState
		return false, err
	}
	if sink == nil {
		err = fmt.Errorf("sink cannot be nil")
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, replaced := s.sessions[state]
	s.sessions[state] = sink
	if !replaced {
		s.sessionsCountAtomic.Add(1)
	}

	s.logger.Debug("Registered session", "state", util.LogState(state), "replaced", replaced)
	return replaced, nil
}

// TakeSession atomically removes and returns the session for state
func (s *Store) TakeSession(ctx context.Context, state string) (storage.Sink, error) {
	ctx, span := s.startStorageSpan(ctx, "take_session")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "take_session", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	sink, ok := s.sessions[state]
	if !ok {
		err = storage.ErrSessionNotFound
		return nil, err
	}
	delete(s.sessions, state)
	s.sessionsCountAtomic.Add(-1)

	return sink, nil
}

// GetSession returns the session for state without removing it
func (s *Store) GetSession(ctx context.Context, state string) (storage.Sink, error) {
	ctx, span := s.startStorageSpan(ctx, "get_session")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_session", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	sink, ok := s.sessions[state]
	if !ok {
		err = storage.ErrSessionNotFound
		return nil, err
	}
	return sink, nil
}

// ReleaseSession removes the entry for state if it still maps to sink.
// A session replaced by a newer registration never evicts its successor.
func (s *Store) ReleaseSession(ctx context.Context, state string, sink storage.Sink) bool {
	ctx, span := s.startStorageSpan(ctx, "release_session")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "release_session", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[state]
	if !ok || current != sink {
		return false
	}
	delete(s.sessions, state)
	s.sessionsCountAtomic.Add(-1)

	return true
}

// SessionCount returns the number of registered sessions
func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ============================================================
// ResultStore Implementation
// ============================================================

// SaveResult stores code under state, overwriting any earlier value
func (s *Store) SaveResult(ctx context.Context, state, code string) error {
	ctx, span := s.startStorageSpan(ctx, "save_result")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_result", err, startTime)
	}()

	if state == "" {
		err = storage.ErrEmptyState
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.results[state]; !existed {
		s.resultsCountAtomic.Add(1)
	}
	s.results[state] = result{code: code, storedAt: time.Now()}

	return nil
}

// TakeResult atomically removes and returns the code for state
func (s *Store) TakeResult(ctx context.Context, state string) (string, error) {
	ctx, span := s.startStorageSpan(ctx, "take_result")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "take_result", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[state]
	if !ok {
		err = storage.ErrResultNotFound
		return "", err
	}
	delete(s.results, state)
	s.resultsCountAtomic.Add(-1)

	if s.expired(r, time.Now()) {
		err = storage.ErrResultNotFound
		return "", err
	}

	return r.code, nil
}

// ResultCount returns the number of stored results, including expired ones
// the cleanup loop has not reached yet
func (s *Store) ResultCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// expired must be called with s.mu held
func (s *Store) expired(r result, now time.Time) bool {
	return s.resultTTL > 0 && now.Sub(r.storedAt) > s.resultTTL
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup drops results older than the result TTL. Sessions are left alone:
// the keepalive loop owns their removal.
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resultTTL <= 0 {
		return
	}

	now := time.Now()
	cleaned := 0
	for state, r := range s.results {
		if s.expired(r, now) {
			delete(s.results, state)
			s.resultsCountAtomic.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired results", "count", cleaned)
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
// Returns a context with the span attached and the span itself
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		// non-recording span; ending it must not end the caller's span
		return ctx, trace.SpanFromContext(context.Background())
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, storageType),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	result := "success"
	switch {
	case errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, storage.ErrResultNotFound):
		result = "not_found"
		span.SetStatus(codes.Ok, "")
	case err != nil:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
