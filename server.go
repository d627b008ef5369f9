package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-relay/instrumentation"
	"github.com/giantswarm/oauth-relay/internal/util"
	"github.com/giantswarm/oauth-relay/security"
	"github.com/giantswarm/oauth-relay/socket"
	"github.com/giantswarm/oauth-relay/storage"
)

// Server implements the relay logic independent of HTTP routing.
// It joins authenticated WebSocket sessions to OAuth redirects by state.
type Server struct {
	sessions storage.SessionStore
	results  storage.ResultStore
	keys     socket.KeyChecker
	logger   *slog.Logger
	tracer   trace.Tracer

	Config          *Config
	Auditor         *security.Auditor
	RateLimiter     *security.RateLimiter
	Instrumentation *instrumentation.Instrumentation

	// sessions started through ServeSession; closed is set by Shutdown
	baseCtx    context.Context
	cancelBase context.CancelFunc
	mu         sync.Mutex
	closed     bool
	wg         sync.WaitGroup
	live       atomic.Int64
}

// NewServer creates a relay server. Push mode needs a session store, pull
// mode a result store; the other may be nil.
func NewServer(
	sessions storage.SessionStore,
	results storage.ResultStore,
	keys socket.KeyChecker,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if keys == nil {
		return nil, fmt.Errorf("key set is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch config.Mode {
	case ModePush:
		if sessions == nil {
			return nil, fmt.Errorf("session store is required in push mode")
		}
	case ModePull:
		if results == nil {
			return nil, fmt.Errorf("result store is required in pull mode")
		}
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	return &Server{
		sessions:   sessions,
		results:    results,
		keys:       keys,
		logger:     logger,
		tracer:     noop.NewTracerProvider().Tracer(""),
		Config:     config,
		Auditor:    security.NewAuditor(logger, config.EnableAuditLogging),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}, nil
}

// SetInstrumentation enables metrics and tracing for the server and its auditor
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
	if s.Auditor != nil {
		s.Auditor.SetInstrumentation(inst)
	}
}

// SetAuditor replaces the security auditor
func (s *Server) SetAuditor(auditor *security.Auditor) {
	s.Auditor = auditor
	if auditor != nil && s.Instrumentation != nil {
		auditor.SetInstrumentation(s.Instrumentation)
	}
}

// SetRateLimiter sets the per-IP rate limiter used by the HTTP handlers
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// HandleRedirect correlates an OAuth redirect with its waiting client.
//
// In push mode the session registered under state is taken and receives
// the code as a CodeMessage text frame. A failed write is logged but still
// reported as delivered: the session is consumed either way. A state with
// no session yields ErrStateNotRegistered and consumes nothing.
//
// In pull mode the code is stored under state for RetrieveResult.
func (s *Server) HandleRedirect(ctx context.Context, state, code string) (RedirectOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "relay.redirect")
	defer span.End()

	instrumentation.AddRelayAttributes(span, string(s.Config.Mode), util.LogState(state))
	instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrCodePresent, code != ""))

	if state == "" {
		instrumentation.SetSpanError(span, "missing state")
		return "", ErrMissingState
	}
	if code == "" {
		instrumentation.SetSpanError(span, "missing code")
		return "", ErrMissingCode
	}

	clientIP := clientIPFromContext(ctx)

	if s.Config.Mode == ModePull {
		if err := s.results.SaveResult(ctx, state, code); err != nil {
			instrumentation.RecordError(span, err)
			return "", fmt.Errorf("failed to store result: %w", err)
		}

		s.logger.Info("Stored code for retrieval", "state", util.LogState(state))
		s.recordRedirect(ctx, string(OutcomeStored))
		if s.Auditor != nil {
			s.Auditor.LogCodeStored(state, clientIP)
		}
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrOutcome, string(OutcomeStored)))
		instrumentation.SetSpanSuccess(span)
		return OutcomeStored, nil
	}

	sink, err := s.sessions.TakeSession(ctx, state)
	if errors.Is(err, storage.ErrSessionNotFound) {
		s.logger.Info("Redirect for unregistered state", "state", util.LogState(state))
		s.recordRedirect(ctx, "unregistered")
		if s.Auditor != nil {
			s.Auditor.LogRedirectUnregistered(state, clientIP)
		}
		instrumentation.SetSpanError(span, "state not registered")
		return "", ErrStateNotRegistered
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", fmt.Errorf("failed to take session: %w", err)
	}

	payload, err := json.Marshal(CodeMessage{Code: code, State: state})
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", fmt.Errorf("failed to encode code message: %w", err)
	}

	// the browser may go away; the session is already consumed
	writeFailed := false
	if err := sink.Deliver(context.WithoutCancel(ctx), payload); err != nil {
		writeFailed = true
		s.logger.Warn("Failed to deliver code to session",
			"state", util.LogState(state),
			"error", err)
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordDeliveryFailed(ctx)
		}
		instrumentation.RecordError(span, err)
	} else {
		s.logger.Info("Delivered code to session", "state", util.LogState(state))
	}

	s.recordRedirect(ctx, string(OutcomeDelivered))
	if s.Auditor != nil {
		s.Auditor.LogCodeDelivered(state, clientIP, writeFailed)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrOutcome, string(OutcomeDelivered)))
	if !writeFailed {
		instrumentation.SetSpanSuccess(span)
	}
	return OutcomeDelivered, nil
}

// RetrieveResult hands out the code stored for state, at most once.
// found is false when nothing is stored, including after an earlier
// retrieval. apiKey must be in the accepted key set.
func (s *Server) RetrieveResult(ctx context.Context, apiKey, state string) (code string, found bool, err error) {
	ctx, span := s.tracer.Start(ctx, "relay.retrieve")
	defer span.End()

	instrumentation.AddRelayAttributes(span, string(s.Config.Mode), util.LogState(state))
	clientIP := clientIPFromContext(ctx)

	if apiKey == "" {
		s.rejectRetrieval(ctx, span, state, clientIP, "missing_api_key")
		return "", false, ErrMissingAPIKey
	}
	if !s.keys.Contains(apiKey) {
		s.rejectRetrieval(ctx, span, state, clientIP, "api_key_mismatch")
		return "", false, ErrAPIKeyMismatch
	}
	if state == "" {
		s.rejectRetrieval(ctx, span, state, clientIP, "missing_state")
		return "", false, ErrMissingState
	}

	if s.results == nil {
		instrumentation.SetSpanError(span, "no result store")
		return "", false, fmt.Errorf("result store not configured")
	}

	code, err = s.results.TakeResult(ctx, state)
	if errors.Is(err, storage.ErrResultNotFound) {
		s.recordRetrieval(ctx, "miss")
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrOutcome, "miss"))
		instrumentation.SetSpanSuccess(span)
		return "", false, nil
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", false, fmt.Errorf("failed to take result: %w", err)
	}

	s.logger.Info("Result retrieved", "state", util.LogState(state))
	s.recordRetrieval(ctx, "hit")
	if s.Auditor != nil {
		s.Auditor.LogResultRetrieved(state, clientIP)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrOutcome, "hit"))
	instrumentation.SetSpanSuccess(span)
	return code, true, nil
}

func (s *Server) rejectRetrieval(ctx context.Context, span trace.Span, state, clientIP, reason string) {
	s.logger.Warn("Retrieval rejected", "reason", reason, "state", util.LogState(state))
	s.recordRetrieval(ctx, "rejected")
	if s.Auditor != nil {
		s.Auditor.LogRetrievalRejected(state, clientIP, reason)
	}
	instrumentation.SetSpanError(span, reason)
}

// ServeSession runs one WebSocket session from handshake to close and
// returns when it has ended. conn is closed on return.
//
// The session authenticates, registers under its state and is kept alive
// until the code is delivered, the client leaves, pings fail or the server
// shuts down. A handshake failure is returned as *socket.HandshakeError.
func (s *Server) ServeSession(ctx context.Context, conn socket.Conn, clientIP string) error {
	defer func() { _ = conn.Close() }()

	if !s.trackSession() {
		_ = conn.CloseWith(socket.CloseServiceRestart, socket.ReasonShuttingDown)
		return ErrShuttingDown
	}
	defer s.untrackSession()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	logger := s.logger
	if requestID := security.GetRequestID(ctx); requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	metricsCtx := context.WithoutCancel(ctx)

	if s.sessions == nil {
		_ = conn.CloseWith(socket.CloseInternalError, "sessions are not served in this mode")
		return fmt.Errorf("session store not configured")
	}

	msg, err := s.authenticate(ctx, conn, clientIP, logger)
	if err != nil {
		return err
	}
	state := msg.State
	logger = logger.With("state", util.LogState(state))

	replaced, err := s.sessions.RegisterSession(ctx, state, conn)
	if err != nil {
		logger.Error("Failed to register session", "error", err)
		if errors.Is(err, storage.ErrEmptyState) {
			_ = conn.CloseWith(socket.ClosePolicyViolation, err.Error())
		} else {
			_ = conn.CloseWith(socket.CloseInternalError, "failed to register session")
		}
		return fmt.Errorf("failed to register session: %w", err)
	}

	if replaced {
		logger.Warn("Session replaced an earlier registration for the same state")
		if s.Auditor != nil {
			s.Auditor.LogSessionReplaced(state, msg.APIKey, clientIP)
		}
	} else {
		logger.Info("Session registered")
		if s.Auditor != nil {
			s.Auditor.LogSessionRegistered(state, msg.APIKey, clientIP)
		}
	}
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordSessionRegistered(metricsCtx, replaced)
	}

	started := time.Now()
	keepalive := &socket.Keepalive{
		Conn:           conn,
		State:          state,
		Sessions:       s.sessions,
		Interval:       s.Config.PingInterval,
		MaxMissedPings: s.Config.keepaliveMaxMissed(),
		Logger:         logger,
		OnPing: func(err error) {
			if s.Instrumentation != nil {
				s.Instrumentation.Metrics().RecordPing(metricsCtx, err == nil)
			}
		},
	}
	reason := keepalive.Run(ctx)

	lifetime := time.Since(started)
	logger.Info("Session ended", "reason", string(reason), "duration", lifetime)
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordSessionClosed(metricsCtx, string(reason), lifetime.Seconds())
	}

	return nil
}

// authenticate runs the handshake and records its outcome
func (s *Server) authenticate(ctx context.Context, conn socket.Conn, clientIP string, logger *slog.Logger) (*socket.AuthMessage, error) {
	ctx, span := s.tracer.Start(ctx, "relay.handshake")
	defer span.End()

	msg, err := socket.Authenticate(ctx, conn, s.keys, s.Config.AuthTimeout)
	if err == nil {
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordHandshake(ctx, "accepted")
		}
		instrumentation.AddRelayAttributes(span, string(s.Config.Mode), util.LogState(msg.State))
		instrumentation.SetSpanSuccess(span)
		return msg, nil
	}

	kind := "error"
	var hsErr *socket.HandshakeError
	if errors.As(err, &hsErr) {
		kind = string(hsErr.Kind)
		instrumentation.AddCloseAttributes(span, int(hsErr.Code), kind)
		if s.Auditor != nil && hsErr.Kind != socket.KindShutdown {
			s.Auditor.LogHandshakeRejected(clientIP, kind, uint16(hsErr.Code))
		}
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrHandshakeKind, kind))
	instrumentation.RecordError(span, err)

	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordHandshake(context.WithoutCancel(ctx), kind)
	}
	logger.Info("Handshake rejected", "kind", kind, "error", err)
	return nil, err
}

func (s *Server) trackSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	s.live.Add(1)
	return true
}

func (s *Server) untrackSession() {
	s.live.Add(-1)
	s.wg.Done()
}

// LiveSessions returns the number of sessions being served, including those
// still in the handshake
func (s *Server) LiveSessions() int {
	return int(s.live.Load())
}

// Shutdown closes every session with 1001 and waits for them to end or for
// ctx to expire. New sessions are refused afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancelBase()
	if s.RateLimiter != nil {
		s.RateLimiter.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All sessions closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out with %d sessions open: %w", s.LiveSessions(), ctx.Err())
	}
}

func (s *Server) recordRedirect(ctx context.Context, result string) {
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordRedirect(ctx, result)
	}
}

func (s *Server) recordRetrieval(ctx context.Context, result string) {
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordRetrieval(ctx, result)
	}
}

// sessionCount and resultCount feed the health endpoint
func (s *Server) sessionCount() int {
	if s.sessions == nil {
		return 0
	}
	return s.sessions.SessionCount()
}

func (s *Server) resultCount() int {
	if s.results == nil {
		return 0
	}
	return s.results.ResultCount()
}

type clientIPContextKey struct{}

// WithClientIP stores the requesting client's IP for audit events
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey{}).(string); ok {
		return ip
	}
	return ""
}
