package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-relay/instrumentation"
	"github.com/giantswarm/oauth-relay/security"
	"github.com/giantswarm/oauth-relay/socket"
)

// APIKeyHeader carries the API key on /retrieval
const APIKeyHeader = "X-Api-Key"

// Handler exposes the relay over HTTP
type Handler struct {
	server   *Server
	logger   *slog.Logger
	tracer   trace.Tracer
	upgrader websocket.Upgrader
}

// NewHandler creates a new HTTP handler for server
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return server.Config.originAllowed(r.Header.Get("Origin"))
		},
	}

	if server.Instrumentation != nil {
		h.tracer = server.Instrumentation.Tracer("http")
	}

	return h
}

// RegisterRoutes mounts the relay endpoints on mux. The socket endpoints are
// only served in push mode and the retrieval gate only in pull mode.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/{$}", h.ServeRedirect)
	mux.HandleFunc("/redirect", h.ServeRedirect)
	mux.HandleFunc("/healthz", h.ServeHealth)

	switch h.server.Config.Mode {
	case ModePush:
		mux.HandleFunc("/socket", h.ServeSocket)
		mux.HandleFunc("/ws", h.ServeSocket)
	case ModePull:
		mux.HandleFunc("/retrieval", h.ServeRetrieval)
	}
}

// Routes returns every relay endpoint behind the request ID middleware
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return security.RequestIDMiddleware(mux)
}

// ServeRedirect handles the OAuth provider's browser redirect
// (GET /?state=...&code=... and GET /redirect).
func (h *Handler) ServeRedirect(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "relay.http.redirect")
	defer span.End()

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics("redirect", r.Method, http.StatusMethodNotAllowed, startTime)
		w.Header().Set("Allow", http.MethodGet)
		h.writeError(w, r, ErrMethodNotAllowed)
		return
	}

	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP, "redirect") {
		h.recordHTTPMetrics("redirect", r.Method, http.StatusTooManyRequests, startTime)
		return
	}

	query := r.URL.Query()
	outcome, err := h.server.HandleRedirect(WithClientIP(ctx, clientIP), query.Get("state"), query.Get("code"))
	if err != nil {
		status := h.handleError(w, r, err, "Failed to handle redirect")
		h.recordHTTPMetrics("redirect", r.Method, status, startTime)
		instrumentation.AddHTTPAttributes(span, r.Method, "redirect", status)
		return
	}

	message := MessageDelivered
	if outcome == OutcomeStored {
		message = MessageStored
	}

	h.recordHTTPMetrics("redirect", r.Method, http.StatusOK, startTime)
	instrumentation.AddHTTPAttributes(span, r.Method, "redirect", http.StatusOK)
	h.writeText(w, r, http.StatusOK, message)
}

// ServeRetrieval lets the client fetch a stored code once
// (GET /retrieval?state=... with the X-Api-Key header). The body is the JSON
// string of the code, or null when nothing is stored.
func (h *Handler) ServeRetrieval(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r, "relay.http.retrieval")
	defer span.End()

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics("retrieval", r.Method, http.StatusMethodNotAllowed, startTime)
		w.Header().Set("Allow", http.MethodGet)
		h.writeError(w, r, ErrMethodNotAllowed)
		return
	}

	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP, "retrieval") {
		h.recordHTTPMetrics("retrieval", r.Method, http.StatusTooManyRequests, startTime)
		return
	}

	code, found, err := h.server.RetrieveResult(WithClientIP(ctx, clientIP), r.Header.Get(APIKeyHeader), r.URL.Query().Get("state"))
	if err != nil {
		status := h.handleError(w, r, err, "Failed to retrieve result")
		h.recordHTTPMetrics("retrieval", r.Method, status, startTime)
		instrumentation.AddHTTPAttributes(span, r.Method, "retrieval", status)
		return
	}

	body := []byte("null")
	if found {
		body, _ = json.Marshal(code)
	}

	security.SetSecurityHeaders(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)

	h.recordHTTPMetrics("retrieval", r.Method, http.StatusOK, startTime)
	instrumentation.AddHTTPAttributes(span, r.Method, "retrieval", http.StatusOK)
}

// ServeSocket upgrades to a WebSocket and serves the session until it ends.
// The session outlives the request context; it is bound to the server's
// lifetime instead and keeps the request ID.
func (h *Handler) ServeSocket(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP, "socket") {
		h.recordHTTPMetrics("socket", r.Method, http.StatusTooManyRequests, startTime)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already answered
		h.logger.Debug("WebSocket upgrade failed", "error", err)
		h.recordHTTPMetrics("socket", r.Method, http.StatusBadRequest, startTime)
		return
	}
	h.recordHTTPMetrics("socket", r.Method, http.StatusSwitchingProtocols, startTime)

	cfg := h.server.Config
	conn := socket.NewConn(ws, socket.ConnOptions{
		WriteTimeout:     cfg.WriteTimeout,
		CloseGracePeriod: cfg.CloseGracePeriod,
		MaxMessageBytes:  cfg.MaxAuthMessageBytes,
	})

	ctx := context.WithoutCancel(r.Context())
	if err := h.server.ServeSession(ctx, conn, clientIP); err != nil {
		h.logger.Debug("Session ended with error", "error", err)
	}
}

// ServeHealth reports liveness and registry sizes
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Mode:     h.server.Config.Mode,
		Sessions: h.server.sessionCount(),
		Results:  h.server.resultCount(),
	}

	security.SetSecurityHeaders(w, r)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// startSpan starts a span continuing any trace context the caller sent
func (h *Handler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return h.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
}

// clientIP extracts the client IP using the rate limit proxy settings
func (h *Handler) clientIP(r *http.Request) string {
	rl := h.server.Config.RateLimit
	return security.GetClientIP(r, rl.TrustProxy, rl.TrustedProxyCount)
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, clientIP, endpoint string) bool {
	if h.server.RateLimiter == nil || h.server.RateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", endpoint)
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), endpoint)
	}
	if h.server.Auditor != nil {
		h.server.Auditor.LogRateLimitExceeded(clientIP, endpoint)
	}
	w.Header().Set("Retry-After", "1")
	h.writeError(w, r, ErrRateLimited)
	return true
}

// handleError writes err and returns the status used. Anything that is not
// a RelayError is logged and answered with 500.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, logMsg string) int {
	var relayErr *RelayError
	if !errors.As(err, &relayErr) {
		h.logger.Error(logMsg, "error", err)
		relayErr = ErrInternal
	}
	h.writeError(w, r, relayErr)
	return relayErr.Status
}

// writeError writes a plain-text error response
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err *RelayError) {
	h.writeText(w, r, err.Status, err.Description)
}

func (h *Handler) writeText(w http.ResponseWriter, r *http.Request, status int, body string) {
	security.SetSecurityHeaders(w, r)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// recordHTTPMetrics records HTTP request metrics
func (h *Handler) recordHTTPMetrics(endpoint, method string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}

	duration := time.Since(startTime).Seconds() * 1000
	h.server.Instrumentation.Metrics().RecordHTTPRequest(context.Background(), method, endpoint, status, duration)
}
