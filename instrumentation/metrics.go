package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the relay
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Session Metrics
	HandshakeTotal     metric.Int64Counter
	SessionRegistered  metric.Int64Counter
	SessionClosed      metric.Int64Counter
	KeepalivePings     metric.Int64Counter
	SessionsActive     metric.Int64ObservableGauge
	ResultsPending     metric.Int64ObservableGauge
	SessionDurationSec metric.Float64Histogram

	// Correlation Metrics
	RedirectTotal  metric.Int64Counter
	DeliveryFailed metric.Int64Counter
	RetrievalTotal metric.Int64Counter

	// Security Metrics
	RateLimitExceeded metric.Int64Counter
	AuditEventsTotal  metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	socketMeter := inst.Meter("socket")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"relay.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"relay.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.HandshakeTotal, err = socketMeter.Int64Counter(
		"relay.handshake.total",
		metric.WithDescription("WebSocket auth handshakes by result"),
		metric.WithUnit("{handshake}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake.total counter: %w", err)
	}

	m.SessionRegistered, err = socketMeter.Int64Counter(
		"relay.session.registered",
		metric.WithDescription("Sessions registered under a state token"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.registered counter: %w", err)
	}

	m.SessionClosed, err = socketMeter.Int64Counter(
		"relay.session.closed",
		metric.WithDescription("Registered sessions ended, by reason"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.closed counter: %w", err)
	}

	m.KeepalivePings, err = socketMeter.Int64Counter(
		"relay.keepalive.pings",
		metric.WithDescription("Keepalive pings sent, by result"),
		metric.WithUnit("{ping}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create keepalive.pings counter: %w", err)
	}

	m.SessionDurationSec, err = socketMeter.Float64Histogram(
		"relay.session.duration",
		metric.WithDescription("Lifetime of registered sessions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.duration histogram: %w", err)
	}

	m.SessionsActive, err = storageMeter.Int64ObservableGauge(
		"relay.sessions.active",
		metric.WithDescription("Sessions currently registered"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions.active gauge: %w", err)
	}

	m.ResultsPending, err = storageMeter.Int64ObservableGauge(
		"relay.results.pending",
		metric.WithDescription("Stored results awaiting retrieval"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results.pending gauge: %w", err)
	}

	m.RedirectTotal, err = serverMeter.Int64Counter(
		"relay.redirect.total",
		metric.WithDescription("OAuth redirects processed, by result"),
		metric.WithUnit("{redirect}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redirect.total counter: %w", err)
	}

	m.DeliveryFailed, err = serverMeter.Int64Counter(
		"relay.delivery.failed",
		metric.WithDescription("Codes whose WebSocket delivery failed after the session was consumed"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery.failed counter: %w", err)
	}

	m.RetrievalTotal, err = serverMeter.Int64Counter(
		"relay.retrieval.total",
		metric.WithDescription("Result retrievals, by result"),
		metric.WithUnit("{retrieval}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval.total counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"relay.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"relay.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordHandshake records the outcome of a WebSocket auth handshake.
// result is "accepted" or a rejection kind such as "timeout" or "unauthorized".
func (m *Metrics) RecordHandshake(ctx context.Context, result string) {
	m.HandshakeTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordSessionRegistered records a registration; replaced marks last-writer-wins overwrites
func (m *Metrics) RecordSessionRegistered(ctx context.Context, replaced bool) {
	m.SessionRegistered.Add(ctx, 1, metric.WithAttributes(attribute.Bool("replaced", replaced)))
}

// RecordSessionClosed records the end of a registered session
func (m *Metrics) RecordSessionClosed(ctx context.Context, reason string, durationSec float64) {
	m.SessionClosed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.SessionDurationSec.Record(ctx, durationSec, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordPing records a keepalive ping attempt
func (m *Metrics) RecordPing(ctx context.Context, success bool) {
	result := "sent"
	if !success {
		result = "failed"
	}
	m.KeepalivePings.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRedirect records a processed redirect.
// result is one of "delivered", "stored" or "unregistered".
func (m *Metrics) RecordRedirect(ctx context.Context, result string) {
	m.RedirectTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordDeliveryFailed records a code that could not be written to its socket
func (m *Metrics) RecordDeliveryFailed(ctx context.Context) {
	m.DeliveryFailed.Add(ctx, 1)
}

// RecordRetrieval records a retrieval attempt.
// result is one of "hit", "miss" or "rejected".
func (m *Metrics) RecordRetrieval(ctx context.Context, result string) {
	m.RetrievalTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuditEvent records an emitted audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("operation", operation)))
}
