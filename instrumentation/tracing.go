package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// SECURITY WARNING: Never put authorization codes or API keys into spans.
// The relay only records metadata: a shortened state prefix, the mode,
// outcomes and close codes. Traces are usually kept longer and read by more
// people than the relay's own logs.
const (
	// Relay attributes
	AttrMode          = "relay.mode"
	AttrStatePrefix   = "relay.state_prefix"
	AttrOutcome       = "relay.outcome"
	AttrCodePresent   = "relay.code_present"
	AttrReplaced      = "relay.session.replaced"
	AttrEndReason     = "relay.session.end_reason"
	AttrHandshakeKind = "relay.handshake.kind"
	AttrCloseCode     = "websocket.close_code"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Security attributes
	AttrRateLimiterType = "security.rate_limiter.type"
	AttrClientIP        = "security.client_ip"
	AttrAuditEventType  = "security.audit.event_type"
	AttrRequestID       = "security.request_id"

	// HTTP attributes (in addition to standard semantic conventions)
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddRelayAttributes adds the relay mode and a shortened state to a span (nil-safe).
// statePrefix must already be shortened; see util.LogState.
func AddRelayAttributes(span trace.Span, mode, statePrefix string) {
	if mode != "" {
		SetSpanAttributes(span, attribute.String(AttrMode, mode))
	}
	if statePrefix != "" {
		SetSpanAttributes(span, attribute.String(AttrStatePrefix, statePrefix))
	}
}

// AddCloseAttributes records the close code a connection was ended with (nil-safe)
func AddCloseAttributes(span trace.Span, closeCode int, reason string) {
	SetSpanAttributes(span,
		attribute.Int(AttrCloseCode, closeCode),
		attribute.String(AttrEndReason, reason),
	)
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddSecurityAttributes adds security-related attributes to a span (nil-safe)
//
// PRIVACY NOTE: Client IP addresses may be considered Personally Identifiable Information (PII).
// Check instrumentation.ShouldLogClientIPs() before calling this.
func AddSecurityAttributes(span trace.Span, clientIP string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
}
