package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/giantswarm/oauth-relay/instrumentation"
)

// Auditor handles security event logging with PII protection. State tokens
// and API keys are only ever written as truncated SHA-256 digests.
type Auditor struct {
	logger          *slog.Logger
	enabled         bool
	instrumentation *instrumentation.Instrumentation
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// SetInstrumentation counts every emitted event in relay.audit.events.total
func (a *Auditor) SetInstrumentation(inst *instrumentation.Instrumentation) {
	a.instrumentation = inst
}

// Event represents a security audit event
type Event struct {
	Type      string
	State     string
	APIKey    string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed state and key
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	attrs := []any{
		"event_type", event.Type,
		"state_hash", hashForLogging(event.State),
		"ip_address", event.IPAddress,
		"timestamp", event.Timestamp,
	}
	if event.APIKey != "" {
		attrs = append(attrs, "api_key_hash", hashForLogging(event.APIKey))
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}
	a.logger.Info("security_audit", attrs...)

	if a.instrumentation != nil {
		a.instrumentation.Metrics().RecordAuditEvent(context.Background(), event.Type)
	}
}

// LogHandshakeRejected logs a WebSocket connection that failed authentication
func (a *Auditor) LogHandshakeRejected(ipAddress, kind string, closeCode uint16) {
	a.LogEvent(Event{
		Type:      EventHandshakeRejected,
		IPAddress: ipAddress,
		Details: map[string]any{
			"kind":       kind,
			"close_code": closeCode,
		},
	})
}

// LogSessionRegistered logs a session bound to its state
func (a *Auditor) LogSessionRegistered(state, apiKey, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventSessionRegistered,
		State:     state,
		APIKey:    apiKey,
		IPAddress: ipAddress,
	})
}

// LogSessionReplaced logs a registration that overwrote a live session
func (a *Auditor) LogSessionReplaced(state, apiKey, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventSessionReplaced,
		State:     state,
		APIKey:    apiKey,
		IPAddress: ipAddress,
	})
}

// LogCodeDelivered logs a code pushed to its session
func (a *Auditor) LogCodeDelivered(state, ipAddress string, writeFailed bool) {
	a.LogEvent(Event{
		Type:      EventCodeDelivered,
		State:     state,
		IPAddress: ipAddress,
		Details: map[string]any{
			"write_failed": writeFailed,
		},
	})
}

// LogCodeStored logs a code stored for later retrieval
func (a *Auditor) LogCodeStored(state, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventCodeStored,
		State:     state,
		IPAddress: ipAddress,
	})
}

// LogRedirectUnregistered logs a redirect whose state had no session
func (a *Auditor) LogRedirectUnregistered(state, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventRedirectUnregistered,
		State:     state,
		IPAddress: ipAddress,
	})
}

// LogRetrievalRejected logs a retrieval with a missing or wrong API key
func (a *Auditor) LogRetrievalRejected(state, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventRetrievalRejected,
		State:     state,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogResultRetrieved logs a stored code handed out
func (a *Auditor) LogResultRetrieved(state, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventResultRetrieved,
		State:     state,
		IPAddress: ipAddress,
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
