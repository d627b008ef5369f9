package relay

import (
	"fmt"
	"net/http"
)

// Error codes carried by RelayError. They are used in logs and metrics; the
// HTTP body only carries the description.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeUnregisteredState  = "unregistered_state"
	ErrorCodeInvalidAPIKey      = "invalid_api_key"
	ErrorCodeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorCodeMethodNotAllowed   = "method_not_allowed"
	ErrorCodeServerError        = "server_error"
	ErrorCodeServiceUnavailable = "service_unavailable"
)

// RelayError is a client-facing request error
type RelayError struct {
	Code        string // machine-readable code (e.g., "unregistered_state")
	Description string // plain-text body returned to the client
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *RelayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewRelayError creates a new relay error
func NewRelayError(code, description string, status int) *RelayError {
	return &RelayError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Predefined request errors. Descriptions are part of the HTTP contract.
var (
	ErrMissingState = NewRelayError(ErrorCodeInvalidRequest, `No "state" parameter`, http.StatusBadRequest)

	ErrMissingCode = NewRelayError(ErrorCodeInvalidRequest, `No "code" parameter`, http.StatusBadRequest)

	// ErrStateNotRegistered is returned when no session waits for the state,
	// including when its code was already delivered once
	ErrStateNotRegistered = NewRelayError(ErrorCodeUnregisteredState, "state parameter not registered", http.StatusBadRequest)

	ErrMissingAPIKey = NewRelayError(ErrorCodeInvalidAPIKey, "No X-Api-Key present", http.StatusBadRequest)

	ErrAPIKeyMismatch = NewRelayError(ErrorCodeInvalidAPIKey, "X-Api-Key doesn't match", http.StatusBadRequest)

	ErrRateLimited = NewRelayError(ErrorCodeRateLimitExceeded, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)

	ErrMethodNotAllowed = NewRelayError(ErrorCodeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed)

	ErrInternal = NewRelayError(ErrorCodeServerError, "Internal server error", http.StatusInternalServerError)

	// ErrShuttingDown is returned for sessions that arrive during Shutdown
	ErrShuttingDown = NewRelayError(ErrorCodeServiceUnavailable, "Server is shutting down", http.StatusServiceUnavailable)
)
