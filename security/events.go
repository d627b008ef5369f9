package security

// Event type constants for security audit logging.
const (
	// Session events

	// EventHandshakeRejected is logged when a WebSocket client fails the auth handshake
	EventHandshakeRejected = "handshake_rejected"

	// EventSessionRegistered is logged when an authenticated session is bound to its state
	EventSessionRegistered = "session_registered"

	// EventSessionReplaced is logged when a registration overwrites a live session for the same state
	EventSessionReplaced = "session_replaced"

	// Correlation events

	// EventCodeDelivered is logged when a redirect's code is pushed to its session
	EventCodeDelivered = "code_delivered"

	// EventCodeStored is logged when a redirect's code is stored for retrieval (pull mode)
	EventCodeStored = "code_stored"

	// EventRedirectUnregistered is logged when a redirect arrives for a state with no session
	EventRedirectUnregistered = "redirect_unregistered"

	// EventResultRetrieved is logged when a stored code is handed to a client
	EventResultRetrieved = "result_retrieved"

	// Security violation events

	// EventRetrievalRejected is logged when a retrieval has a missing or wrong API key
	EventRetrievalRejected = "retrieval_rejected"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
