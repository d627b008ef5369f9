package storage

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotFound is returned when no session is registered for a state
	ErrSessionNotFound = errors.New("session not found")

	// ErrResultNotFound is returned when no result is stored for a state
	ErrResultNotFound = errors.New("result not found")

	// ErrEmptyState is returned when an operation is called with an empty state
	ErrEmptyState = errors.New("state cannot be empty")
)

// Sink is the send half of an authenticated WebSocket session.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Deliver writes payload as a single text frame
	Deliver(ctx context.Context, payload []byte) error

	// Ping writes a ping control frame
	Ping(ctx context.Context) error
}

// SessionStore maps state tokens to live sessions.
// All methods accept context.Context for tracing and cancellation.
type SessionStore interface {
	// RegisterSession binds state to sink. An existing entry is overwritten
	// (last writer wins) and replaced reports whether that happened.
	RegisterSession(ctx context.Context, state string, sink Sink) (replaced bool, err error)

	// TakeSession atomically removes and returns the session for state.
	// At most one caller observes a given registration; every other caller
	// gets ErrSessionNotFound.
	TakeSession(ctx context.Context, state string) (Sink, error)

	// GetSession returns the session for state without removing it
	GetSession(ctx context.Context, state string) (Sink, error)

	// ReleaseSession removes the entry for state only if it still maps to sink.
	// It reports whether an entry was removed.
	ReleaseSession(ctx context.Context, state string, sink Sink) bool

	// SessionCount returns the number of registered sessions
	SessionCount() int
}

// ResultStore holds authorization codes for the pull variant until the
// client retrieves them.
type ResultStore interface {
	// SaveResult stores code under state, overwriting any earlier value
	SaveResult(ctx context.Context, state, code string) error

	// TakeResult atomically removes and returns the code for state.
	// Returns ErrResultNotFound when nothing is stored.
	TakeResult(ctx context.Context, state string) (string, error)

	// ResultCount returns the number of stored results
	ResultCount() int
}
