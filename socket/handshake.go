package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultAuthTimeout is how long a new connection has to send its auth message
const DefaultAuthTimeout = 15 * time.Second

// KeyChecker reports whether an API key is accepted
type KeyChecker interface {
	Contains(key string) bool
}

// AuthMessage is the first frame a client sends
type AuthMessage struct {
	APIKey string
	State  string
}

// HandshakeKind classifies a failed handshake
type HandshakeKind string

const (
	KindTimeout      HandshakeKind = "timeout"
	KindPeerClosed   HandshakeKind = "peer_closed"
	KindNotText      HandshakeKind = "not_text"
	KindInvalidJSON  HandshakeKind = "invalid_json"
	KindUnauthorized HandshakeKind = "unauthorized"
	KindShutdown     HandshakeKind = "shutdown"
	KindTooLarge     HandshakeKind = "too_large"
)

// HandshakeError describes why a connection was not authenticated and how it
// was closed. Code is zero when nothing was sent back.
type HandshakeError struct {
	Kind   HandshakeKind
	Code   CloseCode
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	msg := fmt.Sprintf("handshake failed (%s)", e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// authPayload uses pointers so a missing or null field can be told apart
// from an empty string.
type authPayload struct {
	APIKey *string `json:"api_key"`
	State  *string `json:"state"`
}

// Authenticate reads the first frame from conn and checks it against keys.
// On any failure it sends the matching close frame and returns a
// *HandshakeError. On success the read deadline is cleared.
//
// The handshake ends early with 1001 when ctx is cancelled.
func Authenticate(ctx context.Context, conn Conn, keys KeyChecker, timeout time.Duration) (*AuthMessage, error) {
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set auth deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	frameType, data, err := conn.ReadFrame()
	stop()

	if err != nil {
		var peerClosed *PeerClosedError
		if errors.As(err, &peerClosed) {
			return nil, &HandshakeError{Kind: KindPeerClosed, Reason: peerClosed.Text, Err: err}
		}
		if errors.Is(err, websocket.ErrReadLimit) {
			// gorilla has already answered with 1009
			return nil, &HandshakeError{Kind: KindTooLarge, Code: CloseMessageTooBig, Err: err}
		}
		if ctx.Err() != nil {
			return nil, reject(conn, KindShutdown, CloseGoingAway, ReasonShuttingDown, err)
		}
		return nil, reject(conn, KindTimeout, CloseTryAgainLater, ReasonAuthTimeout, err)
	}

	if frameType != FrameText {
		return nil, reject(conn, KindNotText, CloseUnsupportedData, ReasonNotText, nil)
	}

	var payload authPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, reject(conn, KindInvalidJSON, CloseUnsupportedData, ReasonInvalidJSON, err)
	}
	if payload.APIKey == nil || payload.State == nil {
		return nil, reject(conn, KindInvalidJSON, CloseUnsupportedData, ReasonInvalidJSON, errors.New("api_key and state are required"))
	}

	if !keys.Contains(*payload.APIKey) {
		return nil, reject(conn, KindUnauthorized, CloseUnauthorized, ReasonInvalidKey, nil)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("failed to clear auth deadline: %w", err)
	}

	return &AuthMessage{APIKey: *payload.APIKey, State: *payload.State}, nil
}

// reject sends the close frame and builds the error. A failed close write is
// kept only when there is no other cause to report.
func reject(conn Conn, kind HandshakeKind, code CloseCode, reason string, cause error) *HandshakeError {
	if err := conn.CloseWith(code, reason); err != nil && cause == nil {
		cause = fmt.Errorf("failed to send close frame: %w", err)
	}
	return &HandshakeError{Kind: kind, Code: code, Reason: reason, Err: cause}
}
