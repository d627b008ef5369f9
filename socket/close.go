package socket

import (
	"strconv"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/giantswarm/oauth-relay/internal/util"
)

// maxCloseReasonBytes is the room left for a reason in a close frame:
// 125 byte control payload minus the 2 byte code.
const maxCloseReasonBytes = 123

// CloseCode is a WebSocket close status the relay sends.
type CloseCode uint16

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	CloseProtocolError   CloseCode = 1002
	CloseUnsupportedData CloseCode = 1007
	ClosePolicyViolation CloseCode = 1008
	CloseMessageTooBig   CloseCode = 1009
	CloseInternalError   CloseCode = 1011
	CloseServiceRestart  CloseCode = 1012
	CloseTryAgainLater   CloseCode = 1013

	// CloseUnauthorized is application-defined (3000-3999 range)
	CloseUnauthorized CloseCode = 3000
)

// Close reasons sent during the auth handshake.
const (
	ReasonAuthTimeout = "timed out waiting for auth message"
	ReasonNotText     = "expected text-based auth message"
	ReasonInvalidJSON = "expected valid JSON data"
	ReasonInvalidKey  = "api_key was invalid"

	ReasonDelivered       = "code delivered"
	ReasonShuttingDown    = "server shutting down"
	ReasonKeepaliveFailed = "keepalive failed"
)

var closeCodeNames = map[CloseCode]string{
	CloseNormal:          "normal",
	CloseGoingAway:       "going_away",
	CloseProtocolError:   "protocol_error",
	CloseUnsupportedData: "unsupported_data",
	ClosePolicyViolation: "policy_violation",
	CloseMessageTooBig:   "message_too_big",
	CloseInternalError:   "internal_error",
	CloseServiceRestart:  "service_restart",
	CloseTryAgainLater:   "try_again_later",
	CloseUnauthorized:    "unauthorized",
}

// Valid reports whether c is one of the codes the relay emits
func (c CloseCode) Valid() bool {
	_, ok := closeCodeNames[c]
	return ok
}

// String returns a readable name, or the number for codes outside the set
func (c CloseCode) String() string {
	if name, ok := closeCodeNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

// Frame builds the close frame payload for c. reason is cut to the control
// frame limit on a rune boundary.
func (c CloseCode) Frame(reason string) []byte {
	reason = util.SafeTruncate(reason, maxCloseReasonBytes)
	for !utf8.ValidString(reason) {
		reason = reason[:len(reason)-1]
	}
	return websocket.FormatCloseMessage(int(c), reason)
}
