package testutil

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultReadTimeout bounds every frame read in the WebSocket helpers
const DefaultReadTimeout = 2 * time.Second

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StaticKeys is a plain key set for tests
type StaticKeys map[string]bool

// Contains reports whether key is in the set
func (k StaticKeys) Contains(key string) bool {
	return k[key]
}

// WSURL converts an httptest server URL plus path into a ws:// URL
func WSURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// DialWS opens a WebSocket connection and closes it when the test ends
func DialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial(%s) error = %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// SendAuth writes the auth message for key and state
func SendAuth(t *testing.T, ws *websocket.Conn, key, state string) {
	t.Helper()

	msg := map[string]string{"api_key": key, "state": state}
	if err := ws.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
}

// ReadText reads the next data frame and fails unless it is text
func ReadText(t *testing.T, ws *websocket.Conn) string {
	t.Helper()

	_ = ws.SetReadDeadline(time.Now().Add(DefaultReadTimeout))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("ReadMessage() type = %d, want text", mt)
	}
	return string(data)
}

// ReadClose reads until the server's close frame and returns its code and text
func ReadClose(t *testing.T, ws *websocket.Conn) (int, string) {
	t.Helper()

	_ = ws.SetReadDeadline(time.Now().Add(DefaultReadTimeout))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("ReadMessage() error = %v, want close frame", err)
		}
		return ce.Code, ce.Text
	}
}

// Eventually polls cond until it holds or timeout passes
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
