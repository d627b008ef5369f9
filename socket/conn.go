package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/giantswarm/oauth-relay/storage"
)

const (
	// DefaultWriteTimeout bounds every frame the server writes
	DefaultWriteTimeout = 10 * time.Second

	// DefaultCloseGracePeriod is how long the reader waits for the peer's
	// close echo after a delivery
	DefaultCloseGracePeriod = 5 * time.Second

	// DefaultMaxMessageBytes caps the frames read with ReadFrame
	DefaultMaxMessageBytes = 4096
)

// FrameType distinguishes data frames
type FrameType int

const (
	FrameText   FrameType = websocket.TextMessage
	FrameBinary FrameType = websocket.BinaryMessage
)

// PeerClosedError is returned by ReadFrame when the peer sent a close frame.
type PeerClosedError struct {
	Code CloseCode
	Text string
}

func (e *PeerClosedError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("peer closed connection (%d)", uint16(e.Code))
	}
	return fmt.Sprintf("peer closed connection (%d): %s", uint16(e.Code), e.Text)
}

// Conn is an accepted WebSocket connection. Deliver and Ping make it a
// storage.Sink so the registry can hold it directly.
type Conn interface {
	storage.Sink

	// ReadFrame returns the next text or binary frame. Control frames are
	// handled internally. A close frame from the peer yields *PeerClosedError.
	// A frame over MaxMessageBytes ends the connection with 1009.
	ReadFrame() (FrameType, []byte, error)

	// DiscardFrame consumes the next data frame without buffering it. It
	// ignores MaxMessageBytes. Errors match ReadFrame.
	DiscardFrame() error

	// SetReadDeadline bounds the pending and future ReadFrame calls.
	// The zero time clears it.
	SetReadDeadline(t time.Time) error

	// CloseWith sends a close frame. It does not tear down the connection.
	CloseWith(code CloseCode, reason string) error

	// Close tears down the underlying connection
	Close() error

	// Delivered reports whether Deliver wrote a payload
	Delivered() bool
}

// ConnOptions configures a Conn built by NewConn
type ConnOptions struct {
	WriteTimeout     time.Duration
	CloseGracePeriod time.Duration
	MaxMessageBytes  int64
}

// wsConn adapts *websocket.Conn. gorilla allows one concurrent writer, so
// every write goes through writeMu.
type wsConn struct {
	ws   *websocket.Conn
	opts ConnOptions

	writeMu   sync.Mutex
	delivered atomic.Bool
}

// NewConn wraps an upgraded gorilla connection
func NewConn(ws *websocket.Conn, opts ConnOptions) Conn {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.CloseGracePeriod <= 0 {
		opts.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return &wsConn{ws: ws, opts: opts}
}

func (c *wsConn) ReadFrame() (FrameType, []byte, error) {
	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return 0, nil, readError(err)
	}
	return FrameType(mt), data, nil
}

func (c *wsConn) DiscardFrame() error {
	// gorilla treats a zero limit as unlimited
	c.ws.SetReadLimit(0)
	_, r, err := c.ws.NextReader()
	if err != nil {
		return readError(err)
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return readError(err)
	}
	return nil
}

// readError maps a peer close onto *PeerClosedError
func readError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &PeerClosedError{Code: CloseCode(ce.Code), Text: ce.Text}
	}
	return err
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *wsConn) CloseWith(code CloseCode, reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.ws.WriteControl(websocket.CloseMessage, code.Frame(reason), time.Now().Add(c.opts.WriteTimeout))
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) Delivered() bool {
	return c.delivered.Load()
}

// Deliver writes payload as a text frame and starts a normal close. The read
// deadline is pulled in on every return, failed writes included, so the
// session ends even if the peer never answers the close.
func (c *wsConn) Deliver(ctx context.Context, payload []byte) error {
	defer func() { _ = c.ws.SetReadDeadline(time.Now().Add(c.opts.CloseGracePeriod)) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := c.writeDeadline(ctx)
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	c.delivered.Store(true)

	if err := c.ws.WriteControl(websocket.CloseMessage, CloseNormal.Frame(ReasonDelivered), deadline); err != nil {
		return fmt.Errorf("failed to write close frame: %w", err)
	}

	return nil
}

func (c *wsConn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.ws.WriteControl(websocket.PingMessage, nil, c.writeDeadline(ctx))
}

// writeDeadline is the earlier of the write timeout and the ctx deadline
func (c *wsConn) writeDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
