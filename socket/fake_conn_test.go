package socket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errFakeTimeout = errors.New("i/o timeout")

type frame struct {
	typ  FrameType
	data []byte
	err  error
}

type closeRecord struct {
	code   CloseCode
	reason string
}

// fakeConn is a scripted Conn. ReadFrame returns queued frames and honours
// the read deadline the way a net.Conn would.
type fakeConn struct {
	frames chan frame

	mu        sync.Mutex
	deadline  time.Time
	closes    []closeRecord
	delivered [][]byte
	pingErr   error

	pings      atomic.Int32
	discarded  atomic.Int32
	closedOnce sync.Once
	closed     chan struct{}
	wasDeliver atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan frame, 8),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) push(typ FrameType, data string) {
	c.frames <- frame{typ: typ, data: []byte(data)}
}

func (c *fakeConn) pushErr(err error) {
	c.frames <- frame{err: err}
}

func (c *fakeConn) ReadFrame() (FrameType, []byte, error) {
	for {
		select {
		case f := <-c.frames:
			return f.typ, f.data, f.err
		case <-c.closed:
			return 0, nil, errors.New("use of closed network connection")
		case <-time.After(2 * time.Millisecond):
			c.mu.Lock()
			d := c.deadline
			c.mu.Unlock()
			if !d.IsZero() && time.Now().After(d) {
				return 0, nil, errFakeTimeout
			}
		}
	}
}

func (c *fakeConn) DiscardFrame() error {
	_, _, err := c.ReadFrame()
	if err == nil {
		c.discarded.Add(1)
	}
	return err
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *fakeConn) readDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

func (c *fakeConn) CloseWith(code CloseCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, closeRecord{code: code, reason: reason})
	return nil
}

func (c *fakeConn) closeRecords() []closeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]closeRecord(nil), c.closes...)
}

func (c *fakeConn) Close() error {
	c.closedOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Delivered() bool {
	return c.wasDeliver.Load()
}

func (c *fakeConn) Deliver(_ context.Context, payload []byte) error {
	c.mu.Lock()
	c.delivered = append(c.delivered, payload)
	c.mu.Unlock()
	c.wasDeliver.Store(true)
	return nil
}

func (c *fakeConn) Ping(context.Context) error {
	c.pings.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingErr
}

func (c *fakeConn) setPingErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}

type staticKeys map[string]bool

func (k staticKeys) Contains(key string) bool { return k[key] }
