package socket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/giantswarm/oauth-relay/internal/testutil"
)

// serveConn upgrades one connection and hands the wrapped Conn to fn.
func serveConn(t *testing.T, opts ConnOptions, fn func(Conn)) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(ws, opts)
		defer conn.Close()
		fn(conn)
	}))
	t.Cleanup(srv.Close)

	return testutil.DialWS(t, testutil.WSURL(srv.URL, "/"))
}

func TestConn_DeliverThenNormalClose(t *testing.T) {
	result := make(chan error, 1)
	client := serveConn(t, ConnOptions{CloseGracePeriod: time.Second}, func(c Conn) {
		if err := c.Deliver(context.Background(), []byte(`{"code":"c","state":"s"}`)); err != nil {
			result <- err
			return
		}
		if !c.Delivered() {
			result <- errors.New("Delivered() = false after Deliver")
			return
		}
		// the client's close echo ends the read
		_, _, err := c.ReadFrame()
		result <- err
	})

	if got := testutil.ReadText(t, client); got != `{"code":"c","state":"s"}` {
		t.Errorf("text frame = %q", got)
	}
	code, reason := testutil.ReadClose(t, client)
	if code != int(CloseNormal) || reason != ReasonDelivered {
		t.Errorf("close = %d %q, want 1000 %q", code, reason, ReasonDelivered)
	}

	select {
	case err := <-result:
		var peerClosed *PeerClosedError
		if !errors.As(err, &peerClosed) {
			t.Errorf("server ReadFrame() error = %v, want *PeerClosedError", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe the close")
	}
}

func TestConn_DeliverArmsGraceDeadline(t *testing.T) {
	result := make(chan error, 1)
	opts := ConnOptions{CloseGracePeriod: 50 * time.Millisecond}

	srvDone := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(srvDone)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(ws, opts)
		defer conn.Close()
		_ = conn.Deliver(context.Background(), []byte("x"))
		_, _, err = conn.ReadFrame()
		result <- err
	}))
	defer srv.Close()

	// a raw dial that never reads, so no close echo is sent
	client, _, err := websocket.DefaultDialer.Dial(testutil.WSURL(srv.URL, "/"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	select {
	case err := <-result:
		if err == nil {
			t.Fatal("ReadFrame() error = nil, want deadline error")
		}
		var peerClosed *PeerClosedError
		if errors.As(err, &peerClosed) {
			t.Errorf("ReadFrame() error = %v, want a timeout not a peer close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("grace deadline did not end the read")
	}
	<-srvDone
}

func TestConn_FailedDeliverArmsGraceDeadline(t *testing.T) {
	result := make(chan error, 2)
	opts := ConnOptions{CloseGracePeriod: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srvDone := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(srvDone)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(ws, opts)
		defer conn.Close()
		result <- conn.Deliver(ctx, []byte("x"))
		_, _, err = conn.ReadFrame()
		result <- err
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial(testutil.WSURL(srv.URL, "/"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Errorf("Deliver() error = %v, want %v", err, context.Canceled)
	}

	select {
	case err := <-result:
		var peerClosed *PeerClosedError
		if err == nil || errors.As(err, &peerClosed) {
			t.Errorf("ReadFrame() error = %v, want a timeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("failed delivery left the read without a deadline")
	}
	<-srvDone
}

func TestConn_ReadFrameTypes(t *testing.T) {
	type read struct {
		typ  FrameType
		data string
		err  error
	}
	reads := make(chan read, 3)

	client := serveConn(t, ConnOptions{}, func(c Conn) {
		for i := 0; i < 3; i++ {
			typ, data, err := c.ReadFrame()
			reads <- read{typ, string(data), err}
			if err != nil {
				return
			}
		}
	})

	_ = client.WriteMessage(websocket.TextMessage, []byte("hello"))
	_ = client.WriteMessage(websocket.BinaryMessage, []byte{0x01})
	_ = client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4000, "done"))

	first, second, third := <-reads, <-reads, <-reads
	if first.typ != FrameText || first.data != "hello" {
		t.Errorf("first frame = %+v, want text hello", first)
	}
	if second.typ != FrameBinary {
		t.Errorf("second frame type = %d, want binary", second.typ)
	}
	var peerClosed *PeerClosedError
	if !errors.As(third.err, &peerClosed) || peerClosed.Code != 4000 || peerClosed.Text != "done" {
		t.Errorf("third read error = %v, want peer close 4000 done", third.err)
	}
}

func TestConn_CloseWith(t *testing.T) {
	client := serveConn(t, ConnOptions{}, func(c Conn) {
		_ = c.CloseWith(CloseUnauthorized, ReasonInvalidKey)
		_, _, _ = c.ReadFrame()
	})

	code, reason := testutil.ReadClose(t, client)
	if code != int(CloseUnauthorized) || reason != ReasonInvalidKey {
		t.Errorf("close = %d %q, want 3000 %q", code, reason, ReasonInvalidKey)
	}
}

func TestConn_Ping(t *testing.T) {
	pinged := make(chan struct{}, 1)
	release := make(chan struct{})

	client := serveConn(t, ConnOptions{}, func(c Conn) {
		if err := c.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
		<-release
	})
	defer close(release)

	client.SetPingHandler(func(string) error {
		pinged <- struct{}{}
		return nil
	})
	go func() {
		_, _, _ = client.ReadMessage()
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("client never saw a ping")
	}
}

func TestConn_ReadLimit(t *testing.T) {
	result := make(chan error, 1)
	client := serveConn(t, ConnOptions{MaxMessageBytes: 16}, func(c Conn) {
		_, _, err := c.ReadFrame()
		result <- err
	})

	_ = client.WriteMessage(websocket.TextMessage, make([]byte, 64))

	select {
	case err := <-result:
		if !errors.Is(err, websocket.ErrReadLimit) {
			t.Errorf("ReadFrame() error = %v, want %v", err, websocket.ErrReadLimit)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("oversized frame was not rejected")
	}
}

func TestConn_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := make(chan error, 2)
	serveConn(t, ConnOptions{}, func(c Conn) {
		errs <- c.Deliver(ctx, []byte("x"))
		errs <- c.Ping(ctx)
	})

	for i := 0; i < 2; i++ {
		if err := <-errs; !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want %v", err, context.Canceled)
		}
	}
}

func TestConn_DiscardFrameIgnoresReadLimit(t *testing.T) {
	type read struct {
		data string
		err  error
	}
	reads := make(chan read, 4)

	client := serveConn(t, ConnOptions{MaxMessageBytes: 16}, func(c Conn) {
		for i := 0; i < 2; i++ {
			if err := c.DiscardFrame(); err != nil {
				reads <- read{err: err}
				return
			}
		}
		_, data, err := c.ReadFrame()
		reads <- read{data: string(data), err: err}
		if err != nil {
			return
		}
		reads <- read{err: c.DiscardFrame()}
	})

	_ = client.WriteMessage(websocket.TextMessage, make([]byte, 8192))
	_ = client.WriteMessage(websocket.BinaryMessage, make([]byte, 64))
	_ = client.WriteMessage(websocket.TextMessage, []byte("ok"))
	_ = client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	select {
	case r := <-reads:
		if r.err != nil || r.data != "ok" {
			t.Fatalf("ReadFrame() after discards = (%q, %v), want (\"ok\", nil)", r.data, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("oversized frames were not discarded")
	}

	select {
	case r := <-reads:
		var peerClosed *PeerClosedError
		if !errors.As(r.err, &peerClosed) {
			t.Errorf("DiscardFrame() error = %v, want *PeerClosedError", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close frame was not observed")
	}
}
