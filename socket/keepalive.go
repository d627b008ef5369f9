package socket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/giantswarm/oauth-relay/internal/util"
	"github.com/giantswarm/oauth-relay/storage"
)

const (
	// DefaultPingInterval is the time between keepalive pings
	DefaultPingInterval = 5 * time.Second

	// DefaultMaxMissedPings is how many consecutive failed pings end a session
	DefaultMaxMissedPings = 3
)

// EndReason says why a keepalive loop returned
type EndReason string

const (
	EndDelivered      EndReason = "delivered"
	EndPeerClosed     EndReason = "peer_closed"
	EndConnectionLost EndReason = "connection_lost"
	EndMissedPings    EndReason = "missed_pings"
	EndShutdown       EndReason = "shutdown"
)

// Keepalive pings a registered session until it ends.
type Keepalive struct {
	Conn     Conn
	State    string
	Sessions storage.SessionStore

	// Interval defaults to DefaultPingInterval
	Interval time.Duration

	// MaxMissedPings consecutive ping failures release the session.
	// Zero never gives up on pings and waits for the reader instead.
	MaxMissedPings int

	Logger *slog.Logger

	// OnPing, when set, observes every ping attempt
	OnPing func(err error)
}

// Run blocks until the session ends and returns why. It is the only reader
// of Conn once started; incoming data frames of any size are discarded
// and leave the session registered. The registry
// entry for State is released on every exit path, but only while it still
// points at this Conn.
func (k *Keepalive) Run(ctx context.Context) EndReason {
	interval := k.Interval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	logger := k.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("state", util.LogState(k.State))

	readErr := make(chan error, 1)
	go func() {
		for {
			if err := k.Conn.DiscardFrame(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case err := <-readErr:
			k.release(ctx)
			var peerClosed *PeerClosedError
			switch {
			case k.Conn.Delivered():
				return EndDelivered
			case errors.As(err, &peerClosed):
				logger.Debug("Client closed session", "close_code", uint16(peerClosed.Code))
				return EndPeerClosed
			default:
				logger.Debug("Session connection lost", "error", err)
				return EndConnectionLost
			}

		case <-ctx.Done():
			k.release(ctx)
			_ = k.Conn.CloseWith(CloseGoingAway, ReasonShuttingDown)
			return EndShutdown

		case <-ticker.C:
			sink, err := k.Sessions.GetSession(ctx, k.State)
			if err != nil || sink != storage.Sink(k.Conn) {
				// taken for delivery or replaced; the reader ends the loop
				continue
			}

			err = k.Conn.Ping(ctx)
			if k.OnPing != nil {
				k.OnPing(err)
			}
			if err == nil {
				missed = 0
				continue
			}

			missed++
			logger.Debug("Keepalive ping failed", "missed", missed, "error", err)
			if k.MaxMissedPings > 0 && missed >= k.MaxMissedPings {
				logger.Warn("Releasing session after missed pings", "missed", missed)
				k.release(ctx)
				_ = k.Conn.CloseWith(CloseInternalError, ReasonKeepaliveFailed)
				return EndMissedPings
			}
		}
	}
}

func (k *Keepalive) release(ctx context.Context) {
	k.Sessions.ReleaseSession(context.WithoutCancel(ctx), k.State, k.Conn)
}
