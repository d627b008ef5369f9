package relay

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/giantswarm/oauth-relay/socket"
)

// Config holds the relay configuration
type Config struct {
	// Mode is push (deliver over WebSocket) or pull (store for /retrieval).
	// Default: push
	Mode Mode

	// AuthTimeout bounds the wait for a new socket's auth message.
	// Default: 15 seconds
	AuthTimeout time.Duration

	// PingInterval is the time between keepalive pings.
	// Default: 5 seconds
	PingInterval time.Duration

	// MaxMissedPings consecutive failed pings release a session.
	// Zero uses the default of 3; a negative value never releases on pings.
	MaxMissedPings int

	// WriteTimeout bounds every frame write.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// CloseGracePeriod is how long a delivered session waits for the
	// client to answer the server's close frame.
	// Default: 5 seconds
	CloseGracePeriod time.Duration

	// MaxAuthMessageBytes caps inbound frames. Larger frames end the
	// connection with 1009.
	// Default: 4096
	MaxAuthMessageBytes int64

	// AllowedOrigins restricts browser WebSocket upgrades by Origin.
	// Empty allows any origin. Requests without Origin (native clients)
	// are always allowed.
	AllowedOrigins []string

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// EnableAuditLogging enables security audit logging.
	// States and keys are hashed; codes are never logged.
	EnableAuditLogging bool
}

// RateLimitConfig holds per-IP rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate float64

	// Burst is the maximum burst size allowed per IP.
	// Default: 20 when Rate is set
	Burst int

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of the relay.
	// Default: 1
	TrustedProxyCount int
}

// defaultRateLimitBurst is used when a rate is configured without a burst
const defaultRateLimitBurst = 20

// applyDefaults fills zero values with defaults
func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModePush
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = socket.DefaultAuthTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = socket.DefaultPingInterval
	}
	if c.MaxMissedPings == 0 {
		c.MaxMissedPings = socket.DefaultMaxMissedPings
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = socket.DefaultWriteTimeout
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = socket.DefaultCloseGracePeriod
	}
	if c.MaxAuthMessageBytes == 0 {
		c.MaxAuthMessageBytes = socket.DefaultMaxMessageBytes
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = defaultRateLimitBurst
	}
	if c.RateLimit.TrustedProxyCount == 0 {
		c.RateLimit.TrustedProxyCount = 1
	}
}

// Validate checks the configuration after defaults are applied
func (c *Config) Validate() error {
	var errs []error

	if !c.Mode.Valid() {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModePush, ModePull, c.Mode))
	}
	if c.AuthTimeout < 0 {
		errs = append(errs, errors.New("auth timeout cannot be negative"))
	}
	if c.PingInterval < 0 {
		errs = append(errs, errors.New("ping interval cannot be negative"))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, errors.New("write timeout cannot be negative"))
	}
	if c.CloseGracePeriod < 0 {
		errs = append(errs, errors.New("close grace period cannot be negative"))
	}
	if c.MaxAuthMessageBytes < 0 {
		errs = append(errs, errors.New("max auth message size cannot be negative"))
	}
	if c.RateLimit.Rate < 0 {
		errs = append(errs, errors.New("rate limit cannot be negative"))
	}
	if c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate limit burst cannot be negative"))
	}
	if c.RateLimit.TrustedProxyCount < 0 {
		errs = append(errs, errors.New("trusted proxy count cannot be negative"))
	}
	if slices.Contains(c.AllowedOrigins, "") {
		errs = append(errs, errors.New("allowed origins cannot contain an empty entry"))
	}

	return errors.Join(errs...)
}

// keepaliveMaxMissed maps the config value onto socket.Keepalive, where zero
// disables release on missed pings
func (c *Config) keepaliveMaxMissed() int {
	if c.MaxMissedPings < 0 {
		return 0
	}
	return c.MaxMissedPings
}

// originAllowed reports whether a WebSocket upgrade from origin is accepted
func (c *Config) originAllowed(origin string) bool {
	if origin == "" || len(c.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(c.AllowedOrigins, origin)
}
