package relay

import (
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth-relay/socket"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	config := &Config{}
	config.applyDefaults()

	if config.Mode != ModePush {
		t.Errorf("Mode = %q, want %q", config.Mode, ModePush)
	}
	if config.AuthTimeout != 15*time.Second {
		t.Errorf("AuthTimeout = %v, want 15s", config.AuthTimeout)
	}
	if config.PingInterval != 5*time.Second {
		t.Errorf("PingInterval = %v, want 5s", config.PingInterval)
	}
	if config.MaxMissedPings != socket.DefaultMaxMissedPings {
		t.Errorf("MaxMissedPings = %d, want %d", config.MaxMissedPings, socket.DefaultMaxMissedPings)
	}
	if config.WriteTimeout != socket.DefaultWriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", config.WriteTimeout, socket.DefaultWriteTimeout)
	}
	if config.CloseGracePeriod != socket.DefaultCloseGracePeriod {
		t.Errorf("CloseGracePeriod = %v, want %v", config.CloseGracePeriod, socket.DefaultCloseGracePeriod)
	}
	if config.MaxAuthMessageBytes != socket.DefaultMaxMessageBytes {
		t.Errorf("MaxAuthMessageBytes = %d, want %d", config.MaxAuthMessageBytes, socket.DefaultMaxMessageBytes)
	}
	if config.RateLimit.Burst != 0 {
		t.Errorf("RateLimit.Burst = %d, want 0 without a rate", config.RateLimit.Burst)
	}
	if config.RateLimit.TrustedProxyCount != 1 {
		t.Errorf("RateLimit.TrustedProxyCount = %d, want 1", config.RateLimit.TrustedProxyCount)
	}
}

func TestConfig_ApplyDefaults_KeepsValues(t *testing.T) {
	config := &Config{
		Mode:           ModePull,
		AuthTimeout:    time.Second,
		MaxMissedPings: -1,
		RateLimit:      RateLimitConfig{Rate: 5},
	}
	config.applyDefaults()

	if config.Mode != ModePull {
		t.Errorf("Mode = %q, want %q", config.Mode, ModePull)
	}
	if config.AuthTimeout != time.Second {
		t.Errorf("AuthTimeout = %v, want 1s", config.AuthTimeout)
	}
	if config.MaxMissedPings != -1 {
		t.Errorf("MaxMissedPings = %d, want -1", config.MaxMissedPings)
	}
	if config.RateLimit.Burst != defaultRateLimitBurst {
		t.Errorf("RateLimit.Burst = %d, want %d", config.RateLimit.Burst, defaultRateLimitBurst)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"pull mode", func(c *Config) { c.Mode = ModePull }, ""},
		{"unknown mode", func(c *Config) { c.Mode = "poll" }, "mode must be"},
		{"negative auth timeout", func(c *Config) { c.AuthTimeout = -time.Second }, "auth timeout"},
		{"negative ping interval", func(c *Config) { c.PingInterval = -time.Second }, "ping interval"},
		{"negative rate", func(c *Config) { c.RateLimit.Rate = -1 }, "rate limit"},
		{"negative burst", func(c *Config) { c.RateLimit.Burst = -1 }, "burst"},
		{"empty origin", func(c *Config) { c.AllowedOrigins = []string{""} }, "allowed origins"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			config.applyDefaults()
			tt.modify(config)

			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_KeepaliveMaxMissed(t *testing.T) {
	tests := []struct {
		configured int
		want       int
	}{
		{3, 3},
		{1, 1},
		{-1, 0},
	}

	for _, tt := range tests {
		config := &Config{MaxMissedPings: tt.configured}
		if got := config.keepaliveMaxMissed(); got != tt.want {
			t.Errorf("keepaliveMaxMissed(%d) = %d, want %d", tt.configured, got, tt.want)
		}
	}
}

func TestConfig_OriginAllowed(t *testing.T) {
	open := &Config{}
	if !open.originAllowed("https://anything.example.com") {
		t.Error("empty AllowedOrigins should allow any origin")
	}

	restricted := &Config{AllowedOrigins: []string{"https://app.example.com"}}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
		{"", true},
	}
	for _, tt := range tests {
		if got := restricted.originAllowed(tt.origin); got != tt.want {
			t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestMode_Valid(t *testing.T) {
	if !ModePush.Valid() || !ModePull.Valid() {
		t.Error("push and pull should be valid modes")
	}
	if Mode("").Valid() || Mode("both").Valid() {
		t.Error("unknown modes should be invalid")
	}
}
