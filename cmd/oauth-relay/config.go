package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	relay "github.com/giantswarm/oauth-relay"
	"github.com/giantswarm/oauth-relay/security"
)

// serveConfig is the serve command's configuration. It is read from the
// environment first; flags that were set explicitly take precedence.
type serveConfig struct {
	Addr        string `env:"RELAY_ADDR" envDefault:":3000"`
	Mode        string `env:"RELAY_MODE" envDefault:"push"`
	APIKeys     string `env:"API_KEYS"`
	APIKey      string `env:"API_KEY"`
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST"`
	TrustProxy     bool     `env:"TRUST_PROXY"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	ResultTTL time.Duration `env:"RESULT_TTL"`
	// MaxMissedPings of 0 keeps sessions regardless of failed pings
	MaxMissedPings int `env:"MAX_MISSED_PINGS" envDefault:"3"`

	AuditLogging   bool   `env:"AUDIT_LOGGING" envDefault:"true"`
	MetricsEnabled bool   `env:"METRICS_ENABLED"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// loadServeConfig parses environ (KEY=value entries, as from os.Environ)
func loadServeConfig(environ []string) (serveConfig, error) {
	var cfg serveConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: env.ToMap(environ)}); err != nil {
		return serveConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// registerServeFlags defines the flags that can override the environment
func registerServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("addr", "", "Listen address (env RELAY_ADDR, default :3000)")
	flags.String("mode", "", "Relay mode: push or pull (env RELAY_MODE)")
	flags.String("api-keys", "", "Comma-separated API keys, plain or bcrypt-hashed (env API_KEYS)")
	flags.String("tls-cert", "", "TLS certificate file (env TLS_CERT_FILE)")
	flags.String("tls-key", "", "TLS key file (env TLS_KEY_FILE)")
	flags.String("log-level", "", "Log level: debug, info, warn or error (env LOG_LEVEL)")
	flags.String("log-format", "", "Log format: json or text (env LOG_FORMAT)")
	flags.Float64("rate-limit", 0, "Requests per second per client IP, 0 disables (env RATE_LIMIT_RPS)")
	flags.Int("rate-limit-burst", 0, "Burst size per client IP (env RATE_LIMIT_BURST)")
	flags.Bool("trust-proxy", false, "Trust X-Forwarded-For and X-Real-IP (env TRUST_PROXY)")
	flags.Duration("result-ttl", 0, "How long pull mode keeps an unretrieved code, 0 keeps it (env RESULT_TTL)")
	flags.Int("max-missed-pings", 0, "Failed pings before a session is released, 0 never releases (env MAX_MISSED_PINGS)")
	flags.Bool("metrics", false, "Serve Prometheus metrics on /metrics (env METRICS_ENABLED)")
}

// applyFlags copies every explicitly set flag over the environment value
func (c *serveConfig) applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	strs := map[string]*string{
		"addr":       &c.Addr,
		"mode":       &c.Mode,
		"api-keys":   &c.APIKeys,
		"tls-cert":   &c.TLSCertFile,
		"tls-key":    &c.TLSKeyFile,
		"log-level":  &c.LogLevel,
		"log-format": &c.LogFormat,
	}
	for name, target := range strs {
		if flags.Changed(name) {
			*target, _ = flags.GetString(name)
		}
	}

	if flags.Changed("rate-limit") {
		c.RateLimitRPS, _ = flags.GetFloat64("rate-limit")
	}
	if flags.Changed("rate-limit-burst") {
		c.RateLimitBurst, _ = flags.GetInt("rate-limit-burst")
	}
	if flags.Changed("trust-proxy") {
		c.TrustProxy, _ = flags.GetBool("trust-proxy")
	}
	if flags.Changed("result-ttl") {
		c.ResultTTL, _ = flags.GetDuration("result-ttl")
	}
	if flags.Changed("max-missed-pings") {
		c.MaxMissedPings, _ = flags.GetInt("max-missed-pings")
	}
	if flags.Changed("metrics") {
		c.MetricsEnabled, _ = flags.GetBool("metrics")
	}
}

// validate checks the settings the relay config does not cover
func (c *serveConfig) validate() error {
	var errs []error
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}
	if c.MaxMissedPings < 0 {
		errs = append(errs, errors.New("MAX_MISSED_PINGS cannot be negative"))
	}
	if c.ResultTTL < 0 {
		errs = append(errs, errors.New("RESULT_TTL cannot be negative"))
	}
	return errors.Join(errs...)
}

// apiKeys merges the comma list with the single-key form
func (c *serveConfig) apiKeys() []string {
	keys := security.ParseKeyList(c.APIKeys)
	if k := strings.TrimSpace(c.APIKey); k != "" {
		keys = append(keys, k)
	}
	return keys
}

// relayConfig maps the CLI settings onto the relay configuration
func (c *serveConfig) relayConfig() *relay.Config {
	maxMissed := c.MaxMissedPings
	if maxMissed == 0 {
		maxMissed = -1
	}

	return &relay.Config{
		Mode:           relay.Mode(strings.ToLower(strings.TrimSpace(c.Mode))),
		MaxMissedPings: maxMissed,
		AllowedOrigins: c.AllowedOrigins,
		RateLimit: relay.RateLimitConfig{
			Rate:       c.RateLimitRPS,
			Burst:      c.RateLimitBurst,
			TrustProxy: c.TrustProxy,
		},
		EnableAuditLogging: c.AuditLogging,
	}
}

// tracesEndpoint turns an OTLP base endpoint into the traces URL. An
// endpoint that already carries a path is used as is.
func (c *serveConfig) tracesEndpoint() (string, error) {
	if c.OTLPEndpoint == "" {
		return "", nil
	}
	u, err := url.Parse(c.OTLPEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid OTEL_EXPORTER_OTLP_ENDPOINT: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid OTEL_EXPORTER_OTLP_ENDPOINT: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u = u.JoinPath("v1", "traces")
	}
	return u.String(), nil
}

// newLogger builds the process logger writing to w
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
