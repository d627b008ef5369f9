package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

const (
	// DefaultSocketPath is the relay's WebSocket endpoint
	DefaultSocketPath = "/socket"

	// DefaultPollInterval matches the relay's advertised refresh delay
	DefaultPollInterval = 5 * time.Second

	apiKeyHeader      = "X-Api-Key"
	maxErrorBodyBytes = 1024
)

// ErrStateMismatch is returned when the relay delivers a code for another state
var ErrStateMismatch = errors.New("relay delivered a code for a different state")

// Result is the message delivered by the relay
type Result struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// CloseError is returned by Await when the relay closes the socket instead
// of delivering a code, e.g. 3000 for a rejected API key.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("relay closed connection (%d): %s", e.Code, e.Reason)
}

// StatusError is returned for non-200 retrieval responses
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.Status, e.Body)
}

// Client talks to one relay with one API key
type Client struct {
	baseURL    *url.URL
	apiKey     string
	socketPath string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the client used for /retrieval
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDialer sets the WebSocket dialer used by Await
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithSocketPath overrides DefaultSocketPath, e.g. "/ws"
func WithSocketPath(path string) Option {
	return func(c *Client) { c.socketPath = path }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the relay at baseURL (http or https)
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay URL must be http or https, got %q", u.Scheme)
	}
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}

	c := &Client{
		baseURL:    u,
		apiKey:     apiKey,
		socketPath: DefaultSocketPath,
		httpClient: http.DefaultClient,
		dialer:     websocket.DefaultDialer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewState returns a fresh random state for one OAuth flow
func NewState() string {
	return uuid.NewString()
}

// AuthCodeURL returns the provider URL the user must open. cfg.RedirectURL
// should point at the relay's /redirect endpoint.
func AuthCodeURL(cfg *oauth2.Config, state string, opts ...oauth2.AuthCodeOption) string {
	return cfg.AuthCodeURL(state, opts...)
}

// Exchange trades a relayed code for a token at the provider
func Exchange(ctx context.Context, cfg *oauth2.Config, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	token, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}

// Await connects to the relay, registers state and blocks until the code
// arrives, the relay closes the connection or ctx is done.
func (c *Client) Await(ctx context.Context, state string) (*Result, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.socketURL(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	defer func() { _ = ws.Close() }()

	stop := context.AfterFunc(ctx, func() {
		_ = ws.SetReadDeadline(time.Now())
	})
	defer stop()

	auth := map[string]string{"api_key": c.apiKey, "state": state}
	if err := ws.WriteJSON(auth); err != nil {
		return nil, fmt.Errorf("failed to send auth message: %w", err)
	}
	c.logger.Debug("Waiting for code", "relay", c.baseURL.Host)

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return nil, &CloseError{Code: ce.Code, Reason: ce.Text}
			}
			return nil, fmt.Errorf("failed to read from relay: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}

		var result Result
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("failed to decode relay message: %w", err)
		}
		if result.State != state {
			return nil, ErrStateMismatch
		}

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return &result, nil
	}
}

// Retrieve asks the relay once for the code stored under state. found is
// false while the redirect has not happened yet.
func (c *Client) Retrieve(ctx context.Context, state string) (code string, found bool, err error) {
	u := c.baseURL.JoinPath("/retrieval")
	u.RawQuery = url.Values{"state": {state}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to build retrieval request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("retrieval request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", false, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var stored *string
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return "", false, fmt.Errorf("failed to decode retrieval response: %w", err)
	}
	if stored == nil {
		return "", false, nil
	}
	return *stored, true, nil
}

// Poll calls Retrieve every interval until a code arrives or ctx is done.
// A zero interval uses DefaultPollInterval.
func (c *Client) Poll(ctx context.Context, state string, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		code, found, err := c.Retrieve(ctx, state)
		if err != nil {
			return "", err
		}
		if found {
			return code, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) socketURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.JoinPath(c.socketPath).String()
}
