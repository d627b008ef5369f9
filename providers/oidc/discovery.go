package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// wellKnownPath is appended to the issuer to locate the discovery document
const wellKnownPath = "/.well-known/openid-configuration"

// DiscoveryDocument holds the provider metadata the relay client needs
type DiscoveryDocument struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// Endpoint returns the document's endpoints in oauth2 form
func (d *DiscoveryDocument) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  d.AuthorizationEndpoint,
		TokenURL: d.TokenEndpoint,
	}
}

// SupportsPKCE reports whether the provider advertises S256 challenges
func (d *DiscoveryDocument) SupportsPKCE() bool {
	for _, m := range d.CodeChallengeMethodsSupported {
		if m == "S256" {
			return true
		}
	}
	return false
}

type cachedDocument struct {
	document  *DiscoveryDocument
	fetchedAt time.Time
}

// DiscoveryClient fetches and caches discovery documents. It is safe for
// concurrent use.
type DiscoveryClient struct {
	httpClient *http.Client
	cache      sync.Map // issuer -> *cachedDocument
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewDiscoveryClient creates a discovery client. A nil httpClient uses one
// with a 10 second timeout, a zero cacheTTL caches for an hour.
func NewDiscoveryClient(httpClient *http.Client, cacheTTL time.Duration, logger *slog.Logger) *DiscoveryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DiscoveryClient{
		httpClient: httpClient,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// Discover returns the discovery document for issuer
func (c *DiscoveryClient) Discover(ctx context.Context, issuer string) (*DiscoveryDocument, error) {
	issuer = strings.TrimSuffix(issuer, "/")
	if err := checkURL(issuer); err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}

	if cached, ok := c.cache.Load(issuer); ok {
		doc := cached.(*cachedDocument)
		if time.Since(doc.fetchedAt) < c.cacheTTL {
			c.logger.Debug("OIDC discovery cache hit", "issuer", issuer)
			return doc.document, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+wellKnownPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OIDC discovery document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OIDC discovery failed with status %d", resp.StatusCode)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if err := validateDocument(issuer, &doc); err != nil {
		return nil, fmt.Errorf("invalid discovery document: %w", err)
	}

	c.cache.Store(issuer, &cachedDocument{document: &doc, fetchedAt: time.Now()})
	c.logger.Debug("OIDC discovery successful",
		"issuer", issuer,
		"authorization_endpoint", doc.AuthorizationEndpoint,
		"token_endpoint", doc.TokenEndpoint)

	return &doc, nil
}

// ClearCache drops every cached document
func (c *DiscoveryClient) ClearCache() {
	c.cache.Range(func(key, _ any) bool {
		c.cache.Delete(key)
		return true
	})
}

func validateDocument(issuer string, doc *DiscoveryDocument) error {
	if strings.TrimSuffix(doc.Issuer, "/") != issuer {
		return fmt.Errorf("issuer %q does not match %q", doc.Issuer, issuer)
	}

	endpoints := []struct {
		name string
		url  string
	}{
		{"authorization_endpoint", doc.AuthorizationEndpoint},
		{"token_endpoint", doc.TokenEndpoint},
	}
	for _, e := range endpoints {
		if e.url == "" {
			return fmt.Errorf("%s is required but missing", e.name)
		}
		if err := checkURL(e.url); err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
	}
	return nil
}

// checkURL requires HTTPS, except for loopback hosts
func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("%q must use HTTPS", raw)
	default:
		return fmt.Errorf("%q has unsupported scheme %q", raw, u.Scheme)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
