package providers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2/endpoints"
)

func TestResolver_Endpoint_BuiltIn(t *testing.T) {
	r := NewResolver(nil, slog.Default())

	tests := []struct {
		name     string
		wantAuth string
	}{
		{"github", endpoints.GitHub.AuthURL},
		{" GitHub ", endpoints.GitHub.AuthURL},
		{"google", endpoints.Google.AuthURL},
	}

	for _, tt := range tests {
		ep, err := r.Endpoint(context.Background(), tt.name, "")
		if err != nil {
			t.Errorf("Endpoint(%q) error = %v", tt.name, err)
			continue
		}
		if ep.AuthURL != tt.wantAuth {
			t.Errorf("Endpoint(%q).AuthURL = %q, want %q", tt.name, ep.AuthURL, tt.wantAuth)
		}
	}
}

func TestResolver_Endpoint_OIDC(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/auth",
			"token_endpoint":         server.URL + "/token",
		})
	}))
	defer server.Close()

	r := NewResolver(server.Client(), slog.Default())

	ep, err := r.Endpoint(context.Background(), OIDC, server.URL)
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if ep.TokenURL != server.URL+"/token" {
		t.Errorf("TokenURL = %q, want %q", ep.TokenURL, server.URL+"/token")
	}

	if _, err := r.Endpoint(context.Background(), OIDC, ""); err == nil {
		t.Error("Endpoint(oidc) without issuer succeeded, want error")
	}
}

func TestResolver_Endpoint_Unknown(t *testing.T) {
	r := NewResolver(nil, slog.Default())
	if _, err := r.Endpoint(context.Background(), "myspace", ""); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Endpoint() error = %v, want ErrUnknownProvider", err)
	}
}

func TestDefaultScopes(t *testing.T) {
	if got := DefaultScopes("github"); len(got) != 2 || got[0] != "read:user" {
		t.Errorf("DefaultScopes(github) = %v", got)
	}
	if got := DefaultScopes("oidc"); len(got) == 0 || got[0] != "openid" {
		t.Errorf("DefaultScopes(oidc) = %v", got)
	}
	if got := DefaultScopes("unknown"); got != nil {
		t.Errorf("DefaultScopes(unknown) = %v, want nil", got)
	}
}

func TestIsSupported(t *testing.T) {
	for _, name := range []string{"github", "Google", "oidc"} {
		if !IsSupported(name) {
			t.Errorf("IsSupported(%q) = false", name)
		}
	}
	if IsSupported("myspace") {
		t.Error("IsSupported(myspace) = true")
	}
}
