package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2/endpoints"

	"github.com/giantswarm/oauth-relay/providers"
)

func runAwaitCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newAwaitCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func awaitArgs(relayURL string, extra ...string) []string {
	return append([]string{
		"--relay-url", relayURL,
		"--api-key", "cli-key",
		"--client-id", "client-id",
		"--auth-url", "https://provider.example.com/authorize",
		"--timeout", "5s",
	}, extra...)
}

func TestAwaitCmd_Push(t *testing.T) {
	stack, ts := startStack(t, serveConfig{Mode: "push", APIKey: "cli-key"})

	go func() {
		deadline := time.Now().Add(3 * time.Second)
		for stack.store.SessionCount() == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if resp, err := http.Get(ts.URL + "/redirect?state=push-state&code=push-code"); err == nil {
			_ = resp.Body.Close()
		}
	}()

	out, err := runAwaitCmd(t, awaitArgs(ts.URL, "--state", "push-state")...)
	if err != nil {
		t.Fatalf("await error = %v", err)
	}

	if !strings.Contains(out, "state=push-state") {
		t.Errorf("output lacks the authorization URL:\n%s", out)
	}
	if !strings.Contains(out, "redirect_uri="+url.QueryEscape(ts.URL+"/redirect")) {
		t.Errorf("output lacks the default redirect URL:\n%s", out)
	}
	if !strings.Contains(out, "code_challenge_method=S256") {
		t.Errorf("output lacks the PKCE challenge:\n%s", out)
	}
	if !strings.HasSuffix(out, "push-code\n") {
		t.Errorf("output = %q, want the code last", out)
	}
}

func TestAwaitCmd_PullWithExchange(t *testing.T) {
	_, ts := startStack(t, serveConfig{Mode: "pull", APIKey: "cli-key"})

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "pull-code" {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-123","token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	go func() {
		time.Sleep(100 * time.Millisecond)
		if resp, err := http.Get(ts.URL + "/redirect?state=pull-state&code=pull-code"); err == nil {
			_ = resp.Body.Close()
		}
	}()

	out, err := runAwaitCmd(t, awaitArgs(ts.URL,
		"--state", "pull-state",
		"--pull",
		"--poll-interval", "20ms",
		"--exchange",
		"--token-url", tokenServer.URL,
	)...)
	if err != nil {
		t.Fatalf("await error = %v", err)
	}
	if !strings.Contains(out, `"access_token": "access-123"`) {
		t.Errorf("output lacks the token:\n%s", out)
	}
}

func TestAwaitCmd_Errors(t *testing.T) {
	_, ts := startStack(t, serveConfig{Mode: "push", APIKey: "cli-key"})

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing flags", []string{"--relay-url", ts.URL}, "required flag"},
		{"exchange without token url", awaitArgs(ts.URL, "--exchange"), "--token-url"},
		{"bad relay url", awaitArgs("ftp://relay.example.com"), "http or https"},
		{"no endpoint", []string{"--relay-url", ts.URL, "--api-key", "k", "--client-id", "c"}, "--auth-url or --provider"},
		{"unknown provider", []string{"--relay-url", ts.URL, "--api-key", "k", "--client-id", "c", "--provider", "myspace"}, "unknown provider"},
		{"timeout", awaitArgs(ts.URL, "--timeout", "100ms"), "failed to receive code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runAwaitCmd(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("await error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAwaitOptions_OAuthConfig(t *testing.T) {
	resolver := providers.NewResolver(nil, nil)

	o := &awaitOptions{
		relayURL: "https://relay.example.com/base",
		clientID: "id",
		provider: "github",
	}
	cfg, err := o.oauthConfig(context.Background(), resolver)
	if err != nil {
		t.Fatalf("oauthConfig() error = %v", err)
	}
	if cfg.Endpoint.AuthURL != endpoints.GitHub.AuthURL {
		t.Errorf("AuthURL = %q, want GitHub's", cfg.Endpoint.AuthURL)
	}
	if cfg.RedirectURL != "https://relay.example.com/base/redirect" {
		t.Errorf("RedirectURL = %q", cfg.RedirectURL)
	}
	if len(cfg.Scopes) == 0 {
		t.Error("Scopes empty, want provider defaults")
	}

	o.tokenURL = "https://tokens.example.com/token"
	o.scopes = []string{"repo"}
	cfg, err = o.oauthConfig(context.Background(), resolver)
	if err != nil {
		t.Fatalf("oauthConfig() error = %v", err)
	}
	if cfg.Endpoint.TokenURL != o.tokenURL {
		t.Errorf("TokenURL = %q, want the explicit one", cfg.Endpoint.TokenURL)
	}
	if len(cfg.Scopes) != 1 || cfg.Scopes[0] != "repo" {
		t.Errorf("Scopes = %v, want [repo]", cfg.Scopes)
	}
}
