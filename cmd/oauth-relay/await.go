package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-relay/client"
	"github.com/giantswarm/oauth-relay/providers"
)

type awaitOptions struct {
	relayURL     string
	apiKey       string
	clientID     string
	clientSecret string
	provider     string
	issuer       string
	authURL      string
	tokenURL     string
	redirectURL  string
	scopes       []string
	state        string
	pull         bool
	pkce         bool
	exchange     bool
	timeout      time.Duration
	pollInterval time.Duration
}

func newAwaitCmd() *cobra.Command {
	opts := &awaitOptions{}

	cmd := &cobra.Command{
		Use:   "await",
		Short: "Start an OAuth flow and wait for the relayed code",
		Long: `Print the provider's authorization URL, then wait for the relay to
hand over the authorization code and print it.

In push mode the code arrives over the relay's WebSocket. With --pull the
relay's /retrieval endpoint is polled instead. With --exchange the code is
traded for a token at the token endpoint and the token is printed as JSON.

The provider endpoints come from --provider (github, google, or oidc with
--issuer) or are given directly with --auth-url and --token-url; explicit
URLs win.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAwait(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.relayURL, "relay-url", "", "Base URL of the relay (required)")
	flags.StringVar(&opts.apiKey, "api-key", "", "Relay API key (required)")
	flags.StringVar(&opts.clientID, "client-id", "", "OAuth client ID (required)")
	flags.StringVar(&opts.clientSecret, "client-secret", "", "OAuth client secret")
	flags.StringVar(&opts.provider, "provider", "", "Provider preset: github, google or oidc")
	flags.StringVar(&opts.issuer, "issuer", "", "OIDC issuer URL for --provider oidc")
	flags.StringVar(&opts.authURL, "auth-url", "", "Provider authorization endpoint")
	flags.StringVar(&opts.tokenURL, "token-url", "", "Provider token endpoint")
	flags.StringVar(&opts.redirectURL, "redirect-url", "", "Redirect URL registered with the provider (default <relay-url>/redirect)")
	flags.StringSliceVar(&opts.scopes, "scopes", nil, "OAuth scopes")
	flags.StringVar(&opts.state, "state", "", "State to use instead of a random one")
	flags.BoolVar(&opts.pull, "pull", false, "Poll /retrieval instead of waiting on the WebSocket")
	flags.BoolVar(&opts.pkce, "pkce", true, "Send a PKCE S256 challenge")
	flags.BoolVar(&opts.exchange, "exchange", false, "Exchange the code for a token")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "How long to wait for the code")
	flags.DurationVar(&opts.pollInterval, "poll-interval", client.DefaultPollInterval, "Interval between retrieval polls")

	_ = cmd.MarkFlagRequired("relay-url")
	_ = cmd.MarkFlagRequired("api-key")
	_ = cmd.MarkFlagRequired("client-id")

	return cmd
}

// oauthConfig builds the provider config with the relay as redirect target
func (o *awaitOptions) oauthConfig(ctx context.Context, resolver *providers.Resolver) (*oauth2.Config, error) {
	var endpoint oauth2.Endpoint
	scopes := o.scopes
	if o.provider != "" {
		var err error
		endpoint, err = resolver.Endpoint(ctx, o.provider, o.issuer)
		if err != nil {
			return nil, err
		}
		if len(scopes) == 0 {
			scopes = providers.DefaultScopes(o.provider)
		}
	}
	if o.authURL != "" {
		endpoint.AuthURL = o.authURL
	}
	if o.tokenURL != "" {
		endpoint.TokenURL = o.tokenURL
	}
	if endpoint.AuthURL == "" {
		return nil, errors.New("--auth-url or --provider is required")
	}

	redirectURL := o.redirectURL
	if redirectURL == "" {
		u, err := url.Parse(o.relayURL)
		if err != nil {
			return nil, fmt.Errorf("invalid relay URL: %w", err)
		}
		redirectURL = u.JoinPath("redirect").String()
	}

	return &oauth2.Config{
		ClientID:     o.clientID,
		ClientSecret: o.clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}, nil
}

func runAwait(cmd *cobra.Command, o *awaitOptions) error {
	c, err := client.New(o.relayURL, o.apiKey)
	if err != nil {
		return err
	}
	cfg, err := o.oauthConfig(cmd.Context(), providers.NewResolver(nil, nil))
	if err != nil {
		return err
	}
	if o.exchange && cfg.Endpoint.TokenURL == "" {
		return errors.New("--exchange requires --token-url or --provider")
	}

	var authOpts, exchangeOpts []oauth2.AuthCodeOption
	if o.pkce {
		verifier := oauth2.GenerateVerifier()
		authOpts = append(authOpts, oauth2.S256ChallengeOption(verifier))
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(verifier))
	}

	state := o.state
	if state == "" {
		state = client.NewState()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Open this URL in your browser:\n\n  %s\n\n", client.AuthCodeURL(cfg, state, authOpts...))

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	var code string
	if o.pull {
		code, err = c.Poll(ctx, state, o.pollInterval)
	} else {
		var result *client.Result
		result, err = c.Await(ctx, state)
		if result != nil {
			code = result.Code
		}
	}
	if err != nil {
		return fmt.Errorf("failed to receive code: %w", err)
	}

	if !o.exchange {
		fmt.Fprintln(out, code)
		return nil
	}

	token, err := client.Exchange(ctx, cfg, code, exchangeOpts...)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(token)
}
