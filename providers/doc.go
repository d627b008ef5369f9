// Package providers resolves the OAuth endpoints of well-known identity
// providers for clients of the relay.
//
// GitHub and Google endpoints are built in. Any other OpenID Connect
// provider (Dex, Keycloak, Azure AD, ...) is resolved from its issuer through
// the discovery helpers in providers/oidc.
//
// Example usage:
//
//	resolver := providers.NewResolver(nil, logger)
//	endpoint, err := resolver.Endpoint(ctx, providers.OIDC, "https://dex.example.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := &oauth2.Config{
//	    ClientID:    "your-client-id",
//	    RedirectURL: "https://relay.example.com/redirect",
//	    Scopes:      providers.DefaultScopes(providers.OIDC),
//	    Endpoint:    endpoint,
//	}
package providers
