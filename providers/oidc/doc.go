// Package oidc discovers the endpoints of an OpenID Connect provider.
//
// Discovery documents are fetched from the issuer's
// /.well-known/openid-configuration and cached per issuer. Every issuer and
// endpoint must use HTTPS; plain HTTP is accepted only on loopback hosts so a
// local Dex or Keycloak can be used during development.
//
// Example:
//
//	client := oidc.NewDiscoveryClient(nil, time.Hour, logger)
//	doc, err := client.Discover(ctx, "https://dex.example.com")
//	if err != nil {
//	    return err
//	}
//	endpoint := doc.Endpoint()
package oidc
