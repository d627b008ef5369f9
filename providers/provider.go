package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/giantswarm/oauth-relay/providers/oidc"
)

// Supported provider names
const (
	GitHub = "github"
	Google = "google"
	OIDC   = "oidc"
)

// ErrUnknownProvider is returned for a provider name that is not supported
var ErrUnknownProvider = errors.New("unknown provider")

// Names lists the supported provider names
func Names() []string {
	return []string{GitHub, Google, OIDC}
}

// DefaultScopes returns the scopes requested when none are given
func DefaultScopes(name string) []string {
	switch normalize(name) {
	case GitHub:
		return []string{"read:user", "user:email"}
	case Google, OIDC:
		return []string{"openid", "email", "profile"}
	default:
		return nil
	}
}

// Resolver maps provider names to OAuth endpoints
type Resolver struct {
	discovery *oidc.DiscoveryClient
}

// NewResolver creates a resolver. httpClient is used for OIDC discovery;
// nil uses a client with a 10 second timeout.
func NewResolver(httpClient *http.Client, logger *slog.Logger) *Resolver {
	return &Resolver{
		discovery: oidc.NewDiscoveryClient(httpClient, 0, logger),
	}
}

// Endpoint returns the endpoints for the named provider. issuer is required
// for OIDC and ignored otherwise.
func (r *Resolver) Endpoint(ctx context.Context, name, issuer string) (oauth2.Endpoint, error) {
	switch normalize(name) {
	case GitHub:
		return endpoints.GitHub, nil
	case Google:
		return endpoints.Google, nil
	case OIDC:
		if issuer == "" {
			return oauth2.Endpoint{}, errors.New("issuer is required for OIDC providers")
		}
		doc, err := r.discovery.Discover(ctx, issuer)
		if err != nil {
			return oauth2.Endpoint{}, err
		}
		return doc.Endpoint(), nil
	default:
		return oauth2.Endpoint{}, fmt.Errorf("%w %q, supported: %s", ErrUnknownProvider, name, strings.Join(Names(), ", "))
	}
}

// IsSupported reports whether name is a supported provider
func IsSupported(name string) bool {
	return slices.Contains(Names(), normalize(name))
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
