package security

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// GetClientIP returns the client address used for rate limiting and audit.
//
// With trustProxy set, X-Forwarded-For is read from the right: the last
// trustedProxyCount entries (default 1) belong to our proxies and the entry
// before them is the client. X-Real-IP is the fallback. Only enable this
// behind a reverse proxy that overwrites these headers, otherwise clients
// can pick their own rate limit bucket.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := clientFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := validIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	if trustedProxyCount <= 0 {
		trustedProxyCount = 1
	}

	hops := strings.Split(xff, ",")
	idx := len(hops) - trustedProxyCount - 1
	if idx < 0 {
		idx = 0
	}
	return validIP(hops[idx])
}

// validIP returns the canonical form of s, or "" when s is not an address
func validIP(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.String()
}
