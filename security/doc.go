// Package security provides the relay's protective layers: the accepted API
// key set, per-IP rate limiting, PII-safe audit logging, request ids,
// response security headers and client IP extraction.
//
// # API Keys
//
// KeySet accepts plain keys and bcrypt hashes side by side:
//
//	keys, err := security.NewKeySet(security.ParseKeyList(os.Getenv("API_KEYS")))
//	if errors.Is(err, security.ErrNoAPIKeys) {
//	    // refuse to start
//	}
//
// Plain entries are compared in constant time. Hashed entries cost one
// bcrypt comparison each, so prefer a few of them over many.
//
// # Rate Limiting
//
// The RateLimiter provides per-identifier rate limiting using a token bucket
// algorithm with LRU eviction. At most DefaultMaxLimiterEntries identifiers
// are tracked; limiters idle for 30 minutes are dropped every 5 minutes.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // 429
//	}
//
// # Audit Logging
//
// Auditor writes one "security_audit" log line per event. State tokens and
// API keys only appear as truncated SHA-256 digests, and authorization codes
// never appear at all.
package security
