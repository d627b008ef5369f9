package security

import "net/http"

// SetSecurityHeaders sets the headers every relay response carries. The
// redirect page is shown in a browser right after the provider hands over
// the authorization code, so it must never be cached, framed or sniffed.
// HSTS is only sent when the request arrived over TLS.
func SetSecurityHeaders(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

	// the redirect URL carries the code; keep it out of Referer headers
	h.Set("Referrer-Policy", "no-referrer")

	if r != nil && r.TLS != nil {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	h.Set("Pragma", "no-cache")
}
