// Package headerwrites exercises the cspheaderwrite analyzer.
package headerwrites

import "net/http"

func handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Security-Policy", "default-src 'self'")             // want `hand-written CSP header write; build the policy with github.com/google/go-csp/csp and set it via csphttp`
	w.Header().Add("content-security-policy-report-only", "default-src 'self'") // want `hand-written CSP header write; build the policy with github.com/google/go-csp/csp and set it via csphttp`

	// Unrelated headers and non-header Set calls are fine.
	w.Header().Set("X-Content-Type-Options", "nosniff")
	r.URL.Query().Set("Content-Security-Policy", "not a header")
}
