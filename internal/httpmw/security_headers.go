package httpmw

import (
	"net/http"
	"strings"
)

// The public host serves pages that load the ad network's loader script
// from a third-party CDN and run an inline configuration block, so the
// policy allows those hosts and inline scripts. The site is read-only and
// sessionless; there is no CSRF surface.

// SecurityHeaders sets the response security headers. adHosts are the
// hosts the page may load scripts, frames and images from, e.g.
// "cdn.oboxads.com".
func SecurityHeaders(adHosts ...string) func(http.Handler) http.Handler {
	csp := contentSecurityPolicy(adHosts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			h.Set("Cross-Origin-Opener-Policy", "same-origin-allow-popups")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}
}

func contentSecurityPolicy(adHosts []string) string {
	var ext []string
	for _, h := range adHosts {
		if h = strings.TrimSpace(h); h != "" {
			ext = append(ext, "https://"+h)
		}
	}
	with := func(base ...string) string {
		return strings.Join(append(base, ext...), " ")
	}
	return strings.Join([]string{
		"default-src 'self'",
		"script-src " + with("'self'", "'unsafe-inline'"),
		"style-src 'self' 'unsafe-inline'",
		"img-src " + with("'self'", "data:"),
		"frame-src " + with("'self'"),
		"connect-src " + with("'self'"),
		"font-src 'self'",
		"base-uri 'self'",
		"form-action 'self'",
		"frame-ancestors 'self'",
		"object-src 'none'",
		"upgrade-insecure-requests",
	}, "; ")
}
