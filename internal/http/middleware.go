package http

import (
	"net/http"
	"strings"
)

// SecurityHeaders adds security-related headers to all responses. Credential
// and account responses are never cached, and HSTS is only sent in production.
func SecurityHeaders(isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// Swagger UI needs scripts, styles, and images to render
			if strings.HasPrefix(r.URL.Path, "/swagger/") {
				h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			} else {
				h.Set("Content-Security-Policy", "default-src 'none'")
			}

			if isSensitivePath(r.URL.Path) {
				h.Set("Cache-Control", "no-store")
			}

			if isProduction {
				h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSensitivePath(path string) bool {
	return strings.HasPrefix(path, "/auth/") || path == "/me" || strings.HasPrefix(path, "/otp/")
}
