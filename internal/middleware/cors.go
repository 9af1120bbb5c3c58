package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"museum-ticketing-platform/internal/config"
)

var (
	corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsHeaders = []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}
)

const corsMaxAge = 86400

// CORS allows the configured browser origins. Webhooks are server to server
// and ignore these headers.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && isOriginAllowed(origin, cfg.AllowedOrigins) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")

				if r.Method == http.MethodOptions {
					h.Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ", "))
					h.Set("Access-Control-Allow-Headers", strings.Join(corsHeaders, ", "))
					h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed matches exact origins, "*" and wildcard subdomains such
// as "https://*.museum.example"
func isOriginAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
		scheme, host, ok := strings.Cut(a, "*.")
		if !ok {
			continue
		}
		rest, found := strings.CutPrefix(origin, scheme)
		if found && strings.HasSuffix(rest, "."+host) {
			return true
		}
	}
	return false
}

// SecurityHeaders sets the response headers every JSON endpoint carries
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
