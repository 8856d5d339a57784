// Package middleware provides HTTP middleware for the PNEUMA server.
package middleware

import (
	"net/http"
	"strings"

	"github.com/ashureev/pneuma-terminal/internal/identity"
)

// corsAllowHeaders are the request headers the terminal page sends: JSON
// bodies and the per-tab session id.
var corsAllowHeaders = strings.Join([]string{"Content-Type", identity.SessionHeaderName}, ", ")

const (
	corsAllowMethods = "GET, DELETE, OPTIONS"
	corsMaxAge       = "600"
)

// CORS returns middleware that lets the listed origins call the API and
// open the game socket. "*" admits any origin but never with credentials,
// so the anonymous identity cookie only travels to explicitly listed origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := false
	explicit := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		explicit[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if origin != "" && (wildcard || explicit[origin]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				if explicit[origin] {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
