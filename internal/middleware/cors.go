package middleware

import (
	"net/http"
	"slices"
)

// DevOrigins are always allowed next to the configured frontend.
var DevOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// CORS echoes the request origin back when it is allowed and answers
// preflight requests directly.
func CORS(frontendURL string) func(http.Handler) http.Handler {
	allowed := slices.Clone(DevOrigins)
	if frontendURL != "" {
		allowed = append(allowed, frontendURL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && slices.Contains(allowed, origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
