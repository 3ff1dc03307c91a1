package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// APIKeyHeader carries the platform-level key on token and user info calls.
// It gates access to the backend and is unrelated to OAuth client credentials.
const APIKeyHeader = "apikey"

// RequireAPIKey rejects requests whose apikey header is not one of keys.
// An empty key list disables the check.
func RequireAPIKey(keys []string) func(http.Handler) http.Handler {
	digests := make([][sha256.Size]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(digests) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(APIKeyHeader)
			if presented == "" || !matchesAny(digests, presented) {
				slog.Warn("[AUTH_FAILURE] missing or invalid api key",
					"path", r.URL.Path,
					"ip", getClientIP(r),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_request","error_description":"missing or invalid apikey header"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// matchesAny compares digests so every comparison takes the same time
// regardless of the presented key's length.
func matchesAny(digests [][sha256.Size]byte, presented string) bool {
	sum := sha256.Sum256([]byte(presented))
	match := 0
	for i := range digests {
		match |= subtle.ConstantTimeCompare(digests[i][:], sum[:])
	}
	return match == 1
}
