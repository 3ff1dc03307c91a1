package oauth

import (
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

// NewCookieStore creates the store for the platform browser session and the
// consent page CSRF token. The secret must match the one used by the XCROL
// web app that signs users in.
func NewCookieStore(secret string, secure bool) (*sessions.CookieStore, error) {
	if len(secret) < MinCookieSecretLength {
		return nil, fmt.Errorf("SESSION_COOKIE_SECRET must be at least %d bytes for security", MinCookieSecretLength)
	}
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   SessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}
