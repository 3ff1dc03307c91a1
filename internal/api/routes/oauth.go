package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"Xcrol/internal/api/handlers/oauth"
	"Xcrol/internal/api/middleware"
)

// OAuthRouteConfig configures the protections around the OAuth endpoints
type OAuthRouteConfig struct {
	// AllowedOrigins may call the token and user info endpoints from a browser
	AllowedOrigins []string
	// APIKeys gate the backend endpoints (token, user info). Empty disables the check.
	APIKeys []string
}

// RegisterOAuthRoutes registers the authorization server endpoints with dedicated rate limiting
//   - consent endpoints are limited per IP to slow down scripted consent
//   - token endpoint is limited per IP to slow down code and secret guessing
//   - user info gets a higher limit since apps poll it
//
// The returned func stops the limiters' cleanup goroutines.
func RegisterOAuthRoutes(r chi.Router, handler *oauth.Handler, auth *middleware.UserAuth, cfg OAuthRouteConfig) (stop func()) {
	consentLimiter := middleware.NewRateLimiter(30, 1*time.Minute)
	tokenLimiter := middleware.NewRateLimiter(60, 1*time.Minute)
	userInfoLimiter := middleware.NewRateLimiter(300, 1*time.Minute)
	stop = func() {
		consentLimiter.Close()
		tokenLimiter.Close()
		userInfoLimiter.Close()
	}

	// Discovery - public, global limit only
	r.Get(oauth.MetadataPath, handler.HandleMetadata)

	// Browser consent flow
	r.With(consentLimiter.Middleware, auth.OptionalUser).Get(oauth.AuthorizePath, handler.HandleAuthorize)
	r.With(consentLimiter.Middleware, auth.RequireUser).Post(oauth.AuthorizePath, handler.HandleDecision)

	// Connected apps for the signed-in user
	r.With(auth.RequireUser).Get(oauth.ConnectionsPath, handler.HandleListConnections)
	r.With(auth.RequireUser).Delete(oauth.ConnectionsPath+"/{clientID}", handler.HandleRevokeConnection)

	// Backend endpoints called by registered applications
	r.Group(func(r chi.Router) {
		r.Use(corsMiddleware(cfg.AllowedOrigins))
		r.Use(middleware.RequireAPIKey(cfg.APIKeys))

		r.With(tokenLimiter.Middleware).Post(oauth.TokenPath, handler.HandleToken)
		r.With(userInfoLimiter.Middleware).Get(oauth.UserInfoPath, handler.HandleUserInfo)

		// preflight is answered by the CORS middleware
		r.Options(oauth.TokenPath, noContent)
		r.Options(oauth.UserInfoPath, noContent)
	})

	return stop
}

// corsMiddleware allows configured origins to call the backend endpoints.
// Credentials are never allowed: these endpoints authenticate with an API key
// and bearer tokens only.
func corsMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			middleware.APIKeyHeader,
		},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	})
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
