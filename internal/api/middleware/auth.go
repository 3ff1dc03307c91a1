package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// Context keys for storing user information
type contextKey string

const (
	UserIDKey     contextKey = "user_id"
	AuthMethodKey contextKey = "auth_method"
)

// Authentication methods recorded in the request context
const (
	AuthMethodBearer = "bearer"
	AuthMethodCookie = "cookie"
)

// Session cookie layout shared with the consent page handlers
const (
	SessionName       = "xcrol_session"
	SessionUserIDKey  = "user_id"
	SessionCSRFKey    = "csrf_token"
	platformJWTIssuer = "xcrol"
)

// UserAuth resolves the signed-in XCROL user. The platform issues sessions;
// this service only verifies them. Two carriers are accepted: a platform
// session JWT in the Authorization header (HS256) and the browser session
// cookie.
type UserAuth struct {
	cookies   sessions.Store
	jwtSecret []byte
}

// NewUserAuth creates the user authentication middleware
func NewUserAuth(jwtSecret string, cookies sessions.Store) *UserAuth {
	if jwtSecret == "" && cookies == nil {
		panic("middleware: a JWT secret or cookie store is required")
	}
	return &UserAuth{jwtSecret: []byte(jwtSecret), cookies: cookies}
}

// RequireUser rejects requests without a signed-in user with 401
func (m *UserAuth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, method, err := m.resolve(r)
		if err != nil {
			slog.Warn("[AUTH_FAILURE] user authentication failed",
				"path", r.URL.Path,
				"method", r.Method,
				"error", err,
			)
			writeAuthError(w, "Sign in to XCROL to continue")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userID, method)))
	})
}

// OptionalUser loads the user when present but never rejects the request
func (m *UserAuth) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, method, err := m.resolve(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userID, method)))
	})
}

var errNoCredentials = errors.New("no session credentials")

func (m *UserAuth) resolve(r *http.Request) (string, string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", "", errors.New("invalid Authorization header format")
		}
		userID, err := m.verifySessionJWT(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
		if err != nil {
			return "", "", err
		}
		return userID, AuthMethodBearer, nil
	}

	if m.cookies == nil {
		return "", "", errNoCredentials
	}
	session, err := m.cookies.Get(r, SessionName)
	if err != nil {
		return "", "", fmt.Errorf("invalid session cookie: %w", err)
	}
	raw, _ := session.Values[SessionUserIDKey].(string)
	if raw == "" {
		return "", "", errNoCredentials
	}
	userID, err := normalizeUserID(raw)
	if err != nil {
		return "", "", err
	}
	return userID, AuthMethodCookie, nil
}

func (m *UserAuth) verifySessionJWT(tokenString string) (string, error) {
	if len(m.jwtSecret) == 0 {
		return "", errors.New("bearer sessions are not enabled")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(platformJWTIssuer),
	)
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	return normalizeUserID(claims.Subject)
}

func normalizeUserID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("session subject is not a user id: %w", err)
	}
	return id.String(), nil
}

func withUser(ctx context.Context, userID, method string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, AuthMethodKey, method)
}

// GetUserID extracts the signed-in user's id from the request context
// Returns empty string if not authenticated
func GetUserID(r *http.Request) string {
	return GetAuthenticatedUserID(r.Context())
}

// GetAuthenticatedUserID is GetUserID for code that only has a context
func GetAuthenticatedUserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

// GetAuthMethod reports how the user authenticated ("bearer" or "cookie")
func GetAuthMethod(r *http.Request) string {
	method, _ := r.Context().Value(AuthMethodKey).(string)
	return method
}

// SetTestUserID sets the user id in the context for testing purposes
// This function should ONLY be used in tests to mock authenticated users
func SetTestUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// NewSessionToken signs a platform session JWT the way the platform does.
func NewSessionToken(secret, userID string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = userID
	claims.Issuer = platformJWTIssuer
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// writeAuthError writes a JSON error response for authentication failures
func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="xcrol"`)
	w.WriteHeader(http.StatusUnauthorized)
	response := `{"error":"AuthenticationRequired","message":"` + message + `"}`
	if _, err := w.Write([]byte(response)); err != nil {
		slog.Error("failed to write auth error response", "error", err)
	}
}
