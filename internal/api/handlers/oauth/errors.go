package oauth

import (
	"errors"
	"log/slog"
	"net/http"

	"Xcrol/internal/api/handlers"
	oauthcore "Xcrol/internal/core/oauth"
)

// statusForCode maps an OAuth error code to its HTTP status
func statusForCode(code string) int {
	switch code {
	case oauthcore.CodeInvalidClient, oauthcore.CodeInvalidToken:
		return http.StatusUnauthorized
	case oauthcore.CodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// writeOAuthError converts a service error into an OAuth error response.
// Errors without a protocol code are logged and reported as server_error.
func writeOAuthError(w http.ResponseWriter, err error) {
	code := oauthcore.ErrorCode(err)
	description := oauthcore.ErrorDescription(err)

	switch code {
	case oauthcore.CodeServerError:
		slog.Error("[OAUTH] internal error", "error", err)
		description = ""
	case oauthcore.CodeInvalidToken:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	handlers.WriteError(w, statusForCode(code), code, description)
}

// writeConnectionError handles the non-protocol errors of the connections API
func writeConnectionError(w http.ResponseWriter, err error) {
	if errors.Is(err, oauthcore.ErrConsentNotFound) || errors.Is(err, oauthcore.ErrClientNotFound) {
		handlers.WriteError(w, http.StatusNotFound, "not_found", "no connection exists for this application")
		return
	}
	writeOAuthError(w, err)
}
