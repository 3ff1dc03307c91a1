package oauth

import (
	"net/http"
	"strings"

	"Xcrol/internal/api/handlers"
)

// HandleUserInfo returns the claims the access token's scopes allow
// GET /oauth/userinfo
func (h *Handler) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	claims, err := h.service.UserInfo(r.Context(), bearerToken(r))
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	handlers.WriteJSON(w, http.StatusOK, claims)
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
