package oauth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"Xcrol/internal/api/handlers"
	"Xcrol/internal/api/middleware"
	oauthcore "Xcrol/internal/core/oauth"
)

type connectionsResponse struct {
	Connections []*oauthcore.Connection `json:"connections"`
}

// HandleListConnections lists the applications the signed-in user has authorized
// GET /oauth/connections
func (h *Handler) HandleListConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := h.service.ListConnections(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeConnectionError(w, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, connectionsResponse{Connections: connections})
}

// HandleRevokeConnection removes an application's access
// DELETE /oauth/connections/{clientID}
func (h *Handler) HandleRevokeConnection(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		writeOAuthError(w, &oauthcore.Error{Code: oauthcore.CodeInvalidRequest, Description: "client id is required"})
		return
	}

	if err := h.service.RevokeConnection(r.Context(), middleware.GetUserID(r), clientID); err != nil {
		writeConnectionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
