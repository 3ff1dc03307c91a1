package oauth

import (
	"net/http"
	"strings"

	"Xcrol/internal/api/handlers"
	oauthcore "Xcrol/internal/core/oauth"
)

// ServerMetadata is the authorization server metadata document (RFC 8414)
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// HandleMetadata serves the authorization server metadata
// GET /.well-known/oauth-authorization-server
func (h *Handler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	issuer := strings.TrimRight(h.config.Issuer, "/")

	catalog := oauthcore.Catalog()
	scopes := make([]string, 0, len(catalog))
	for _, s := range catalog {
		scopes = append(scopes, string(s.ID))
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	handlers.WriteJSON(w, http.StatusOK, ServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + AuthorizePath,
		TokenEndpoint:                     issuer + TokenPath,
		UserinfoEndpoint:                  issuer + UserInfoPath,
		ResponseTypesSupported:            []string{oauthcore.ResponseTypeCode},
		GrantTypesSupported:               []string{oauthcore.GrantTypeAuthorizationCode, oauthcore.GrantTypeRefreshToken},
		ScopesSupported:                   scopes,
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "client_secret_basic", "none"},
		CodeChallengeMethodsSupported:     []string{oauthcore.PKCEMethodS256, oauthcore.PKCEMethodPlain},
	})
}
