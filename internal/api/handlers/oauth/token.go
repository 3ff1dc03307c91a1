package oauth

import (
	"encoding/json"
	"net/http"
	"net/url"

	"Xcrol/internal/api/handlers"
	oauthcore "Xcrol/internal/core/oauth"
)

// HandleToken issues tokens for the authorization_code and refresh_token grants
// POST /oauth/token
//
// Accepts a JSON or form-encoded body. Client credentials may also be sent
// with HTTP Basic authentication.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, err := parseTokenRequest(r)
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	var resp *oauthcore.TokenResponse
	switch req.GrantType {
	case oauthcore.GrantTypeAuthorizationCode:
		resp, err = h.service.Exchange(r.Context(), req)
	case oauthcore.GrantTypeRefreshToken:
		resp, err = h.service.Refresh(r.Context(), req)
	case "":
		err = &oauthcore.Error{Code: oauthcore.CodeInvalidRequest, Description: "grant_type is required"}
	default:
		err = &oauthcore.Error{Code: oauthcore.CodeUnsupportedGrantType, Description: "unsupported grant_type"}
	}
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, resp)
}

func parseTokenRequest(r *http.Request) (oauthcore.TokenRequest, error) {
	var req oauthcore.TokenRequest

	if isJSONContent(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, &oauthcore.Error{Code: oauthcore.CodeInvalidRequest, Description: "request body is not valid JSON"}
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, &oauthcore.Error{Code: oauthcore.CodeInvalidRequest, Description: "malformed form body"}
		}
		req = oauthcore.TokenRequest{
			GrantType:    r.PostForm.Get("grant_type"),
			Code:         r.PostForm.Get("code"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
			RefreshToken: r.PostForm.Get("refresh_token"),
		}
	}

	// client_secret_basic (RFC 6749 section 2.3.1)
	if user, pass, ok := r.BasicAuth(); ok {
		id, idErr := url.QueryUnescape(user)
		secret, secretErr := url.QueryUnescape(pass)
		if idErr != nil || secretErr != nil {
			return req, &oauthcore.Error{Code: oauthcore.CodeInvalidClient, Description: "malformed basic credentials"}
		}
		if req.ClientID != "" && req.ClientID != id {
			return req, &oauthcore.Error{Code: oauthcore.CodeInvalidRequest, Description: "client_id does not match basic credentials"}
		}
		req.ClientID = id
		req.ClientSecret = secret
	}

	return req, nil
}
