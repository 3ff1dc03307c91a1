package oauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"Xcrol/internal/api/handlers"
	"Xcrol/internal/api/middleware"
	oauthcore "Xcrol/internal/core/oauth"
	"Xcrol/internal/web"
)

// HandleAuthorize validates an authorization request and shows the consent page
// GET /oauth/authorize
//
// With Accept: application/json the validated details are returned as JSON for
// the XCROL web app to render its own consent UI. Client and redirect_uri
// errors are always reported here and never redirected.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := middleware.GetUserID(r)

	details, err := h.service.Authorize(r.Context(), oauthcore.AuthorizationRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		UserID:              userID,
	})

	jsonMode := wantsJSON(r)
	if err != nil {
		if jsonMode {
			writeOAuthError(w, err)
		} else {
			h.renderError(w, err)
		}
		return
	}

	if jsonMode {
		handlers.WriteJSON(w, http.StatusOK, details)
		return
	}

	if userID == "" {
		h.render(w, http.StatusOK, web.SignInTemplate, web.SignInPageData{
			ClientName: details.Client.Name,
			LoginURL:   h.loginURL(r),
		})
		return
	}

	csrf, err := h.csrfToken(w, r)
	if err != nil {
		slog.Error("[OAUTH] failed to issue consent CSRF token", "error", err)
		h.renderError(w, err)
		return
	}

	h.render(w, http.StatusOK, web.ConsentTemplate, consentPage(details, csrf))
}

// HandleDecision records the user's consent decision
// POST /oauth/authorize
//
// JSON bodies receive {redirect_url}. Form posts from the consent page are
// answered with 303 See Other to the same URL and must carry the session's
// CSRF token when authenticated by cookie.
func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if isJSONContent(r) {
		var decision oauthcore.ConsentDecision
		if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
			writeOAuthError(w, &oauthcore.Error{Code: oauthcore.CodeInvalidRequest, Description: "request body is not valid JSON"})
			return
		}
		result, err := h.service.Decide(r.Context(), userID, decision)
		if err != nil {
			writeOAuthError(w, err)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, result)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderError(w, &oauthcore.Error{Code: oauthcore.CodeInvalidRequest, Description: "malformed form body"})
		return
	}

	if middleware.GetAuthMethod(r) == middleware.AuthMethodCookie && !h.validCSRF(r, r.PostForm.Get("csrf_token")) {
		slog.Warn("[OAUTH] consent form rejected: CSRF token mismatch",
			"client_id", r.PostForm.Get("client_id"),
		)
		h.render(w, http.StatusForbidden, web.ErrorTemplate, web.ErrorPageData{
			Title:       "Session expired",
			Code:        oauthcore.CodeAccessDenied,
			Description: "The consent form has expired. Go back to the app and start again.",
		})
		return
	}

	scopes := r.PostForm["scopes"]
	if len(scopes) == 0 {
		scopes = strings.Fields(r.PostForm.Get("scope"))
	}

	result, err := h.service.Decide(r.Context(), userID, oauthcore.ConsentDecision{
		ClientID:            r.PostForm.Get("client_id"),
		RedirectURI:         r.PostForm.Get("redirect_uri"),
		State:               r.PostForm.Get("state"),
		CodeChallenge:       r.PostForm.Get("code_challenge"),
		CodeChallengeMethod: r.PostForm.Get("code_challenge_method"),
		Action:              r.PostForm.Get("action"),
		Scope:               r.PostForm.Get("scope"),
		Scopes:              scopes,
	})
	if err != nil {
		h.renderError(w, err)
		return
	}

	http.Redirect(w, r, result.RedirectURL, http.StatusSeeOther)
}

func consentPage(details *oauthcore.AuthorizationDetails, csrf string) web.ConsentPageData {
	granted := make(map[oauthcore.ScopeID]bool, len(details.PreviouslyGranted))
	for _, id := range details.PreviouslyGranted {
		granted[id] = true
	}

	scopes := make([]web.ConsentScope, 0, len(details.Scopes))
	for _, s := range details.Scopes {
		scopes = append(scopes, web.ConsentScope{
			ID:          string(s.ID),
			Name:        s.Name,
			Description: s.Description,
			Required:    s.Required,
			Checked:     true,
			Granted:     granted[s.ID],
		})
	}

	requested := make([]string, 0, len(details.Scopes))
	for _, s := range details.Scopes {
		requested = append(requested, string(s.ID))
	}

	return web.ConsentPageData{
		ClientID:            details.Client.ID,
		ClientName:          details.Client.Name,
		ClientDescription:   details.Client.Description,
		LogoURL:             details.Client.LogoURL,
		HomepageURL:         details.Client.HomepageURL,
		Verified:            details.Client.IsVerified,
		RedirectURI:         details.RedirectURI,
		State:               details.State,
		CodeChallenge:       details.CodeChallenge,
		CodeChallengeMethod: details.CodeChallengeMethod,
		CSRFToken:           csrf,
		Scope:               strings.Join(requested, " "),
		Scopes:              scopes,
	}
}

// csrfToken returns the consent CSRF token stored in the session, creating
// one when the session has none.
func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if h.cookies == nil {
		return "", nil
	}
	// a decode error still yields a usable empty session
	session, _ := h.cookies.Get(r, middleware.SessionName)
	if token, ok := session.Values[middleware.SessionCSRFKey].(string); ok && token != "" {
		return token, nil
	}

	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	session.Values[middleware.SessionCSRFKey] = token
	if err := session.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return token, nil
}

func (h *Handler) validCSRF(r *http.Request, presented string) bool {
	if h.cookies == nil || presented == "" {
		return false
	}
	session, err := h.cookies.Get(r, middleware.SessionName)
	if err != nil {
		return false
	}
	expected, _ := session.Values[middleware.SessionCSRFKey].(string)
	return expected != "" && subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// loginURL sends the user to the platform sign-in page and back here afterwards
func (h *Handler) loginURL(r *http.Request) string {
	u, err := url.Parse(h.config.LoginURL)
	if err != nil || h.config.LoginURL == "" {
		u = &url.URL{Path: "/login"}
	}
	q := u.Query()
	q.Set("next", r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handler) renderError(w http.ResponseWriter, err error) {
	code := oauthcore.ErrorCode(err)
	description := oauthcore.ErrorDescription(err)
	if code == oauthcore.CodeServerError {
		slog.Error("[OAUTH] internal error", "error", err)
	}
	h.render(w, statusForCode(code), web.ErrorTemplate, web.ErrorPageData{
		Title:       errorTitle(code),
		Code:        code,
		Description: description,
	})
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data interface{}) {
	if err := h.templates.Render(w, status, name, data); err != nil {
		slog.Error("[OAUTH] failed to render page", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func errorTitle(code string) string {
	switch code {
	case oauthcore.CodeInvalidClient:
		return "Unknown application"
	case oauthcore.CodeAccessDenied:
		return "Access denied"
	case oauthcore.CodeServerError:
		return "Something went wrong"
	default:
		return "Invalid authorization request"
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func isJSONContent(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}
