package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Xcrol/internal/api/middleware"
	oauthcore "Xcrol/internal/core/oauth"
	"Xcrol/internal/core/users"
	"Xcrol/internal/db/memory"
	"Xcrol/internal/web"
)

const (
	aliceID          = "0b6c7f8e-1111-4a2b-9c3d-4e5f6a7b8c9d"
	redirectCB       = "https://acme.test/cb"
	testJWTSecret    = "platform-session-secret"
	testCookieSecret = "0123456789abcdef0123456789abcdef"

	// RFC 7636 appendix B
	pkceVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	pkceChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

type harness struct {
	router  http.Handler
	service oauthcore.Service
	cookies *sessions.CookieStore
	client  *oauthcore.Client
	secret  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	profiles := memory.NewUserStore()
	profiles.PutProfile(users.Profile{
		ID:            aliceID,
		Username:      "alice",
		DisplayName:   "Alice",
		Email:         "alice@example.com",
		EmailVerified: true,
		Hometown:      &users.Hometown{City: "London", Country: "GB"},
	})

	service := oauthcore.NewService(memory.NewOAuthStore(), users.NewUserService(profiles))
	client, secret, err := service.RegisterClient(context.Background(), oauthcore.RegisterClientRequest{
		Name:         "Acme",
		RedirectURIs: []string{redirectCB},
	})
	require.NoError(t, err)

	templates, err := web.NewTemplates()
	require.NoError(t, err)
	cookies, err := NewCookieStore(testCookieSecret, false)
	require.NoError(t, err)

	h := NewHandler(service, templates, cookies, HandlerConfig{
		Issuer:   "https://auth.xcrol.test/",
		LoginURL: "https://xcrol.test/login",
	})
	auth := middleware.NewUserAuth(testJWTSecret, cookies)

	r := chi.NewRouter()
	r.With(auth.OptionalUser).Get(AuthorizePath, h.HandleAuthorize)
	r.With(auth.RequireUser).Post(AuthorizePath, h.HandleDecision)
	r.Post(TokenPath, h.HandleToken)
	r.Get(UserInfoPath, h.HandleUserInfo)
	r.With(auth.RequireUser).Get(ConnectionsPath, h.HandleListConnections)
	r.With(auth.RequireUser).Delete(ConnectionsPath+"/{clientID}", h.HandleRevokeConnection)
	r.Get(MetadataPath, h.HandleMetadata)

	return &harness{router: r, service: service, cookies: cookies, client: client, secret: secret}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) sessionJWT(t *testing.T) string {
	t.Helper()
	token, err := middleware.NewSessionToken(testJWTSecret, aliceID, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	return token
}

func (h *harness) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, err := h.cookies.New(req, middleware.SessionName)
	require.NoError(t, err)
	session.Values[middleware.SessionUserIDKey] = aliceID
	require.NoError(t, session.Save(req, rec))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func (h *harness) authorizeURL(params map[string]string) string {
	q := url.Values{}
	q.Set("client_id", h.client.ID)
	q.Set("redirect_uri", redirectCB)
	q.Set("response_type", "code")
	for k, v := range params {
		q.Set(k, v)
	}
	return AuthorizePath + "?" + q.Encode()
}

func (h *harness) decide(t *testing.T, decision map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(decision)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, AuthorizePath, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.sessionJWT(t))
	return h.do(req)
}

func (h *harness) token(form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, TokenPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

func (h *harness) userInfo(accessToken string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, UserInfoPath, nil)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return h.do(req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func codeFrom(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.NotEmpty(t, code, redirect)
	return code
}

func TestAuthorize_RedirectMismatchIsNeverRedirected(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, h.authorizeURL(map[string]string{
		"redirect_uri": "https://evil.test/cb",
	}), nil)
	req.Header.Set("Accept", "application/json")
	rec := h.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_request", body["error"])
	assert.Equal(t, "redirect_uri_mismatch", body["error_description"])

	// HTML callers get the error page instead
	rec = h.do(httptest.NewRequest(http.MethodGet, h.authorizeURL(map[string]string{
		"redirect_uri": "https://evil.test/cb",
	}), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Contains(t, rec.Body.String(), "redirect_uri_mismatch")
	assert.NotContains(t, rec.Body.String(), "evil.test")
}

func TestAuthorize_UnknownClient(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, AuthorizePath+"?client_id=nope&redirect_uri=https%3A%2F%2Facme.test%2Fcb&response_type=code", nil)
	req.Header.Set("Accept", "application/json")
	rec := h.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_client", decodeBody(t, rec)["error"])
}

func TestAuthorize_UnsupportedResponseType(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, h.authorizeURL(map[string]string{"response_type": "token"}), nil)
	req.Header.Set("Accept", "application/json")
	rec := h.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_response_type", decodeBody(t, rec)["error"])
}

func TestAuthorize_SignedOutSeesSignInPage(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, h.authorizeURL(map[string]string{"state": "s1"}), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Sign in to XCROL")
	assert.Contains(t, body, "https://xcrol.test/login?next=%2Foauth%2Fauthorize")
	assert.NotContains(t, body, "csrf_token")
}

func TestAuthorize_JSONDetails(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, h.authorizeURL(map[string]string{
		"scope": "profile:email hometown:read",
		"state": "abc123",
	}), nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.sessionJWT(t))
	rec := h.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var details oauthcore.AuthorizationDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	assert.Equal(t, "Acme", details.Client.Name)
	assert.Equal(t, "abc123", details.State)
	assert.True(t, details.ConsentRequired)
	require.Len(t, details.Scopes, 3)
	assert.Equal(t, oauthcore.ScopeProfileRead, details.Scopes[0].ID)
}

// The full round trip over HTTP: consent, code exchange, user info.
func TestAuthorizationCodeFlow_EndToEnd(t *testing.T) {
	h := newHarness(t)

	rec := h.decide(t, map[string]interface{}{
		"client_id":             h.client.ID,
		"redirect_uri":          redirectCB,
		"state":                 "abc123",
		"scope":                 "profile:email",
		"scopes":                []string{"profile:email"},
		"code_challenge":        pkceChallenge,
		"code_challenge_method": "S256",
		"action":                "authorize",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	redirect, _ := decodeBody(t, rec)["redirect_url"].(string)
	require.True(t, strings.HasPrefix(redirect, redirectCB+"?"), redirect)
	code := codeFrom(t, redirect)

	exchange := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectCB},
		"client_id":     {h.client.ID},
		"code_verifier": {pkceVerifier},
	}
	rec = h.token(exchange)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var tokens oauthcore.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, "profile:read profile:email", tokens.Scope)
	assert.Equal(t, int64(3600), tokens.ExpiresIn)
	assert.True(t, strings.HasPrefix(tokens.AccessToken, "xat_"))
	assert.True(t, strings.HasPrefix(tokens.RefreshToken, "xrt_"))

	rec = h.userInfo(tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	claims := decodeBody(t, rec)
	assert.Equal(t, aliceID, claims["sub"])
	assert.Equal(t, "alice@example.com", claims["email"])
	assert.Equal(t, true, claims["email_verified"])
	assert.NotContains(t, claims, "hometown")
	assert.NotContains(t, claims, "connections")

	// the code is single use
	rec = h.token(exchange)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", decodeBody(t, rec)["error"])

	// refresh rotates the pair
	rec = h.token(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
		"client_id":     {h.client.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rotated oauthcore.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEqual(t, tokens.AccessToken, rotated.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, h.userInfo(tokens.AccessToken).Code)
	assert.Equal(t, http.StatusOK, h.userInfo(rotated.AccessToken).Code)
}

func TestDecision_DenyRedirectsWithAccessDenied(t *testing.T) {
	h := newHarness(t)

	rec := h.decide(t, map[string]interface{}{
		"client_id":    h.client.ID,
		"redirect_uri": redirectCB,
		"state":        "abc123",
		"action":       "deny",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, redirectCB+"?error=access_denied&state=abc123", decodeBody(t, rec)["redirect_url"])

	rec = h.do(withBearer(httptest.NewRequest(http.MethodGet, ConnectionsPath, nil), h.sessionJWT(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["connections"])
}

func TestDecision_TamperedRedirectReturnsError(t *testing.T) {
	h := newHarness(t)

	rec := h.decide(t, map[string]interface{}{
		"client_id":    h.client.ID,
		"redirect_uri": "https://evil.test/cb",
		"action":       "authorize",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_request", body["error"])
	assert.NotContains(t, body, "redirect_url")
}

func TestDecision_ScopesOutsideRequestAreRejected(t *testing.T) {
	h := newHarness(t)

	rec := h.decide(t, map[string]interface{}{
		"client_id":    h.client.ID,
		"redirect_uri": redirectCB,
		"scope":        "profile:read",
		"scopes":       []string{"profile:email", "xcrol:read"},
		"action":       "authorize",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_scope", body["error"])
	assert.NotContains(t, body, "redirect_url")
}

func TestDecision_RequiresSignedInUser(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, AuthorizePath, strings.NewReader(`{"action":"authorize"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := h.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDecision_ConsentFormWithCSRF(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, h.authorizeURL(map[string]string{
		"scope": "profile:email",
		"state": "st",
	}), nil)
	req.AddCookie(h.sessionCookie(t))
	rec := h.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	match := csrfPattern.FindStringSubmatch(rec.Body.String())
	require.Len(t, match, 2)
	csrf := match[1]

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies, "consent page must persist the CSRF token")
	session := cookies[0]

	form := url.Values{
		"client_id":    {h.client.ID},
		"redirect_uri": {redirectCB},
		"state":        {"st"},
		"scope":        {"profile:email"},
		"scopes":       {"profile:read", "profile:email"},
		"action":       {"authorize"},
	}

	t.Run("missing token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, AuthorizePath, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(session)
		rec := h.do(req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
	})

	t.Run("valid token redirects with a code", func(t *testing.T) {
		withToken := url.Values{}
		for k, v := range form {
			withToken[k] = v
		}
		withToken.Set("csrf_token", csrf)

		req := httptest.NewRequest(http.MethodPost, AuthorizePath, strings.NewReader(withToken.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(session)
		rec := h.do(req)

		require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
		location := rec.Header().Get("Location")
		assert.True(t, strings.HasPrefix(location, redirectCB+"?code="), location)
		assert.Contains(t, location, "state=st")
	})
}

func TestToken_Errors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		form   url.Values
		status int
		code   string
	}{
		{"missing grant type", url.Values{}, http.StatusBadRequest, "invalid_request"},
		{"unsupported grant type", url.Values{"grant_type": {"password"}}, http.StatusBadRequest, "unsupported_grant_type"},
		{"unknown code", url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {"nope"},
			"redirect_uri":  {redirectCB},
			"client_id":     {h.client.ID},
			"client_secret": {h.secret},
		}, http.StatusBadRequest, "invalid_grant"},
		{"unknown client", url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {"nope"},
			"redirect_uri":  {redirectCB},
			"client_id":     {"missing"},
			"client_secret": {"xcs_x"},
		}, http.StatusUnauthorized, "invalid_client"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.token(tt.form)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			assert.Equal(t, tt.code, decodeBody(t, rec)["error"])
		})
	}
}

func TestToken_JSONBodyWithBasicAuth(t *testing.T) {
	h := newHarness(t)

	rec := h.decide(t, map[string]interface{}{
		"client_id":    h.client.ID,
		"redirect_uri": redirectCB,
		"action":       "authorize",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	redirect, _ := decodeBody(t, rec)["redirect_url"].(string)
	code := codeFrom(t, redirect)

	body, err := json.Marshal(map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": redirectCB,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, TokenPath, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(h.client.ID, h.secret)
	rec = h.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody(t, rec)["access_token"])
}

func TestUserInfo_InvalidToken(t *testing.T) {
	h := newHarness(t)

	for _, token := range []string{"", "xat_unknown"} {
		rec := h.userInfo(token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, `Bearer error="invalid_token"`, rec.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "invalid_token", decodeBody(t, rec)["error"])
	}
}

func TestConnections_ListAndRevoke(t *testing.T) {
	h := newHarness(t)

	rec := h.decide(t, map[string]interface{}{
		"client_id":    h.client.ID,
		"redirect_uri": redirectCB,
		"scope":        "hometown:read",
		"scopes":       []string{"hometown:read"},
		"action":       "authorize",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	redirect, _ := decodeBody(t, rec)["redirect_url"].(string)

	rec = h.token(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {codeFrom(t, redirect)},
		"redirect_uri":  {redirectCB},
		"client_id":     {h.client.ID},
		"client_secret": {h.secret},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	accessToken, _ := decodeBody(t, rec)["access_token"].(string)

	jwtToken := h.sessionJWT(t)
	rec = h.do(withBearer(httptest.NewRequest(http.MethodGet, ConnectionsPath, nil), jwtToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var list connectionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Connections, 1)
	assert.Equal(t, "Acme", list.Connections[0].Name)
	require.Len(t, list.Connections[0].Scopes, 2)

	rec = h.do(withBearer(httptest.NewRequest(http.MethodDelete, ConnectionsPath+"/"+h.client.ID, nil), jwtToken))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(withBearer(httptest.NewRequest(http.MethodDelete, ConnectionsPath+"/"+h.client.ID, nil), jwtToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, h.userInfo(accessToken).Code)
}

func TestMetadata(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, MetadataPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var meta ServerMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "https://auth.xcrol.test", meta.Issuer)
	assert.Equal(t, "https://auth.xcrol.test/oauth/token", meta.TokenEndpoint)
	assert.Contains(t, meta.ScopesSupported, "xcrol:read")
	assert.Equal(t, []string{"S256", "plain"}, meta.CodeChallengeMethodsSupported)
}

func TestNewCookieStore_RejectsShortSecret(t *testing.T) {
	_, err := NewCookieStore("short", true)
	assert.Error(t, err)

	store, err := NewCookieStore(testCookieSecret, true)
	require.NoError(t, err)
	assert.True(t, store.Options.HttpOnly)
	assert.True(t, store.Options.Secure)
	assert.Equal(t, http.SameSiteLaxMode, store.Options.SameSite)
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
