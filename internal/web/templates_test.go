package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplates(t *testing.T) {
	templates, err := NewTemplates()
	require.NoError(t, err)
	require.NotNil(t, templates)
}

func TestRender_Consent(t *testing.T) {
	templates, err := NewTemplates()
	require.NoError(t, err)

	data := ConsentPageData{
		ClientID:    "client-1",
		ClientName:  "Acme <script>",
		RedirectURI: "https://acme.test/cb",
		State:       "abc123",
		CSRFToken:   "csrf-1",
		Scope:       "profile:read connections:read",
		Scopes: []ConsentScope{
			{ID: "profile:read", Name: "Basic profile", Required: true, Checked: true},
			{ID: "connections:read", Name: "Friends", Checked: true, Granted: true},
		},
	}

	w := httptest.NewRecorder()
	require.NoError(t, templates.Render(w, http.StatusOK, ConsentTemplate, data))

	body := w.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, body, `name="client_id" value="client-1"`)
	assert.Contains(t, body, `name="state" value="abc123"`)
	assert.Contains(t, body, `name="csrf_token" value="csrf-1"`)
	assert.Contains(t, body, `name="scope" value="profile:read connections:read"`)
	assert.Contains(t, body, `value="connections:read" checked`)
	assert.Contains(t, body, "previously allowed")
	assert.Contains(t, body, "not been verified")
	assert.NotContains(t, body, "<script>", "client name must be escaped")
	assert.Equal(t, 1, strings.Count(body, `type="hidden" name="scopes" value="profile:read"`))
}

func TestRender_ErrorAndSignIn(t *testing.T) {
	templates, err := NewTemplates()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, templates.Render(w, http.StatusBadRequest, ErrorTemplate, ErrorPageData{
		Title:       "Invalid request",
		Code:        "invalid_request",
		Description: "redirect_uri_mismatch",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "redirect_uri_mismatch")

	w = httptest.NewRecorder()
	require.NoError(t, templates.Render(w, http.StatusUnauthorized, SignInTemplate, SignInPageData{
		ClientName: "Acme",
		LoginURL:   "https://xcrol.test/login?next=%2Foauth%2Fauthorize",
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "https://xcrol.test/login?next=%2Foauth%2Fauthorize")
}

func TestRender_UnknownTemplate(t *testing.T) {
	templates, err := NewTemplates()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	err = templates.Render(w, http.StatusOK, "missing.html", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, w.Body.Len())
}
