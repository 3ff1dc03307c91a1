// Package oauth serves the HTTP surface of the XCROL authorization server:
// the authorize and consent endpoints, the token endpoint, user info and the
// connected apps API.
package oauth

import (
	"github.com/gorilla/sessions"

	oauthcore "Xcrol/internal/core/oauth"
	"Xcrol/internal/web"
)

// HandlerConfig holds the deployment specific settings of the handlers
type HandlerConfig struct {
	// Issuer is the public base URL of this server
	Issuer string
	// LoginURL is the XCROL sign-in page. The authorize URL is appended as ?next=.
	LoginURL string
}

// Handler implements the OAuth endpoints on top of oauthcore.Service
type Handler struct {
	service   oauthcore.Service
	templates *web.Templates
	cookies   sessions.Store
	config    HandlerConfig
}

// NewHandler creates the OAuth endpoint handler
func NewHandler(service oauthcore.Service, templates *web.Templates, cookies sessions.Store, config HandlerConfig) *Handler {
	if service == nil {
		panic("oauth handler: service is required")
	}
	if templates == nil {
		panic("oauth handler: templates are required")
	}
	return &Handler{
		service:   service,
		templates: templates,
		cookies:   cookies,
		config:    config,
	}
}
