package oauth

import (
	"net/url"
	"strings"
	"time"
)

// Client is a third-party application registered to use "Login with XCROL".
type Client struct {
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ID           string    `json:"id"`
	SecretHash   string    `json:"-"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	LogoURL      string    `json:"logoUrl,omitempty"`
	HomepageURL  string    `json:"homepageUrl,omitempty"`
	OwnerID      string    `json:"ownerId,omitempty"`
	RedirectURIs []string  `json:"redirectUris"`
	IsVerified   bool      `json:"isVerified"`
}

// HasRedirectURI reports whether uri is registered for the client. Matching is
// byte-for-byte: no trailing slash, case or scheme normalization.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// RegisterClientRequest is the input for registering a new application.
type RegisterClientRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	LogoURL      string   `json:"logoUrl,omitempty"`
	HomepageURL  string   `json:"homepageUrl,omitempty"`
	OwnerID      string   `json:"ownerId,omitempty"`
	RedirectURIs []string `json:"redirectUris"`
	Verified     bool     `json:"verified,omitempty"`
}

// UpdateClientRequest carries the mutable fields of a client. Nil fields are
// left untouched; a non-nil RedirectURIs replaces the registered set.
type UpdateClientRequest struct {
	Name         *string  `json:"name,omitempty"`
	Description  *string  `json:"description,omitempty"`
	LogoURL      *string  `json:"logoUrl,omitempty"`
	HomepageURL  *string  `json:"homepageUrl,omitempty"`
	RedirectURIs []string `json:"redirectUris,omitempty"`
}

const (
	maxClientNameLength  = 100
	maxDescriptionLength = 500
	maxRedirectURIs      = 20
)

func validateClientName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewValidationError("name", "name is required")
	}
	if len(name) > maxClientNameLength {
		return NewValidationError("name", "name must be at most 100 characters")
	}
	return nil
}

func validateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return NewValidationError("redirectUris", "at least one redirect URI is required")
	}
	if len(uris) > maxRedirectURIs {
		return NewValidationError("redirectUris", "too many redirect URIs")
	}
	for _, uri := range uris {
		if err := validateRedirectURI(uri); err != nil {
			return err
		}
	}
	return nil
}

// validateRedirectURI accepts absolute URIs without fragments or wildcards.
// Custom schemes are allowed for native apps.
func validateRedirectURI(raw string) error {
	if raw != strings.TrimSpace(raw) || raw == "" {
		return NewValidationError("redirectUris", "redirect URI must not be blank or padded")
	}
	if strings.Contains(raw, "*") {
		return NewValidationError("redirectUris", "wildcard redirect URIs are not supported: "+raw)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return NewValidationError("redirectUris", "redirect URI must be absolute: "+raw)
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return NewValidationError("redirectUris", "redirect URI must include a host: "+raw)
	}
	if u.Fragment != "" || strings.Contains(raw, "#") {
		return NewValidationError("redirectUris", "redirect URI must not contain a fragment: "+raw)
	}
	return nil
}

func validateOptionalURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return NewValidationError(field, "must be an http(s) URL")
	}
	return nil
}
