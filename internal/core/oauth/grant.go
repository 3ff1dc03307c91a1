package oauth

import "time"

// AuthorizationCode is a single-use grant issued after consent. Only the hash
// of the plaintext code is stored.
type AuthorizationCode struct {
	CreatedAt      time.Time
	ExpiresAt      time.Time
	ConsumedAt     *time.Time
	Authentication ClientAuthentication
	CodeHash       string
	ClientID       string
	UserID         string
	RedirectURI    string
	Scopes         ScopeSet
}

// IsExpired reports whether the code can no longer be redeemed at now.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AccessToken is a bearer credential for the user info endpoint.
type AccessToken struct {
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	TokenHash string
	ClientID  string
	UserID    string
	Scopes    ScopeSet
}

// Active reports whether the token is neither expired nor revoked.
func (t *AccessToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// RefreshToken is exchanged once for a new token pair.
type RefreshToken struct {
	IssuedAt        time.Time
	ExpiresAt       time.Time
	RevokedAt       *time.Time
	RotatedAt       *time.Time
	Authentication  ClientAuthentication
	TokenHash       string
	AccessTokenHash string
	ClientID        string
	UserID          string
	Scopes          ScopeSet
}

// Active reports whether the token can still be rotated.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.RotatedAt == nil && now.Before(t.ExpiresAt)
}

// TokenPair is the stored records plus the plaintext values that are handed
// to the client exactly once.
type TokenPair struct {
	Access       *AccessToken
	Refresh      *RefreshToken
	AccessToken  string
	RefreshToken string
}

// Consent records the union of scopes a user has granted to a client.
type Consent struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	UserID    string    `json:"userId"`
	ClientID  string    `json:"clientId"`
	Scopes    ScopeSet  `json:"scopes"`
}

// Connection is a user's view of an application they have authorized.
type Connection struct {
	GrantedAt   time.Time `json:"grantedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	ClientID    string    `json:"clientId"`
	Name        string    `json:"name"`
	LogoURL     string    `json:"logoUrl,omitempty"`
	HomepageURL string    `json:"homepageUrl,omitempty"`
	Scopes      []Scope   `json:"scopes"`
	IsVerified  bool      `json:"isVerified"`
}

// PurgeResult reports how many expired rows a sweep removed.
type PurgeResult struct {
	Codes         int64
	AccessTokens  int64
	RefreshTokens int64
}
