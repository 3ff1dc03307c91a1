package oauth

// Grant and response types
const (
	ResponseTypeCode           = "code"
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	TokenTypeBearer            = "Bearer"
)

// Consent actions
const (
	ActionAuthorize = "authorize"
	ActionDeny      = "deny"
)

// AuthorizationRequest holds the query parameters of GET /oauth/authorize.
// UserID is optional and only used to look up an existing consent.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	UserID              string
}

// ClientInfo is the public part of a client shown on the consent page.
type ClientInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	LogoURL     string `json:"logoUrl,omitempty"`
	HomepageURL string `json:"homepageUrl,omitempty"`
	IsVerified  bool   `json:"isVerified"`
}

// AuthorizationDetails is everything the consent UI needs to render.
type AuthorizationDetails struct {
	Client              ClientInfo `json:"client"`
	Scopes              []Scope    `json:"scopes"`
	PreviouslyGranted   []ScopeID  `json:"previouslyGranted"`
	RedirectURI         string     `json:"redirectUri"`
	State               string     `json:"state,omitempty"`
	CodeChallenge       string     `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string     `json:"codeChallengeMethod,omitempty"`
	ConsentRequired     bool       `json:"consentRequired"`
}

// ConsentDecision is the body of POST /oauth/authorize. Scope echoes the
// scope parameter of the authorization request; Scopes is what the user
// approved and must be a subset of it.
type ConsentDecision struct {
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	State               string   `json:"state"`
	CodeChallenge       string   `json:"code_challenge"`
	CodeChallengeMethod string   `json:"code_challenge_method"`
	Action              string   `json:"action"`
	Scope               string   `json:"scope"`
	Scopes              []string `json:"scopes"`
}

// DecisionResult carries the URL the browser is sent back to.
type DecisionResult struct {
	RedirectURL string   `json:"redirect_url"`
	Granted     ScopeSet `json:"-"`
}

// TokenRequest is the body of POST /oauth/token for both grant types.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is the successful token endpoint payload (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}
