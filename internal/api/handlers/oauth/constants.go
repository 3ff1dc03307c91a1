package oauth

const (
	// SessionMaxAge is the lifetime of the browser session cookie in seconds
	SessionMaxAge = 7 * 24 * 60 * 60

	// MinCookieSecretLength is the minimum session cookie secret size in bytes
	MinCookieSecretLength = 32

	// maxBodyBytes bounds POST bodies on the authorize and token endpoints
	maxBodyBytes = 64 << 10

	csrfTokenBytes = 32
)

// Endpoint paths
const (
	AuthorizePath   = "/oauth/authorize"
	TokenPath       = "/oauth/token"
	UserInfoPath    = "/oauth/userinfo"
	ConnectionsPath = "/oauth/connections"
	MetadataPath    = "/.well-known/oauth-authorization-server"
)
