package web

// ConsentScope is one row of the permission list.
type ConsentScope struct {
	ID          string
	Name        string
	Description string
	Required    bool
	Checked     bool
	Granted     bool
}

// ConsentPageData is rendered by consent.html. The hidden fields are posted
// back unchanged and re-validated server side.
type ConsentPageData struct {
	ClientID            string
	ClientName          string
	ClientDescription   string
	LogoURL             string
	HomepageURL         string
	RedirectURI         string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	CSRFToken           string
	Scope               string
	Scopes              []ConsentScope
	Verified            bool
}

// SignInPageData is rendered when the user has no XCROL session.
type SignInPageData struct {
	ClientName string
	LoginURL   string
}

// ErrorPageData is rendered for client misconfiguration. It never links back
// to the unverified redirect URI.
type ErrorPageData struct {
	Title       string
	Code        string
	Description string
}
