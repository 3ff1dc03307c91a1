package oauth

import "Xcrol/internal/core/users"

// Claims is the user info payload. Claims outside the granted scopes are left
// out of the map entirely so they are absent from the JSON, not null.
type Claims map[string]interface{}

// Standard claim names
const (
	ClaimSubject       = "sub"
	ClaimName          = "name"
	ClaimUsername      = "username"
	ClaimPicture       = "picture"
	ClaimBio           = "bio"
	ClaimLink          = "link"
	ClaimEmail         = "email"
	ClaimEmailVerified = "email_verified"
	ClaimHometown      = "hometown"
	ClaimConnections   = "connections"
	ClaimXcrolEntries  = "xcrol_entries"
)

// buildClaims maps the profile read model onto claim names. connections and
// entries are only consulted when their scope is granted.
func buildClaims(profile *users.Profile, scopes ScopeSet, connections []users.Connection, entries []users.DiaryEntry) Claims {
	claims := Claims{
		ClaimSubject:  profile.ID,
		ClaimName:     profile.Name(),
		ClaimUsername: profile.Username,
		ClaimPicture:  profile.AvatarURL,
		ClaimBio:      profile.Bio,
		ClaimLink:     profile.Link,
	}

	if scopes.Has(ScopeProfileEmail) && profile.Email != "" {
		claims[ClaimEmail] = profile.Email
		claims[ClaimEmailVerified] = profile.EmailVerified
	}

	if scopes.Has(ScopeHometownRead) && profile.Hometown != nil {
		claims[ClaimHometown] = profile.Hometown
	}

	if scopes.Has(ScopeConnectionsRead) {
		if connections == nil {
			connections = []users.Connection{}
		}
		claims[ClaimConnections] = connections
	}

	if scopes.Has(ScopeXcrolRead) {
		if entries == nil {
			entries = []users.DiaryEntry{}
		}
		claims[ClaimXcrolEntries] = entries
	}

	return claims
}
