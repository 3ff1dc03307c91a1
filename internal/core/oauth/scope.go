package oauth

import "strings"

// ScopeID identifies a permission an external application can request.
type ScopeID string

const (
	ScopeProfileRead     ScopeID = "profile:read"
	ScopeProfileEmail    ScopeID = "profile:email"
	ScopeHometownRead    ScopeID = "hometown:read"
	ScopeConnectionsRead ScopeID = "connections:read"
	ScopeXcrolRead       ScopeID = "xcrol:read"
)

// ScopeCategory groups scopes on the consent page.
type ScopeCategory string

const (
	CategoryBasic    ScopeCategory = "basic"
	CategoryPersonal ScopeCategory = "personal"
	CategorySocial   ScopeCategory = "social"
	CategoryContent  ScopeCategory = "content"
)

// Scope is a catalog entry describing a permission to the user.
type Scope struct {
	ID          ScopeID       `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    ScopeCategory `json:"category"`
	Required    bool          `json:"required"`
}

// catalog is ordered; ScopeSet values always follow this order.
var catalog = []Scope{
	{
		ID:          ScopeProfileRead,
		Name:        "Basic profile",
		Description: "Your username, display name, avatar, bio and link",
		Category:    CategoryBasic,
		Required:    true,
	},
	{
		ID:          ScopeProfileEmail,
		Name:        "Email address",
		Description: "The email address on your XCROL account",
		Category:    CategoryPersonal,
	},
	{
		ID:          ScopeHometownRead,
		Name:        "Hometown",
		Description: "The hometown you pinned on the XCROL map",
		Category:    CategoryPersonal,
	},
	{
		ID:          ScopeConnectionsRead,
		Name:        "Friends",
		Description: "Your list of friends and their friendship levels",
		Category:    CategorySocial,
	},
	{
		ID:          ScopeXcrolRead,
		Name:        "Xcrol diary",
		Description: "Your recent Xcrol diary entries that are not private",
		Category:    CategoryContent,
	},
}

var catalogIndex = func() map[ScopeID]int {
	idx := make(map[ScopeID]int, len(catalog))
	for i, s := range catalog {
		idx[s.ID] = i
	}
	return idx
}()

// Catalog returns a copy of every scope the server knows about.
func Catalog() []Scope {
	out := make([]Scope, len(catalog))
	copy(out, catalog)
	return out
}

// LookupScope returns the catalog entry for id.
func LookupScope(id string) (Scope, bool) {
	i, ok := catalogIndex[ScopeID(id)]
	if !ok {
		return Scope{}, false
	}
	return catalog[i], true
}

// ScopeSet is a de-duplicated set of known scopes in catalog order.
// Every ScopeSet built through NewScopeSet or ParseScopes contains profile:read.
type ScopeSet []ScopeID

// ParseScopes parses a space-delimited scope parameter. Unknown scope IDs are
// dropped and profile:read is always included.
func ParseScopes(raw string) ScopeSet {
	return NewScopeSet(strings.Fields(raw)...)
}

// NewScopeSet builds a ScopeSet from individual IDs with the same rules as ParseScopes.
func NewScopeSet(ids ...string) ScopeSet {
	present := make([]bool, len(catalog))
	present[catalogIndex[ScopeProfileRead]] = true
	for _, id := range ids {
		if i, ok := catalogIndex[ScopeID(strings.TrimSpace(id))]; ok {
			present[i] = true
		}
	}

	set := make(ScopeSet, 0, len(catalog))
	for i, ok := range present {
		if ok {
			set = append(set, catalog[i].ID)
		}
	}
	return set
}

// Has reports whether id is part of the set.
func (s ScopeSet) Has(id ScopeID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Covers reports whether every scope in other is also in s.
func (s ScopeSet) Covers(other ScopeSet) bool {
	for _, id := range other {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Union returns the scopes present in either set.
func (s ScopeSet) Union(other ScopeSet) ScopeSet {
	return NewScopeSet(append(s.Strings(), other.Strings()...)...)
}

// Strings returns the scope IDs as plain strings, suitable for storage.
func (s ScopeSet) Strings() []string {
	out := make([]string, len(s))
	for i, id := range s {
		out[i] = string(id)
	}
	return out
}

// String renders the space-delimited wire form.
func (s ScopeSet) String() string {
	return strings.Join(s.Strings(), " ")
}

// Details returns the catalog entries for the set.
func (s ScopeSet) Details() []Scope {
	out := make([]Scope, 0, len(s))
	for _, id := range s {
		out = append(out, catalog[catalogIndex[id]])
	}
	return out
}
