// Package memory provides mutex-guarded stores for tests and XCROL_STORE=memory.
// They give the same atomicity guarantees as the Postgres repositories.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"Xcrol/internal/core/oauth"
)

// OAuthStore implements oauth.Repository in process memory.
type OAuthStore struct {
	clients  map[string]*oauth.Client
	codes    map[string]*oauth.AuthorizationCode
	access   map[string]*oauth.AccessToken
	refresh  map[string]*oauth.RefreshToken
	consents map[consentKey]*oauth.Consent

	// clients and grants are locked separately so a RedeemFunc may read clients.
	clientMu sync.RWMutex
	grantMu  sync.Mutex
}

type consentKey struct {
	userID   string
	clientID string
}

// NewOAuthStore creates an empty store
func NewOAuthStore() *OAuthStore {
	return &OAuthStore{
		clients:  make(map[string]*oauth.Client),
		codes:    make(map[string]*oauth.AuthorizationCode),
		access:   make(map[string]*oauth.AccessToken),
		refresh:  make(map[string]*oauth.RefreshToken),
		consents: make(map[consentKey]*oauth.Consent),
	}
}

var _ oauth.Repository = (*OAuthStore)(nil)

func (s *OAuthStore) CreateClient(ctx context.Context, client *oauth.Client) error {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	c := *client
	c.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	s.clients[client.ID] = &c
	return nil
}

func (s *OAuthStore) GetClient(ctx context.Context, clientID string) (*oauth.Client, error) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, oauth.ErrClientNotFound
	}
	out := *c
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	return &out, nil
}

func (s *OAuthStore) UpdateClient(ctx context.Context, client *oauth.Client) error {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	if _, ok := s.clients[client.ID]; !ok {
		return oauth.ErrClientNotFound
	}
	c := *client
	c.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	s.clients[client.ID] = &c
	return nil
}

func (s *OAuthStore) SaveAuthorizationCode(ctx context.Context, code *oauth.AuthorizationCode) error {
	s.grantMu.Lock()
	defer s.grantMu.Unlock()
	c := *code
	s.codes[code.CodeHash] = &c
	return nil
}

func (s *OAuthStore) RedeemAuthorizationCode(ctx context.Context, codeHash string, redeem oauth.RedeemFunc) (*oauth.TokenPair, error) {
	s.grantMu.Lock()
	defer s.grantMu.Unlock()

	stored, ok := s.codes[codeHash]
	if !ok {
		return nil, oauth.ErrCodeNotFound
	}
	snapshot := *stored
	pair, err := redeem(&snapshot)
	if err != nil {
		return nil, err
	}
	if stored.ConsumedAt != nil {
		return nil, oauth.ErrCodeAlreadyConsumed
	}

	consumedAt := pair.Access.IssuedAt
	stored.ConsumedAt = &consumedAt
	s.storePair(pair)
	return pair, nil
}

func (s *OAuthStore) RotateRefreshToken(ctx context.Context, tokenHash string, rotate oauth.RotateFunc) (*oauth.TokenPair, error) {
	s.grantMu.Lock()
	defer s.grantMu.Unlock()

	stored, ok := s.refresh[tokenHash]
	if !ok {
		return nil, oauth.ErrTokenNotFound
	}
	snapshot := *stored
	pair, err := rotate(&snapshot)
	if err != nil {
		return nil, err
	}

	now := pair.Access.IssuedAt
	stored.RotatedAt = &now
	stored.RevokedAt = &now
	if at, ok := s.access[stored.AccessTokenHash]; ok && at.RevokedAt == nil {
		at.RevokedAt = &now
	}
	s.storePair(pair)
	return pair, nil
}

func (s *OAuthStore) storePair(pair *oauth.TokenPair) {
	a := *pair.Access
	r := *pair.Refresh
	s.access[a.TokenHash] = &a
	s.refresh[r.TokenHash] = &r
}

func (s *OAuthStore) GetAccessToken(ctx context.Context, tokenHash string) (*oauth.AccessToken, error) {
	s.grantMu.Lock()
	defer s.grantMu.Unlock()
	t, ok := s.access[tokenHash]
	if !ok {
		return nil, oauth.ErrTokenNotFound
	}
	out := *t
	return &out, nil
}

func (s *OAuthStore) UpsertConsent(ctx context.Context, userID, clientID string, scopes oauth.ScopeSet, now time.Time) (*oauth.Consent, error) {
	s.grantMu.Lock()
	defer s.grantMu.Unlock()

	key := consentKey{userID: userID, clientID: clientID}
	existing, ok := s.consents[key]
	if !ok {
		existing = &oauth.Consent{UserID: userID, ClientID: clientID, CreatedAt: now}
		s.consents[key] = existing
	}
	existing.Scopes = existing.Scopes.Union(scopes)
	existing.UpdatedAt = now
	out := *existing
	return &out, nil
}

func (s *OAuthStore) GetConsent(ctx context.Context, userID, clientID string) (*oauth.Consent, error) {
	s.grantMu.Lock()
	defer s.grantMu.Unlock()
	c, ok := s.consents[consentKey{userID: userID, clientID: clientID}]
	if !ok {
		return nil, oauth.ErrConsentNotFound
	}
	out := *c
	return &out, nil
}

func (s *OAuthStore) ListConsents(ctx context.Context, userID string) ([]*oauth.Consent, error) {
	s.grantMu.Lock()
	defer s.grantMu.Unlock()
	var out []*oauth.Consent
	for key, c := range s.consents {
		if key.userID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *OAuthStore) RevokeGrant(ctx context.Context, userID, clientID string, now time.Time) error {
	s.grantMu.Lock()
	defer s.grantMu.Unlock()

	key := consentKey{userID: userID, clientID: clientID}
	if _, ok := s.consents[key]; !ok {
		return oauth.ErrConsentNotFound
	}
	delete(s.consents, key)
	for hash, code := range s.codes {
		if code.UserID == userID && code.ClientID == clientID && code.ConsumedAt == nil {
			delete(s.codes, hash)
		}
	}
	s.revokeTokensLocked(userID, clientID, now)
	return nil
}

func (s *OAuthStore) RevokeTokens(ctx context.Context, userID, clientID string, now time.Time) error {
	s.grantMu.Lock()
	defer s.grantMu.Unlock()
	s.revokeTokensLocked(userID, clientID, now)
	return nil
}

func (s *OAuthStore) revokeTokensLocked(userID, clientID string, now time.Time) {
	for _, t := range s.access {
		if t.UserID == userID && t.ClientID == clientID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	for _, t := range s.refresh {
		if t.UserID == userID && t.ClientID == clientID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
}

func (s *OAuthStore) PurgeExpired(ctx context.Context, cutoff time.Time) (oauth.PurgeResult, error) {
	s.grantMu.Lock()
	defer s.grantMu.Unlock()

	var res oauth.PurgeResult
	for hash, c := range s.codes {
		if c.ExpiresAt.Before(cutoff) {
			delete(s.codes, hash)
			res.Codes++
		}
	}
	for hash, t := range s.access {
		if t.ExpiresAt.Before(cutoff) {
			delete(s.access, hash)
			res.AccessTokens++
		}
	}
	for hash, t := range s.refresh {
		if t.ExpiresAt.Before(cutoff) {
			delete(s.refresh, hash)
			res.RefreshTokens++
		}
	}
	return res, nil
}
