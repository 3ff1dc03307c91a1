package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"Xcrol/internal/core/users"
)

// Default lifetimes
const (
	DefaultAuthCodeTTL     = 10 * time.Minute
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultDiaryEntryLimit = 20
)

var errRefreshReplay = errors.New("refresh token reuse detected")

type service struct {
	repo            Repository
	profiles        ProfileSource
	now             func() time.Time
	authCodeTTL     time.Duration
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	diaryLimit      int
}

// NewService creates the authorization server service
func NewService(repo Repository, profiles ProfileSource, opts ...ServiceOption) Service {
	if repo == nil {
		panic("oauth: repository is required")
	}
	if profiles == nil {
		panic("oauth: profile source is required")
	}

	s := &service{
		repo:            repo,
		profiles:        profiles,
		now:             time.Now,
		authCodeTTL:     DefaultAuthCodeTTL,
		accessTokenTTL:  DefaultAccessTokenTTL,
		refreshTokenTTL: DefaultRefreshTokenTTL,
		diaryLimit:      DefaultDiaryEntryLimit,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ServiceOption configures the service
type ServiceOption func(*service)

// WithAuthCodeTTL sets how long an authorization code can be redeemed
func WithAuthCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *service) {
		if ttl > 0 {
			s.authCodeTTL = ttl
		}
	}
}

// WithAccessTokenTTL sets the access token lifetime
func WithAccessTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *service) {
		if ttl > 0 {
			s.accessTokenTTL = ttl
		}
	}
}

// WithRefreshTokenTTL sets the refresh token lifetime
func WithRefreshTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *service) {
		if ttl > 0 {
			s.refreshTokenTTL = ttl
		}
	}
}

// WithDiaryEntryLimit sets how many diary entries xcrol:read releases
func WithDiaryEntryLimit(limit int) ServiceOption {
	return func(s *service) {
		if limit > 0 {
			s.diaryLimit = limit
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		s.now = now
	}
}

// resolveClient looks up the client and checks the redirect URI byte-for-byte.
// Failures here must be shown to the caller and never redirected.
func (s *service) resolveClient(ctx context.Context, clientID, redirectURI string) (*Client, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, invalidRequest("client_id is required")
	}

	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, newError(CodeInvalidClient, "unknown client_id")
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	if redirectURI == "" || !client.HasRedirectURI(redirectURI) {
		slog.Warn("[OAUTH] redirect_uri not registered for client",
			"client_id", client.ID,
		)
		return nil, newError(CodeInvalidRequest, descRedirectMismatch)
	}

	return client, nil
}

func (s *service) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationDetails, error) {
	client, err := s.resolveClient(ctx, req.ClientID, req.RedirectURI)
	if err != nil {
		return nil, err
	}

	switch req.ResponseType {
	case ResponseTypeCode:
	case "":
		return nil, invalidRequest("response_type is required")
	default:
		return nil, newError(CodeUnsupportedResponseType, "only response_type=code is supported")
	}

	auth, err := NewClientAuthentication(req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		return nil, err
	}

	scopes := ParseScopes(req.Scope)

	details := &AuthorizationDetails{
		Client:            clientInfo(client),
		Scopes:            scopes.Details(),
		PreviouslyGranted: []ScopeID{},
		RedirectURI:       req.RedirectURI,
		State:             req.State,
		ConsentRequired:   true,
	}
	if pkce, ok := auth.(PKCEAuthentication); ok {
		details.CodeChallenge = pkce.Challenge
		details.CodeChallengeMethod = pkce.Method
	}

	if req.UserID != "" {
		consent, err := s.repo.GetConsent(ctx, req.UserID, client.ID)
		switch {
		case err == nil:
			details.PreviouslyGranted = consent.Scopes
			details.ConsentRequired = !consent.Scopes.Covers(scopes)
		case errors.Is(err, ErrConsentNotFound):
		default:
			return nil, fmt.Errorf("failed to load consent: %w", err)
		}
	}

	return details, nil
}

func (s *service) Decide(ctx context.Context, userID string, decision ConsentDecision) (*DecisionResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeAccessDenied, "user is not authenticated")
	}

	client, err := s.resolveClient(ctx, decision.ClientID, decision.RedirectURI)
	if err != nil {
		return nil, err
	}

	auth, err := NewClientAuthentication(decision.CodeChallenge, decision.CodeChallengeMethod)
	if err != nil {
		return nil, err
	}

	switch decision.Action {
	case ActionDeny:
		slog.Info("[OAUTH] user denied authorization",
			"client_id", client.ID,
			"user", maskID(userID),
		)
		redirect, err := buildRedirect(decision.RedirectURI, map[string]string{
			"error": CodeAccessDenied,
			"state": decision.State,
		})
		if err != nil {
			return nil, err
		}
		return &DecisionResult{RedirectURL: redirect}, nil

	case ActionAuthorize:
	default:
		return nil, invalidRequest("action must be %q or %q", ActionAuthorize, ActionDeny)
	}

	granted := NewScopeSet(decision.Scopes...)
	if !ParseScopes(decision.Scope).Covers(granted) {
		slog.Warn("[OAUTH] decision grants scopes outside the request",
			"client_id", client.ID,
			"requested", decision.Scope,
			"granted", granted.String(),
		)
		return nil, newError(CodeInvalidScope, "granted scopes exceed the requested scope")
	}

	plainCode, err := generateToken("")
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	code := &AuthorizationCode{
		CodeHash:       HashToken(plainCode),
		ClientID:       client.ID,
		UserID:         userID,
		RedirectURI:    decision.RedirectURI,
		Scopes:         granted,
		Authentication: auth,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.authCodeTTL),
	}
	if err := s.repo.SaveAuthorizationCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	if _, err := s.repo.UpsertConsent(ctx, userID, client.ID, granted, now); err != nil {
		return nil, fmt.Errorf("failed to record consent: %w", err)
	}

	redirect, err := buildRedirect(decision.RedirectURI, map[string]string{
		"code":  plainCode,
		"state": decision.State,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("[OAUTH] authorization code issued",
		"client_id", client.ID,
		"user", maskID(userID),
		"scope", granted.String(),
	)

	return &DecisionResult{RedirectURL: redirect, Granted: granted}, nil
}

func (s *service) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, newError(CodeUnsupportedGrantType, "grant_type must be authorization_code or refresh_token")
	}
	if req.Code == "" || req.RedirectURI == "" || req.ClientID == "" {
		return nil, invalidRequest("code, redirect_uri and client_id are required")
	}
	if req.ClientSecret == "" && req.CodeVerifier == "" {
		return nil, invalidRequest("client_secret or code_verifier is required")
	}

	client, err := s.lookupClientForToken(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	pair, err := s.repo.RedeemAuthorizationCode(ctx, HashToken(req.Code), func(code *AuthorizationCode) (*TokenPair, error) {
		now := s.now().UTC()
		if code.ConsumedAt != nil || code.IsExpired(now) ||
			code.ClientID != req.ClientID || code.RedirectURI != req.RedirectURI {
			return nil, newError(CodeInvalidGrant, descInvalidGrant)
		}
		if !authenticateExchange(client, code.Authentication, req.ClientSecret, req.CodeVerifier) {
			return nil, newError(CodeInvalidClient, descClientAuth)
		}
		return s.issueTokens(code.UserID, code.ClientID, code.Scopes, code.Authentication, now)
	})
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) || errors.Is(err, ErrCodeAlreadyConsumed) {
			err = newError(CodeInvalidGrant, descInvalidGrant)
		}
		s.logTokenFailure("authorization_code", req.ClientID, err)
		return nil, err
	}

	slog.Info("[OAUTH] authorization code exchanged",
		"client_id", client.ID,
		"user", maskID(pair.Access.UserID),
	)

	return s.tokenResponse(pair), nil
}

func (s *service) Refresh(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != GrantTypeRefreshToken {
		return nil, newError(CodeUnsupportedGrantType, "grant_type must be refresh_token")
	}
	if req.RefreshToken == "" || req.ClientID == "" {
		return nil, invalidRequest("refresh_token and client_id are required")
	}

	client, err := s.lookupClientForToken(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	var replayed *RefreshToken
	pair, err := s.repo.RotateRefreshToken(ctx, HashToken(req.RefreshToken), func(old *RefreshToken) (*TokenPair, error) {
		now := s.now().UTC()
		if old.ClientID != req.ClientID {
			return nil, newError(CodeInvalidGrant, descInvalidGrant)
		}
		if old.RotatedAt != nil {
			replayed = old
			return nil, errRefreshReplay
		}
		if !old.Active(now) {
			return nil, newError(CodeInvalidGrant, descInvalidGrant)
		}
		if !authenticateRefresh(client, old.Authentication, req.ClientSecret) {
			return nil, newError(CodeInvalidClient, descClientAuth)
		}
		return s.issueTokens(old.UserID, old.ClientID, old.Scopes, old.Authentication, now)
	})
	if err != nil {
		switch {
		case errors.Is(err, errRefreshReplay):
			slog.Warn("[OAUTH] rotated refresh token presented again, revoking all tokens",
				"client_id", replayed.ClientID,
				"user", maskID(replayed.UserID),
			)
			if revokeErr := s.repo.RevokeTokens(ctx, replayed.UserID, replayed.ClientID, s.now().UTC()); revokeErr != nil {
				return nil, fmt.Errorf("failed to revoke tokens after refresh replay: %w", revokeErr)
			}
			err = newError(CodeInvalidGrant, descInvalidGrant)
		case errors.Is(err, ErrTokenNotFound):
			err = newError(CodeInvalidGrant, descInvalidGrant)
		}
		s.logTokenFailure("refresh_token", req.ClientID, err)
		return nil, err
	}

	return s.tokenResponse(pair), nil
}

func (s *service) lookupClientForToken(ctx context.Context, clientID string) (*Client, error) {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, newError(CodeInvalidClient, descClientAuth)
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return client, nil
}

// authenticateExchange checks the credential the code was bound to. PKCE
// codes still reject a client_secret that is supplied but wrong.
func authenticateExchange(client *Client, auth ClientAuthentication, secret, verifier string) bool {
	switch a := auth.(type) {
	case PKCEAuthentication:
		if secret != "" && !VerifyClientSecret(client.SecretHash, secret) {
			return false
		}
		return a.Verify(verifier)
	case SecretAuthentication:
		return VerifyClientSecret(client.SecretHash, secret)
	default:
		return false
	}
}

// authenticateRefresh requires the client secret unless the original grant
// was proven with PKCE.
func authenticateRefresh(client *Client, auth ClientAuthentication, secret string) bool {
	switch auth.(type) {
	case PKCEAuthentication:
		return secret == "" || VerifyClientSecret(client.SecretHash, secret)
	case SecretAuthentication:
		return VerifyClientSecret(client.SecretHash, secret)
	default:
		return false
	}
}

func (s *service) issueTokens(userID, clientID string, scopes ScopeSet, auth ClientAuthentication, now time.Time) (*TokenPair, error) {
	access, err := generateToken(AccessTokenPrefix)
	if err != nil {
		return nil, err
	}
	refresh, err := generateToken(RefreshTokenPrefix)
	if err != nil {
		return nil, err
	}

	accessHash := HashToken(access)
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		Access: &AccessToken{
			TokenHash: accessHash,
			ClientID:  clientID,
			UserID:    userID,
			Scopes:    scopes,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.accessTokenTTL),
		},
		Refresh: &RefreshToken{
			TokenHash:       HashToken(refresh),
			AccessTokenHash: accessHash,
			ClientID:        clientID,
			UserID:          userID,
			Scopes:          scopes,
			Authentication:  auth,
			IssuedAt:        now,
			ExpiresAt:       now.Add(s.refreshTokenTTL),
		},
	}, nil
}

func (s *service) tokenResponse(pair *TokenPair) *TokenResponse {
	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.accessTokenTTL / time.Second),
		RefreshToken: pair.RefreshToken,
		Scope:        pair.Access.Scopes.String(),
	}
}

func (s *service) logTokenFailure(grantType, clientID string, err error) {
	code := ErrorCode(err)
	if code == CodeServerError {
		slog.Error("[OAUTH] token request failed",
			"grant_type", grantType,
			"client_id", clientID,
			"error", err,
		)
		return
	}
	slog.Warn("[OAUTH] token request rejected",
		"grant_type", grantType,
		"client_id", clientID,
		"error", code,
	)
}

func (s *service) UserInfo(ctx context.Context, accessToken string) (Claims, error) {
	if accessToken == "" {
		return nil, newError(CodeInvalidToken, descInvalidToken)
	}

	token, err := s.repo.GetAccessToken(ctx, HashToken(accessToken))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, newError(CodeInvalidToken, descInvalidToken)
		}
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	if !token.Active(s.now()) {
		return nil, newError(CodeInvalidToken, descInvalidToken)
	}

	profile, err := s.profiles.GetProfile(ctx, token.UserID)
	if err != nil {
		if users.IsNotFound(err) {
			// the account behind the token is gone
			return nil, newError(CodeInvalidToken, descInvalidToken)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	var connections []users.Connection
	if token.Scopes.Has(ScopeConnectionsRead) {
		connections, err = s.profiles.ListConnections(ctx, token.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load connections: %w", err)
		}
	}

	var entries []users.DiaryEntry
	if token.Scopes.Has(ScopeXcrolRead) {
		entries, err = s.profiles.ListDiaryEntries(ctx, token.UserID, s.diaryLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load diary entries: %w", err)
		}
	}

	return buildClaims(profile, token.Scopes, connections, entries), nil
}

func (s *service) ListConnections(ctx context.Context, userID string) ([]*Connection, error) {
	consents, err := s.repo.ListConsents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}

	result := make([]*Connection, 0, len(consents))
	for _, consent := range consents {
		client, err := s.repo.GetClient(ctx, consent.ClientID)
		if err != nil {
			if errors.Is(err, ErrClientNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load client %s: %w", consent.ClientID, err)
		}
		result = append(result, &Connection{
			ClientID:    client.ID,
			Name:        client.Name,
			LogoURL:     client.LogoURL,
			HomepageURL: client.HomepageURL,
			IsVerified:  client.IsVerified,
			Scopes:      consent.Scopes.Details(),
			GrantedAt:   consent.CreatedAt,
			UpdatedAt:   consent.UpdatedAt,
		})
	}
	return result, nil
}

func (s *service) RevokeConnection(ctx context.Context, userID, clientID string) error {
	if err := s.repo.RevokeGrant(ctx, userID, clientID, s.now().UTC()); err != nil {
		return err
	}
	slog.Info("[OAUTH] connection revoked",
		"client_id", clientID,
		"user", maskID(userID),
	)
	return nil
}

func (s *service) RegisterClient(ctx context.Context, req RegisterClientRequest) (*Client, string, error) {
	if err := validateClientName(req.Name); err != nil {
		return nil, "", err
	}
	if len(req.Description) > maxDescriptionLength {
		return nil, "", NewValidationError("description", "description must be at most 500 characters")
	}
	if err := validateRedirectURIs(req.RedirectURIs); err != nil {
		return nil, "", err
	}
	if err := validateOptionalURL("logoUrl", req.LogoURL); err != nil {
		return nil, "", err
	}
	if err := validateOptionalURL("homepageUrl", req.HomepageURL); err != nil {
		return nil, "", err
	}
	if req.OwnerID != "" {
		if _, err := uuid.Parse(req.OwnerID); err != nil {
			return nil, "", NewValidationError("ownerId", "owner must be an XCROL user id")
		}
	}

	secret, hash, err := newClientSecret()
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	client := &Client{
		ID:           uuid.NewString(),
		SecretHash:   hash,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		LogoURL:      req.LogoURL,
		HomepageURL:  req.HomepageURL,
		OwnerID:      req.OwnerID,
		RedirectURIs: dedupe(req.RedirectURIs),
		IsVerified:   req.Verified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateClient(ctx, client); err != nil {
		return nil, "", fmt.Errorf("failed to create client: %w", err)
	}

	slog.Info("[OAUTH] client registered", "client_id", client.ID, "name", client.Name)
	return client, secret, nil
}

func (s *service) UpdateClient(ctx context.Context, clientID string, req UpdateClientRequest) (*Client, error) {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if err := validateClientName(*req.Name); err != nil {
			return nil, err
		}
		client.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		if len(*req.Description) > maxDescriptionLength {
			return nil, NewValidationError("description", "description must be at most 500 characters")
		}
		client.Description = *req.Description
	}
	if req.LogoURL != nil {
		if err := validateOptionalURL("logoUrl", *req.LogoURL); err != nil {
			return nil, err
		}
		client.LogoURL = *req.LogoURL
	}
	if req.HomepageURL != nil {
		if err := validateOptionalURL("homepageUrl", *req.HomepageURL); err != nil {
			return nil, err
		}
		client.HomepageURL = *req.HomepageURL
	}
	if req.RedirectURIs != nil {
		if err := validateRedirectURIs(req.RedirectURIs); err != nil {
			return nil, err
		}
		client.RedirectURIs = dedupe(req.RedirectURIs)
	}

	client.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return client, nil
}

func (s *service) RotateClientSecret(ctx context.Context, clientID string) (string, error) {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return "", err
	}

	secret, hash, err := newClientSecret()
	if err != nil {
		return "", err
	}
	client.SecretHash = hash
	client.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateClient(ctx, client); err != nil {
		return "", fmt.Errorf("failed to store rotated secret: %w", err)
	}

	slog.Info("[OAUTH] client secret rotated", "client_id", client.ID)
	return secret, nil
}

func newClientSecret() (string, string, error) {
	secret, err := generateToken(ClientSecretPrefix)
	if err != nil {
		return "", "", err
	}
	hash, err := HashClientSecret(secret)
	if err != nil {
		return "", "", err
	}
	return secret, hash, nil
}

func clientInfo(c *Client) ClientInfo {
	return ClientInfo{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		LogoURL:     c.LogoURL,
		HomepageURL: c.HomepageURL,
		IsVerified:  c.IsVerified,
	}
}

// buildRedirect adds params to base, keeping any query the registered URI
// already carries. Empty values are skipped.
func buildRedirect(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect uri: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
