package oauth

import (
	"context"
	"time"

	"Xcrol/internal/core/users"
)

// ClientRepository persists registered applications.
type ClientRepository interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
}

// RedeemFunc validates a locked authorization code and returns the token pair
// to issue. Returning an error aborts the exchange and leaves the code unconsumed.
type RedeemFunc func(code *AuthorizationCode) (*TokenPair, error)

// RotateFunc validates a locked refresh token and returns its replacement pair.
type RotateFunc func(old *RefreshToken) (*TokenPair, error)

// GrantRepository persists codes, tokens and consents. Implementations must
// run RedeemAuthorizationCode and RotateRefreshToken as single atomic units.
type GrantRepository interface {
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// RedeemAuthorizationCode locks the code, calls redeem, then marks the code
	// consumed and stores the returned pair in the same transaction. Returns
	// ErrCodeNotFound for unknown hashes and ErrCodeAlreadyConsumed when a
	// concurrent exchange won.
	RedeemAuthorizationCode(ctx context.Context, codeHash string, redeem RedeemFunc) (*TokenPair, error)

	// RotateRefreshToken locks the refresh token, calls rotate, then revokes
	// the old pair and stores the new one in the same transaction.
	RotateRefreshToken(ctx context.Context, tokenHash string, rotate RotateFunc) (*TokenPair, error)

	GetAccessToken(ctx context.Context, tokenHash string) (*AccessToken, error)

	// UpsertConsent merges scopes into the stored consent for (userID, clientID).
	UpsertConsent(ctx context.Context, userID, clientID string, scopes ScopeSet, now time.Time) (*Consent, error)
	GetConsent(ctx context.Context, userID, clientID string) (*Consent, error)
	ListConsents(ctx context.Context, userID string) ([]*Consent, error)

	// RevokeGrant deletes the consent and revokes every token and unconsumed
	// code of the pair. Returns ErrConsentNotFound when no consent exists.
	RevokeGrant(ctx context.Context, userID, clientID string, now time.Time) error

	// RevokeTokens revokes every active token of the pair without touching consent.
	RevokeTokens(ctx context.Context, userID, clientID string, now time.Time) error

	// PurgeExpired deletes codes and tokens that expired before cutoff.
	PurgeExpired(ctx context.Context, cutoff time.Time) (PurgeResult, error)
}

// Repository is the full persistence surface used by the service.
type Repository interface {
	ClientRepository
	GrantRepository
}

type repository struct {
	ClientRepository
	GrantRepository
}

// NewRepository combines separately backed client and grant stores, such as a
// cached client repository and a Postgres grant repository.
func NewRepository(clients ClientRepository, grants GrantRepository) Repository {
	if clients == nil || grants == nil {
		panic("oauth: clients and grants repositories are required")
	}
	return &repository{ClientRepository: clients, GrantRepository: grants}
}

// ProfileSource supplies the user data released through the user info endpoint.
// users.UserService satisfies it.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (*users.Profile, error)
	ListConnections(ctx context.Context, userID string) ([]users.Connection, error)
	ListDiaryEntries(ctx context.Context, userID string, limit int) ([]users.DiaryEntry, error)
}

// Service implements the authorization server protocol.
type Service interface {
	// Authorize validates an authorization request before consent is rendered.
	Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationDetails, error)

	// Decide records the user's consent decision and returns where to send the browser.
	Decide(ctx context.Context, userID string, decision ConsentDecision) (*DecisionResult, error)

	// Exchange redeems an authorization code for a token pair.
	Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error)

	// Refresh rotates a refresh token into a new token pair.
	Refresh(ctx context.Context, req TokenRequest) (*TokenResponse, error)

	// UserInfo returns the claims an access token is allowed to see.
	UserInfo(ctx context.Context, accessToken string) (Claims, error)

	ListConnections(ctx context.Context, userID string) ([]*Connection, error)
	RevokeConnection(ctx context.Context, userID, clientID string) error

	RegisterClient(ctx context.Context, req RegisterClientRequest) (*Client, string, error)
	UpdateClient(ctx context.Context, clientID string, req UpdateClientRequest) (*Client, error)
	RotateClientSecret(ctx context.Context, clientID string) (string, error)
}
