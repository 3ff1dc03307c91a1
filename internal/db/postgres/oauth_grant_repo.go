package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"Xcrol/internal/core/oauth"
)

type postgresOAuthGrantRepo struct {
	db *sql.DB
}

// NewOAuthGrantRepository creates a PostgreSQL store for codes, tokens and consents
func NewOAuthGrantRepository(db *sql.DB) oauth.GrantRepository {
	return &postgresOAuthGrantRepo{db: db}
}

// withTx runs fn in a transaction, rolling back on any error.
func (r *postgresOAuthGrantRepo) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction for %s: %w", op, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			slog.Error("failed to rollback transaction",
				slog.String("op", op),
				slog.String("error", err.Error()),
			)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", op, err)
	}
	return nil
}

func (r *postgresOAuthGrantRepo) SaveAuthorizationCode(ctx context.Context, code *oauth.AuthorizationCode) error {
	auth, err := oauth.MarshalAuthentication(code.Authentication)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO oauth_authorization_codes (
			code_hash, client_id, user_id, redirect_uri, scopes,
			authentication, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		code.CodeHash, code.ClientID, code.UserID, code.RedirectURI,
		pq.Array(code.Scopes.Strings()), string(auth), code.CreatedAt, code.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert authorization code: %w", err)
	}
	return nil
}

func (r *postgresOAuthGrantRepo) RedeemAuthorizationCode(ctx context.Context, codeHash string, redeem oauth.RedeemFunc) (*oauth.TokenPair, error) {
	var pair *oauth.TokenPair
	err := r.withTx(ctx, "redeem authorization code", func(tx *sql.Tx) error {
		query := `
			SELECT code_hash, client_id, user_id, redirect_uri, scopes,
			       authentication, created_at, expires_at, consumed_at
			FROM oauth_authorization_codes
			WHERE code_hash = $1
			FOR UPDATE`

		code := &oauth.AuthorizationCode{}
		var scopes []string
		var auth []byte
		var consumedAt sql.NullTime
		err := tx.QueryRowContext(ctx, query, codeHash).Scan(
			&code.CodeHash, &code.ClientID, &code.UserID, &code.RedirectURI,
			pq.Array(&scopes), &auth, &code.CreatedAt, &code.ExpiresAt, &consumedAt,
		)
		if err == sql.ErrNoRows {
			return oauth.ErrCodeNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock authorization code: %w", err)
		}
		code.Scopes = oauth.NewScopeSet(scopes...)
		if consumedAt.Valid {
			code.ConsumedAt = &consumedAt.Time
		}
		if code.Authentication, err = oauth.UnmarshalAuthentication(auth); err != nil {
			return err
		}

		pair, err = redeem(code)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE oauth_authorization_codes SET consumed_at = $2 WHERE code_hash = $1 AND consumed_at IS NULL`,
			codeHash, pair.Access.IssuedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to consume authorization code: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return oauth.ErrCodeAlreadyConsumed
		}

		return insertTokenPair(ctx, tx, pair)
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (r *postgresOAuthGrantRepo) RotateRefreshToken(ctx context.Context, tokenHash string, rotate oauth.RotateFunc) (*oauth.TokenPair, error) {
	var pair *oauth.TokenPair
	err := r.withTx(ctx, "rotate refresh token", func(tx *sql.Tx) error {
		query := `
			SELECT token_hash, access_token_hash, client_id, user_id, scopes, authentication,
			       issued_at, expires_at, revoked_at, rotated_at
			FROM oauth_refresh_tokens
			WHERE token_hash = $1
			FOR UPDATE`

		old := &oauth.RefreshToken{}
		var scopes []string
		var auth []byte
		var revokedAt, rotatedAt sql.NullTime
		err := tx.QueryRowContext(ctx, query, tokenHash).Scan(
			&old.TokenHash, &old.AccessTokenHash, &old.ClientID, &old.UserID,
			pq.Array(&scopes), &auth, &old.IssuedAt, &old.ExpiresAt, &revokedAt, &rotatedAt,
		)
		if err == sql.ErrNoRows {
			return oauth.ErrTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock refresh token: %w", err)
		}
		old.Scopes = oauth.NewScopeSet(scopes...)
		if revokedAt.Valid {
			old.RevokedAt = &revokedAt.Time
		}
		if rotatedAt.Valid {
			old.RotatedAt = &rotatedAt.Time
		}
		if old.Authentication, err = oauth.UnmarshalAuthentication(auth); err != nil {
			return err
		}

		pair, err = rotate(old)
		if err != nil {
			return err
		}

		now := pair.Access.IssuedAt
		if _, err := tx.ExecContext(ctx,
			`UPDATE oauth_refresh_tokens SET rotated_at = $2, revoked_at = COALESCE(revoked_at, $2) WHERE token_hash = $1`,
			tokenHash, now,
		); err != nil {
			return fmt.Errorf("failed to mark refresh token rotated: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE oauth_access_tokens SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`,
			old.AccessTokenHash, now,
		); err != nil {
			return fmt.Errorf("failed to revoke previous access token: %w", err)
		}

		return insertTokenPair(ctx, tx, pair)
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func insertTokenPair(ctx context.Context, tx *sql.Tx, pair *oauth.TokenPair) error {
	a := pair.Access
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO oauth_access_tokens (token_hash, client_id, user_id, scopes, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.TokenHash, a.ClientID, a.UserID, pq.Array(a.Scopes.Strings()), a.IssuedAt, a.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to insert access token: %w", err)
	}

	rt := pair.Refresh
	auth, err := oauth.MarshalAuthentication(rt.Authentication)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO oauth_refresh_tokens (
			token_hash, access_token_hash, client_id, user_id, scopes,
			authentication, issued_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rt.TokenHash, rt.AccessTokenHash, rt.ClientID, rt.UserID, pq.Array(rt.Scopes.Strings()),
		string(auth), rt.IssuedAt, rt.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

func (r *postgresOAuthGrantRepo) GetAccessToken(ctx context.Context, tokenHash string) (*oauth.AccessToken, error) {
	query := `
		SELECT token_hash, client_id, user_id, scopes, issued_at, expires_at, revoked_at
		FROM oauth_access_tokens
		WHERE token_hash = $1`

	t := &oauth.AccessToken{}
	var scopes []string
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.TokenHash, &t.ClientID, &t.UserID, pq.Array(&scopes), &t.IssuedAt, &t.ExpiresAt, &revokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, oauth.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	t.Scopes = oauth.NewScopeSet(scopes...)
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return t, nil
}

// UpsertConsent merges scopes with a single statement; ScopeSet ordering is
// restored on read.
func (r *postgresOAuthGrantRepo) UpsertConsent(ctx context.Context, userID, clientID string, scopes oauth.ScopeSet, now time.Time) (*oauth.Consent, error) {
	query := `
		INSERT INTO oauth_consents (user_id, client_id, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, client_id) DO UPDATE
		SET scopes = ARRAY(SELECT DISTINCT unnest(oauth_consents.scopes || EXCLUDED.scopes)),
		    updated_at = EXCLUDED.updated_at
		RETURNING user_id, client_id, scopes, created_at, updated_at`

	return scanConsent(r.db.QueryRowContext(ctx, query, userID, clientID, pq.Array(scopes.Strings()), now))
}

func (r *postgresOAuthGrantRepo) GetConsent(ctx context.Context, userID, clientID string) (*oauth.Consent, error) {
	query := `
		SELECT user_id, client_id, scopes, created_at, updated_at
		FROM oauth_consents
		WHERE user_id = $1 AND client_id = $2`

	return scanConsent(r.db.QueryRowContext(ctx, query, userID, clientID))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConsent(row rowScanner) (*oauth.Consent, error) {
	c := &oauth.Consent{}
	var scopes []string
	err := row.Scan(&c.UserID, &c.ClientID, pq.Array(&scopes), &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, oauth.ErrConsentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan consent: %w", err)
	}
	c.Scopes = oauth.NewScopeSet(scopes...)
	return c, nil
}

func (r *postgresOAuthGrantRepo) ListConsents(ctx context.Context, userID string) ([]*oauth.Consent, error) {
	query := `
		SELECT user_id, client_id, scopes, created_at, updated_at
		FROM oauth_consents
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer closeRows(rows)

	var consents []*oauth.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		consents = append(consents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating consents: %w", err)
	}
	return consents, nil
}

func (r *postgresOAuthGrantRepo) RevokeGrant(ctx context.Context, userID, clientID string, now time.Time) error {
	return r.withTx(ctx, "revoke grant", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM oauth_consents WHERE user_id = $1 AND client_id = $2`, userID, clientID)
		if err != nil {
			return fmt.Errorf("failed to delete consent: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return oauth.ErrConsentNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM oauth_authorization_codes WHERE user_id = $1 AND client_id = $2 AND consumed_at IS NULL`,
			userID, clientID,
		); err != nil {
			return fmt.Errorf("failed to delete pending codes: %w", err)
		}

		return revokeTokens(ctx, tx, userID, clientID, now)
	})
}

func (r *postgresOAuthGrantRepo) RevokeTokens(ctx context.Context, userID, clientID string, now time.Time) error {
	return r.withTx(ctx, "revoke tokens", func(tx *sql.Tx) error {
		return revokeTokens(ctx, tx, userID, clientID, now)
	})
}

func revokeTokens(ctx context.Context, tx *sql.Tx, userID, clientID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE oauth_access_tokens SET revoked_at = $3 WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL`,
		userID, clientID, now,
	); err != nil {
		return fmt.Errorf("failed to revoke access tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE oauth_refresh_tokens SET revoked_at = $3 WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL`,
		userID, clientID, now,
	); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

func (r *postgresOAuthGrantRepo) PurgeExpired(ctx context.Context, cutoff time.Time) (oauth.PurgeResult, error) {
	var res oauth.PurgeResult
	targets := []struct {
		count *int64
		query string
	}{
		{&res.Codes, `DELETE FROM oauth_authorization_codes WHERE expires_at < $1`},
		{&res.AccessTokens, `DELETE FROM oauth_access_tokens WHERE expires_at < $1`},
		{&res.RefreshTokens, `DELETE FROM oauth_refresh_tokens WHERE expires_at < $1`},
	}
	for _, target := range targets {
		result, err := r.db.ExecContext(ctx, target.query, cutoff)
		if err != nil {
			return res, fmt.Errorf("failed to purge expired rows: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return res, fmt.Errorf("failed to check rows affected: %w", err)
		}
		*target.count = n
	}
	return res, nil
}
