package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"Xcrol/internal/core/oauth"
)

type postgresOAuthClientRepo struct {
	db *sql.DB
}

// NewOAuthClientRepository creates a PostgreSQL client registry
func NewOAuthClientRepository(db *sql.DB) oauth.ClientRepository {
	return &postgresOAuthClientRepo{db: db}
}

func (r *postgresOAuthClientRepo) CreateClient(ctx context.Context, client *oauth.Client) error {
	query := `
		INSERT INTO oauth_clients (
			id, secret_hash, name, description, logo_url, homepage_url,
			redirect_uris, is_verified, owner_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		client.ID, client.SecretHash, client.Name,
		nullString(client.Description), nullString(client.LogoURL), nullString(client.HomepageURL),
		pq.Array(client.RedirectURIs), client.IsVerified, nullString(client.OwnerID),
		client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("oauth client %s already exists", client.ID)
		}
		return fmt.Errorf("failed to insert oauth client: %w", err)
	}
	return nil
}

func (r *postgresOAuthClientRepo) GetClient(ctx context.Context, clientID string) (*oauth.Client, error) {
	query := `
		SELECT id, secret_hash, name, description, logo_url, homepage_url,
		       redirect_uris, is_verified, owner_id, created_at, updated_at
		FROM oauth_clients
		WHERE id = $1`

	client := &oauth.Client{}
	var description, logoURL, homepageURL, ownerID sql.NullString
	err := r.db.QueryRowContext(ctx, query, clientID).Scan(
		&client.ID, &client.SecretHash, &client.Name,
		&description, &logoURL, &homepageURL,
		pq.Array(&client.RedirectURIs), &client.IsVerified, &ownerID,
		&client.CreatedAt, &client.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, oauth.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth client: %w", err)
	}

	client.Description = description.String
	client.LogoURL = logoURL.String
	client.HomepageURL = homepageURL.String
	client.OwnerID = ownerID.String
	return client, nil
}

// UpdateClient writes the mutable columns. The id, owner and verification flag never change here.
func (r *postgresOAuthClientRepo) UpdateClient(ctx context.Context, client *oauth.Client) error {
	query := `
		UPDATE oauth_clients
		SET secret_hash = $2, name = $3, description = $4, logo_url = $5,
		    homepage_url = $6, redirect_uris = $7, updated_at = $8
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		client.ID, client.SecretHash, client.Name,
		nullString(client.Description), nullString(client.LogoURL), nullString(client.HomepageURL),
		pq.Array(client.RedirectURIs), client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update oauth client: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return oauth.ErrClientNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
