package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"Xcrol/internal/core/users"
)

type postgresUserRepo struct {
	db *sql.DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sql.DB) users.UserRepository {
	return &postgresUserRepo{db: db}
}

// GetProfile retrieves a profile and its hometown columns
func (r *postgresUserRepo) GetProfile(ctx context.Context, userID string) (*users.Profile, error) {
	query := `
		SELECT id, username, display_name, avatar_url, bio, link, email, email_verified,
		       hometown_city, hometown_region, hometown_country, hometown_latitude, hometown_longitude
		FROM profiles
		WHERE id = $1`

	p := &users.Profile{}
	var displayName, avatarURL, bio, link, email sql.NullString
	var city, region, country sql.NullString
	var lat, lng sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.ID, &p.Username, &displayName, &avatarURL, &bio, &link, &email, &p.EmailVerified,
		&city, &region, &country, &lat, &lng,
	)
	if err == sql.ErrNoRows {
		return nil, users.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	p.DisplayName = displayName.String
	p.AvatarURL = avatarURL.String
	p.Bio = bio.String
	p.Link = link.String
	p.Email = email.String

	if city.Valid || country.Valid {
		p.Hometown = &users.Hometown{
			City:    city.String,
			Region:  region.String,
			Country: country.String,
		}
		if lat.Valid && lng.Valid {
			p.Hometown.Latitude = &lat.Float64
			p.Hometown.Longitude = &lng.Float64
		}
	}

	return p, nil
}

// ListConnections returns accepted friendships, closest levels first
func (r *postgresUserRepo) ListConnections(ctx context.Context, userID string) ([]users.Connection, error) {
	query := `
		SELECT p.id, p.username, p.display_name, p.avatar_url, f.level
		FROM friendships f
		JOIN profiles p ON p.id = f.friend_id
		WHERE f.user_id = $1 AND f.status = 'accepted'
		ORDER BY f.level_rank DESC, p.username ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer closeRows(rows)

	conns := []users.Connection{}
	for rows.Next() {
		var c users.Connection
		var displayName, avatarURL sql.NullString
		if err := rows.Scan(&c.UserID, &c.Username, &displayName, &avatarURL, &c.FriendshipLevel); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		c.DisplayName = displayName.String
		c.AvatarURL = avatarURL.String
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, nil
}

// ListDiaryEntries returns the newest entries that are not private
func (r *postgresUserRepo) ListDiaryEntries(ctx context.Context, userID string, limit int) ([]users.DiaryEntry, error) {
	query := `
		SELECT id, content, mood, created_at
		FROM xcrol_entries
		WHERE user_id = $1 AND privacy_level <> 'private'
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list diary entries: %w", err)
	}
	defer closeRows(rows)

	entries := []users.DiaryEntry{}
	for rows.Next() {
		var e users.DiaryEntry
		var mood sql.NullString
		if err := rows.Scan(&e.ID, &e.Body, &mood, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan diary entry: %w", err)
		}
		e.Mood = mood.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diary entries: %w", err)
	}
	return entries, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", slog.String("error", err.Error()))
	}
}
