// Package redis caches client registry lookups. Postgres remains the source
// of truth; every Redis failure falls through to the wrapped repository.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Xcrol/internal/core/oauth"
)

const keyPrefix = "xcrol:oauth:client:"

// DefaultTTL bounds how long a stale client can be served after an update
// made outside this process.
const DefaultTTL = 5 * time.Minute

// cachedClient mirrors oauth.Client including the secret hash, which the
// public JSON form of oauth.Client leaves out.
type cachedClient struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ID           string    `json:"id"`
	SecretHash   string    `json:"secret_hash"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	LogoURL      string    `json:"logo_url"`
	HomepageURL  string    `json:"homepage_url"`
	OwnerID      string    `json:"owner_id"`
	RedirectURIs []string  `json:"redirect_uris"`
	IsVerified   bool      `json:"is_verified"`
}

// ClientCache is a read-through cache in front of an oauth.ClientRepository.
type ClientCache struct {
	next  oauth.ClientRepository
	redis *goredis.Client
	ttl   time.Duration
}

// NewClientCache wraps next. A non-positive ttl uses DefaultTTL.
func NewClientCache(next oauth.ClientRepository, client *goredis.Client, ttl time.Duration) *ClientCache {
	if next == nil || client == nil {
		panic("redis: repository and client are required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ClientCache{next: next, redis: client, ttl: ttl}
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

var _ oauth.ClientRepository = (*ClientCache)(nil)

func (c *ClientCache) CreateClient(ctx context.Context, client *oauth.Client) error {
	return c.next.CreateClient(ctx, client)
}

func (c *ClientCache) GetClient(ctx context.Context, clientID string) (*oauth.Client, error) {
	key := keyPrefix + clientID

	val, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedClient
		if jsonErr := json.Unmarshal(val, &cached); jsonErr == nil {
			return cached.toClient(), nil
		}
		slog.Warn("[CLIENT-CACHE] discarding undecodable entry", "client_id", clientID)
	case errors.Is(err, goredis.Nil):
	default:
		slog.Warn("[CLIENT-CACHE] redis get failed, reading through",
			"client_id", clientID,
			"error", err,
		)
	}

	client, err := c.next.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(fromClient(client))
	if err == nil {
		if setErr := c.redis.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			slog.Warn("[CLIENT-CACHE] redis set failed",
				"client_id", clientID,
				"error", setErr,
			)
		}
	}
	return client, nil
}

func (c *ClientCache) UpdateClient(ctx context.Context, client *oauth.Client) error {
	if err := c.next.UpdateClient(ctx, client); err != nil {
		return err
	}
	if err := c.redis.Del(ctx, keyPrefix+client.ID).Err(); err != nil {
		slog.Error("[CLIENT-CACHE] failed to invalidate entry after update",
			"client_id", client.ID,
			"error", err,
		)
	}
	return nil
}

func fromClient(c *oauth.Client) cachedClient {
	return cachedClient{
		ID:           c.ID,
		SecretHash:   c.SecretHash,
		Name:         c.Name,
		Description:  c.Description,
		LogoURL:      c.LogoURL,
		HomepageURL:  c.HomepageURL,
		OwnerID:      c.OwnerID,
		RedirectURIs: c.RedirectURIs,
		IsVerified:   c.IsVerified,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (c cachedClient) toClient() *oauth.Client {
	return &oauth.Client{
		ID:           c.ID,
		SecretHash:   c.SecretHash,
		Name:         c.Name,
		Description:  c.Description,
		LogoURL:      c.LogoURL,
		HomepageURL:  c.HomepageURL,
		OwnerID:      c.OwnerID,
		RedirectURIs: c.RedirectURIs,
		IsVerified:   c.IsVerified,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
