package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Xcrol/internal/core/oauth"
	"Xcrol/internal/core/users"
	"Xcrol/internal/db/memory"
	redisCache "Xcrol/internal/db/redis"
)

func TestWithClientCache_NoRedis(t *testing.T) {
	store := memory.NewOAuthStore()

	clients, closeFn, err := withClientCache(context.Background(), store, "")
	require.NoError(t, err)
	defer closeFn()

	assert.Same(t, store, clients)
}

func TestWithClientCache_BadURL(t *testing.T) {
	_, _, err := withClientCache(context.Background(), memory.NewOAuthStore(), "not-a-redis-url")
	assert.Error(t, err)
}

// A secret rotated from the CLI must be visible to a server that already cached the client.
func TestWithClientCache_RotationInvalidatesServerCache(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	store := memory.NewOAuthStore()
	profiles := users.NewUserService(memory.NewUserStore())

	rdb, err := redisCache.Connect(ctx, redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	serverClients := redisCache.NewClientCache(store, rdb, time.Minute)
	server := oauth.NewService(oauth.NewRepository(serverClients, store), profiles)

	client, oldSecret, err := server.RegisterClient(ctx, oauth.RegisterClientRequest{
		Name:         "acme",
		RedirectURIs: []string{"https://acme.test/cb"},
	})
	require.NoError(t, err)

	cached, err := serverClients.GetClient(ctx, client.ID)
	require.NoError(t, err)
	require.True(t, oauth.VerifyClientSecret(cached.SecretHash, oldSecret))

	cliClients, closeFn, err := withClientCache(ctx, store, redisURL)
	require.NoError(t, err)
	defer closeFn()
	cli := oauth.NewService(oauth.NewRepository(cliClients, store), profiles)

	newSecret, err := cli.RotateClientSecret(ctx, client.ID)
	require.NoError(t, err)

	got, err := serverClients.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.True(t, oauth.VerifyClientSecret(got.SecretHash, newSecret))
	assert.False(t, oauth.VerifyClientSecret(got.SecretHash, oldSecret))
}
