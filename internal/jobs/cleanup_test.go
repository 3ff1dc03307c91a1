package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Xcrol/internal/core/oauth"
	"Xcrol/internal/db/memory"
)

type recordingPurger struct {
	err     error
	cutoffs []time.Time
}

func (p *recordingPurger) PurgeExpired(_ context.Context, cutoff time.Time) (oauth.PurgeResult, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return oauth.PurgeResult{Codes: 2}, p.err
}

func TestScheduler_PurgeExpiredUsesRetention(t *testing.T) {
	purger := &recordingPurger{}
	s := NewScheduler(purger, 6*time.Hour)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	result, err := s.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Codes)
	require.Len(t, purger.cutoffs, 1)
	assert.Equal(t, now.Add(-6*time.Hour), purger.cutoffs[0])

	purger.err = errors.New("db down")
	_, err = s.PurgeExpired(context.Background())
	assert.Error(t, err)
}

func TestScheduler_PurgesMemoryStore(t *testing.T) {
	store := memory.NewOAuthStore()
	ctx := context.Background()
	past := time.Now().UTC().Add(-72 * time.Hour)

	require.NoError(t, store.SaveAuthorizationCode(ctx, &oauth.AuthorizationCode{
		CodeHash:       oauth.HashToken("old"),
		ClientID:       "client",
		UserID:         "user",
		RedirectURI:    "https://acme.test/cb",
		Scopes:         oauth.NewScopeSet(),
		Authentication: oauth.SecretAuthentication{},
		CreatedAt:      past,
		ExpiresAt:      past.Add(10 * time.Minute),
	}))
	require.NoError(t, store.SaveAuthorizationCode(ctx, &oauth.AuthorizationCode{
		CodeHash:       oauth.HashToken("fresh"),
		ClientID:       "client",
		UserID:         "user",
		RedirectURI:    "https://acme.test/cb",
		Scopes:         oauth.NewScopeSet(),
		Authentication: oauth.SecretAuthentication{},
		CreatedAt:      time.Now().UTC(),
		ExpiresAt:      time.Now().UTC().Add(10 * time.Minute),
	}))

	result, err := NewScheduler(store, DefaultRetention).PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Codes)
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&recordingPurger{}, DefaultRetention)
	assert.Error(t, s.Start("not a cron spec"))

	s = NewScheduler(&recordingPurger{}, DefaultRetention)
	require.NoError(t, s.Start("@hourly"))
	s.Stop()
}

func TestNewScheduler_RequiresPurger(t *testing.T) {
	assert.Panics(t, func() { NewScheduler(nil, DefaultRetention) })
}
