// Package jobs runs the background maintenance of the authorization server.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"Xcrol/internal/core/oauth"
)

const (
	// DefaultSchedule runs the sweep hourly at minute 17
	DefaultSchedule = "17 * * * *"

	// DefaultRetention keeps expired rows around for a day before deleting them
	DefaultRetention = 24 * time.Hour

	sweepTimeout = 5 * time.Minute
)

// Purger deletes expired authorization codes and tokens
type Purger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (oauth.PurgeResult, error)
}

// Scheduler manages background jobs
type Scheduler struct {
	cron      *cron.Cron
	purger    Purger
	now       func() time.Time
	retention time.Duration
}

// NewScheduler creates a new job scheduler
func NewScheduler(purger Purger, retention time.Duration) *Scheduler {
	if purger == nil {
		panic("jobs: purger is required")
	}
	if retention < 0 {
		retention = DefaultRetention
	}
	return &Scheduler{
		cron:      cron.New(),
		purger:    purger,
		retention: retention,
		now:       time.Now,
	}
}

// Start schedules the expired grant sweep with a standard five field cron spec
// (or a descriptor such as "@hourly") and starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.PurgeExpired(ctx); err != nil {
			slog.Error("[JOBS] expired grant sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}

	s.cron.Start()
	slog.Info("[JOBS] scheduler started", "schedule", spec, "retention", s.retention)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("[JOBS] scheduler stopped")
}

// PurgeExpired deletes codes and tokens that expired more than the retention
// period ago.
func (s *Scheduler) PurgeExpired(ctx context.Context) (oauth.PurgeResult, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	result, err := s.purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		return result, err
	}
	slog.Info("[JOBS] purged expired grants",
		"codes", result.Codes,
		"access_tokens", result.AccessTokens,
		"refresh_tokens", result.RefreshTokens,
		"cutoff", cutoff,
	)
	return result, nil
}
