// Package worker runs the background schedule regeneration sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/makenakalei/fika-scheduling/internal/scheduler"
	"github.com/makenakalei/fika-scheduling/internal/shared"
)

// UserLister returns the users the sweep regenerates.
type UserLister interface {
	ListUsersWithPendingTasks(ctx context.Context) ([]string, error)
}

// Generator runs one schedule generation.
type Generator interface {
	Generate(ctx context.Context, userID string, day time.Time) (*scheduler.Schedule, error)
}

// SweepRecorder receives sweep outcomes.
type SweepRecorder interface {
	ObserveSweep(regenerated, skipped int)
}

// Config controls a Sweeper.
type Config struct {
	// Spec is a five-field cron expression or descriptor such as "@daily".
	Spec     string
	Location *time.Location
	// RunTimeout bounds each user's generation.
	RunTimeout time.Duration
	// MaxRetries is the number of attempts on transient storage conflicts.
	MaxRetries int
	RetryDelay time.Duration
}

// Stats summarizes one sweep.
type Stats struct {
	Regenerated int
	Skipped     int
	Failed      int
}

// Sweeper regenerates the day's schedule of every user with pending tasks.
type Sweeper struct {
	users    UserLister
	gen      Generator
	cfg      Config
	recorder SweepRecorder
	logger   *slog.Logger
	now      func() time.Time

	c *cron.Cron
}

// NewSweeper creates a Sweeper. recorder may be nil.
func NewSweeper(users UserLister, gen Generator, cfg Config, recorder SweepRecorder, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	return &Sweeper{
		users:    users,
		gen:      gen,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Start schedules the sweep and stops it when ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(s.cfg.Location))

	if _, err := s.c.AddFunc(s.cfg.Spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.Spec, err)
	}
	s.c.Start()
	s.logger.Info("Regeneration sweep started", "spec", s.cfg.Spec, "location", s.cfg.Location.String())

	go func() {
		<-ctx.Done()
		stopped := s.c.Stop()
		<-stopped.Done()
		s.logger.Info("Regeneration sweep shutting down", "reason", ctx.Err())
	}()
	return nil
}

// Sweep regenerates today's schedule for every user with pending tasks.
func (s *Sweeper) Sweep(ctx context.Context) Stats {
	var stats Stats

	userIDs, err := s.users.ListUsersWithPendingTasks(ctx)
	if err != nil {
		s.logger.Error("Sweep failed to list users", "error", err)
		return stats
	}
	if len(userIDs) == 0 {
		return stats
	}

	now := s.now().In(s.cfg.Location)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	s.logger.Info("Sweep regenerating schedules", "users", len(userIDs), "date", day.Format("2006-01-02"))

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		err := s.generateWithRetry(ctx, userID, day)
		switch {
		case err == nil:
			stats.Regenerated++
		case errors.Is(err, scheduler.ErrRunInProgress):
			s.logger.Debug("Sweep skipped user with run in progress", "user_id", userID)
			stats.Skipped++
		default:
			s.logger.Warn("Sweep failed to regenerate schedule", "user_id", userID, "error", err)
			stats.Failed++
		}
	}

	if s.recorder != nil {
		s.recorder.ObserveSweep(stats.Regenerated, stats.Skipped)
	}
	s.logger.Info("Sweep completed",
		"regenerated", stats.Regenerated,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return stats
}

// generateWithRetry retries on SQLITE_BUSY and similar conflicts with
// exponential backoff.
func (s *Sweeper) generateWithRetry(ctx context.Context, userID string, day time.Time) error {
	var err error
	for i := 0; i < s.cfg.MaxRetries; i++ {
		runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
		_, err = s.gen.Generate(runCtx, userID, day)
		cancel()
		if err == nil || !shared.IsConflictError(err) || i == s.cfg.MaxRetries-1 {
			break
		}

		delay := s.cfg.RetryDelay * time.Duration(1<<i)
		s.logger.Debug("Database locked during sweep, retrying",
			"user_id", userID,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
