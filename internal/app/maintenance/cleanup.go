// Package maintenance runs the periodic purges of expired rows.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/saudema/saudema/internal/monitoring"
	"github.com/saudema/saudema/pkg/logger"
)

const (
	defaultSchedule = "@hourly"

	JobPasswordResets = "password_reset_tokens"
	JobSessions       = "sessions"
	JobCacheEntries   = "cache_entries"
)

// TokenPurger deletes expired or consumed rows and reports how many went.
type TokenPurger interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CachePurger deletes cache entries expired at now.
type CachePurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner coordinates background maintenance tasks: purging expired password
// reset tokens, browser sessions and database cache entries.
type Cleaner struct {
	resets   TokenPurger
	sessions TokenPurger
	cache    CachePurger
	tracker  *monitoring.JobTracker
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	schedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cache expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron expression shared by every job.
func WithSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.schedule = expr
		}
	}
}

// WithTracker records every run for the maintenance health check.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.tracker = tracker
	}
}

// WithCache enables purging of the database cache table.
func WithCache(cache CachePurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = cache
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the
// corresponding cleanup job being skipped.
func NewCleaner(resets, sessions TokenPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		resets:   resets,
		sessions: sessions,
		now:      time.Now,
		schedule: defaultSchedule,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

type job struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.resets != nil {
		jobs = append(jobs, job{JobPasswordResets, c.resets.CleanupExpired})
	}
	if c.sessions != nil {
		jobs = append(jobs, job{JobSessions, c.sessions.CleanupExpired})
	}
	if c.cache != nil {
		jobs = append(jobs, job{JobCacheEntries, func(ctx context.Context) (int64, error) {
			return c.cache.PurgeExpired(ctx, c.now())
		}})
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		if _, err := c.cron.AddFunc(c.schedule, func() {
			_ = c.runJob(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	c.log.Info("maintenance scheduled", zap.String("schedule", c.schedule), zap.Int("jobs", len(jobs)))
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once
// running jobs have finished, or immediately when Start was never called.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Every job
// runs even when an earlier one fails; the failures are combined.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.runJob(ctx, j))
	}
	return errs
}

func (c *Cleaner) runJob(ctx context.Context, j job) error {
	start := time.Now()
	removed, err := j.run(ctx)
	if c.tracker != nil {
		c.tracker.Record(j.name, err, time.Since(start))
	}
	if err != nil {
		c.log.Warn("cleanup failed", zap.String("job", j.name), zap.Error(err))
		return fmt.Errorf("maintenance: %s: %w", j.name, err)
	}
	if removed > 0 {
		c.log.Info("cleanup removed rows", zap.String("job", j.name), zap.Int64("removed", removed))
	}
	return nil
}
