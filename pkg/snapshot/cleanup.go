package snapshot

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Cleaner lists and deletes old snapshot jobs.
type Cleaner struct {
	api    JobAPI
	clock  clockwork.Clock
	logger *zap.Logger
	ledger JobLedger
}

// CleanerOption configures the Cleaner.
type CleanerOption func(*Cleaner)

// WithCleanerLogger sets the logger.
func WithCleanerLogger(l *zap.Logger) CleanerOption {
	return func(c *Cleaner) {
		c.logger = l
	}
}

// WithCleanerClock sets the clock used for the age cut-off.
func WithCleanerClock(clock clockwork.Clock) CleanerOption {
	return func(c *Cleaner) {
		c.clock = clock
	}
}

// WithCleanerLedger sets the job ledger consulted for ownership.
func WithCleanerLedger(l JobLedger) CleanerOption {
	return func(c *Cleaner) {
		c.ledger = l
	}
}

// NewCleaner creates a new Cleaner.
func NewCleaner(api JobAPI, opts ...CleanerOption) *Cleaner {
	c := &Cleaner{
		api:    api,
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
		ledger: NewMemoryJobLedger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns up to maxJobs jobs, following next links.
// A maxJobs of zero or less means DefaultMaxJobs.
func (c *Cleaner) List(ctx context.Context, maxJobs int) ([]ExportJob, error) {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}

	var jobs []ExportJob
	next := ""
	for {
		page, err := c.api.ListJobs(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, job := range page.Jobs {
			jobs = append(jobs, job)
			if len(jobs) >= maxJobs {
				return jobs, nil
			}
		}
		if page.NextLink == "" {
			return jobs, nil
		}
		next = page.NextLink
	}
}

// Cleanup deletes jobs whose status is selected and that were created
// strictly before now minus OlderThanDays. Jobs without a parseable
// creation time are skipped. It returns the ids deleted, or in dry-run
// mode the ids that would be deleted. The first delete failure aborts.
func (c *Cleaner) Cleanup(ctx context.Context, opts CleanupOptions) ([]string, error) {
	if err := opts.Validate(); err != nil {
		return nil, ErrValidation(err.Error()).WithOperation("cleanup")
	}

	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = DefaultCleanupStatuses
	}
	selected := make(map[JobStatus]bool, len(statuses))
	for _, s := range statuses {
		selected[s] = true
	}

	cutoff := c.clock.Now().UTC().Add(-time.Duration(opts.OlderThanDays) * 24 * time.Hour)

	jobs, err := c.List(ctx, opts.MaxJobs)
	if err != nil {
		return nil, err
	}

	deleted := []string{}
	for _, job := range jobs {
		if !selected[job.Status] {
			continue
		}
		if job.CreatedAt == nil || !job.CreatedAt.Before(cutoff) {
			continue
		}
		if job.ID == "" {
			c.logger.Warn("skipping job without id", zap.String("status", job.RawStatus))
			continue
		}
		if opts.OwnedOnly {
			owned, err := c.owned(ctx, job.ID)
			if err != nil {
				return deleted, err
			}
			if !owned {
				c.logger.Debug("skipping job not owned by this tool", zap.String("jobId", job.ID))
				continue
			}
		}

		fields := []zap.Field{
			zap.String("jobId", job.ID),
			zap.String("status", job.RawStatus),
			zap.Time("createdDateTime", *job.CreatedAt),
		}
		if opts.DryRun {
			c.logger.Info("dry run: would delete snapshot job", fields...)
			deleted = append(deleted, job.ID)
			continue
		}

		c.logger.Info("deleting snapshot job", fields...)
		if err := c.api.DeleteJob(ctx, job.ID); err != nil {
			return deleted, err
		}
		deleted = append(deleted, job.ID)

		if err := c.ledger.Delete(ctx, job.ID); err != nil {
			c.logger.Warn("failed to forget deleted job", zap.String("jobId", job.ID), zap.Error(err))
		}
	}

	return deleted, nil
}

func (c *Cleaner) owned(ctx context.Context, id string) (bool, error) {
	rec, err := c.ledger.Get(ctx, id)
	if err != nil {
		if IsCategory(err, ErrCategoryNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.Owned, nil
}
