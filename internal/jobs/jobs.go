// Package jobs runs the periodic maintenance work of the service.
package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/erazemk/garrison/internal/metrics"
	"github.com/erazemk/garrison/internal/store"
)

// Job names.
const (
	ReturnRetry  = "return-retry"
	TokenCleanup = "token-cleanup"
)

// Job is a named unit of work with its cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Schedules holds the cron expressions of the built-in jobs. An empty
// expression leaves the job unscheduled; it can still be run by name.
type Schedules struct {
	ReturnRetry  string
	TokenCleanup string
}

// Registry maps job names to jobs.
type Registry map[string]Job

// NewRegistry builds the jobs that operate on db.
func NewRegistry(db *sql.DB, s Schedules) Registry {
	return Registry{
		ReturnRetry: {
			Name:     ReturnRetry,
			Schedule: s.ReturnRetry,
			Run:      func(ctx context.Context) error { return retryReturns(ctx, db) },
		},
		TokenCleanup: {
			Name:     TokenCleanup,
			Schedule: s.TokenCleanup,
			Run:      func(ctx context.Context) error { return purgeTokens(ctx, db) },
		},
	}
}

// Names returns the registered job names in order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one job by name.
func (r Registry) Run(ctx context.Context, name string) error {
	j, ok := r[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return run(ctx, j)
}

func run(ctx context.Context, j Job) error {
	start := time.Now()
	err := j.Run(ctx)
	metrics.ObserveJob(j.Name, err)
	if err != nil {
		slog.Error("job failed", "job", j.Name, "error", err)
		return err
	}
	slog.Debug("job finished", "job", j.Name, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// Scheduler runs registered jobs on their schedules.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler registers every job that has a schedule. Jobs run with ctx and
// a run is skipped while the previous one is still going.
func NewScheduler(ctx context.Context, r Registry) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	for _, name := range r.Names() {
		j := r[name]
		if j.Schedule == "" {
			slog.Info("job disabled", "job", j.Name)
			continue
		}
		if _, err := c.AddFunc(j.Schedule, func() { _ = run(ctx, j) }); err != nil {
			return nil, fmt.Errorf("scheduling job %s: %w", j.Name, err)
		}
		slog.Info("job scheduled", "job", j.Name, "schedule", j.Schedule)
	}
	return &Scheduler{cron: c}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func retryReturns(ctx context.Context, db *sql.DB) error {
	res, err := store.RetryInventoryReturns(ctx, db)
	if err != nil {
		return err
	}
	if res.Applied > 0 || res.Failed > 0 {
		slog.Info("inventory returns retried", "applied", res.Applied, "failed", res.Failed)
	}

	pending, err := store.CountInventoryReturns(ctx, db)
	if err != nil {
		return err
	}
	metrics.SetPendingReturns(pending)
	return nil
}

func purgeTokens(ctx context.Context, db *sql.DB) error {
	n, err := store.PurgeExpiredTokens(ctx, db)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("expired token revocations purged", "count", n)
	}
	return nil
}
