// Package sweeper runs periodic job maintenance: re-enqueueing jobs that never reached a
// worker, cancelling jobs that stalled, and purging soft-deleted rows.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/newsanalyzer/internal/config"
	"github.com/kiranshivaraju/newsanalyzer/internal/jobs"
	"github.com/kiranshivaraju/newsanalyzer/internal/queue"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
	"github.com/robfig/cron/v3"
)

const batchSize = 100

// Sweeper owns a cron scheduler with two entries: the stale-job sweep and the purge.
type Sweeper struct {
	store     store.Store
	lifecycle *jobs.LifecycleService
	publisher queue.Publisher
	cfg       config.SweeperConfig
	cron      *cron.Cron
	now       func() time.Time
}

func New(s store.Store, l *jobs.LifecycleService, p queue.Publisher, cfg config.SweeperConfig) *Sweeper {
	return &Sweeper{
		store:     s,
		lifecycle: l,
		publisher: p,
		cfg:       cfg,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:       time.Now,
	}
}

// Start registers the schedules and starts the scheduler in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.cfg.Schedule, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.PurgeSchedule, func() {
		if _, err := s.Purge(ctx); err != nil {
			slog.Error("purge deleted jobs failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule purge %q: %w", s.cfg.PurgeSchedule, err)
	}
	s.cron.Start()
	slog.Info("sweeper started", "schedule", s.cfg.Schedule, "purge_schedule", s.cfg.PurgeSchedule)
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep runs one maintenance pass over created and running jobs.
func (s *Sweeper) Sweep(ctx context.Context) {
	republished, canceled, err := s.SweepCreated(ctx)
	if err != nil {
		slog.Error("sweep created jobs failed", "error", err)
	}
	stalled, err := s.SweepRunning(ctx)
	if err != nil {
		slog.Error("sweep running jobs failed", "error", err)
	}
	if republished+canceled+stalled > 0 {
		slog.Info("sweep complete", "republished", republished, "canceled", canceled+stalled)
	}
}

// SweepCreated re-enqueues jobs idle in created for longer than StaleAfter. Jobs that have
// waited longer than CancelAfter since submission are canceled instead.
func (s *Sweeper) SweepCreated(ctx context.Context) (republished, canceled int, err error) {
	now := s.now()
	stale, err := s.store.ListStaleJobs(ctx, models.StatusCreated, now.Add(-s.cfg.StaleAfter), batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list stale created jobs: %w", err)
	}

	for _, job := range stale {
		if now.Sub(job.CreatedAt) > s.cfg.CancelAfter {
			if s.cancel(ctx, job) {
				canceled++
			}
			continue
		}
		msg := queue.Message{JobID: job.ID, Attempt: attempt(job, now, s.cfg.StaleAfter), EnqueuedAt: now.UTC()}
		if err := s.publisher.Publish(ctx, msg); err != nil {
			return republished, canceled, fmt.Errorf("republish job %d: %w", job.ID, err)
		}
		republished++
	}
	return republished, canceled, nil
}

// SweepRunning cancels jobs that have been running without progress for longer than
// CancelAfter.
func (s *Sweeper) SweepRunning(ctx context.Context) (int, error) {
	stalled, err := s.store.ListStaleJobs(ctx, models.StatusRunning, s.now().Add(-s.cfg.CancelAfter), batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stalled running jobs: %w", err)
	}
	n := 0
	for _, job := range stalled {
		if s.cancel(ctx, job) {
			n++
		}
	}
	return n, nil
}

// Purge hard-deletes rows soft-deleted more than PurgeAfter ago.
func (s *Sweeper) Purge(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeDeletedJobs(ctx, s.now().Add(-s.cfg.PurgeAfter))
	if err != nil {
		return 0, fmt.Errorf("purge deleted jobs: %w", err)
	}
	if n > 0 {
		slog.Info("purged deleted jobs", "count", n)
	}
	return n, nil
}

func (s *Sweeper) cancel(ctx context.Context, job *models.Job) bool {
	msg := fmt.Sprintf("canceled by sweeper: no progress for %s", s.cfg.CancelAfter)
	_, err := s.lifecycle.Transition(ctx, job.ID, models.StatusCanceled, store.WithErrorMessage(msg))
	if errors.Is(err, jobs.ErrInvalidTransition) || errors.Is(err, jobs.ErrNotFound) {
		return false
	}
	if err != nil {
		slog.Error("cancel stalled job failed", "job_id", job.ID, "error", err)
		return false
	}
	slog.Warn("stalled job canceled", "job_id", job.ID, "status", job.Status)
	return true
}

// attempt estimates how many times the job has been enqueued from its age.
func attempt(job *models.Job, now time.Time, every time.Duration) int {
	if every <= 0 {
		return 1
	}
	return int(now.Sub(job.CreatedAt)/every) + 1
}
