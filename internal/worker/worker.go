// Package worker consumes queued jobs and drives them through running to done or failure.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/newsanalyzer/internal/jobs"
	"github.com/kiranshivaraju/newsanalyzer/internal/queue"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
	"golang.org/x/sync/semaphore"
)

const defaultRetryWindow = 2 * time.Minute

// Lifecycle is the subset of jobs.LifecycleService the worker needs.
type Lifecycle interface {
	Lookup(ctx context.Context, id int32) (*models.Job, error)
	Transition(ctx context.Context, id int32, status models.Status, opts ...store.JobUpdateOption) (*models.Job, error)
}

type Worker struct {
	consumer    queue.Consumer
	lifecycle   Lifecycle
	processor   Processor
	concurrency int64
	retryWindow time.Duration
}

// New creates a Worker running at most concurrency jobs at once. Transient failures are
// retried with exponential backoff for up to retryWindow.
func New(c queue.Consumer, l Lifecycle, p Processor, concurrency int, retryWindow time.Duration) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if retryWindow <= 0 {
		retryWindow = defaultRetryWindow
	}
	return &Worker{
		consumer:    c,
		lifecycle:   l,
		processor:   p,
		concurrency: int64(concurrency),
		retryWindow: retryWindow,
	}
}

// Run consumes deliveries until ctx is canceled or the delivery channel closes, then waits
// for in-flight jobs to settle.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	sem := semaphore.NewWeighted(w.concurrency)
	slog.Info("worker started", "concurrency", w.concurrency)

	for d := range deliveries {
		if err := sem.Acquire(ctx, 1); err != nil {
			_ = d.Nack(true)
			break
		}
		go func(d queue.Delivery) {
			defer sem.Release(1)
			w.handle(ctx, d)
		}(d)
	}

	// Acquiring the full weight waits for every in-flight handler.
	if err := sem.Acquire(context.Background(), w.concurrency); err != nil {
		return err
	}
	slog.Info("worker stopped")
	return ctx.Err()
}

func (w *Worker) handle(ctx context.Context, d queue.Delivery) {
	logger := slog.With("job_id", d.JobID, "attempt", d.Attempt)

	job, err := w.claim(ctx, d.JobID)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		logger.Info("job gone, dropping message")
		ack(logger, d)
		return
	case errors.Is(err, jobs.ErrInvalidTransition):
		logger.Info("job already claimed or finished, dropping message", "error", err)
		ack(logger, d)
		return
	case err != nil:
		logger.Error("claim job failed, requeueing", "error", err)
		if nackErr := d.Nack(true); nackErr != nil {
			logger.Error("nack failed", "error", nackErr)
		}
		return
	}

	if interrupted := w.process(ctx, logger, job); interrupted {
		// The job stays running; a redelivery is dropped by claim and the sweeper
		// settles the job once it stalls.
		if err := d.Nack(true); err != nil {
			logger.Error("nack failed", "error", err)
		}
		return
	}
	ack(logger, d)
}

// claim loads the job and moves it from created to running.
func (w *Worker) claim(ctx context.Context, id int32) (*models.Job, error) {
	var job *models.Job
	err := w.retry(ctx, "lookup job", func() error {
		var err error
		job, err = w.lifecycle.Lookup(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusCreated {
		return nil, fmt.Errorf("%w: job is %s", jobs.ErrInvalidTransition, job.Status)
	}

	err = w.retry(ctx, "start job", func() error {
		var err error
		job, err = w.lifecycle.Transition(ctx, id, models.StatusRunning)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// process runs the processor and records the outcome. A panic marks the job failed. It
// reports interrupted, recording nothing, when the processor failed because ctx was
// canceled.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, job *models.Job) (interrupted bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in processor", "error", r)
			w.finish(ctx, logger, job.ID, models.StatusFailure, store.WithErrorMessage(fmt.Sprintf("panic: %v", r)))
		}
	}()

	start := time.Now()
	if err := w.processor.Process(ctx, job); err != nil {
		if ctx.Err() != nil {
			logger.Warn("job interrupted by shutdown, requeueing", "error", err,
				"duration_ms", time.Since(start).Milliseconds())
			return true
		}
		logger.Warn("job failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		w.finish(ctx, logger, job.ID, models.StatusFailure, store.WithErrorMessage(err.Error()))
		return false
	}
	logger.Info("job done", "duration_ms", time.Since(start).Milliseconds())
	w.finish(ctx, logger, job.ID, models.StatusDone)
	return false
}

func (w *Worker) finish(ctx context.Context, logger *slog.Logger, id int32, status models.Status, opts ...store.JobUpdateOption) {
	// The outcome is recorded even when shutdown has begun.
	ctx = context.WithoutCancel(ctx)
	err := w.retry(ctx, "finish job", func() error {
		_, err := w.lifecycle.Transition(ctx, id, status, opts...)
		return err
	})
	if errors.Is(err, jobs.ErrInvalidTransition) {
		logger.Info("job settled elsewhere before finishing", "status", status, "error", err)
		return
	}
	if err != nil {
		logger.Error("record job outcome failed", "status", status, "error", err)
	}
}

// retry calls fn until it succeeds, fails with a non-transient error, or the retry window
// closes.
func (w *Worker) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = w.retryWindow

	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !errors.Is(err, jobs.ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		slog.Warn("transient failure, retrying", "op", op, "error", err, "next", next)
	})
}

func ack(logger *slog.Logger, d queue.Delivery) {
	if err := d.Ack(); err != nil {
		logger.Error("ack failed", "error", err)
	}
}
