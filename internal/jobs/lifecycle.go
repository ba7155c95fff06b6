package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/internal/cache"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

// LifecycleService applies status changes and deletions, keeping the job detail cache
// in step with the store.
type LifecycleService struct {
	store store.Store
	cache cache.Cache
}

// NewLifecycleService creates a LifecycleService. A nil cache skips invalidation.
func NewLifecycleService(s store.Store, c cache.Cache) *LifecycleService {
	return &LifecycleService{store: s, cache: c}
}

// Lookup returns a live job regardless of owner.
func (l *LifecycleService) Lookup(ctx context.Context, id int32) (*models.Job, error) {
	job, err := l.store.LookupJob(ctx, id)
	if err != nil {
		return nil, translate("lookup job", err)
	}
	return job, nil
}

// Transition moves job id to status. It is used by the worker and sweeper, for which an
// illegal transition means two writers disagree about a job, so it is logged as an error.
func (l *LifecycleService) Transition(ctx context.Context, id int32, status models.Status, opts ...store.JobUpdateOption) (*models.Job, error) {
	job, err := l.store.UpdateJobStatus(ctx, id, status, opts...)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			slog.Error("job status invariant violated", "job_id", id, "to", status, "error", err)
		}
		return nil, translate("transition job", err)
	}
	l.invalidate(ctx, id)
	slog.Info("job status changed", "job_id", id, "status", status)
	return job, nil
}

// Cancel cancels owner's job if it has not finished yet.
func (l *LifecycleService) Cancel(ctx context.Context, owner uuid.UUID, id int32) (*models.Job, error) {
	job, err := l.store.UpdateJobStatus(ctx, id, models.StatusCanceled, store.WithOwner(owner))
	if err != nil {
		return nil, translate("cancel job", err)
	}
	l.invalidate(ctx, id)
	slog.Info("job canceled", "job_id", id, "owner", owner)
	return job, nil
}

// Delete soft-deletes owner's job. The fingerprint becomes free for a new submission.
func (l *LifecycleService) Delete(ctx context.Context, owner uuid.UUID, id int32) error {
	if err := l.store.SoftDeleteJob(ctx, id, owner); err != nil {
		return translate("delete job", err)
	}
	l.invalidate(ctx, id)
	slog.Info("job deleted", "job_id", id, "owner", owner)
	return nil
}

func (l *LifecycleService) invalidate(ctx context.Context, id int32) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, cache.JobKey(id)); err != nil {
		slog.Warn("job cache invalidation failed", "job_id", id, "error", err)
	}
}
