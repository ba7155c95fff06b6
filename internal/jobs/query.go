package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/internal/cache"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	maxIDsPerLookup = 100
)

// PageRequest selects one page of an owner's jobs. An empty Status lists every status
// and a zero Cursor starts from the newest (forward) or oldest (backward) job.
type PageRequest struct {
	Owner     uuid.UUID
	Status    models.Status
	Cursor    int32
	PageSize  int
	Direction store.Direction
}

// Page is one newest-first slice of jobs. Next is the cursor for the following forward
// page and Prev the cursor for the preceding backward page. On an empty page both echo
// the request cursor.
type Page struct {
	Items   []*models.Job
	HasMore bool
	Next    int32
	Prev    int32
}

// QueryService serves read-only job listings. It never writes to the store.
type QueryService struct {
	store    store.Store
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewQueryService creates a QueryService. A nil cache disables the job detail cache.
func NewQueryService(s store.Store, c cache.Cache, cacheTTL time.Duration) *QueryService {
	return &QueryService{store: s, cache: c, cacheTTL: cacheTTL}
}

// ClampPageSize applies the default for non-positive sizes and caps large ones.
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

func (q *QueryService) Page(ctx context.Context, req PageRequest) (*Page, error) {
	if req.Owner == uuid.Nil {
		return nil, validationError("owner is required")
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, validationError("unknown status %q", req.Status)
	}
	if req.Cursor < 0 {
		return nil, validationError("cursor must not be negative")
	}
	if req.Direction != store.Forward && req.Direction != store.Backward {
		return nil, validationError("unknown direction %d", req.Direction)
	}

	items, hasMore, err := q.store.ListJobsPage(ctx, store.PageQuery{
		Owner:     req.Owner,
		Status:    req.Status,
		Cursor:    req.Cursor,
		Direction: req.Direction,
		Limit:     ClampPageSize(req.PageSize),
	})
	if err != nil {
		return nil, translate("list jobs", err)
	}

	page := &Page{Items: items, HasMore: hasMore, Next: req.Cursor, Prev: req.Cursor}
	if len(items) > 0 {
		page.Prev = items[0].ID
		page.Next = items[len(items)-1].ID
	}
	return page, nil
}

// Get returns one job, reading through the job detail cache. Only terminal jobs are
// cached, since a live job can change between the store read and the cache write.
func (q *QueryService) Get(ctx context.Context, owner uuid.UUID, id int32) (*models.Job, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}

	if q.cache != nil {
		job, found, err := q.cache.GetJob(ctx, id)
		if err != nil {
			slog.Warn("job cache read failed", "job_id", id, "error", err)
		} else if found {
			if job.Owner != owner {
				return nil, ErrNotFound
			}
			return job, nil
		}
	}

	job, err := q.store.GetJob(ctx, id, owner)
	if err != nil {
		return nil, translate("get job", err)
	}

	if q.cache != nil && job.Status.IsTerminal() {
		if err := q.cache.SetJob(ctx, job, q.cacheTTL); err != nil {
			slog.Warn("job cache write failed", "job_id", id, "error", err)
		}
	}
	return job, nil
}

// ByIDs returns the owner's live jobs among ids, newest first. Unknown ids are skipped.
func (q *QueryService) ByIDs(ctx context.Context, owner uuid.UUID, ids []int32) ([]*models.Job, error) {
	if len(ids) > maxIDsPerLookup {
		return nil, validationError("at most %d job ids per request", maxIDsPerLookup)
	}
	jobs, err := q.store.ListJobsByIDs(ctx, owner, ids)
	if err != nil {
		return nil, translate("list jobs by ids", err)
	}
	return jobs, nil
}

// Count returns the number of live jobs per status, including zero counts.
func (q *QueryService) Count(ctx context.Context, owner uuid.UUID) (map[models.Status]int, error) {
	counts, err := q.store.CountJobsByStatus(ctx, owner)
	if err != nil {
		return nil, translate("count jobs", err)
	}
	return counts, nil
}
