package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/internal/cache"
	cachemock "github.com/kiranshivaraju/newsanalyzer/internal/cache/mock"
	"github.com/kiranshivaraju/newsanalyzer/internal/jobs"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
	storemock "github.com/kiranshivaraju/newsanalyzer/internal/store/mock"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transientErr() error {
	return fmt.Errorf("insert job: %w: %w", store.ErrTransient, context.DeadlineExceeded)
}

// seedJobs inserts n jobs for owner and returns their ids in insertion order.
func seedJobs(t *testing.T, s *storemock.Store, owner uuid.UUID, n int) []int32 {
	t.Helper()
	ids := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		j := &models.Job{
			Owner:       owner,
			Fingerprint: fmt.Sprintf("%s-%d", owner, i),
			Source:      models.Source{APIID: 1, Query: fmt.Sprintf("q=%d", i)},
			Analyzer:    cohereEmbedding(),
		}
		require.NoError(t, s.InsertJob(context.Background(), j))
		ids = append(ids, j.ID)
	}
	return ids
}

func pageIDs(p *jobs.Page) []int32 {
	ids := make([]int32, len(p.Items))
	for i, j := range p.Items {
		ids[i] = j.ID
	}
	return ids
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, jobs.DefaultPageSize, jobs.ClampPageSize(0))
	assert.Equal(t, jobs.DefaultPageSize, jobs.ClampPageSize(-3))
	assert.Equal(t, 7, jobs.ClampPageSize(7))
	assert.Equal(t, jobs.MaxPageSize, jobs.ClampPageSize(1000))
}

func TestPage_ForwardThenBackward(t *testing.T) {
	s := storemock.NewStore()
	owner := uuid.New()
	seedJobs(t, s, owner, 25)
	svc := jobs.NewQueryService(s, nil, 0)
	ctx := context.Background()

	p1, err := svc.Page(ctx, jobs.PageRequest{Owner: owner, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []int32{25, 24, 23, 22, 21, 20, 19, 18, 17, 16}, pageIDs(p1))
	assert.True(t, p1.HasMore)
	assert.Equal(t, int32(25), p1.Prev)
	assert.Equal(t, int32(16), p1.Next)

	p2, err := svc.Page(ctx, jobs.PageRequest{Owner: owner, PageSize: 10, Cursor: p1.Next})
	require.NoError(t, err)
	assert.Equal(t, []int32{15, 14, 13, 12, 11, 10, 9, 8, 7, 6}, pageIDs(p2))
	assert.True(t, p2.HasMore)

	p3, err := svc.Page(ctx, jobs.PageRequest{Owner: owner, PageSize: 10, Cursor: p2.Next})
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 4, 3, 2, 1}, pageIDs(p3))
	assert.False(t, p3.HasMore)

	back, err := svc.Page(ctx, jobs.PageRequest{Owner: owner, PageSize: 10, Cursor: p3.Prev, Direction: store.Backward})
	require.NoError(t, err)
	assert.Equal(t, pageIDs(p2), pageIDs(back))
	assert.True(t, back.HasMore)
}

func TestPage_EmptyPageEchoesCursor(t *testing.T) {
	s := storemock.NewStore()
	owner := uuid.New()
	seedJobs(t, s, owner, 3)
	svc := jobs.NewQueryService(s, nil, 0)

	p, err := svc.Page(context.Background(), jobs.PageRequest{Owner: owner, Cursor: 1})
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.False(t, p.HasMore)
	assert.Equal(t, int32(1), p.Next)
	assert.Equal(t, int32(1), p.Prev)
}

func TestPage_StatusFilter(t *testing.T) {
	s := storemock.NewStore()
	owner := uuid.New()
	ids := seedJobs(t, s, owner, 4)
	ctx := context.Background()
	_, err := s.UpdateJobStatus(ctx, ids[1], models.StatusRunning)
	require.NoError(t, err)
	_, err = s.UpdateJobStatus(ctx, ids[3], models.StatusCanceled)
	require.NoError(t, err)

	svc := jobs.NewQueryService(s, nil, 0)
	p, err := svc.Page(ctx, jobs.PageRequest{Owner: owner, Status: models.StatusCreated})
	require.NoError(t, err)
	assert.Equal(t, []int32{ids[2], ids[0]}, pageIDs(p))
}

func TestPage_IsolatesOwners(t *testing.T) {
	s := storemock.NewStore()
	a, b := uuid.New(), uuid.New()
	seedJobs(t, s, a, 3)
	seedJobs(t, s, b, 2)

	p, err := jobs.NewQueryService(s, nil, 0).Page(context.Background(), jobs.PageRequest{Owner: b})
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 4}, pageIDs(p))
}

func TestPage_Validation(t *testing.T) {
	svc := jobs.NewQueryService(storemock.NewStore(), nil, 0)
	ctx := context.Background()

	tests := []struct {
		name string
		req  jobs.PageRequest
	}{
		{"missing owner", jobs.PageRequest{}},
		{"unknown status", jobs.PageRequest{Owner: uuid.New(), Status: "paused"}},
		{"negative cursor", jobs.PageRequest{Owner: uuid.New(), Cursor: -1}},
		{"bad direction", jobs.PageRequest{Owner: uuid.New(), Direction: store.Direction(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Page(ctx, tt.req)
			assert.ErrorIs(t, err, jobs.ErrValidation)
		})
	}
}

func TestPage_TransientStoreError(t *testing.T) {
	s := storemock.NewStore()
	s.FailWith = func(string) error { return transientErr() }

	_, err := jobs.NewQueryService(s, nil, 0).Page(context.Background(), jobs.PageRequest{Owner: uuid.New()})
	assert.ErrorIs(t, err, jobs.ErrTransient)
	assert.NotErrorIs(t, err, store.ErrTransient)
}

// finishJob moves a seeded job to done.
func finishJob(t *testing.T, s *storemock.Store, id int32) {
	t.Helper()
	ctx := context.Background()
	_, err := s.UpdateJobStatus(ctx, id, models.StatusRunning)
	require.NoError(t, err)
	_, err = s.UpdateJobStatus(ctx, id, models.StatusDone)
	require.NoError(t, err)
}

func TestGet_ReadsThroughCache(t *testing.T) {
	s := storemock.NewStore()
	c := cachemock.NewCache()
	owner := uuid.New()
	ids := seedJobs(t, s, owner, 1)
	finishJob(t, s, ids[0])
	svc := jobs.NewQueryService(s, c, time.Minute)
	ctx := context.Background()

	job, err := svc.Get(ctx, owner, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], job.ID)
	assert.True(t, c.Has(cache.JobKey(ids[0])))

	// Served from cache even when the store is down.
	s.FailWith = func(string) error { return errors.New("down") }
	job, err = svc.Get(ctx, owner, ids[0])
	require.NoError(t, err)
	assert.Equal(t, owner, job.Owner)
	assert.Equal(t, models.StatusDone, job.Status)
}

func TestGet_LiveJobsAreNotCached(t *testing.T) {
	s := storemock.NewStore()
	c := cachemock.NewCache()
	owner := uuid.New()
	ids := seedJobs(t, s, owner, 1)
	svc := jobs.NewQueryService(s, c, time.Minute)

	job, err := svc.Get(context.Background(), owner, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, job.Status)
	assert.False(t, c.Has(cache.JobKey(ids[0])))
}

// racingStore finishes the job right after it has been read, the way a worker
// transition can land between the read and the cache write.
type racingStore struct {
	*storemock.Store
	lifecycle *jobs.LifecycleService
	raced     bool
}

func (r *racingStore) GetJob(ctx context.Context, id int32, owner uuid.UUID) (*models.Job, error) {
	job, err := r.Store.GetJob(ctx, id, owner)
	if err != nil || r.raced {
		return job, err
	}
	r.raced = true
	if _, err := r.lifecycle.Transition(ctx, id, models.StatusRunning); err != nil {
		return nil, err
	}
	if _, err := r.lifecycle.Transition(ctx, id, models.StatusDone); err != nil {
		return nil, err
	}
	return job, nil
}

func TestGet_TransitionDuringReadIsNotMasked(t *testing.T) {
	inner := storemock.NewStore()
	c := cachemock.NewCache()
	owner := uuid.New()
	ids := seedJobs(t, inner, owner, 1)
	s := &racingStore{Store: inner, lifecycle: jobs.NewLifecycleService(inner, c)}
	svc := jobs.NewQueryService(s, c, time.Minute)
	ctx := context.Background()

	first, err := svc.Get(ctx, owner, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, first.Status)

	second, err := svc.Get(ctx, owner, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, second.Status)
	assert.True(t, c.Has(cache.JobKey(ids[0])))
}

func TestGet_CachedJobOfAnotherOwner(t *testing.T) {
	s := storemock.NewStore()
	c := cachemock.NewCache()
	owner := uuid.New()
	ids := seedJobs(t, s, owner, 1)
	finishJob(t, s, ids[0])
	svc := jobs.NewQueryService(s, c, time.Minute)
	ctx := context.Background()

	_, err := svc.Get(ctx, owner, ids[0])
	require.NoError(t, err)
	require.True(t, c.Has(cache.JobKey(ids[0])))

	_, err = svc.Get(ctx, uuid.New(), ids[0])
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestGet_CacheFailureFallsBackToStore(t *testing.T) {
	s := storemock.NewStore()
	c := cachemock.NewCache()
	c.Err = errors.New("redis down")
	owner := uuid.New()
	ids := seedJobs(t, s, owner, 1)

	job, err := jobs.NewQueryService(s, c, time.Minute).Get(context.Background(), owner, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], job.ID)
}

func TestGet_NotFound(t *testing.T) {
	svc := jobs.NewQueryService(storemock.NewStore(), cachemock.NewCache(), time.Minute)

	_, err := svc.Get(context.Background(), uuid.New(), 42)
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	_, err = svc.Get(context.Background(), uuid.New(), 0)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestByIDs(t *testing.T) {
	s := storemock.NewStore()
	owner := uuid.New()
	ids := seedJobs(t, s, owner, 3)
	other := seedJobs(t, s, uuid.New(), 1)
	svc := jobs.NewQueryService(s, nil, 0)

	got, err := svc.ByIDs(context.Background(), owner, []int32{ids[0], ids[2], other[0], 999})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[2], got[0].ID)
	assert.Equal(t, ids[0], got[1].ID)

	tooMany := make([]int32, 101)
	_, err = svc.ByIDs(context.Background(), owner, tooMany)
	assert.ErrorIs(t, err, jobs.ErrValidation)
}

func TestCount(t *testing.T) {
	s := storemock.NewStore()
	owner := uuid.New()
	ids := seedJobs(t, s, owner, 3)
	_, err := s.UpdateJobStatus(context.Background(), ids[0], models.StatusRunning)
	require.NoError(t, err)

	counts, err := jobs.NewQueryService(s, nil, 0).Count(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.StatusCreated])
	assert.Equal(t, 1, counts[models.StatusRunning])
	assert.Equal(t, 0, counts[models.StatusDone])
	assert.Len(t, counts, len(models.AllStatuses))
}
