// Package mock provides an in-memory store.Store for tests.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

// Store satisfies store.Store in memory with the same uniqueness, transition and paging
// rules as PostgresStore.
type Store struct {
	// FailWith, when set, is consulted at the start of every call with the method name.
	// A non-nil result is returned instead of running the call.
	FailWith func(op string) error
	PingErr  error

	mu      sync.Mutex
	nextID  int32
	jobs    map[int32]*row
	live    map[string]int32
	now     func() time.Time
	updates int
}

type row struct {
	job       models.Job
	deletedAt *time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{jobs: map[int32]*row{}, live: map[string]int32{}, now: time.Now}
}

var _ store.Store = (*Store)(nil)

func (s *Store) fail(op string) error {
	if s.FailWith != nil {
		return s.FailWith(op)
	}
	return nil
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Updates returns how many successful status updates have been applied.
func (s *Store) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Len returns the number of rows, deleted ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Store) Ping(_ context.Context) error { return s.PingErr }

func (s *Store) InsertJob(_ context.Context, job *models.Job) error {
	if err := s.fail("InsertJob"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[job.Fingerprint]; ok {
		return store.ErrDuplicateKey
	}
	s.nextID++
	now := s.now().UTC()
	job.ID = s.nextID
	job.Status = models.StatusCreated
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = &row{job: *job}
	s.live[job.Fingerprint] = job.ID
	return nil
}

func (s *Store) GetJob(_ context.Context, id int32, owner uuid.UUID) (*models.Job, error) {
	if err := s.fail("GetJob"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.jobs[id]
	if !ok || r.deletedAt != nil || r.job.Owner != owner {
		return nil, store.ErrNotFound
	}
	j := r.job
	return &j, nil
}

func (s *Store) LookupJob(_ context.Context, id int32) (*models.Job, error) {
	if err := s.fail("LookupJob"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.jobs[id]
	if !ok || r.deletedAt != nil {
		return nil, store.ErrNotFound
	}
	j := r.job
	return &j, nil
}

func (s *Store) UpdateJobStatus(_ context.Context, id int32, status models.Status, opts ...store.JobUpdateOption) (*models.Job, error) {
	if err := s.fail("UpdateJobStatus"); err != nil {
		return nil, err
	}
	owner, errMsg := applyOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.jobs[id]
	if !ok || r.deletedAt != nil || (owner != nil && r.job.Owner != *owner) {
		return nil, store.ErrNotFound
	}
	if !r.job.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, r.job.Status, status)
	}

	now := s.now().UTC()
	r.job.Status = status
	r.job.UpdatedAt = now
	if status == models.StatusRunning {
		r.job.StartedAt = &now
	}
	if status.IsTerminal() {
		r.job.CompletedAt = &now
	}
	if errMsg != nil {
		r.job.ErrorMessage = errMsg
	}
	s.updates++
	j := r.job
	return &j, nil
}

func (s *Store) ListJobsPage(_ context.Context, q store.PageQuery) ([]*models.Job, bool, error) {
	if err := s.fail("ListJobsPage"); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var matched []*models.Job
	for _, r := range s.jobs {
		j := r.job
		if r.deletedAt != nil || j.Owner != q.Owner {
			continue
		}
		if q.Status != "" && j.Status != q.Status {
			continue
		}
		if q.Cursor > 0 {
			if q.Direction == store.Backward && j.ID <= q.Cursor {
				continue
			}
			if q.Direction == store.Forward && j.ID >= q.Cursor {
				continue
			}
		}
		matched = append(matched, &j)
	}

	if q.Direction == store.Backward {
		sort.Slice(matched, func(a, b int) bool { return matched[a].ID < matched[b].ID })
	} else {
		sort.Slice(matched, func(a, b int) bool { return matched[a].ID > matched[b].ID })
	}

	hasMore := len(matched) > limit
	if hasMore {
		matched = matched[:limit]
	}
	if q.Direction == store.Backward {
		sort.Slice(matched, func(a, b int) bool { return matched[a].ID > matched[b].ID })
	}
	if matched == nil {
		matched = []*models.Job{}
	}
	return matched, hasMore, nil
}

func (s *Store) ListJobsByIDs(_ context.Context, owner uuid.UUID, ids []int32) ([]*models.Job, error) {
	if err := s.fail("ListJobsByIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.Job{}
	seen := map[int32]bool{}
	for _, id := range ids {
		r, ok := s.jobs[id]
		if !ok || seen[id] || r.deletedAt != nil || r.job.Owner != owner {
			continue
		}
		seen[id] = true
		j := r.job
		out = append(out, &j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return out, nil
}

func (s *Store) CountJobsByStatus(_ context.Context, owner uuid.UUID) (map[models.Status]int, error) {
	if err := s.fail("CountJobsByStatus"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.Status]int, len(models.AllStatuses))
	for _, st := range models.AllStatuses {
		counts[st] = 0
	}
	for _, r := range s.jobs {
		if r.deletedAt == nil && r.job.Owner == owner {
			counts[r.job.Status]++
		}
	}
	return counts, nil
}

func (s *Store) SoftDeleteJob(_ context.Context, id int32, owner uuid.UUID) error {
	if err := s.fail("SoftDeleteJob"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.jobs[id]
	if !ok || r.deletedAt != nil || r.job.Owner != owner {
		return store.ErrNotFound
	}
	now := s.now().UTC()
	r.deletedAt = &now
	r.job.UpdatedAt = now
	delete(s.live, r.job.Fingerprint)
	return nil
}

func (s *Store) PurgeDeletedJobs(_ context.Context, deletedBefore time.Time) (int64, error) {
	if err := s.fail("PurgeDeletedJobs"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.jobs {
		if r.deletedAt != nil && r.deletedAt.Before(deletedBefore) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListStaleJobs(_ context.Context, status models.Status, updatedBefore time.Time, limit int) ([]*models.Job, error) {
	if err := s.fail("ListStaleJobs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	out := []*models.Job{}
	for _, r := range s.jobs {
		if r.deletedAt == nil && r.job.Status == status && r.job.UpdatedAt.Before(updatedBefore) {
			j := r.job
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func applyOptions(opts []store.JobUpdateOption) (*uuid.UUID, *string) {
	p := store.ResolveUpdateOptions(opts...)
	return p.Owner, p.ErrorMessage
}
