package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

const defaultQueryTimeout = 5 * time.Second

const jobColumns = `id, owner, fingerprint, status, src_api_id, src_api_name, src_query, preview_id,
	src_items, llm_api_id, llm_query, error_message, started_at, completed_at, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresStore creates a new PostgresStore. Every call is bounded by queryTimeout;
// a non-positive value selects the default of five seconds.
func NewPostgresStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresStore {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &PostgresStore{pool: pool, queryTimeout: queryTimeout}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// --- Jobs ---

func (s *PostgresStore) InsertJob(ctx context.Context, job *models.Job) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cfg, err := json.Marshal(job.Analyzer)
	if err != nil {
		return fmt.Errorf("encode analyzer config: %w", err)
	}

	items := job.Source.Items
	if items == nil {
		items = []string{}
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO jobs (owner, fingerprint, status, src_api_id, src_api_name, src_query, preview_id, src_items, llm_api_id, llm_query)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, status, created_at, updated_at`,
		job.Owner, job.Fingerprint, string(models.StatusCreated), job.Source.APIID, job.Source.APIName,
		job.Source.Query, job.Source.PreviewID, items, job.Analyzer.ProviderID, cfg,
	).Scan(&job.ID, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return classify("insert job", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id int32, owner uuid.UUID) (*models.Job, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND owner = $2 AND deleted_at IS NULL`, id, owner)
	j, err := scanJob(row)
	if err != nil {
		return nil, classify("get job", err)
	}
	return j, nil
}

// LookupJob fetches a live job without an owner check. It is meant for the worker and sweeper.
func (s *PostgresStore) LookupJob(ctx context.Context, id int32) (*models.Job, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND deleted_at IS NULL`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, classify("lookup job", err)
	}
	return j, nil
}

// UpdateJobStatus moves a job to status in a single guarded UPDATE. The row only changes
// when its current status is a legal source for status, so concurrent writers cannot
// both win a transition.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id int32, status models.Status, opts ...JobUpdateOption) (*models.Job, error) {
	params := ResolveUpdateOptions(opts...)

	sources := models.SourcesFor(status)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: nothing may transition to %s", ErrInvalidTransition, status)
	}
	from := make([]string, len(sources))
	for i, st := range sources {
		from[i] = string(st)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `UPDATE jobs SET status = $2, updated_at = NOW()`
	args := []any{id, string(status), from}
	argIdx := 4

	if status == models.StatusRunning {
		query += ", started_at = NOW()"
	}
	if status.IsTerminal() {
		query += ", completed_at = NOW()"
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += " WHERE id = $1 AND status = ANY($3::text[]) AND deleted_at IS NULL"
	if params.Owner != nil {
		query += fmt.Sprintf(" AND owner = $%d", argIdx)
		args = append(args, *params.Owner)
	}
	query += " RETURNING " + jobColumns

	j, err := scanJob(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify("update job status", err)
	}

	// Nothing matched: either the job is gone or its status forbids the move.
	lookup := `SELECT status FROM jobs WHERE id = $1 AND deleted_at IS NULL`
	lookupArgs := []any{id}
	if params.Owner != nil {
		lookup += " AND owner = $2"
		lookupArgs = append(lookupArgs, *params.Owner)
	}
	var current models.Status
	if err := s.pool.QueryRow(ctx, lookup, lookupArgs...).Scan(&current); err != nil {
		return nil, classify("get job status", err)
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

// ListJobsPage returns up to q.Limit jobs on one side of q.Cursor, newest first, and
// whether more rows exist beyond the page in the same direction.
func (s *PostgresStore) ListJobsPage(ctx context.Context, q PageQuery) ([]*models.Job, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	conditions := []string{"owner = $1", "deleted_at IS NULL"}
	args := []any{q.Owner}
	argIdx := 2

	if q.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(q.Status))
		argIdx++
	}

	order := "DESC"
	if q.Direction == Backward {
		order = "ASC"
		if q.Cursor > 0 {
			conditions = append(conditions, fmt.Sprintf("id > $%d", argIdx))
			args = append(args, q.Cursor)
			argIdx++
		}
	} else if q.Cursor > 0 {
		conditions = append(conditions, fmt.Sprintf("id < $%d", argIdx))
		args = append(args, q.Cursor)
		argIdx++
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE %s ORDER BY id %s LIMIT $%d`,
		jobColumns, strings.Join(conditions, " AND "), order, argIdx)
	args = append(args, limit+1)

	jobs, err := s.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, false, classify("list jobs page", err)
	}

	hasMore := len(jobs) > limit
	if hasMore {
		jobs = jobs[:limit]
	}
	if q.Direction == Backward {
		for i, j := 0, len(jobs)-1; i < j; i, j = i+1, j-1 {
			jobs[i], jobs[j] = jobs[j], jobs[i]
		}
	}
	return jobs, hasMore, nil
}

func (s *PostgresStore) ListJobsByIDs(ctx context.Context, owner uuid.UUID, ids []int32) ([]*models.Job, error) {
	if len(ids) == 0 {
		return []*models.Job{}, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	jobs, err := s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE owner = $1 AND id = ANY($2) AND deleted_at IS NULL
		 ORDER BY id DESC`, owner, ids)
	if err != nil {
		return nil, classify("list jobs by ids", err)
	}
	return jobs, nil
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context, owner uuid.UUID) (map[models.Status]int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM jobs WHERE owner = $1 AND deleted_at IS NULL GROUP BY status`, owner)
	if err != nil {
		return nil, classify("count jobs", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int, len(models.AllStatuses))
	for _, st := range models.AllStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var st models.Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("count jobs", err)
	}
	return counts, nil
}

func (s *PostgresStore) SoftDeleteJob(ctx context.Context, id int32, owner uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND owner = $2 AND deleted_at IS NULL`, id, owner)
	if err != nil {
		return classify("soft delete job", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PurgeDeletedJobs(ctx context.Context, deletedBefore time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE deleted_at IS NOT NULL AND deleted_at < $1`, deletedBefore)
	if err != nil {
		return 0, classify("purge deleted jobs", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListStaleJobs(ctx context.Context, status models.Status, updatedBefore time.Time, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	jobs, err := s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = $1 AND updated_at < $2 AND deleted_at IS NULL
		 ORDER BY id ASC LIMIT $3`, string(status), updatedBefore, limit)
	if err != nil {
		return nil, classify("list stale jobs", err)
	}
	return jobs, nil
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var cfg []byte
	if err := row.Scan(&j.ID, &j.Owner, &j.Fingerprint, &j.Status,
		&j.Source.APIID, &j.Source.APIName, &j.Source.Query, &j.Source.PreviewID,
		&j.Source.Items, &j.Analyzer.ProviderID, &cfg, &j.ErrorMessage, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	providerID := j.Analyzer.ProviderID
	if err := json.Unmarshal(cfg, &j.Analyzer); err != nil {
		return nil, fmt.Errorf("decode analyzer config: %w", err)
	}
	j.Analyzer.ProviderID = providerID
	if len(j.Source.Items) == 0 {
		j.Source.Items = nil
	}
	return &j, nil
}

// classify maps driver errors onto the package sentinels.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case isDuplicateKeyError(err):
		return ErrDuplicateKey
	case isTransientError(err):
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgerrcode.IsTransactionRollback(pgErr.Code) ||
			pgErr.Code == pgerrcode.AdminShutdown ||
			pgErr.Code == pgerrcode.QueryCanceled
	}
	return pgconn.SafeToRetry(err)
}
