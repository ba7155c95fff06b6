package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// ErrTransient marks failures worth retrying: query timeouts, lost connections,
// serialization conflicts.
var ErrTransient = errors.New("transient database failure")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// InsertJob persists job in status created and fills in ID, CreatedAt and UpdatedAt.
	// It returns ErrDuplicateKey when a live job with the same fingerprint exists.
	InsertJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int32, owner uuid.UUID) (*models.Job, error)
	LookupJob(ctx context.Context, id int32) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id int32, status models.Status, opts ...JobUpdateOption) (*models.Job, error)

	ListJobsPage(ctx context.Context, q PageQuery) ([]*models.Job, bool, error)
	ListJobsByIDs(ctx context.Context, owner uuid.UUID, ids []int32) ([]*models.Job, error)
	CountJobsByStatus(ctx context.Context, owner uuid.UUID) (map[models.Status]int, error)

	SoftDeleteJob(ctx context.Context, id int32, owner uuid.UUID) error
	PurgeDeletedJobs(ctx context.Context, deletedBefore time.Time) (int64, error)
	ListStaleJobs(ctx context.Context, status models.Status, updatedBefore time.Time, limit int) ([]*models.Job, error)
}

// Direction selects which side of the cursor a page is read from.
type Direction int

const (
	// Forward reads ids strictly below the cursor (older jobs).
	Forward Direction = iota
	// Backward reads ids strictly above the cursor (newer jobs).
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// PageQuery selects one page of an owner's jobs. A zero Cursor is unbounded and an
// empty Status matches every status. Results are always ordered by id descending.
type PageQuery struct {
	Owner     uuid.UUID
	Status    models.Status
	Cursor    int32
	Direction Direction
	Limit     int
}

// UpdateParams is the resolved form of a set of JobUpdateOptions.
type UpdateParams struct {
	ErrorMessage *string
	Owner        *uuid.UUID
}

type JobUpdateOption func(*UpdateParams)

func ResolveUpdateOptions(opts ...JobUpdateOption) UpdateParams {
	var p UpdateParams
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *UpdateParams) {
		p.ErrorMessage = &msg
	}
}

// WithOwner restricts the update to jobs belonging to owner.
func WithOwner(owner uuid.UUID) JobUpdateOption {
	return func(p *UpdateParams) {
		p.Owner = &owner
	}
}
