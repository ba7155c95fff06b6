package jobs

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/internal/analyzer"
	"github.com/kiranshivaraju/newsanalyzer/internal/preview"
	"github.com/kiranshivaraju/newsanalyzer/internal/queue"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

// Previews is the subset of the preview service used by submission.
type Previews interface {
	Get(ctx context.Context, owner uuid.UUID, id string) (*preview.Session, error)
	MarkSubmitted(ctx context.Context, owner uuid.UUID, id string, jobID int32) error
}

// SubmitRequest is one analyzer submission against a preview.
type SubmitRequest struct {
	Owner     uuid.UUID
	PreviewID string
	Analyzer  models.AnalyzerConfig
}

// SubmissionService accepts analyzer requests and creates at most one live job per
// fingerprint.
type SubmissionService struct {
	store     store.Store
	previews  Previews
	publisher queue.Publisher
}

func NewSubmissionService(s store.Store, p Previews, pub queue.Publisher) *SubmissionService {
	return &SubmissionService{store: s, previews: p, publisher: pub}
}

// Submit validates req, inserts a job in status created and enqueues it.
//
// The preview is resolved before anything else, so a lapsed preview never yields a row.
// The job runs on the preview's current item selection, which must not be empty. An identical earlier submission returns ErrDuplicateSubmission. A failed enqueue is
// logged only; the job stays created and the sweeper republishes it.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	if req.Owner == uuid.Nil {
		return nil, validationError("owner is required")
	}
	previewID := strings.TrimSpace(req.PreviewID)
	if previewID == "" {
		return nil, validationError("preview id is required")
	}

	sess, err := s.previews.Get(ctx, req.Owner, previewID)
	if err != nil {
		return nil, translate("load preview", err)
	}

	cfg, err := analyzer.Validate(req.Analyzer)
	if err != nil {
		return nil, translate("validate analyzer", err)
	}

	items := sess.SelectedItems()
	if len(items) == 0 {
		return nil, validationError("no preview items selected")
	}

	src := sess.Source
	src.PreviewID = sess.ID
	src.Items = items

	job := &models.Job{
		Owner:       req.Owner,
		Fingerprint: analyzer.Fingerprint(req.Owner, src, cfg),
		Source:      src,
		Analyzer:    cfg,
	}
	if err := s.store.InsertJob(ctx, job); err != nil {
		return nil, translate("insert job", err)
	}

	logger := slog.With("job_id", job.ID, "owner", job.Owner, "preview_id", src.PreviewID)
	logger.Info("job submitted", "provider", cfg.Provider, "capabilities", cfg.Capabilities())

	if err := s.publisher.Publish(ctx, queue.Message{JobID: job.ID}); err != nil {
		logger.Error("enqueue job failed, leaving it for the sweeper", "error", err)
	}

	if err := s.previews.MarkSubmitted(ctx, req.Owner, previewID, job.ID); err != nil {
		logger.Warn("mark preview submitted failed", "error", err)
	}

	return job, nil
}
