package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/internal/api/response"
	"github.com/kiranshivaraju/newsanalyzer/internal/jobs"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

// JobQuerier defines the read side of the job API.
type JobQuerier interface {
	Page(ctx context.Context, req jobs.PageRequest) (*jobs.Page, error)
	Get(ctx context.Context, owner uuid.UUID, id int32) (*models.Job, error)
	ByIDs(ctx context.Context, owner uuid.UUID, ids []int32) ([]*models.Job, error)
	Count(ctx context.Context, owner uuid.UUID) (map[models.Status]int, error)
}

// JobManager defines the owner-initiated job mutations.
type JobManager interface {
	Cancel(ctx context.Context, owner uuid.UUID, id int32) (*models.Job, error)
	Delete(ctx context.Context, owner uuid.UUID, id int32) error
}

// pagerForm is the pager state the job list posts back. fjid and tjid are the first and
// last job ids of the page on screen; zero means no page yet.
type pagerForm struct {
	JStatus   string `form:"jstatus"   validate:"max=16"`
	FromJID   int32  `form:"fjid"      validate:"min=0"`
	ToJID     int32  `form:"tjid"      validate:"min=0"`
	Page      int    `form:"page"      validate:"min=0"`
	Direction string `form:"direction" validate:"omitempty,oneof=forward backward next prev"`
	N         int    `form:"n"         validate:"min=0,max=100"`
	JID       int32  `form:"jid"       validate:"min=0"`
	JIDs      string `form:"jids"`
}

func (f pagerForm) status() (models.Status, error) {
	s := strings.ToLower(strings.TrimSpace(f.JStatus))
	if s == "" || s == "all" {
		return "", nil
	}
	return models.ParseStatus(s)
}

func (f pagerForm) direction() store.Direction {
	if f.Direction == "backward" || f.Direction == "prev" {
		return store.Backward
	}
	return store.Forward
}

// cursor picks the page edge to read past: the last id going forward, the first going back.
func (f pagerForm) cursor() int32 {
	if f.direction() == store.Backward {
		return f.FromJID
	}
	return f.ToJID
}

// ids collects the explicit job ids of a by-id lookup: jid plus the comma list in jids.
func (f pagerForm) ids() ([]int32, error) {
	var ids []int32
	if f.JID > 0 {
		ids = append(ids, f.JID)
	}
	if strings.TrimSpace(f.JIDs) == "" {
		return ids, nil
	}
	parts := strings.Split(f.JIDs, ",")
	for _, p := range parts {
		id, ok := parseJobID(strings.TrimSpace(p))
		if !ok {
			return nil, fmt.Errorf("jids: %q is not a job id", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type jobSummary struct {
	ID          int32     `json:"job-id"`
	Status      string    `json:"job-status"`
	StatusClass string    `json:"job-status-class"`
	StatusText  string    `json:"job-status-text"`
	NewsSource  string    `json:"job-news_src"`
	Analyzer    string    `json:"job-analyzer"`
	UpdatedAt   time.Time `json:"job-updated_at"`
	UpdatedAgo  string    `json:"job-updated_ago"`
}

type jobDetail struct {
	ID           int32                 `json:"id"`
	Status       models.Status         `json:"status"`
	Presentation models.Presentation   `json:"presentation"`
	Source       models.Source         `json:"source"`
	Analyzer     models.AnalyzerConfig `json:"analyzer"`
	Capabilities []string              `json:"capabilities"`
	ErrorMessage *string               `json:"error_message,omitempty"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	Duration     string                `json:"duration,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	UpdatedAgo   string                `json:"updated_ago"`
}

func newsSource(src models.Source) string {
	if src.APIName != "" {
		return src.APIName
	}
	return "api #" + strconv.Itoa(int(src.APIID))
}

func analyzerLabel(cfg models.AnalyzerConfig) string {
	caps := cfg.Capabilities()
	if len(caps) == 0 {
		return cfg.Provider
	}
	return cfg.Provider + ": " + strings.Join(caps, ", ")
}

func toSummary(j *models.Job, now time.Time) jobSummary {
	p := j.Status.Presentation()
	return jobSummary{
		ID:          j.ID,
		Status:      string(j.Status),
		StatusClass: p.Class,
		StatusText:  p.Text,
		NewsSource:  newsSource(j.Source),
		Analyzer:    analyzerLabel(j.Analyzer),
		UpdatedAt:   j.UpdatedAt,
		UpdatedAgo:  humanize.RelTime(j.UpdatedAt, now, "ago", "from now"),
	}
}

func toDetail(j *models.Job, now time.Time) jobDetail {
	d := jobDetail{
		ID:           j.ID,
		Status:       j.Status,
		Presentation: j.Status.Presentation(),
		Source:       j.Source,
		Analyzer:     j.Analyzer,
		Capabilities: j.Analyzer.Capabilities(),
		ErrorMessage: j.ErrorMessage,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		UpdatedAgo:   humanize.RelTime(j.UpdatedAt, now, "ago", "from now"),
	}
	if j.StartedAt != nil && j.CompletedAt != nil {
		d.Duration = j.CompletedAt.Sub(*j.StartedAt).Round(time.Millisecond).String()
	}
	return d
}

// NewListJobsHandler returns an http.HandlerFunc for POST /v1/job. The body is the pager
// state; the response is a bare array of job summaries, empty when nothing matches.
// X-Has-More reports whether another page exists in the requested direction.
func NewListJobsHandler(svc JobQuerier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}

		var f pagerForm
		if err := decodeForm(w, r, &f); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}
		status, err := f.status()
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}
		ids, err := f.ids()
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}

		var (
			items   []*models.Job
			hasMore bool
		)
		if len(ids) > 0 {
			items, err = svc.ByIDs(r.Context(), owner, ids)
		} else {
			var page *jobs.Page
			page, err = svc.Page(r.Context(), jobs.PageRequest{
				Owner:     owner,
				Status:    status,
				Cursor:    f.cursor(),
				PageSize:  f.N,
				Direction: f.direction(),
			})
			if page != nil {
				items, hasMore = page.Items, page.HasMore
			}
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		now := time.Now()
		out := make([]jobSummary, len(items))
		for i, j := range items {
			out[i] = toSummary(j, now)
		}
		w.Header().Set("X-Has-More", strconv.FormatBool(hasMore))
		response.JSON(w, out)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /v1/job/{id}. Unknown ids get a
// 404 with an empty body.
func NewGetJobHandler(svc JobQuerier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}
		id, ok := parseJobID(chi.URLParam(r, "id"))
		if !ok {
			response.Empty(w, http.StatusNotFound)
			return
		}

		job, err := svc.Get(r.Context(), owner, id)
		if errors.Is(err, jobs.ErrNotFound) {
			response.Empty(w, http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, toDetail(job, time.Now()))
	}
}

// NewCountJobsHandler returns an http.HandlerFunc for GET /v1/job/count.
func NewCountJobsHandler(svc JobQuerier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}
		counts, err := svc.Count(r.Context(), owner)
		if err != nil {
			writeError(w, r, err)
			return
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		response.Data(w, map[string]any{
			"total":     total,
			"by_status": counts,
		})
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for POST /v1/job/{id}/cancel.
func NewCancelJobHandler(svc JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}
		id, ok := parseJobID(chi.URLParam(r, "id"))
		if !ok {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid job id")
			return
		}

		job, err := svc.Cancel(r.Context(), owner, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Data(w, toDetail(job, time.Now()))
	}
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /v1/job/{id}.
func NewDeleteJobHandler(svc JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}
		id, ok := parseJobID(chi.URLParam(r, "id"))
		if !ok {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid job id")
			return
		}

		if err := svc.Delete(r.Context(), owner, id); err != nil {
			writeError(w, r, err)
			return
		}
		response.Empty(w, http.StatusNoContent)
	}
}
