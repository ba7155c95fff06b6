package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/newsanalyzer/internal/api/response"
	"github.com/kiranshivaraju/newsanalyzer/internal/jobs"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

// Submitter defines the submission service the handler depends on.
type Submitter interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*models.Job, error)
}

// analyzerForm is the urlencoded analyzer configuration. The provider is named by
// llm-api-id or api.
type analyzerForm struct {
	APIName        string `form:"api"             validate:"required_without=APIID,max=32"`
	APIID          int16  `form:"llm-api-id"      validate:"min=0"`
	DoEmbedding    bool   `form:"do-embedding"`
	EmbeddingModel string `form:"embedding-model" validate:"max=64"`
	InputType      string `form:"input-type"      validate:"max=32"`
	DoSentiment    bool   `form:"do-sentiment"`
	SentimentModel string `form:"sentiment-model" validate:"max=64"`
	MaxTokens      int    `form:"max-tokens"      validate:"min=0,max=32768"`
	Truncate       string `form:"truncate"        validate:"max=8"`
}

func (f analyzerForm) config() models.AnalyzerConfig {
	return models.AnalyzerConfig{
		Provider:   f.APIName,
		ProviderID: f.APIID,
		Embedding: models.EmbeddingOptions{
			Enabled:   f.DoEmbedding,
			Model:     f.EmbeddingModel,
			InputType: f.InputType,
		},
		Sentiment: models.SentimentOptions{
			Enabled:   f.DoSentiment,
			Model:     f.SentimentModel,
			MaxTokens: f.MaxTokens,
			Truncate:  f.Truncate,
		},
	}
}

// NewAnalyzerHandler returns an http.HandlerFunc for POST /v1/analyzer/{previewId}.
func NewAnalyzerHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}

		previewID := strings.TrimSpace(chi.URLParam(r, "previewId"))
		if previewID == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "preview id is required")
			return
		}
		aid, err := queryInt(r, "aid")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}
		eid, err := queryInt(r, "eid")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}

		var f analyzerForm
		if err := decodeForm(w, r, &f); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}

		job, err := svc.Submit(r.Context(), jobs.SubmitRequest{
			Owner:     owner,
			PreviewID: previewID,
			Analyzer:  f.config(),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		slog.Info("analyzer submitted", "job_id", job.ID, "preview_id", previewID, "aid", aid, "eid", eid)
		response.Redirect(w, jobURL(job.ID))
	}
}

func jobURL(id int32) string {
	return fmt.Sprintf("/v1/job?jid=%d", id)
}
