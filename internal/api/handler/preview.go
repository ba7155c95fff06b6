package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/internal/api/response"
	"github.com/kiranshivaraju/newsanalyzer/internal/preview"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

// Previews defines the preview operations the handlers depend on.
type Previews interface {
	Create(ctx context.Context, owner uuid.UUID, src models.Source, items []preview.Item) (*preview.Session, error)
	FetchNextPage(ctx context.Context, owner uuid.UUID, id string, first bool) ([]preview.Item, bool, error)
	Select(ctx context.Context, owner uuid.UUID, id string, selectAll bool, itemIDs []string) (*preview.Session, error)
}

type createPreviewRequest struct {
	Source struct {
		APIID   int16  `json:"api_id"   validate:"required,min=1"`
		APIName string `json:"api_name" validate:"max=32"`
		Query   string `json:"query"    validate:"required,max=512"`
	} `json:"source"`
	Items []previewItemRequest `json:"items" validate:"max=1000,dive"`
}

type previewItemRequest struct {
	ID          string    `json:"id"          validate:"max=128"`
	Title       string    `json:"title"       validate:"required,max=1024"`
	Link        string    `json:"link"        validate:"omitempty,url"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Category    string    `json:"category"    validate:"max=128"`
	PubDate     time.Time `json:"pub_date"`
}

type createPreviewResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Items     int       `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}

type fetchPageResponse struct {
	Items   []preview.Item `json:"items"`
	HasNext bool           `json:"has_next"`
}

// selectForm is the item selection posted from the preview page.
type selectForm struct {
	SelectAll bool     `form:"select_all"`
	Items     []string `form:"item" validate:"max=1000,dive,required,max=128"`
}

// NewCreatePreviewHandler returns an http.HandlerFunc for POST /v1/preview.
func NewCreatePreviewHandler(svc Previews) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}

		var req createPreviewRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body is not valid JSON")
			return
		}
		if err := validateStruct(req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}

		items := make([]preview.Item, len(req.Items))
		for i, it := range req.Items {
			items[i] = preview.Item{
				ID:          strings.TrimSpace(it.ID),
				Title:       it.Title,
				Link:        it.Link,
				Description: it.Description,
				Content:     it.Content,
				Category:    it.Category,
				PubDate:     it.PubDate,
			}
		}
		src := models.Source{
			APIID:   req.Source.APIID,
			APIName: strings.TrimSpace(req.Source.APIName),
			Query:   strings.TrimSpace(req.Source.Query),
		}

		sess, err := svc.Create(r.Context(), owner, src, items)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, createPreviewResponse{
			ID:        sess.ID,
			URL:       "/v1/preview/fetch-next-page/" + sess.ID + "?first=true",
			Items:     len(sess.Items),
			CreatedAt: sess.CreatedAt,
		})
	}
}

// NewFetchNextPageHandler returns an http.HandlerFunc for
// GET /v1/preview/fetch-next-page/{previewId}.
func NewFetchNextPageHandler(svc Previews) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}

		first := false
		if raw := r.URL.Query().Get("first"); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "first must be a boolean")
				return
			}
			first = b
		}

		items, hasNext, err := svc.FetchNextPage(r.Context(), owner, chi.URLParam(r, "previewId"), first)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, fetchPageResponse{Items: items, HasNext: hasNext})
	}
}

// NewSelectPreviewHandler returns an http.HandlerFunc for POST /v1/preview/{previewId}.
// It stores the selection and points the client at the analyzer form for the preview.
func NewSelectPreviewHandler(svc Previews) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
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

		var f selectForm
		if err := decodeForm(w, r, &f); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}

		sess, err := svc.Select(r.Context(), owner, chi.URLParam(r, "previewId"), f.SelectAll, f.Items)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if aid == 0 {
			aid = int(sess.Source.APIID)
		}
		response.Redirect(w, analyzerURL(sess.ID, aid, eid))
	}
}

func analyzerURL(previewID string, aid, eid int) string {
	q := url.Values{}
	q.Set("aid", strconv.Itoa(aid))
	q.Set("eid", strconv.Itoa(eid))
	return fmt.Sprintf("/v1/analyzer/%s?%s", url.PathEscape(previewID), q.Encode())
}
