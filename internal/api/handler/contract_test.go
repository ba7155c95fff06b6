package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/internal/api"
	"github.com/kiranshivaraju/newsanalyzer/internal/api/handler"
	mw "github.com/kiranshivaraju/newsanalyzer/internal/api/middleware"
	"github.com/kiranshivaraju/newsanalyzer/internal/auth"
	cachemock "github.com/kiranshivaraju/newsanalyzer/internal/cache/mock"
	"github.com/kiranshivaraju/newsanalyzer/internal/jobs"
	"github.com/kiranshivaraju/newsanalyzer/internal/preview"
	queuemock "github.com/kiranshivaraju/newsanalyzer/internal/queue/mock"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
	storemock "github.com/kiranshivaraju/newsanalyzer/internal/store/mock"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server    *httptest.Server
	store     *storemock.Store
	cache     *cachemock.Cache
	publisher *queuemock.Publisher
	previews  *preview.Service
	tokens    *auth.JWT
	owner     uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := storemock.NewStore()
	c := cachemock.NewCache()
	pub := &queuemock.Publisher{}
	previews := preview.NewService(c, time.Hour, 2)
	tokens := auth.NewJWT(testSecret, time.Hour)

	submissions := jobs.NewSubmissionService(st, previews, pub)
	queries := jobs.NewQueryService(st, c, time.Minute)
	lifecycle := jobs.NewLifecycleService(st, c)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(tokens),
		RateLimit: mw.NewRateLimit(c, 20), // low limit for rate-limit tests

		CreatePreview:  handler.NewCreatePreviewHandler(previews),
		FetchNextPage:  handler.NewFetchNextPageHandler(previews),
		SelectPreview:  handler.NewSelectPreviewHandler(previews),
		SubmitAnalyzer: handler.NewAnalyzerHandler(submissions),
		ListJobs:       handler.NewListJobsHandler(queries),
		CountJobs:      handler.NewCountJobsHandler(queries),
		GetJob:         handler.NewGetJobHandler(queries),
		CancelJob:      handler.NewCancelJobHandler(lifecycle),
		DeleteJob:      handler.NewDeleteJobHandler(lifecycle),
	}

	srv := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(srv.Close)

	return &testServer{
		server:    srv,
		store:     st,
		cache:     c,
		publisher: pub,
		previews:  previews,
		tokens:    tokens,
		owner:     uuid.New(),
	}
}

func (ts *testServer) token(t *testing.T, owner uuid.UUID) string {
	t.Helper()
	tok, err := ts.tokens.Sign(owner)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, req *http.Request, owner uuid.UUID) *http.Response {
	t.Helper()
	if owner != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, owner))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	req, err := http.NewRequest("POST", ts.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(t, req, ts.owner)
}

func (ts *testServer) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req, err := http.NewRequest("POST", ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return ts.do(t, req, ts.owner)
}

func (ts *testServer) send(t *testing.T, method, path string, owner uuid.UUID) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.server.URL+path, nil)
	require.NoError(t, err)
	return ts.do(t, req, owner)
}

// newPreview creates a preview with three items for the server's owner, all selected.
func (ts *testServer) newPreview(t *testing.T) *preview.Session {
	t.Helper()
	sess := ts.newUnselectedPreview(t)
	sess, err := ts.previews.Select(context.Background(), ts.owner, sess.ID, true, nil)
	require.NoError(t, err)
	return sess
}

func (ts *testServer) newUnselectedPreview(t *testing.T) *preview.Session {
	t.Helper()
	sess, err := ts.previews.Create(context.Background(), ts.owner,
		models.Source{APIID: 1, APIName: "newsapi", Query: "q=semiconductors"},
		[]preview.Item{{ID: "a", Title: "one"}, {ID: "b", Title: "two"}, {ID: "c", Title: "three"}})
	require.NoError(t, err)
	return sess
}

// seedJobs inserts n created jobs for owner directly into the store.
func (ts *testServer) seedJobs(t *testing.T, owner uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := ts.store.InsertJob(context.Background(), &models.Job{
			Owner:       owner,
			Fingerprint: fmt.Sprintf("%s-%d", owner, i),
			Source:      models.Source{APIID: 1, APIName: "newsapi", Query: "q=chips"},
			Analyzer: models.AnalyzerConfig{
				Provider: "cohere", ProviderID: 6,
				Embedding: models.EmbeddingOptions{Enabled: true, Model: "embed-english-v3.0"},
			},
		})
		require.NoError(t, err)
	}
}

func embeddingForm() url.Values {
	return url.Values{
		"api":             {"cohere"},
		"do-embedding":    {"true"},
		"embedding-model": {"embed-english-v3.0"},
		"input-type":      {"clustering"},
	}
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func parseList(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorOf(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	body := parseBody(t, resp)
	require.Contains(t, body, "error")
	return body["error"].(map[string]any)
}

func listIDs(items []map[string]any) []int {
	ids := make([]int, len(items))
	for i, it := range items {
		ids[i] = int(it["job-id"].(float64))
	}
	return ids
}

func idRange(from, to int) []int {
	var out []int
	for id := from; id >= to; id-- {
		out = append(out, id)
	}
	return out
}

// ─── POST /v1/preview ────────────────────────────────────────────────────────

func TestCreatePreview_201(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/v1/preview", map[string]any{
		"source": map[string]any{"api_id": 1, "api_name": "newsapi", "query": "q=tsmc"},
		"items": []map[string]any{
			{"title": "TSMC beats estimates", "link": "https://news.example/1"},
			{"title": "Foundry capacity expands"},
		},
	})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.NotEmpty(t, data["id"])
	assert.Equal(t, float64(2), data["items"])
	assert.Equal(t, "/v1/preview/fetch-next-page/"+data["id"].(string)+"?first=true", data["url"])
}

func TestCreatePreview_400_MissingQuery(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/v1/preview", map[string]any{
		"source": map[string]any{"api_id": 1},
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorOf(t, resp)["reason"])
}

func TestCreatePreview_400_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest("POST", ts.server.URL+"/v1/preview", strings.NewReader("{"))
	require.NoError(t, err)
	resp := ts.do(t, req, ts.owner)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errorOf(t, resp)["reason"])
}

// ─── GET /v1/preview/fetch-next-page/{previewId} ─────────────────────────────

func TestFetchNextPage_PagesThroughItems(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)
	path := "/v1/preview/fetch-next-page/" + sess.ID

	var first struct {
		Items   []preview.Item `json:"items"`
		HasNext bool           `json:"has_next"`
	}
	resp := ts.send(t, "GET", path+"?first=true", ts.owner)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&first))
	assert.Len(t, first.Items, 2)
	assert.True(t, first.HasNext)

	var next struct {
		Items   []preview.Item `json:"items"`
		HasNext bool           `json:"has_next"`
	}
	resp = ts.send(t, "GET", path, ts.owner)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&next))
	require.Len(t, next.Items, 1)
	assert.Equal(t, "c", next.Items[0].ID)
	assert.False(t, next.HasNext)
}

func TestFetchNextPage_410_OtherOwner(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)

	resp := ts.send(t, "GET", "/v1/preview/fetch-next-page/"+sess.ID, uuid.New())

	assert.Equal(t, http.StatusGone, resp.StatusCode)
	errObj := errorOf(t, resp)
	assert.Equal(t, "PREVIEW_EXPIRED", errObj["reason"])
	assert.Equal(t, "/v1/preview", errObj["url"])
}

func TestFetchNextPage_400_BadFirst(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)

	resp := ts.send(t, "GET", "/v1/preview/fetch-next-page/"+sess.ID+"?first=maybe", ts.owner)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ─── POST /v1/preview/{previewId} ────────────────────────────────────────────

func TestSelectPreview_RedirectsToAnalyzer(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)

	resp := ts.postForm(t, "/v1/preview/"+sess.ID+"?eid=3", url.Values{"item": {"b", "a", "b"}})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, "/v1/analyzer/"+sess.ID+"?aid=1&eid=3", body["url"])

	stored, err := ts.previews.Get(context.Background(), ts.owner, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stored.Selected)
}

func TestSelectPreview_SelectAll(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)

	resp := ts.postForm(t, "/v1/preview/"+sess.ID+"?aid=9", url.Values{"select_all": {"true"}})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/v1/analyzer/"+sess.ID+"?aid=9&eid=0", parseBody(t, resp)["url"])
}

func TestSelectPreview_400_UnknownItem(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)

	resp := ts.postForm(t, "/v1/preview/"+sess.ID, url.Values{"item": {"zzz"}})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorOf(t, resp)["reason"])
}

// ─── POST /v1/analyzer/{previewId} ───────────────────────────────────────────

func TestSubmitAnalyzer_RedirectsToJob(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)

	resp := ts.postForm(t, "/v1/analyzer/"+sess.ID+"?aid=1&eid=0", embeddingForm())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/v1/job?jid=1", parseBody(t, resp)["url"])

	msgs := ts.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int32(1), msgs[0].JobID)
}

func TestSubmitAnalyzer_DuplicateKeepsLegacyErrorPair(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)

	first := ts.postForm(t, "/v1/analyzer/"+sess.ID, embeddingForm())
	require.Equal(t, http.StatusOK, first.StatusCode)

	again := ts.postForm(t, "/v1/analyzer/"+sess.ID, embeddingForm())

	assert.Equal(t, http.StatusInternalServerError, again.StatusCode)
	errObj := errorOf(t, again)
	assert.Equal(t, float64(500), errObj["code"])
	assert.Equal(t, "23505", errObj["pgx_code"])
	assert.Equal(t, "You have already submitted this request", errObj["message"])
	assert.Equal(t, "/v1/job", errObj["url"])
	assert.Equal(t, 1, ts.store.Len())
}

func TestSubmitAnalyzer_410_ExpiredPreview(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postForm(t, "/v1/analyzer/"+uuid.NewString(), embeddingForm())

	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "PREVIEW_EXPIRED", errorOf(t, resp)["reason"])
	assert.Zero(t, ts.store.Len())
}

func TestSubmitAnalyzer_400_InvalidConfig(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)

	tests := []struct {
		name string
		form url.Values
	}{
		{"no provider", url.Values{"do-embedding": {"true"}}},
		{"unknown provider", url.Values{"api": {"acme"}, "do-embedding": {"true"}}},
		{"no capability", url.Values{"api": {"cohere"}}},
		{"openai input type", url.Values{"api": {"openai"}, "do-embedding": {"true"}, "input-type": {"clustering"}}},
		{"negative max tokens", url.Values{"api": {"openai"}, "do-sentiment": {"true"}, "max-tokens": {"-1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.postForm(t, "/v1/analyzer/"+sess.ID, tt.form)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "VALIDATION_FAILED", errorOf(t, resp)["reason"])
		})
	}
	assert.Zero(t, ts.store.Len())
}

func TestSubmitAnalyzer_400_BadQueryParam(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)

	resp := ts.postForm(t, "/v1/analyzer/"+sess.ID+"?aid=x", embeddingForm())

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitAnalyzer_503_Transient(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)
	ts.store.FailWith = func(op string) error {
		if op == "InsertJob" {
			return fmt.Errorf("insert job: %w", store.ErrTransient)
		}
		return nil
	}

	resp := ts.postForm(t, "/v1/analyzer/"+sess.ID, embeddingForm())

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
	assert.Equal(t, "TEMPORARILY_UNAVAILABLE", errorOf(t, resp)["reason"])
}

func TestSubmitAnalyzer_400_NothingSelected(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newUnselectedPreview(t)

	resp := ts.postForm(t, "/v1/analyzer/"+sess.ID, embeddingForm())

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorOf(t, resp)["reason"])
	assert.Zero(t, ts.store.Len())
}

func TestSubmitAnalyzer_503_PreviewStoreDown(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)
	ts.cache.Err = errors.New("dial tcp: i/o timeout")

	resp := ts.postForm(t, "/v1/analyzer/"+sess.ID, embeddingForm())

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
	assert.Equal(t, "TEMPORARILY_UNAVAILABLE", errorOf(t, resp)["reason"])
	assert.Zero(t, ts.store.Len())
}

func TestFetchNextPage_503_PreviewStoreDown(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)
	ts.cache.Err = errors.New("connection refused")

	resp := ts.send(t, "GET", "/v1/preview/fetch-next-page/"+sess.ID, ts.owner)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "TEMPORARILY_UNAVAILABLE", errorOf(t, resp)["reason"])
}

// ─── POST /v1/job ────────────────────────────────────────────────────────────

func TestListJobs_EmptyIsBareArray(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postForm(t, "/v1/job", url.Values{})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
	assert.Equal(t, "false", resp.Header.Get("X-Has-More"))
}

func TestListJobs_SummaryShape(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, ts.owner, 1)

	resp := ts.postForm(t, "/v1/job", url.Values{})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := parseList(t, resp)
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, float64(1), it["job-id"])
	assert.Equal(t, "created", it["job-status"])
	assert.NotEmpty(t, it["job-status-class"])
	assert.NotEmpty(t, it["job-status-text"])
	assert.Equal(t, "newsapi", it["job-news_src"])
	assert.Equal(t, "cohere: embedding", it["job-analyzer"])
	assert.NotEmpty(t, it["job-updated_at"])
	assert.NotEmpty(t, it["job-updated_ago"])
}

func TestListJobs_PagesForwardAndBack(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, ts.owner, 25)

	resp := ts.postForm(t, "/v1/job", url.Values{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Has-More"))
	assert.Equal(t, idRange(25, 16), listIDs(parseList(t, resp)))

	resp = ts.postForm(t, "/v1/job", url.Values{"fjid": {"25"}, "tjid": {"16"}, "page": {"1"}, "direction": {"next"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, idRange(15, 6), listIDs(parseList(t, resp)))

	resp = ts.postForm(t, "/v1/job", url.Values{"fjid": {"15"}, "tjid": {"6"}, "page": {"2"}, "direction": {"next"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "false", resp.Header.Get("X-Has-More"))
	assert.Equal(t, idRange(5, 1), listIDs(parseList(t, resp)))

	resp = ts.postForm(t, "/v1/job", url.Values{"fjid": {"15"}, "tjid": {"6"}, "page": {"2"}, "direction": {"prev"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, idRange(25, 16), listIDs(parseList(t, resp)))
}

func TestListJobs_PageSizeAndStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, ts.owner, 4)
	_, err := ts.store.UpdateJobStatus(context.Background(), 2, models.StatusRunning)
	require.NoError(t, err)

	resp := ts.postForm(t, "/v1/job", url.Values{"n": {"2"}})
	assert.Equal(t, []int{4, 3}, listIDs(parseList(t, resp)))

	resp = ts.postForm(t, "/v1/job", url.Values{"jstatus": {"running"}})
	assert.Equal(t, []int{2}, listIDs(parseList(t, resp)))

	resp = ts.postForm(t, "/v1/job", url.Values{"jstatus": {"all"}})
	assert.Equal(t, []int{4, 3, 2, 1}, listIDs(parseList(t, resp)))
}

func TestListJobs_ByIDs(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, ts.owner, 5)
	other := uuid.New()
	ts.seedJobs(t, other, 1)

	resp := ts.postForm(t, "/v1/job", url.Values{"jids": {"2, 4,6"}})
	assert.Equal(t, []int{4, 2}, listIDs(parseList(t, resp)))

	resp = ts.postForm(t, "/v1/job", url.Values{"jid": {"3"}})
	assert.Equal(t, []int{3}, listIDs(parseList(t, resp)))
}

func TestListJobs_400_Invalid(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		form url.Values
	}{
		{"unknown status", url.Values{"jstatus": {"finished"}}},
		{"bad direction", url.Values{"direction": {"sideways"}}},
		{"page size too big", url.Values{"n": {"101"}}},
		{"negative cursor", url.Values{"tjid": {"-1"}}},
		{"bad id list", url.Values{"jids": {"1,x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.postForm(t, "/v1/job", tt.form)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "VALIDATION_FAILED", errorOf(t, resp)["reason"])
		})
	}
}

func TestListJobs_OwnerIsolation(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, uuid.New(), 3)

	resp := ts.postForm(t, "/v1/job", url.Values{})

	assert.Empty(t, parseList(t, resp))
}

func TestListJobs_503_Transient(t *testing.T) {
	ts := newTestServer(t)
	ts.store.FailWith = func(op string) error {
		if op == "ListJobsPage" {
			return store.ErrTransient
		}
		return nil
	}

	resp := ts.postForm(t, "/v1/job", url.Values{})

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
}

// ─── GET /v1/job/{id} and /v1/job/count ─────────────────────────────────────

func TestGetJob_200(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, ts.owner, 1)

	resp := ts.send(t, "GET", "/v1/job/1", ts.owner)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, float64(1), body["id"])
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, []any{"embedding"}, body["capabilities"])
}

func TestGetJob_404_EmptyBody(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, uuid.New(), 1)

	for _, path := range []string{"/v1/job/1", "/v1/job/99", "/v1/job/abc"} {
		resp := ts.send(t, "GET", path, ts.owner)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Empty(t, raw, path)
	}
}

func TestCountJobs_200(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, ts.owner, 3)
	_, err := ts.store.UpdateJobStatus(context.Background(), 1, models.StatusRunning)
	require.NoError(t, err)

	resp := ts.send(t, "GET", "/v1/job/count", ts.owner)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(3), data["total"])
	byStatus := data["by_status"].(map[string]any)
	assert.Equal(t, float64(2), byStatus["created"])
	assert.Equal(t, float64(1), byStatus["running"])
	assert.Equal(t, float64(0), byStatus["done"])
}

// ─── POST /v1/job/{id}/cancel and DELETE /v1/job/{id} ───────────────────────

func TestCancelJob_200_Then409(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, ts.owner, 1)

	resp := ts.send(t, "POST", "/v1/job/1/cancel", ts.owner)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "canceled", data["status"])

	resp = ts.send(t, "POST", "/v1/job/1/cancel", ts.owner)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", errorOf(t, resp)["reason"])
}

func TestCancelJob_404_OtherOwner(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, uuid.New(), 1)

	resp := ts.send(t, "POST", "/v1/job/1/cancel", ts.owner)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteJob_204_ThenGone(t *testing.T) {
	ts := newTestServer(t)
	ts.seedJobs(t, ts.owner, 1)

	resp := ts.send(t, "DELETE", "/v1/job/1", ts.owner)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.send(t, "GET", "/v1/job/1", ts.owner)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.send(t, "DELETE", "/v1/job/1", ts.owner)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteJob_AllowsResubmission(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.newPreview(t)

	first := ts.postForm(t, "/v1/analyzer/"+sess.ID, embeddingForm())
	require.Equal(t, http.StatusOK, first.StatusCode)

	del := ts.send(t, "DELETE", "/v1/job/1", ts.owner)
	require.Equal(t, http.StatusNoContent, del.StatusCode)

	again := ts.postForm(t, "/v1/analyzer/"+sess.ID, embeddingForm())
	require.Equal(t, http.StatusOK, again.StatusCode)
	assert.Equal(t, "/v1/job?jid=2", parseBody(t, again)["url"])
}

// ─── Auth and rate limiting contract ────────────────────────────────────────

func TestAuth_AllProtectedEndpoints_Reject401(t *testing.T) {
	ts := newTestServer(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/v1/preview"},
		{"POST", "/v1/analyzer/p1"},
		{"POST", "/v1/job"},
		{"GET", "/v1/job/1"},
		{"DELETE", "/v1/job/1"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			resp := ts.send(t, ep.method, ep.path, uuid.Nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "INVALID_TOKEN", errorOf(t, resp)["reason"])
		})
	}
}

func TestAuth_TokenCookie(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest("POST", ts.server.URL+"/v1/job", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: mw.TokenCookie, Value: ts.token(t, ts.owner)})
	resp := ts.do(t, req, uuid.Nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit_429_Exceeded(t *testing.T) {
	ts := newTestServer(t)

	// The rate limit is set to 20 in newTestServer
	var last *http.Response
	for i := 0; i < 21; i++ {
		last = ts.send(t, "GET", "/v1/job/count", ts.owner)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.Equal(t, "60", last.Header.Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorOf(t, last)["reason"])
}
