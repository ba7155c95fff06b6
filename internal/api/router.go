package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/newsanalyzer/internal/api/middleware"
	"github.com/kiranshivaraju/newsanalyzer/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth           *mw.Auth
	RateLimit      *mw.RateLimit
	AllowedOrigins []string

	HealthHandler http.HandlerFunc

	CreatePreview  http.HandlerFunc
	FetchNextPage  http.HandlerFunc
	SelectPreview  http.HandlerFunc
	SubmitAnalyzer http.HandlerFunc
	ListJobs       http.HandlerFunc
	CountJobs      http.HandlerFunc
	GetJob         http.HandlerFunc
	CancelJob      http.HandlerFunc
	DeleteJob      http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if len(deps.AllowedOrigins) > 0 {
		r.Use(mw.CORS(deps.AllowedOrigins))
	}
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/preview", orNotImplemented(deps.CreatePreview))
		r.Get("/preview/fetch-next-page/{previewId}", orNotImplemented(deps.FetchNextPage))
		r.Post("/preview/{previewId}", orNotImplemented(deps.SelectPreview))

		r.Post("/analyzer/{previewId}", orNotImplemented(deps.SubmitAnalyzer))

		r.Post("/job", orNotImplemented(deps.ListJobs))
		r.Get("/job/count", orNotImplemented(deps.CountJobs))
		r.Get("/job/{id}", orNotImplemented(deps.GetJob))
		r.Post("/job/{id}/cancel", orNotImplemented(deps.CancelJob))
		r.Delete("/job/{id}", orNotImplemented(deps.DeleteJob))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented")
	}
}
