// Package main is the entrypoint for the news analyzer API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/newsanalyzer/internal/api"
	"github.com/kiranshivaraju/newsanalyzer/internal/api/handler"
	mw "github.com/kiranshivaraju/newsanalyzer/internal/api/middleware"
	"github.com/kiranshivaraju/newsanalyzer/internal/api/response"
	"github.com/kiranshivaraju/newsanalyzer/internal/auth"
	"github.com/kiranshivaraju/newsanalyzer/internal/cache"
	"github.com/kiranshivaraju/newsanalyzer/internal/config"
	"github.com/kiranshivaraju/newsanalyzer/internal/jobs"
	"github.com/kiranshivaraju/newsanalyzer/internal/preview"
	"github.com/kiranshivaraju/newsanalyzer/internal/queue"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config: fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Connect to the job queue
	broker, err := queue.NewRabbitMQ(cfg.Queue, 0)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer broker.Close()
	slog.Info("queue connected", "queue", cfg.Queue.Queue)

	// 6. Create services
	pgStore := store.NewPostgresStore(pool, cfg.Database.QueryTimeout)
	previews := preview.NewService(redisCache, cfg.Preview.TTL, cfg.Preview.PageSize)
	submissions := jobs.NewSubmissionService(pgStore, previews, broker)
	queries := jobs.NewQueryService(pgStore, redisCache, cfg.Redis.JobDetail)
	lifecycle := jobs.NewLifecycleService(pgStore, redisCache)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:           mw.NewAuth(auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)),
		RateLimit:      mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute),
		AllowedOrigins: cfg.Server.AllowedOrigins,

		HealthHandler: healthHandler(pgStore, redisCache, broker),

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

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// pinger is anything the health check can probe.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database, cache and queue connectivity.
func healthHandler(db, c, q pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"queue":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := q.Ping(r.Context()); err != nil {
			checks["queue"] = "degraded"
		}

		for _, v := range checks {
			if v != "ok" {
				response.DataStatus(w, http.StatusServiceUnavailable, map[string]any{
					"status":   "degraded",
					"services": checks,
				})
				return
			}
		}

		response.Data(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
