// Package main is the entrypoint for the news analyzer job worker. It consumes queued jobs
// and runs the sweeper that republishes, cancels and purges stale ones.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/newsanalyzer/internal/cache"
	"github.com/kiranshivaraju/newsanalyzer/internal/config"
	"github.com/kiranshivaraju/newsanalyzer/internal/jobs"
	"github.com/kiranshivaraju/newsanalyzer/internal/queue"
	"github.com/kiranshivaraju/newsanalyzer/internal/store"
	"github.com/kiranshivaraju/newsanalyzer/internal/sweeper"
	"github.com/kiranshivaraju/newsanalyzer/internal/worker"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "concurrency", cfg.Worker.Concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	broker, err := queue.NewRabbitMQ(cfg.Queue, cfg.Worker.Concurrency)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer broker.Close()
	slog.Info("queue connected", "queue", cfg.Queue.Queue)

	pgStore := store.NewPostgresStore(pool, cfg.Database.QueryTimeout)
	lifecycle := jobs.NewLifecycleService(pgStore, redisCache)

	sw := sweeper.New(pgStore, lifecycle, broker, cfg.Sweeper)
	if err := sw.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	w := worker.New(broker, lifecycle, worker.ConfigProcessor{}, cfg.Worker.Concurrency, cfg.Worker.MaxRetryWindow)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	sw.Stop(shutdownCtx)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker: %w", err)
	}
	slog.Info("worker stopped gracefully")
	return nil
}
