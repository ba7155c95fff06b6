package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/newsanalyzer/internal/analyzer"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

// Processor performs the analysis for one running job. A returned error marks the job
// failed with the error text as its message.
type Processor interface {
	Process(ctx context.Context, job *models.Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job *models.Job) error

func (f ProcessorFunc) Process(ctx context.Context, job *models.Job) error { return f(ctx, job) }

// ConfigProcessor re-checks the stored analyzer config against the provider registry and
// walks the requested capabilities.
type ConfigProcessor struct{}

func (ConfigProcessor) Process(ctx context.Context, job *models.Job) error {
	cfg, err := analyzer.Validate(job.Analyzer)
	if err != nil {
		return fmt.Errorf("analyzer config: %w", err)
	}
	for _, capability := range cfg.Capabilities() {
		if err := ctx.Err(); err != nil {
			return err
		}
		slog.Info("running capability",
			"job_id", job.ID,
			"provider", cfg.Provider,
			"capability", capability,
			"preview_id", job.Source.PreviewID,
		)
	}
	return nil
}
