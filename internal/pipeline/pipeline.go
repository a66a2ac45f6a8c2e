// Package pipeline sequences the ingest and visualize stages, retrying each
// stage with jittered backoff and publishing a run summary when done.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/ingest"
	"github.com/gracepitts/fda-recalls/internal/metrics"
	"github.com/gracepitts/fda-recalls/internal/notify"
)

// Ingestor is the slice of the ingest package the pipeline drives.
type Ingestor interface {
	Run(ctx context.Context) (ingest.Result, error)
}

// ChartRenderer is the slice of the charts package the pipeline drives.
type ChartRenderer interface {
	RenderAll(ctx context.Context) ([]string, error)
}

// Config controls stage retry behavior.
type Config struct {
	// StageAttempts is the per-stage retry budget; 0 uses the default.
	StageAttempts int
}

// Pipeline runs ingest then visualize as one unit of work.
type Pipeline struct {
	ingestor Ingestor
	renderer ChartRenderer
	notifier notify.Provider
	policy   retryPolicy
	logger   *zap.Logger
}

// New constructs a Pipeline. renderer and notifier may be nil; a nil
// renderer skips the visualize stage.
func New(ing Ingestor, renderer ChartRenderer, notifier notify.Provider, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if ing == nil {
		return nil, fmt.Errorf("pipeline: ingestor is required")
	}
	if notifier == nil {
		notifier = notify.NoOp{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		ingestor: ing,
		renderer: renderer,
		notifier: notifier,
		policy:   newRetryPolicy(cfg.StageAttempts),
		logger:   logger,
	}, nil
}

// Run executes the full pipeline and publishes its summary. The summary is
// published even when a stage ultimately fails, carrying the failure.
func (p *Pipeline) Run(ctx context.Context) (ingest.Result, error) {
	var res ingest.Result
	err := p.runStage(ctx, "ingest", func(ctx context.Context) error {
		var stageErr error
		res, stageErr = p.ingestor.Run(ctx)
		return stageErr
	})
	if err == nil && p.renderer != nil {
		err = p.runStage(ctx, "visualize", func(ctx context.Context) error {
			paths, stageErr := p.renderer.RenderAll(ctx)
			if stageErr == nil {
				p.logger.Info("visualize stage complete", zap.Int("charts", len(paths)))
			}
			return stageErr
		})
	}

	p.publish(ctx, res, err)
	return res, err
}

// runStage retries fn under the stage policy and records stage metrics.
func (p *Pipeline) runStage(ctx context.Context, name string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := fn(ctx)
		dur := time.Since(start)

		if err == nil {
			metrics.ObserveStage(name, "ok", dur)
			return nil
		}
		metrics.ObserveStage(name, "error", dur)

		if !p.policy.shouldRetry(err, attempt+1) {
			return fmt.Errorf("stage %s: %w", name, err)
		}

		wait := p.policy.backoff(attempt)
		p.logger.Warn("stage failed, retrying",
			zap.String("stage", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("stage %s: %w", name, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (p *Pipeline) publish(ctx context.Context, res ingest.Result, runErr error) {
	summary := notify.RunSummary{
		RunID:      res.RunID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Fetched:    res.Fetched,
		Inserted:   res.Inserted,
		Deduped:    res.Deduped,
	}
	if runErr != nil {
		summary.Failed = true
		summary.Error = runErr.Error()
	}
	if err := p.notifier.Publish(ctx, summary); err != nil {
		p.logger.Warn("failed to publish run summary", zap.Error(err))
	}
}
