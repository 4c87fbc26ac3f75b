package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/angelmondragon/licensesync/pkg/logger"
	"github.com/angelmondragon/licensesync/pkg/metrics"
)

// Stage labels used in logs and metrics.
const (
	StageExport = "export"
	StageLoad   = "load"
)

// Exporter produces the cycle artifact: every license record modified on or
// after modifiedSince, written to outputPath.
type Exporter interface {
	Export(ctx context.Context, outputPath string, modifiedSince time.Time) error
}

// Loader consumes the cycle artifact and merges it into the store.
type Loader interface {
	Load(ctx context.Context, inputPath string) error
}

// RunnerParams configure the stage runner.
type RunnerParams struct {
	Logger       *logger.Logger
	Metrics      *metrics.SyncMetrics
	Exporter     Exporter
	Loader       Loader
	ArtifactPath string
	SettleDelay  time.Duration
}

// Runner executes one full sync cycle: export to the artifact file, settle,
// load. The two stages never run concurrently and the artifact is the only
// hand-off between them.
type Runner struct {
	logg         *logger.Logger
	metrics      *metrics.SyncMetrics
	exporter     Exporter
	loader       Loader
	artifactPath string
	settleDelay  time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewRunner builds a stage runner.
func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Exporter == nil {
		return nil, fmt.Errorf("exporter required")
	}
	if params.Loader == nil {
		return nil, fmt.Errorf("loader required")
	}
	if params.ArtifactPath == "" {
		return nil, fmt.Errorf("artifact path required")
	}
	settle := params.SettleDelay
	if settle < 0 {
		settle = 0
	}
	return &Runner{
		logg:         params.Logger,
		metrics:      params.Metrics,
		exporter:     params.Exporter,
		loader:       params.Loader,
		artifactPath: params.ArtifactPath,
		settleDelay:  settle,
		sleep:        sleepContext,
	}, nil
}

// RunCycle executes both stages in order for the given watermark. The first
// stage error fails the cycle; there is no intra-cycle retry because the next
// cycle's window re-covers the same ground.
func (r *Runner) RunCycle(ctx context.Context, mark Watermark) error {
	if err := r.removeArtifact(); err != nil {
		return err
	}
	if err := r.runStage(ctx, StageExport, func(ctx context.Context) error {
		return r.exporter.Export(ctx, r.artifactPath, mark.ModifiedSince)
	}); err != nil {
		return err
	}
	// Settle buffer between the stages: lets the exported file and any
	// upstream read replicas quiesce before the load reads it back.
	if err := r.sleep(ctx, r.settleDelay); err != nil {
		return fmt.Errorf("settle wait: %w", err)
	}
	return r.runStage(ctx, StageLoad, func(ctx context.Context) error {
		return r.loader.Load(ctx, r.artifactPath)
	})
}

// removeArtifact clears the previous cycle's file so a silently failed export
// can never replay stale data into the load stage.
func (r *Runner) removeArtifact() error {
	if err := os.Remove(r.artifactPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

func (r *Runner) runStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	stageCtx := r.logg.WithStage(ctx, stage)
	r.logg.Info(stageCtx, "stage starting")
	start := time.Now()
	err := fn(stageCtx)
	duration := time.Since(start)
	r.metrics.ObserveStageDuration(stage, duration)
	stageCtx = r.logg.WithField(stageCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		r.metrics.IncStageFailure(stage)
		r.logg.Error(stageCtx, "stage failed", err)
		return fmt.Errorf("%s stage: %w", stage, err)
	}
	r.metrics.IncStageSuccess(stage)
	r.logg.Info(stageCtx, "stage completed")
	return nil
}
