// Package app wires the extractor components from configuration. The HTTP
// server, the Lambda adapter and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/api/handlers"
	"github.com/dvloznov/statement-extractor/internal/auth"
	"github.com/dvloznov/statement-extractor/internal/config"
	"github.com/dvloznov/statement-extractor/internal/gcs"
	infra "github.com/dvloznov/statement-extractor/internal/infra/bigquery"
	"github.com/dvloznov/statement-extractor/internal/jobs"
	jobqueue "github.com/dvloznov/statement-extractor/internal/jobs/inmemory"
	"github.com/dvloznov/statement-extractor/internal/metrics"
	"github.com/dvloznov/statement-extractor/internal/payload"
	"github.com/dvloznov/statement-extractor/internal/pipeline"
	"github.com/dvloznov/statement-extractor/internal/raster"
	"github.com/dvloznov/statement-extractor/internal/ratelimit/inmemory"
	"github.com/dvloznov/statement-extractor/internal/vision"
)

// App holds the long-lived components of one process.
type App struct {
	Config   config.Config
	Handler  *handlers.StatementsHandler
	Pipeline *pipeline.Pipeline
	Limiter  *inmemory.Limiter
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Storage  gcs.StorageService // nil when no storage client could be built
	Model    vision.Model       // nil when no provider is configured

	closers []func() error
}

// Build constructs every component. A missing model credential is not an
// error: the process starts and each extraction fails until one is set.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	a.Metrics = metrics.New(a.Registry)

	model, err := vision.New(ctx, cfg, log)
	switch {
	case errors.Is(err, vision.ErrUnavailable):
		log.Error().Err(err).Msg("no vision model configured, extraction requests will fail")
	case err != nil:
		return nil, fmt.Errorf("Build: creating vision model: %w", err)
	default:
		a.Model = model
		log.Info().Str("model", model.Name()).Msg("vision model ready")
	}

	var fetcher pipeline.ObjectFetcher
	storage, err := gcs.NewClient(ctx, cfg.MaxFileSizeBytes())
	if err != nil {
		log.Warn().Err(err).Msg("object storage unavailable, s3Bucket/s3Key requests will fail")
	} else {
		a.Storage = storage
		fetcher = storage
		a.closers = append(a.closers, storage.Close)
	}

	var recorder infra.Recorder = infra.NopRecorder{}
	if cfg.BigQueryProject != "" {
		bq, err := infra.NewBigQueryRecorder(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("Build: creating run recorder: %w", err)
		}
		queue := jobqueue.NewQueue(bq, jobs.DefaultBufferSize, jobs.DefaultWorkers, log)
		recorder = queue
		a.closers = append(a.closers, queue.Close)
	}

	rasterizer := raster.NewRasterizer(raster.NewFitzRenderer(), cfg.RasterDPI, cfg.RasterMaxPages)
	extractor := pipeline.NewExtractor(a.Model, cfg.VisionTemperature, a.Metrics, log)
	a.Pipeline = pipeline.NewStatementPipeline(fetcher, rasterizer, extractor, log)

	a.Limiter = inmemory.NewLimiter(cfg.MaxRequestsPerMinute)

	a.Handler, err = handlers.NewStatementsHandler(handlers.Deps{
		Guard:       auth.NewGuard(cfg.RequireAuth, cfg.APIKey, log),
		Limiter:     a.Limiter,
		Validator:   payload.NewValidator(cfg.MaxFileSizeMB),
		Pipeline:    a.Pipeline,
		Recorder:    recorder,
		Metrics:     a.Metrics,
		ModelName:   a.ModelName(),
		Development: cfg.IsDevelopment(),
		Log:         log,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("Build: %w", err)
	}
	return a, nil
}

// ModelName is the configured model or "" when none is available.
func (a *App) ModelName() string {
	if a.Model == nil {
		return ""
	}
	return a.Model.Name()
}

// Close releases the storage and audit clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
