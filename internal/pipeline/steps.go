package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/payload"
	"github.com/dvloznov/statement-extractor/internal/raster"
)

// ErrNoDocument is returned when a request names neither inline content nor
// a storage object.
var ErrNoDocument = errors.New("no file content provided: send fileBase64 or s3Bucket and s3Key")

// ObjectFetcher retrieves document bytes from object storage.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// PageRasterizer turns document bytes into page images.
type PageRasterizer interface {
	Rasterize(ctx context.Context, data []byte, kind raster.Kind) ([]raster.PageImage, error)
}

// PipelineStep represents a single step in the extraction pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	// Input
	FileBase64 string
	Kind       raster.Kind
	Bucket     string
	Key        string
	CardLabel  string
	Period     domain.BillingPeriod
	CutDay     string

	// Produced by the steps
	Document []byte
	Pages    []raster.PageImage
	Report   *Report
	Result   NormalizeResult
}

// LoadDocumentStep decodes inline content or fetches it from storage.
type LoadDocumentStep struct {
	Fetcher ObjectFetcher
}

func (s *LoadDocumentStep) Execute(ctx context.Context, state *PipelineState) error {
	switch {
	case state.FileBase64 != "":
		data, err := payload.Decode(state.FileBase64)
		if err != nil {
			return err
		}
		state.Document = data
	case state.Bucket != "" && state.Key != "":
		if s.Fetcher == nil {
			return fmt.Errorf("LoadDocumentStep: object storage is not configured")
		}
		data, err := s.Fetcher.Fetch(ctx, state.Bucket, state.Key)
		if err != nil {
			return fmt.Errorf("LoadDocumentStep: fetch %s/%s: %w", state.Bucket, state.Key, err)
		}
		state.Document = data
	default:
		return ErrNoDocument
	}
	return nil
}

// RasterizeStep renders the document into page images.
type RasterizeStep struct {
	Rasterizer PageRasterizer
}

func (s *RasterizeStep) Execute(ctx context.Context, state *PipelineState) error {
	pages, err := s.Rasterizer.Rasterize(ctx, state.Document, state.Kind)
	if err != nil {
		return err
	}
	state.Pages = pages
	return nil
}

// ExtractStep reads every page with the vision model.
type ExtractStep struct {
	Extractor *Extractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	report, err := s.Extractor.Extract(ctx, ExtractRequest{
		Pages:     state.Pages,
		CardLabel: state.CardLabel,
		Period:    state.Period,
		CutDay:    state.CutDay,
	})
	if err != nil {
		return err
	}
	state.Report = report
	return nil
}

// NormalizeStep validates the merged records and applies the period filter.
type NormalizeStep struct {
	Log zerolog.Logger
}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Result = Normalize(state.Report.Records, state.Period, s.Log)
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewStatementPipeline wires the standard load, rasterize, extract and
// normalize sequence.
func NewStatementPipeline(fetcher ObjectFetcher, rasterizer PageRasterizer, extractor *Extractor, log zerolog.Logger) *Pipeline {
	return NewPipeline(
		&LoadDocumentStep{Fetcher: fetcher},
		&RasterizeStep{Rasterizer: rasterizer},
		&ExtractStep{Extractor: extractor},
		&NormalizeStep{Log: log},
	)
}
