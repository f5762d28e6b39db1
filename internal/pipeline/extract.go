package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/raster"
	"github.com/dvloznov/statement-extractor/internal/vision"
)

var (
	// ErrModelUnavailable aborts an extraction: without a model no page can be read.
	ErrModelUnavailable = errors.New("extraction model is not configured")
	// ErrModelRejected aborts an extraction when the provider refuses a call
	// in a way no retry fixes, for example a revoked key.
	ErrModelRejected = errors.New("extraction model rejected the request")
)

// DefaultTemperature keeps page reads close to deterministic.
const DefaultTemperature float32 = 0.1

// Skip reasons recorded on PageOutcome.
const (
	SkipEmptyResponse = "empty_response"
	SkipModelError    = "model_error"
	SkipUnparsable    = "unparsable"
	SkipNotList       = "transactions_not_list"
)

// PageOutcome is what happened to one page.
type PageOutcome struct {
	Page    int    `json:"page"`
	Records int    `json:"records"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Report is the merged result of reading every page.
type Report struct {
	Pages   []PageOutcome
	Records []domain.RawRecord
}

// SkippedPages counts pages that contributed nothing because of a fault.
func (r *Report) SkippedPages() int {
	n := 0
	for _, p := range r.Pages {
		if p.Skipped {
			n++
		}
	}
	return n
}

// ExtractRequest carries the per-statement context for the prompts.
type ExtractRequest struct {
	Pages     []raster.PageImage
	CardLabel string
	Period    domain.BillingPeriod
	CutDay    string
}

// PageObserver is notified after every page. Metrics hook in here.
type PageObserver interface {
	ObservePage(outcome PageOutcome, elapsed time.Duration)
}

// Extractor reads statement pages with a vision model, one page at a time.
type Extractor struct {
	model       vision.Model
	temperature float32
	observer    PageObserver
	log         zerolog.Logger
}

// NewExtractor creates an extractor. A nil model is allowed and makes every
// Extract call fail with ErrModelUnavailable. observer may be nil.
func NewExtractor(model vision.Model, temperature float32, observer PageObserver, log zerolog.Logger) *Extractor {
	return &Extractor{model: model, temperature: temperature, observer: observer, log: log}
}

// Extract processes pages strictly in order. A page that fails is recorded in
// the report and skipped; later pages are still read. A permanent rejection
// from the provider aborts the whole extraction with ErrModelRejected.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) (*Report, error) {
	if e.model == nil {
		return nil, pkgerrors.WithStack(ErrModelUnavailable)
	}

	system := buildSystemPrompt(req.Period)
	report := &Report{Pages: make([]PageOutcome, 0, len(req.Pages))}

	for _, page := range req.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		outcome, records, err := e.extractPage(ctx, system, req, page)
		if err != nil {
			return nil, err
		}
		report.Pages = append(report.Pages, outcome)
		report.Records = append(report.Records, records...)

		if e.observer != nil {
			e.observer.ObservePage(outcome, time.Since(start))
		}
	}

	e.log.Info().
		Int("pages", len(req.Pages)).
		Int("pages_skipped", report.SkippedPages()).
		Int("records", len(report.Records)).
		Msg("extraction finished")
	return report, nil
}

// extractPage reads one page. Only permanent provider rejections return an
// error; every other fault becomes a skip on the outcome.
func (e *Extractor) extractPage(ctx context.Context, system string, req ExtractRequest, page raster.PageImage) (PageOutcome, []domain.RawRecord, error) {
	outcome := PageOutcome{Page: page.Index}
	log := e.log.With().Int("page", page.Index).Int("total", page.Total).Logger()

	text, err := e.model.Generate(ctx, vision.Request{
		System:      system,
		Prompt:      buildPagePrompt(req.CardLabel, req.Period, req.CutDay, page.Index, page.Total),
		Image:       page.Data,
		MIMEType:    page.MIMEType,
		Temperature: e.temperature,
		JSON:        true,
		HighDetail:  true,
	})
	if vision.Permanent(err) {
		log.Error().Err(err).Msg("model rejected the request")
		return outcome, nil, pkgerrors.WithStack(fmt.Errorf("%w: page %d: %v", ErrModelRejected, page.Index, err))
	}
	if err != nil {
		log.Warn().Err(err).Msg("model call failed, skipping page")
		outcome.Skipped, outcome.Reason = true, SkipModelError
		return outcome, nil, nil
	}

	payload, err := ParsePayload(text)
	switch {
	case errors.Is(err, ErrEmptyResponse):
		log.Warn().Msg("empty model response, skipping page")
		outcome.Skipped, outcome.Reason = true, SkipEmptyResponse
		return outcome, nil, nil
	case err != nil:
		log.Warn().Int("response_len", len(text)).Msg("unparsable model response, skipping page")
		outcome.Skipped, outcome.Reason = true, SkipUnparsable
		return outcome, nil, nil
	case payload.NotList:
		log.Warn().Msg("transactions value is not a list, page contributes nothing")
		outcome.Reason = SkipNotList
		return outcome, nil, nil
	}

	if payload.Recovered {
		log.Debug().Msg("recovered JSON from fenced block")
	}
	outcome.Records = len(payload.Records)
	log.Debug().Int("records", outcome.Records).Msg("page extracted")
	return outcome, payload.Records, nil
}
