package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dvloznov/statement-extractor/internal/api/middleware"
	"github.com/dvloznov/statement-extractor/internal/auth"
	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/gcs"
	infra "github.com/dvloznov/statement-extractor/internal/infra/bigquery"
	"github.com/dvloznov/statement-extractor/internal/metrics"
	"github.com/dvloznov/statement-extractor/internal/payload"
	"github.com/dvloznov/statement-extractor/internal/pipeline"
	"github.com/dvloznov/statement-extractor/internal/raster"
	"github.com/dvloznov/statement-extractor/internal/ratelimit"
)

const (
	msgUnauthorized = "Unauthorized: Invalid or missing API key"
	msgInvalidJSON  = "Invalid JSON in request body"
	msgBadBase64    = "Invalid base64 file content"
)

// Request is a transport-neutral view of an incoming call.
type Request struct {
	Method    string
	Headers   http.Header
	Body      []byte
	RequestID string
	// BodyTruncated is set when the transport stopped reading an oversized
	// body. BodySize then carries the declared or observed size.
	BodyTruncated bool
	BodySize      int64
}

// Response is what the transport writes back.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// SuccessBody is the 200 response.
type SuccessBody struct {
	Success      bool                 `json:"success"`
	Transactions []domain.Transaction `json:"transactions"`
	Metadata     Metadata             `json:"metadata"`
}

// Metadata reports how much of the statement was usable.
type Metadata struct {
	TotalExtracted  int `json:"totalExtracted"`
	Pages           int `json:"pages"`
	PagesSkipped    int `json:"pagesSkipped"`
	RecordsDropped  int `json:"recordsDropped"`
	RecordsFiltered int `json:"recordsFiltered"`
}

// Deps are the collaborators of a StatementsHandler.
type Deps struct {
	Guard       *auth.Guard
	Limiter     ratelimit.Admitter
	Validator   payload.Validator
	Pipeline    *pipeline.Pipeline
	Recorder    infra.Recorder   // optional
	Metrics     *metrics.Metrics // optional
	ModelName   string
	Development bool
	Log         zerolog.Logger
}

// StatementsHandler runs the gatekeeping sequence and the extraction pipeline.
type StatementsHandler struct {
	Deps
	schema *jsonschema.Schema
	now    func() time.Time
}

// NewStatementsHandler validates deps and compiles the ingress schema.
func NewStatementsHandler(deps Deps) (*StatementsHandler, error) {
	if deps.Guard == nil || deps.Limiter == nil || deps.Pipeline == nil {
		return nil, errors.New("NewStatementsHandler: guard, limiter and pipeline are required")
	}
	if deps.Recorder == nil {
		deps.Recorder = infra.NopRecorder{}
	}
	schema, err := compileIngressSchema()
	if err != nil {
		return nil, fmt.Errorf("NewStatementsHandler: %w", err)
	}
	return &StatementsHandler{Deps: deps, schema: schema, now: time.Now}, nil
}

// Process handles one request end to end. Checks run in order and the first
// failing one decides the response: auth, rate limit, body, size, schema.
func (h *StatementsHandler) Process(ctx context.Context, req Request) Response {
	resp := Response{Headers: http.Header{}}
	middleware.ApplyCORS(resp.Headers)
	resp.Headers.Set("Content-Type", "application/json")

	if req.Method == http.MethodOptions {
		resp.Status = http.StatusOK
		return resp
	}

	identity := auth.ClientIdentity(req.Headers)
	log := h.Log.With().Str("client_id", identity).Str("request_id", req.RequestID).Logger()

	finish := func(status int, body any) Response {
		resp.Status = status
		b, err := json.Marshal(body)
		if err != nil {
			log.Error().Err(err).Msg("encoding response")
			resp.Status = http.StatusInternalServerError
			b = []byte(`{"success":false,"error":"Internal server error"}`)
		}
		resp.Body = b
		if h.Metrics != nil {
			h.Metrics.ObserveRequest(resp.Status)
		}
		return resp
	}
	fail := func(status int, msg string) Response {
		return finish(status, middleware.ErrorBody{Error: msg})
	}

	if !h.Guard.Authorize(req.Headers) {
		log.Warn().Msg("unauthorized request")
		return fail(http.StatusUnauthorized, msgUnauthorized)
	}

	decision := h.Limiter.Admit(identity)
	resp.Headers.Set("X-RateLimit-Limit", strconv.Itoa(h.Limiter.Limit()))
	resp.Headers.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.Allowed {
		resp.Headers.Set("Retry-After", strconv.Itoa(int(h.Limiter.Window()/time.Second)))
		log.Warn().Msg("rate limit exceeded")
		return fail(http.StatusTooManyRequests,
			fmt.Sprintf("Rate limit exceeded. Maximum %d requests per minute allowed.", h.Limiter.Limit()))
	}

	if req.BodyTruncated {
		check := payload.Result{EncodedBytes: req.BodySize, EstimatedBytes: req.BodySize * 3 / 4}
		return fail(http.StatusRequestEntityTooLarge, h.Validator.Message(check))
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(req.Body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fail(http.StatusBadRequest, msgInvalidJSON)
	}
	fields, ok := doc.(map[string]any)
	if !ok {
		return fail(http.StatusBadRequest, msgInvalidJSON)
	}

	// Size is checked on the raw string before anything else touches it.
	for _, key := range []string{"fileBase64", "pdfBase64"} {
		if encoded, ok := fields[key].(string); ok && encoded != "" {
			if check := h.Validator.Check(encoded); !check.Allowed {
				log.Warn().Int64("estimated_bytes", check.EstimatedBytes).Msg("payload too large")
				return fail(http.StatusRequestEntityTooLarge, h.Validator.Message(check))
			}
			break
		}
	}

	if err := h.schema.Validate(doc); err != nil {
		return fail(http.StatusBadRequest, "Invalid request body: "+schemaMessage(err))
	}

	var body statementRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return fail(http.StatusBadRequest, msgInvalidJSON)
	}

	state := h.buildState(&body)
	summary := infra.RunSummary{
		RequestID: req.RequestID,
		ClientID:  identity,
		FileType:  string(state.Kind),
		Source:    "inline",
		Model:     h.ModelName,
		StartedAt: h.now(),
	}
	if state.FileBase64 == "" {
		summary.Source = "storage"
	}

	err := h.Pipeline.Execute(ctx, state)
	if state.Report != nil {
		summary.Pages = len(state.Report.Pages)
		summary.PagesSkipped = state.Report.SkippedPages()
		summary.RecordsExtracted = len(state.Report.Records)
	}

	var out Response
	if err != nil {
		status, msg := h.classify(err)
		summary.HTTPStatus, summary.Err = status, err
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Msg("extraction failed")
			eb := middleware.ErrorBody{Error: msg}
			if h.Development {
				eb.Stack = stackOf(err)
			}
			out = finish(status, eb)
		} else {
			log.Warn().Err(err).Int("status", status).Msg("rejected document")
			out = fail(status, msg)
		}
	} else {
		res := state.Result
		if h.Metrics != nil {
			h.Metrics.ObserveNormalize(res)
		}
		summary.RecordsDropped = len(res.Dropped)
		summary.RecordsFiltered = res.Filtered
		summary.TransactionsReturned = len(res.Transactions)
		summary.HTTPStatus = http.StatusOK

		log.Info().
			Int("transactions", len(res.Transactions)).
			Int("records_dropped", len(res.Dropped)).
			Int("records_filtered", res.Filtered).
			Msg("statement extracted")

		out = finish(http.StatusOK, SuccessBody{
			Success:      true,
			Transactions: res.Transactions,
			Metadata: Metadata{
				TotalExtracted:  len(res.Transactions),
				Pages:           summary.Pages,
				PagesSkipped:    summary.PagesSkipped,
				RecordsDropped:  summary.RecordsDropped,
				RecordsFiltered: summary.RecordsFiltered,
			},
		})
	}

	if recErr := h.Recorder.Record(ctx, summary); recErr != nil {
		log.Error().Err(recErr).Msg("recording extraction run")
	}
	return out
}

func (h *StatementsHandler) buildState(body *statementRequest) *pipeline.PipelineState {
	encoded, legacy := body.encoded()

	fileType := body.FileType
	switch {
	case legacy:
		fileType = "pdf"
	case encoded == "" && fileType == "" && body.S3Key != "":
		fileType = gcs.FileTypeFromKey(body.S3Key)
	}

	return &pipeline.PipelineState{
		FileBase64: encoded,
		Kind:       raster.ParseKind(fileType),
		Bucket:     body.S3Bucket,
		Key:        body.S3Key,
		CardLabel:  body.CreditCardName,
		Period:     body.period(),
		CutDay:     string(body.CutDate),
	}
}

// classify maps a pipeline error onto a status code and client message.
func (h *StatementsHandler) classify(err error) (int, string) {
	switch {
	case errors.Is(err, payload.ErrDecode):
		return http.StatusBadRequest, msgBadBase64
	case errors.Is(err, pipeline.ErrNoDocument):
		return http.StatusBadRequest, pipeline.ErrNoDocument.Error()
	case errors.Is(err, gcs.ErrObjectTooLarge):
		return http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Maximum file size is %d MB.", h.Validator.MaxMB())
	case errors.Is(err, raster.ErrEmptyDocument),
		errors.Is(err, raster.ErrUnreadable),
		errors.Is(err, raster.ErrNoPages):
		return http.StatusBadRequest, "Could not read document: " + rootMessage(err)
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// rootMessage returns the message of the innermost sentinel in err.
func rootMessage(err error) string {
	for _, target := range []error{raster.ErrEmptyDocument, raster.ErrUnreadable, raster.ErrNoPages} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// stackOf renders the deepest recorded stack of err, or the current one.
func stackOf(err error) string {
	var st stackTracer
	if errors.As(err, &st) {
		return fmt.Sprintf("%+v", st.StackTrace())
	}
	return fmt.Sprintf("%+v", pkgerrors.WithStack(err).(stackTracer).StackTrace())
}

func schemaMessage(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		return fmt.Sprintf("%s %s", leaf.InstanceLocation, leaf.Message)
	}
	return err.Error()
}
