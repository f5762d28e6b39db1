package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-extractor/internal/auth"
	"github.com/dvloznov/statement-extractor/internal/domain"
	infra "github.com/dvloznov/statement-extractor/internal/infra/bigquery"
	"github.com/dvloznov/statement-extractor/internal/metrics"
	"github.com/dvloznov/statement-extractor/internal/payload"
	"github.com/dvloznov/statement-extractor/internal/pipeline"
	"github.com/dvloznov/statement-extractor/internal/raster"
	"github.com/dvloznov/statement-extractor/internal/ratelimit/inmemory"
	"github.com/dvloznov/statement-extractor/internal/vision"
)

const testKey = "s3cret"

// "hello" in base64; the fake rasterizer never looks at the bytes.
const tinyFile = "aGVsbG8="

type MockModel struct {
	GenerateFunc func(ctx context.Context, req vision.Request) (string, error)
}

func (m *MockModel) Name() string { return "mock" }

func (m *MockModel) Generate(ctx context.Context, req vision.Request) (string, error) {
	return m.GenerateFunc(ctx, req)
}

type MockRasterizer struct {
	kinds []raster.Kind
}

func (m *MockRasterizer) Rasterize(ctx context.Context, data []byte, kind raster.Kind) ([]raster.PageImage, error) {
	m.kinds = append(m.kinds, kind)
	return []raster.PageImage{{Index: 1, Total: 1, Data: data, MIMEType: "image/png"}}, nil
}

type MockRecorder struct {
	runs []infra.RunSummary
}

func (m *MockRecorder) Record(_ context.Context, s infra.RunSummary) error {
	m.runs = append(m.runs, s)
	return nil
}

func (m *MockRecorder) Close() error { return nil }

type fixture struct {
	handler    *StatementsHandler
	rasterizer *MockRasterizer
	recorder   *MockRecorder
	metrics    *metrics.Metrics
	now        time.Time
}

type fixtureOptions struct {
	model       vision.Model
	maxMB       int
	development bool
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	if opts.maxMB == 0 {
		opts.maxMB = 20
	}
	f := &fixture{
		rasterizer: &MockRasterizer{},
		recorder:   &MockRecorder{},
		metrics:    metrics.New(prometheus.NewRegistry()),
		now:        time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	log := zerolog.Nop()
	extractor := pipeline.NewExtractor(opts.model, pipeline.DefaultTemperature, nil, log)

	h, err := NewStatementsHandler(Deps{
		Guard:       auth.NewGuard(true, testKey, log),
		Limiter:     inmemory.NewLimiter(10, inmemory.WithClock(func() time.Time { return f.now })),
		Validator:   payload.NewValidator(opts.maxMB),
		Pipeline:    pipeline.NewStatementPipeline(nil, f.rasterizer, extractor, log),
		Recorder:    f.recorder,
		Metrics:     f.metrics,
		ModelName:   "mock",
		Development: opts.development,
		Log:         log,
	})
	require.NoError(t, err)
	f.handler = h
	return f
}

func (f *fixture) post(body string, headers map[string]string) Response {
	h := http.Header{}
	h.Set("X-Api-Key", testKey)
	h.Set("X-Forwarded-For", "203.0.113.7")
	for k, v := range headers {
		if v == "" {
			h.Del(k)
			continue
		}
		h.Set(k, v)
	}
	return f.handler.Process(context.Background(), Request{
		Method:    http.MethodPost,
		Headers:   h,
		Body:      []byte(body),
		RequestID: "req-1",
	})
}

func decodeError(t *testing.T, resp Response) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.False(t, body.Success)
	return body.Error
}

func staticModel(reply string) *MockModel {
	return &MockModel{GenerateFunc: func(context.Context, vision.Request) (string, error) {
		return reply, nil
	}}
}

func TestProcessOptionsPreflight(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[]}`)})

	resp := f.handler.Process(context.Background(), Request{Method: http.MethodOptions})

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "*", resp.Headers.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", resp.Headers.Get("Access-Control-Allow-Methods"))
	assert.Empty(t, f.recorder.runs)
}

func TestProcessRejectsMissingKey(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[]}`)})

	resp := f.post(`{"fileBase64":"`+tinyFile+`"}`, map[string]string{"X-Api-Key": ""})

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "Unauthorized: Invalid or missing API key", decodeError(t, resp))
	assert.Equal(t, "*", resp.Headers.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Headers.Get("X-RateLimit-Limit"))
	assert.Empty(t, f.rasterizer.kinds)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues("401")))
}

func TestProcessRejectsWrongKey(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[]}`)})

	resp := f.post(`{}`, map[string]string{"X-Api-Key": "guess"})

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestProcessRateLimitsEleventhRequest(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[]}`)})
	body := `{"fileBase64":"` + tinyFile + `"}`

	for i := 0; i < 10; i++ {
		resp := f.post(body, nil)
		require.Equal(t, http.StatusOK, resp.Status, "request %d", i+1)
		assert.Equal(t, "10", resp.Headers.Get("X-RateLimit-Limit"))
	}

	resp := f.post(body, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.Equal(t, "Rate limit exceeded. Maximum 10 requests per minute allowed.", decodeError(t, resp))
	assert.Equal(t, "60", resp.Headers.Get("Retry-After"))
	assert.Equal(t, "0", resp.Headers.Get("X-RateLimit-Remaining"))

	// Another client is unaffected.
	other := f.post(body, map[string]string{"X-Forwarded-For": "198.51.100.1"})
	assert.Equal(t, http.StatusOK, other.Status)

	f.now = f.now.Add(61 * time.Second)
	again := f.post(body, nil)
	assert.Equal(t, http.StatusOK, again.Status)
}

func TestProcessRejectsOversizedPayload(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[]}`), maxMB: 1})

	// 1 MiB decodes from at most 1398101 encoded characters.
	atLimit := strings.Repeat("A", 1398101)
	resp := f.post(`{"fileBase64":"`+atLimit+`"}`, nil)
	assert.NotEqual(t, http.StatusRequestEntityTooLarge, resp.Status)

	over := strings.Repeat("A", 1398102)
	resp = f.post(`{"fileBase64":"`+over+`"}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Status)
	assert.Equal(t,
		"File too large. Maximum file size is 1 MB. Received file is approximately 1.00 MB.",
		decodeError(t, resp))
	assert.Equal(t, "10", resp.Headers.Get("X-RateLimit-Limit"))
}

func TestProcessTruncatedBody(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[]}`), maxMB: 1})

	h := http.Header{}
	h.Set("X-Api-Key", testKey)
	resp := f.handler.Process(context.Background(), Request{
		Method:        http.MethodPost,
		Headers:       h,
		BodyTruncated: true,
		BodySize:      8 << 20,
	})

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Status)
	assert.Contains(t, decodeError(t, resp), "approximately 6.00 MB")
}

func TestProcessBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"fileBase64":`, "Invalid JSON in request body"},
		{"not an object", `[1,2]`, "Invalid JSON in request body"},
		{"no file", `{"creditCardName":"Visa"}`, pipeline.ErrNoDocument.Error()},
		{"bad base64", `{"fileBase64":"!!!not base64!!!"}`, "Invalid base64 file content"},
		{"wrong field type", `{"fileBase64":42}`, "Invalid request body: "},
		{"bad period date", `{"fileBase64":"` + tinyFile + `","billingPeriod":{"start":"03/01/2024","end":"2024-03-31"}}`, "Invalid request body: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[]}`)})

			resp := f.post(tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, resp.Status)
			assert.True(t, strings.HasPrefix(decodeError(t, resp), tt.want), "got %s", resp.Body)
		})
	}
}

func TestProcessExtractsAndFilters(t *testing.T) {
	model := staticModel("```json\n" + `{"transactions":[
		{"date":"2024-03-05","amount":-12.5,"description":"  Cafe   Central ","category":"Comida"},
		{"date":"2024-04-02","amount":5,"description":"Later","category":"Otros"},
		{"amount":3,"description":"no date"}
	]}` + "\n```")
	f := newFixture(t, fixtureOptions{model: model})

	resp := f.post(`{
		"fileBase64":"`+tinyFile+`",
		"fileType":"png",
		"creditCardName":"Visa Gold",
		"cutDate":15,
		"billingPeriod":{"startMonth":"March","startYear":2024,"endMonth":"March","endYear":"2024","start":"2024-03-01","end":"2024-03-31"}
	}`, nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))

	var body SuccessBody
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.True(t, body.Success)
	assert.Equal(t, []domain.Transaction{
		{Date: "2024-03-05", Amount: 12.5, Description: "Cafe Central", Category: domain.CategoryFood},
	}, body.Transactions)
	assert.Equal(t, Metadata{TotalExtracted: 1, Pages: 1, RecordsDropped: 1, RecordsFiltered: 1}, body.Metadata)
	assert.Equal(t, "9", resp.Headers.Get("X-RateLimit-Remaining"))
	assert.Equal(t, []raster.Kind{raster.KindPNG}, f.rasterizer.kinds)

	require.Len(t, f.recorder.runs, 1)
	run := f.recorder.runs[0]
	assert.Equal(t, "req-1", run.RequestID)
	assert.Equal(t, "203.0.113.7", run.ClientID)
	assert.Equal(t, "png", run.FileType)
	assert.Equal(t, "inline", run.Source)
	assert.Equal(t, 3, run.RecordsExtracted)
	assert.Equal(t, http.StatusOK, run.HTTPStatus)
	assert.NoError(t, run.Err)
}

func TestProcessEmptyTransactionsIsSuccess(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[]}`)})

	resp := f.post(`{"fileBase64":"`+tinyFile+`"}`, nil)

	require.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t,
		`{"success":true,"transactions":[],"metadata":{"totalExtracted":0,"pages":1,"pagesSkipped":0,"recordsDropped":0,"recordsFiltered":0}}`,
		string(resp.Body))
}

func TestProcessLegacyPDFField(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[]}`)})

	resp := f.post(`{"pdfBase64":"`+tinyFile+`","fileType":"png"}`, nil)

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []raster.Kind{raster.KindPDF}, f.rasterizer.kinds)
}

func TestProcessModelUnavailable(t *testing.T) {
	tests := []struct {
		name        string
		development bool
		wantStack   bool
	}{
		{"production hides stack", false, false},
		{"development shows stack", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{development: tt.development})

			resp := f.post(`{"fileBase64":"`+tinyFile+`"}`, nil)

			assert.Equal(t, http.StatusInternalServerError, resp.Status)
			var body map[string]any
			require.NoError(t, json.Unmarshal(resp.Body, &body))
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], "extraction model is not configured")
			_, hasStack := body["stack"]
			assert.Equal(t, tt.wantStack, hasStack)

			require.Len(t, f.recorder.runs, 1)
			assert.Equal(t, http.StatusInternalServerError, f.recorder.runs[0].HTTPStatus)
			assert.ErrorIs(t, f.recorder.runs[0].Err, pipeline.ErrModelUnavailable)
		})
	}
}

func TestServeHTTP(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[{"date":"2024-03-05","amount":1,"description":"x"}]}`)})

	req := httptest.NewRequest(http.MethodPost, "/statements", strings.NewReader(`{"fileBase64":"`+tinyFile+`"}`))
	req.Header.Set("x-api-key", testKey)
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"totalExtracted":1`)
}

func TestServeHTTPBodyOverCap(t *testing.T) {
	f := newFixture(t, fixtureOptions{model: staticModel(`{"transactions":[]}`), maxMB: 1})

	big := strings.Repeat("A", 4<<20)
	req := httptest.NewRequest(http.MethodPost, "/statements", strings.NewReader(big))
	req.Header.Set("X-Api-Key", testKey)
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health("openai/gpt-4o")(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","model":"openai/gpt-4o"}`, rec.Body.String())
}

func TestNewStatementsHandlerRequiresDeps(t *testing.T) {
	_, err := NewStatementsHandler(Deps{})
	assert.Error(t, err)
}

func TestProcessModelRejectionIsFatal(t *testing.T) {
	model := &MockModel{GenerateFunc: func(context.Context, vision.Request) (string, error) {
		return "", &vision.StatusError{Provider: "openai", Code: http.StatusUnauthorized, Body: "invalid api key"}
	}}
	f := newFixture(t, fixtureOptions{model: model})

	resp := f.post(`{"fileBase64":"`+tinyFile+`"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, decodeError(t, resp), "extraction model rejected the request")
	require.Len(t, f.recorder.runs, 1)
	assert.ErrorIs(t, f.recorder.runs[0].Err, pipeline.ErrModelRejected)
}
