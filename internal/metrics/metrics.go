// Package metrics holds the Prometheus collectors for the extractor.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dvloznov/statement-extractor/internal/pipeline"
)

const namespace = "statement_extractor"

// Metrics groups every collector. The zero value is not usable; use New.
type Metrics struct {
	Requests        *prometheus.CounterVec
	Pages           *prometheus.CounterVec
	PageDuration    prometheus.Histogram
	RecordsDropped  prometheus.Counter
	RecordsFiltered prometheus.Counter
	Transactions    prometheus.Counter
}

var _ pipeline.PageObserver = (*Metrics)(nil)

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Extraction requests by HTTP status code.",
		}, []string{"code"}),
		Pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Statement pages processed by outcome.",
		}, []string{"outcome"}),
		PageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_duration_seconds",
			Help:      "Time spent reading one page with the vision model.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Extracted records that failed validation.",
		}),
		RecordsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_filtered_total",
			Help:      "Valid records outside the requested billing period.",
		}),
		Transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions returned to clients.",
		}),
	}
	reg.MustRegister(m.Requests, m.Pages, m.PageDuration, m.RecordsDropped, m.RecordsFiltered, m.Transactions)
	return m
}

// ObserveRequest counts a finished request.
func (m *Metrics) ObserveRequest(status int) {
	m.Requests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObservePage implements pipeline.PageObserver.
func (m *Metrics) ObservePage(outcome pipeline.PageOutcome, elapsed time.Duration) {
	label := "ok"
	if outcome.Reason != "" {
		label = outcome.Reason
	}
	m.Pages.WithLabelValues(label).Inc()
	m.PageDuration.Observe(elapsed.Seconds())
}

// ObserveNormalize counts the normalizer's output.
func (m *Metrics) ObserveNormalize(res pipeline.NormalizeResult) {
	m.RecordsDropped.Add(float64(len(res.Dropped)))
	m.RecordsFiltered.Add(float64(res.Filtered))
	m.Transactions.Add(float64(len(res.Transactions)))
}
