package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/pipeline"
)

func TestObserveRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest(200)
	m.ObserveRequest(200)
	m.ObserveRequest(429)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("429")))
}

func TestObservePage(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePage(pipeline.PageOutcome{Page: 1, Records: 3}, time.Second)
	m.ObservePage(pipeline.PageOutcome{Page: 2, Skipped: true, Reason: pipeline.SkipUnparsable}, 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pages.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pages.WithLabelValues(pipeline.SkipUnparsable)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PageDuration))
}

func TestObserveNormalize(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveNormalize(pipeline.NormalizeResult{
		Transactions: []domain.Transaction{{}, {}},
		Dropped:      []pipeline.DroppedRecord{{Index: 4}},
		Filtered:     3,
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transactions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsFiltered))
}
