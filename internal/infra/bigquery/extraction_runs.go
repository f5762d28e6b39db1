package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

const maxErrorLen = 2000

// RunRow is one row of the extraction_runs audit table.
type RunRow struct {
	RunID     string `bigquery:"run_id"`     // REQUIRED
	RequestID string `bigquery:"request_id"` // NULLABLE
	ClientID  string `bigquery:"client_id"`  // NULLABLE

	StartedTS  time.Time `bigquery:"started_ts"`  // REQUIRED
	FinishedTS time.Time `bigquery:"finished_ts"` // REQUIRED

	FileType string `bigquery:"file_type"` // pdf, png or jpeg
	Source   string `bigquery:"source"`    // inline or storage
	Model    string `bigquery:"model"`

	Pages                int64 `bigquery:"pages"`
	PagesSkipped         int64 `bigquery:"pages_skipped"`
	RecordsExtracted     int64 `bigquery:"records_extracted"`
	RecordsDropped       int64 `bigquery:"records_dropped"`
	RecordsFiltered      int64 `bigquery:"records_filtered"`
	TransactionsReturned int64 `bigquery:"transactions_returned"`

	Status       string              `bigquery:"status"`
	HTTPStatus   int64               `bigquery:"http_status"`
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE
}

// RunSummary is what the handler knows about a finished extraction.
type RunSummary struct {
	RequestID            string
	ClientID             string
	FileType             string
	Source               string
	Model                string
	StartedAt            time.Time
	Pages                int
	PagesSkipped         int
	RecordsExtracted     int
	RecordsDropped       int
	RecordsFiltered      int
	TransactionsReturned int
	HTTPStatus           int
	Err                  error
}

// NewRunRow maps a summary onto a row with a fresh run id.
func NewRunRow(s RunSummary, finished time.Time) *RunRow {
	row := &RunRow{
		RunID:                uuid.NewString(),
		RequestID:            s.RequestID,
		ClientID:             s.ClientID,
		StartedTS:            s.StartedAt,
		FinishedTS:           finished,
		FileType:             s.FileType,
		Source:               s.Source,
		Model:                s.Model,
		Pages:                int64(s.Pages),
		PagesSkipped:         int64(s.PagesSkipped),
		RecordsExtracted:     int64(s.RecordsExtracted),
		RecordsDropped:       int64(s.RecordsDropped),
		RecordsFiltered:      int64(s.RecordsFiltered),
		TransactionsReturned: int64(s.TransactionsReturned),
		Status:               StatusSuccess,
		HTTPStatus:           int64(s.HTTPStatus),
	}
	if s.Err != nil {
		msg := s.Err.Error()
		if len(msg) > maxErrorLen {
			msg = msg[:maxErrorLen]
		}
		row.Status = StatusFailed
		row.ErrorMessage = bigquery.NullString{StringVal: msg, Valid: true}
	}
	return row
}
