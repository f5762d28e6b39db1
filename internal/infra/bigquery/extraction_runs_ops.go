package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

const runsTable = "extraction_runs"

// Recorder persists extraction run summaries.
type Recorder interface {
	Record(ctx context.Context, s RunSummary) error
	Close() error
}

// NopRecorder discards every run. Used when no project is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, RunSummary) error { return nil }
func (NopRecorder) Close() error                             { return nil }

// BigQueryRecorder streams run rows into BigQuery.
type BigQueryRecorder struct {
	client  *bigquery.Client
	dataset string
	now     func() time.Time
}

var (
	_ Recorder = (*BigQueryRecorder)(nil)
	_ Recorder = NopRecorder{}
)

// NewBigQueryRecorder creates a recorder writing to dataset.extraction_runs.
func NewBigQueryRecorder(ctx context.Context, projectID, dataset string) (*BigQueryRecorder, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRecorder: creating client: %w", err)
	}
	return &BigQueryRecorder{client: client, dataset: dataset, now: time.Now}, nil
}

// Record inserts one row for s.
func (r *BigQueryRecorder) Record(ctx context.Context, s RunSummary) error {
	row := NewRunRow(s, r.now())
	inserter := r.client.Dataset(r.dataset).Table(runsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("Record: inserting run %s: %w", row.RunID, err)
	}
	return nil
}

// EnsureDataset creates the recorder's dataset when it does not exist.
func (r *BigQueryRecorder) EnsureDataset(ctx context.Context, location string) error {
	err := r.client.Dataset(r.dataset).Create(ctx, &bigquery.DatasetMetadata{Location: location})
	if isConflict(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureDataset: creating %s: %w", r.dataset, err)
	}
	return nil
}

// EnsureTable creates dataset.extraction_runs when it does not exist.
func (r *BigQueryRecorder) EnsureTable(ctx context.Context) error {
	schema, err := RunSchema()
	if err != nil {
		return err
	}
	table := r.client.Dataset(r.dataset).Table(runsTable)
	err = table.Create(ctx, &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "started_ts",
		},
	})
	if isConflict(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureTable: creating %s.%s: %w", r.dataset, runsTable, err)
	}
	return nil
}

// isConflict reports an "already exists" reply.
func isConflict(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

// Close closes the BigQuery client connection.
func (r *BigQueryRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// RunSchema is the table schema inferred from RunRow.
func RunSchema() (bigquery.Schema, error) {
	schema, err := bigquery.InferSchema(RunRow{})
	if err != nil {
		return nil, fmt.Errorf("RunSchema: infer schema: %w", err)
	}
	return schema, nil
}
