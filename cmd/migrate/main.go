package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"cloud.google.com/go/bigquery"

	infraBQ "github.com/dvloznov/statement-extractor/internal/infra/bigquery"
)

var (
	projectID = flag.String("project", os.Getenv("BIGQUERY_PROJECT"), "GCP project ID (or set BIGQUERY_PROJECT)")
	datasetID = flag.String("dataset", envOr("BIGQUERY_DATASET", "statements"), "BigQuery dataset ID")
	location  = flag.String("location", "US", "Dataset location used when the dataset is created")
	dryRun    = flag.Bool("dry-run", false, "Print the extraction_runs schema and exit")
)

func main() {
	flag.Parse()

	schema, err := infraBQ.RunSchema()
	if err != nil {
		log.Fatalf("Failed to infer schema: %v", err)
	}

	if *dryRun {
		describeSchema(os.Stdout, schema)
		return
	}

	if *projectID == "" {
		log.Fatal("Error: -project flag is required. Please specify your GCP project ID.")
	}

	ctx := context.Background()
	recorder, err := infraBQ.NewBigQueryRecorder(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatalf("Failed to create BigQuery client: %v", err)
	}
	defer recorder.Close()

	log.Printf("Connected to BigQuery project: %s, dataset: %s", *projectID, *datasetID)

	if err := recorder.EnsureDataset(ctx, *location); err != nil {
		log.Fatalf("Failed to ensure dataset: %v", err)
	}
	if err := recorder.EnsureTable(ctx); err != nil {
		log.Fatalf("Failed to ensure extraction_runs table: %v", err)
	}

	log.Printf("  [OK]   %s.extraction_runs (%d columns)", *datasetID, len(schema))
}

// describeSchema writes one "name TYPE [NULLABLE]" line per column.
func describeSchema(w io.Writer, schema bigquery.Schema) {
	for _, f := range schema {
		mode := "REQUIRED"
		if !f.Required {
			mode = "NULLABLE"
		}
		fmt.Fprintf(w, "%-24s %-10s %s\n", f.Name, strings.ToUpper(string(f.Type)), mode)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
