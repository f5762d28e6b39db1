package main

import (
	"bytes"
	"strings"
	"testing"

	infraBQ "github.com/dvloznov/statement-extractor/internal/infra/bigquery"
)

func TestDescribeSchema(t *testing.T) {
	schema, err := infraBQ.RunSchema()
	if err != nil {
		t.Fatalf("RunSchema() error = %v", err)
	}

	var buf bytes.Buffer
	describeSchema(&buf, schema)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(schema) {
		t.Fatalf("got %d lines, want %d", len(lines), len(schema))
	}

	out := buf.String()
	for _, want := range []string{"run_id", "started_ts", "http_status"} {
		if !strings.Contains(out, want) {
			t.Errorf("schema output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "error_message") || !strings.Contains(out, "NULLABLE") {
		t.Errorf("expected error_message to be nullable:\n%s", out)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("MIGRATE_TEST_DATASET", "")
	if got := envOr("MIGRATE_TEST_DATASET", "statements"); got != "statements" {
		t.Errorf("envOr() = %q, want fallback", got)
	}
	t.Setenv("MIGRATE_TEST_DATASET", "audit")
	if got := envOr("MIGRATE_TEST_DATASET", "statements"); got != "audit" {
		t.Errorf("envOr() = %q, want audit", got)
	}
}
