package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

// ingressSchema checks field types and the ISO format of the period bounds.
// Unknown fields are allowed so older clients keep working.
const ingressSchema = `{
  "type": "object",
  "properties": {
    "fileBase64":     {"type": ["string", "null"]},
    "pdfBase64":      {"type": ["string", "null"]},
    "fileType":       {"type": ["string", "null"]},
    "creditCardName": {"type": ["string", "null"]},
    "cutDate":        {"type": ["string", "integer", "null"]},
    "s3Bucket":       {"type": ["string", "null"]},
    "s3Key":          {"type": ["string", "null"]},
    "billingPeriod": {
      "type": ["object", "null"],
      "properties": {
        "startMonth": {"type": ["string", "null"]},
        "endMonth":   {"type": ["string", "null"]},
        "startYear":  {"type": ["integer", "string", "null"], "pattern": "^(\\d{4})?$"},
        "endYear":    {"type": ["integer", "string", "null"], "pattern": "^(\\d{4})?$"},
        "start":      {"type": ["string", "null"], "pattern": "^(\\d{4}-\\d{2}-\\d{2})?$"},
        "end":        {"type": ["string", "null"], "pattern": "^(\\d{4}-\\d{2}-\\d{2})?$"}
      }
    }
  }
}`

func compileIngressSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("ingress.json", strings.NewReader(ingressSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("ingress.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// statementRequest is the JSON body accepted by the extractor.
type statementRequest struct {
	FileBase64     string         `json:"fileBase64"`
	PDFBase64      string         `json:"pdfBase64"`
	FileType       string         `json:"fileType"`
	CreditCardName string         `json:"creditCardName"`
	BillingPeriod  *billingPeriod `json:"billingPeriod"`
	CutDate        flexString     `json:"cutDate"`
	S3Bucket       string         `json:"s3Bucket"`
	S3Key          string         `json:"s3Key"`
}

type billingPeriod struct {
	StartMonth string     `json:"startMonth"`
	StartYear  flexString `json:"startYear"`
	EndMonth   string     `json:"endMonth"`
	EndYear    flexString `json:"endYear"`
	Start      string     `json:"start"`
	End        string     `json:"end"`
}

// encoded returns the inline file and whether it came from the legacy
// pdfBase64 field.
func (r *statementRequest) encoded() (string, bool) {
	if r.FileBase64 != "" {
		return r.FileBase64, false
	}
	return r.PDFBase64, r.PDFBase64 != ""
}

func (r *statementRequest) period() domain.BillingPeriod {
	if r.BillingPeriod == nil {
		return domain.BillingPeriod{}
	}
	bp := r.BillingPeriod
	startYear, _ := strconv.Atoi(string(bp.StartYear))
	endYear, _ := strconv.Atoi(string(bp.EndYear))
	return domain.BillingPeriod{
		StartMonth: strings.TrimSpace(bp.StartMonth),
		StartYear:  startYear,
		EndMonth:   strings.TrimSpace(bp.EndMonth),
		EndYear:    endYear,
		Start:      strings.TrimSpace(bp.Start),
		End:        strings.TrimSpace(bp.End),
	}
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = ""
	case string:
		*f = flexString(t)
	case float64:
		*f = flexString(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return fmt.Errorf("unsupported value %s", b)
	}
	return nil
}
