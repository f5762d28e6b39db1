package pipeline

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

// Parse failures. Both are recoverable: the page is skipped.
var (
	ErrEmptyResponse = errors.New("model returned no text")
	ErrUnparsable    = errors.New("model response is not JSON")
)

var (
	jsonFence  = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	plainFence = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
)

// Payload is the decoded reply for one page.
type Payload struct {
	Records []domain.RawRecord
	// NotList is set when the transactions value exists but is not a list.
	NotList bool
	// Recovered is set when the JSON came out of a fenced block.
	Recovered bool
}

// ParsePayload decodes model text. A strict JSON parse is tried first, then
// the first ```json fence, then the first untagged fence. It has no side
// effects.
func ParsePayload(text string) (Payload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Payload{}, ErrEmptyResponse
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return payloadFrom(v), nil
	}

	for _, fence := range []*regexp.Regexp{jsonFence, plainFence} {
		m := fence.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		var inner any
		if err := json.Unmarshal([]byte(m[1]), &inner); err == nil {
			p := payloadFrom(inner)
			p.Recovered = true
			return p, nil
		}
	}
	return Payload{}, ErrUnparsable
}

func payloadFrom(v any) Payload {
	var list []any
	switch t := v.(type) {
	case map[string]any:
		raw, ok := t["transactions"]
		if !ok {
			return Payload{}
		}
		items, ok := raw.([]any)
		if !ok {
			return Payload{NotList: true}
		}
		list = items
	case []any:
		list = t
	default:
		return Payload{NotList: true}
	}

	records := make([]domain.RawRecord, 0, len(list))
	for _, item := range list {
		// Non-object entries stay as nil records so the normalizer can
		// count them as dropped.
		obj, _ := item.(map[string]any)
		records = append(records, domain.RawRecord(obj))
	}
	return Payload{Records: records}
}
