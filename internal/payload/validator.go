// Package payload bounds and decodes the base64 file carried in a request.
package payload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrDecode is returned when the encoded file is not valid base64.
var ErrDecode = errors.New("payload: invalid base64 file content")

const bytesPerMB = 1024 * 1024

// Result is the outcome of a size check.
type Result struct {
	Allowed        bool
	EncodedBytes   int64
	EstimatedBytes int64
}

// EstimatedMB is the estimated decoded size in megabytes.
func (r Result) EstimatedMB() float64 {
	return float64(r.EstimatedBytes) / bytesPerMB
}

// Validator rejects encoded payloads whose decoded size would exceed MaxBytes.
type Validator struct {
	MaxBytes int64
}

// NewValidator returns a validator for a ceiling expressed in megabytes.
func NewValidator(maxMB int) Validator {
	return Validator{MaxBytes: int64(maxMB) * bytesPerMB}
}

// Check compares the encoded length against the encoded ceiling MaxBytes*4/3.
// The comparison is done in integers as len*3 > max*4 so the boundary is exact.
// Nothing is decoded.
func (v Validator) Check(encoded string) Result {
	n := int64(len(encoded))
	return Result{
		Allowed:        n*3 <= v.MaxBytes*4,
		EncodedBytes:   n,
		EstimatedBytes: n * 3 / 4,
	}
}

// MaxMB is the ceiling in whole megabytes.
func (v Validator) MaxMB() int64 {
	return v.MaxBytes / bytesPerMB
}

// Message is the client-facing rejection text for r.
func (v Validator) Message(r Result) string {
	return fmt.Sprintf("File too large. Maximum file size is %d MB. Received file is approximately %.2f MB.",
		v.MaxMB(), r.EstimatedMB())
}

// Decode decodes a base64 file body. Data URI prefixes and embedded
// whitespace are stripped; standard and URL alphabets, padded or not, are
// accepted.
func Decode(encoded string) ([]byte, error) {
	s := encoded
	if strings.HasPrefix(s, "data:") {
		if _, after, ok := strings.Cut(s, ","); ok {
			s = after
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, ErrDecode
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, ErrDecode
}
