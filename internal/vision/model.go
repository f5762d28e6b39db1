// Package vision wraps the vision-capable language models used to read
// statement pages.
package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// ErrUnavailable is returned when no model backend is configured.
var ErrUnavailable = errors.New("vision: no model backend configured")

// Request is a single image-plus-instructions call.
type Request struct {
	System      string
	Prompt      string
	Image       []byte
	MIMEType    string
	Temperature float32
	// JSON asks the backend to constrain output to a JSON object.
	JSON bool
	// HighDetail requests the highest image analysis fidelity.
	HighDetail bool
}

// Model submits an image with instructions and returns the model's text.
// An empty string with a nil error means the model produced no text.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// StatusError is a non-2xx reply from an HTTP model backend.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.Code, e.Body)
}

// Transient reports whether err is worth retrying: throttling or a server
// side failure from either backend.
func Transient(err error) bool {
	code, ok := statusCode(err)
	return ok && retryableCode(code)
}

// Permanent reports whether err is a provider reply that no retry can fix,
// such as a rejected or revoked key. Errors without a status are not permanent.
func Permanent(err error) bool {
	code, ok := statusCode(err)
	return ok && !retryableCode(code)
}

func statusCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func retryableCode(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
