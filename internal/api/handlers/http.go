package handlers

import (
	"io"
	"net/http"

	"github.com/dvloznov/statement-extractor/internal/api/middleware"
)

// bodySlack covers the JSON envelope around the encoded file.
const bodySlack = 1 << 20

// ServeHTTP adapts Process to net/http.
func (h *StatementsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := Request{
		Method:    r.Method,
		Headers:   r.Header,
		RequestID: middleware.RequestIDFromContext(r.Context()),
	}

	if r.Method != http.MethodOptions {
		limit := h.Validator.MaxBytes*4/3 + bodySlack
		body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		switch {
		case err != nil:
			h.Log.Warn().Err(err).Msg("reading request body")
			req.Body = nil
		case int64(len(body)) > limit:
			req.BodyTruncated = true
			req.BodySize = r.ContentLength
			if req.BodySize < int64(len(body)) {
				req.BodySize = int64(len(body))
			}
		default:
			req.Body = body
		}
	}

	resp := h.Process(r.Context(), req)
	for k, vs := range resp.Headers {
		w.Header()[k] = vs
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}

// Health reports liveness along with the configured model.
func Health(modelName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if modelName == "" {
			status = "degraded"
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": status,
			"model":  modelName,
		})
	}
}
