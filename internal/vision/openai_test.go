package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestOpenAIModelGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"transactions\":[]}  "}}]}`))
	}))
	defer srv.Close()

	m := NewOpenAIModel(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"}, zerolog.Nop())
	text, err := m.Generate(context.Background(), Request{
		System:      "system prompt",
		Prompt:      "page 1 of 2",
		Image:       []byte("png"),
		MIMEType:    "image/png",
		Temperature: 0.1,
		JSON:        true,
		HighDetail:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"transactions":[]}`, text)
	assert.Equal(t, "openai/gpt-4o", m.Name())

	assert.Equal(t, "gpt-4o", got["model"])
	assert.InDelta(t, 0.1, got["temperature"], 1e-6)
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])

	messages := got["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system prompt", messages[0].(map[string]any)["content"])
	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "page 1 of 2", parts[0].(map[string]any)["text"])
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,cG5n", img["url"])
	assert.Equal(t, "high", img["detail"])
}

func TestOpenAIModelNoChoicesIsEmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	text, err := NewOpenAIModel(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop()).
		Generate(context.Background(), Request{MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestOpenAIModelStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenAIModel(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop()).
		Generate(context.Background(), Request{MIMEType: "image/png"})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.True(t, strings.Contains(se.Body, "slow down"))
	assert.True(t, Transient(err))
}

func TestTransient(t *testing.T) {
	assert.False(t, Transient(nil))
	assert.True(t, Transient(&StatusError{Code: 503}))
	assert.True(t, Transient(&StatusError{Code: 429}))
	assert.False(t, Transient(&StatusError{Code: 400}))
	assert.False(t, Transient(context.Canceled))
}

func TestPermanent(t *testing.T) {
	assert.False(t, Permanent(nil))
	assert.True(t, Permanent(&StatusError{Code: 401}))
	assert.True(t, Permanent(fmt.Errorf("call: %w", &StatusError{Code: 403})))
	assert.True(t, Permanent(&genai.APIError{Code: 400}))
	assert.False(t, Permanent(&StatusError{Code: 429}))
	assert.False(t, Permanent(&StatusError{Code: 502}))
	assert.False(t, Permanent(errors.New("connection reset")))
}
