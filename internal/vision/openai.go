package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// OpenAIConfig configures the chat/completions backend.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIModel calls an OpenAI-compatible chat/completions endpoint.
type OpenAIModel struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	log        zerolog.Logger
}

var _ Model = (*OpenAIModel)(nil)

// NewOpenAIModel returns a Model backed by chat/completions.
func NewOpenAIModel(cfg OpenAIConfig, log zerolog.Logger) *OpenAIModel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIModel{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// Name implements Model.
func (m *OpenAIModel) Name() string { return "openai/" + m.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float32        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate implements Model.
func (m *OpenAIModel) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()

	detail := "auto"
	if req.HighDetail {
		detail = "high"
	}
	dataURI := "data:" + req.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	body := chatRequest{
		Model:       m.cfg.Model,
		Temperature: req.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI, Detail: detail}},
			}},
		},
	}
	if req.JSON {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(m.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := m.post(ctx, endpoint, body)
	if err != nil {
		return "", err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", nil
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	m.log.Debug().
		Str("model", m.cfg.Model).
		Int("content_len", len(content)).
		Dur("elapsed", time.Since(start)).
		Msg("openai completion received")
	return content, nil
}

func (m *OpenAIModel) post(ctx context.Context, url string, body chatRequest) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Provider: "openai", Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
