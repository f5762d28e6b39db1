package vision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// GeminiModel calls Gemini through the genai SDK.
type GeminiModel struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

var _ Model = (*GeminiModel)(nil)

// NewGeminiModel creates a genai client for the Gemini API.
func NewGeminiModel(ctx context.Context, cfg GeminiConfig, log zerolog.Logger) (*GeminiModel, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiModel: create genai client: %w", err)
	}
	return &GeminiModel{client: client, model: cfg.Model, log: log}, nil
}

// Name implements Model.
func (m *GeminiModel) Name() string { return "gemini/" + m.model }

// Generate implements Model.
func (m *GeminiModel) Generate(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       genai.Ptr(req.Temperature),
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	if req.HighDetail {
		config.MediaResolution = genai.MediaResolutionHigh
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				genai.NewPartFromText(req.Prompt),
				genai.NewPartFromBytes(req.Image, req.MIMEType),
			},
		},
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("GeminiModel.Generate: generate content: %w", err)
	}

	text := resp.Text()
	m.log.Debug().
		Str("model", m.model).
		Int("content_len", len(text)).
		Msg("gemini completion received")
	return text, nil
}
