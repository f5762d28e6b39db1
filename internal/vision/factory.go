package vision

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/statement-extractor/internal/config"
	"github.com/rs/zerolog"
)

// New builds the configured model with throttling and retries applied.
// It returns ErrUnavailable when no provider has a credential.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (Model, error) {
	var model Model
	switch cfg.VisionProvider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is empty", ErrUnavailable)
		}
		model = NewOpenAIModel(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.VisionTimeout,
		}, log)
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY is empty", ErrUnavailable)
		}
		gm, err := NewGeminiModel(ctx, GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, log)
		if err != nil {
			return nil, err
		}
		model = gm
	default:
		return nil, fmt.Errorf("%w: set OPENAI_API_KEY or GEMINI_API_KEY", ErrUnavailable)
	}

	if cfg.VisionMaxRPS > 0 {
		model = NewThrottled(model, cfg.VisionMaxRPS)
	}
	if cfg.VisionMaxRetries > 0 {
		model = NewRetrying(model, cfg.VisionMaxRetries, 500*time.Millisecond, log)
	}
	return model, nil
}
