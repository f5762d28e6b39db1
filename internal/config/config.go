package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vision providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds every runtime setting of the extractor. It is read once at
// startup and passed by value to the components that need it.
type Config struct {
	Env      string
	LogLevel string
	Port     string

	// Gatekeeping
	APIKey               string
	RequireAuth          bool
	MaxRequestsPerMinute int
	MaxFileSizeMB        int
	AWSRegion            string

	// Vision model
	VisionProvider    string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	GeminiAPIKey      string
	GeminiModel       string
	VisionTemperature float32
	VisionTimeout     time.Duration
	VisionMaxRPS      float64
	VisionMaxRetries  int

	// Rasterization
	RasterDPI      float64
	RasterMaxPages int

	// Run audit
	BigQueryProject string
	BigQueryDataset string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; existing variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "")
	if env == "" {
		env = getEnv("NODE_ENV", "production")
	}

	cfg := Config{
		Env:      env,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("PORT", "8080"),

		APIKey:               getEnv("API_KEY", ""),
		RequireAuth:          strings.EqualFold(getEnv("REQUIRE_AUTH", "true"), "true"),
		MaxRequestsPerMinute: getEnvAsInt("MAX_REQUESTS_PER_MINUTE", 10),
		MaxFileSizeMB:        getEnvAsInt("MAX_FILE_SIZE_MB", 20),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),

		VisionProvider:    strings.ToLower(getEnv("VISION_PROVIDER", "")),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		VisionTemperature: float32(getEnvAsFloat("VISION_TEMPERATURE", 0.1)),
		VisionTimeout:     getEnvAsDuration("VISION_TIMEOUT", 60*time.Second),
		VisionMaxRPS:      getEnvAsFloat("VISION_MAX_RPS", 0),
		VisionMaxRetries:  getEnvAsInt("VISION_MAX_RETRIES", 2),

		RasterDPI:      getEnvAsFloat("RASTER_DPI", 300),
		RasterMaxPages: getEnvAsInt("RASTER_MAX_PAGES", 0),

		BigQueryProject: getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "statements"),
	}

	if cfg.VisionProvider == "" {
		switch {
		case cfg.OpenAIAPIKey != "":
			cfg.VisionProvider = ProviderOpenAI
		case cfg.GeminiAPIKey != "":
			cfg.VisionProvider = ProviderGemini
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Validate checks the limits and provider selection.
func (c Config) Validate() error {
	var errs []error
	if c.MaxRequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("MAX_REQUESTS_PER_MINUTE must be positive, got %d", c.MaxRequestsPerMinute))
	}
	if c.MaxFileSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE_MB must be positive, got %d", c.MaxFileSizeMB))
	}
	if c.RasterDPI <= 0 {
		errs = append(errs, fmt.Errorf("RASTER_DPI must be positive, got %v", c.RasterDPI))
	}
	if c.VisionMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("VISION_MAX_RETRIES must not be negative, got %d", c.VisionMaxRetries))
	}
	switch c.VisionProvider {
	case "", ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown VISION_PROVIDER %q", c.VisionProvider))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether development diagnostics (stack traces) are enabled.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// MaxFileSizeBytes is the decoded-size ceiling in bytes.
func (c Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
