// Package analysis sends composed prompts to a generative model and turns the
// reply into an eligibility result.
package analysis

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"aidflow-backend/apperr"
	"aidflow-backend/prompt"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultOpenAIModel     = "gpt-4o"
	DefaultMaxOutputTokens = 2000
	DefaultTemperature     = 0.2
)

// Provider is a generative-AI completion endpoint that answers with text
// constrained to JSON.
type Provider interface {
	Name() string
	Generate(ctx context.Context, p prompt.Prompt) (string, error)
}

// ProviderError is a non-2xx answer from a provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether repeating the identical request may succeed.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Name            string
	APIKey          string
	Model           string
	MaxOutputTokens int
	Temperature     float64
	BaseURL         string
}

// NewProvider builds the configured provider. A missing API key is reported
// as apperr.ErrConfigurationMissing.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	switch strings.ToLower(cfg.Name) {
	case "", ProviderGemini:
		return NewGeminiProvider(ctx, cfg.APIKey,
			WithGeminiModel(cfg.Model),
			WithGeminiMaxTokens(cfg.MaxOutputTokens),
			WithGeminiTemperature(cfg.Temperature),
		)
	case ProviderOpenAI:
		opts := []OpenAIOption{
			WithOpenAIModel(cfg.Model),
			WithOpenAIMaxTokens(cfg.MaxOutputTokens),
			WithOpenAITemperature(cfg.Temperature),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.BaseURL))
		}
		return NewOpenAIProvider(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown AI provider %q", apperr.ErrConfigurationMissing, cfg.Name)
	}
}
