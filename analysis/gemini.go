package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aidflow-backend/apperr"
	"aidflow-backend/prompt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// contentGenerator is the subset of *genai.GenerativeModel used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiProvider calls Google Gemini through the genai SDK.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
	newModel    func(system string) contentGenerator
}

// GeminiOption configures a GeminiProvider.
type GeminiOption func(*GeminiProvider)

// WithGeminiModel sets the model name. Empty keeps the default.
func WithGeminiModel(model string) GeminiOption {
	return func(g *GeminiProvider) {
		if model != "" {
			g.model = model
		}
	}
}

// WithGeminiMaxTokens sets the output token ceiling.
func WithGeminiMaxTokens(n int) GeminiOption {
	return func(g *GeminiProvider) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithGeminiTemperature sets the sampling temperature.
func WithGeminiTemperature(t float64) GeminiOption {
	return func(g *GeminiProvider) {
		if t > 0 {
			g.temperature = t
		}
	}
}

// NewGeminiProvider creates a Gemini client for apiKey.
func NewGeminiProvider(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", apperr.ErrConfigurationMissing)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	g := newGeminiProvider(opts...)
	g.client = client
	g.newModel = g.configuredModel
	return g, nil
}

func newGeminiProvider(opts ...GeminiOption) *GeminiProvider {
	g := &GeminiProvider{
		model:       DefaultGeminiModel,
		maxTokens:   DefaultMaxOutputTokens,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GeminiProvider) configuredModel(system string) contentGenerator {
	m := g.client.GenerativeModel(g.model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	m.ResponseMIMEType = "application/json"
	m.SetMaxOutputTokens(int32(g.maxTokens))
	m.SetTemperature(float32(g.temperature))
	return m
}

// Name implements Provider.
func (g *GeminiProvider) Name() string {
	return ProviderGemini
}

// Close releases the underlying client.
func (g *GeminiProvider) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Generate implements Provider.
func (g *GeminiProvider) Generate(ctx context.Context, p prompt.Prompt) (string, error) {
	resp, err := g.newModel(p.System).GenerateContent(ctx, geminiParts(p.Parts)...)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", &ProviderError{Provider: ProviderGemini, StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	return geminiText(resp)
}

// geminiParts converts prompt parts. URIs Gemini can fetch itself (gs:// and
// Files API) become FileData; any other URI is passed as a text reference.
func geminiParts(parts []prompt.Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, part := range parts {
		switch part.Kind {
		case prompt.PartText:
			out = append(out, genai.Text(part.Text))
		case prompt.PartInlineImage:
			out = append(out, genai.Blob{MIMEType: part.MIMEType, Data: part.Data})
		case prompt.PartURI:
			if isGeminiFileURI(part.URI) {
				out = append(out, genai.FileData{MIMEType: part.MIMEType, URI: part.URI})
			} else {
				out = append(out, genai.Text(fmt.Sprintf("Document (%s): %s", part.Label, part.URI)))
			}
		}
	}
	return out
}

func isGeminiFileURI(uri string) bool {
	return strings.HasPrefix(uri, "gs://") ||
		strings.HasPrefix(uri, "https://generativelanguage.googleapis.com/")
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini returned an empty response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", &ProviderError{
			Provider:   ProviderGemini,
			StatusCode: 400,
			Message:    fmt.Sprintf("prompt blocked: %v", resp.PromptFeedback.BlockReason),
		}
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return "", errors.New("gemini returned no text candidates")
	}
	return b.String(), nil
}
