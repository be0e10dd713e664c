package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aidflow-backend/apperr"
	"aidflow-backend/prompt"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIProvider calls the chat completions endpoint.
type OpenAIProvider struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIModel sets the model name. Empty keeps the default.
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *OpenAIProvider) {
		if model != "" {
			o.model = model
		}
	}
}

// WithOpenAIMaxTokens sets max_tokens.
func WithOpenAIMaxTokens(n int) OpenAIOption {
	return func(o *OpenAIProvider) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithOpenAITemperature sets the sampling temperature.
func WithOpenAITemperature(t float64) OpenAIOption {
	return func(o *OpenAIProvider) {
		if t > 0 {
			o.temperature = t
		}
	}
}

// WithOpenAIBaseURL points the provider at another API root.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *OpenAIProvider) {
		o.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithOpenAIHTTPClient replaces the HTTP client.
func WithOpenAIHTTPClient(c *http.Client) OpenAIOption {
	return func(o *OpenAIProvider) {
		o.httpClient = c
	}
}

// NewOpenAIProvider creates a provider for apiKey.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", apperr.ErrConfigurationMissing)
	}

	o := &OpenAIProvider{
		apiKey:      apiKey,
		baseURL:     openAIDefaultBaseURL,
		model:       DefaultOpenAIModel,
		maxTokens:   DefaultMaxOutputTokens,
		temperature: DefaultTemperature,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Name implements Provider.
func (o *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	MaxTokens      int               `json:"max_tokens"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements Provider.
func (o *OpenAIProvider) Generate(ctx context.Context, p prompt.Prompt) (string, error) {
	body, err := json.Marshal(openAIRequest{
		Model: o.model,
		Messages: []openAIMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: openAIParts(p.Parts)},
		},
		MaxTokens:      o.maxTokens,
		Temperature:    o.temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var parsed openAIResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", &ProviderError{Provider: ProviderOpenAI, StatusCode: resp.StatusCode, Message: msg}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return parsed.Choices[0].Message.Content, nil
}

// openAIParts maps prompt parts to chat content parts. Stored image URIs are
// sent as image_url; other stored documents are referenced in text.
func openAIParts(parts []prompt.Part) []openAIContentPart {
	out := make([]openAIContentPart, 0, len(parts))
	for _, part := range parts {
		switch part.Kind {
		case prompt.PartText:
			out = append(out, openAIContentPart{Type: "text", Text: part.Text})
		case prompt.PartInlineImage:
			out = append(out, openAIContentPart{
				Type:     "image_url",
				ImageURL: &openAIImageURL{URL: part.DataURL(), Detail: part.Detail},
			})
		case prompt.PartURI:
			if part.MIMEType == "" || strings.HasPrefix(part.MIMEType, "image/") {
				out = append(out, openAIContentPart{
					Type:     "image_url",
					ImageURL: &openAIImageURL{URL: part.URI, Detail: prompt.DetailHigh},
				})
			} else {
				out = append(out, openAIContentPart{
					Type: "text",
					Text: fmt.Sprintf("Document (%s): %s", part.Label, part.URI),
				})
			}
		}
	}
	return out
}
