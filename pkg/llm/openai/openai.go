// Package openai provides an OpenAI-compatible model client.
//
// Example usage:
//
//	client, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-5-mini"),
//	    openai.WithReasoningEffort("low"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Complete(ctx, []llm.Message{llm.UserMessage("Hello!")})
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/entrhq/browser-agent/pkg/llm"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Provider implements llm.Client for OpenAI-compatible chat completion APIs.
type Provider struct {
	client          openai.Client
	httpClient      *http.Client
	apiKey          string
	baseURL         string
	model           string
	reasoningEffort string
	temperature     *float64
	jsonOutput      bool
	maxRetries      int
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
// This enables using Azure OpenAI, local models, or other compatible services.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithReasoningEffort sets the effort hint sent to reasoning models.
func WithReasoningEffort(effort string) ProviderOption {
	return func(p *Provider) {
		p.reasoningEffort = strings.ToLower(strings.TrimSpace(effort))
	}
}

// WithTemperature sets the sampling temperature. Nil leaves the API default.
func WithTemperature(t *float64) ProviderOption {
	return func(p *Provider) {
		p.temperature = t
	}
}

// WithJSONOutput asks the API for a JSON object reply.
func WithJSONOutput(enabled bool) ProviderOption {
	return func(p *Provider) {
		p.jsonOutput = enabled
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithMaxRetries sets how often failed requests are retried by the SDK.
func WithMaxRetries(n int) ProviderOption {
	return func(p *Provider) {
		p.maxRetries = n
	}
}

// NewProvider creates a new OpenAI client with the given API key.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		return nil, &llm.CredentialError{Provider: config.ProviderOpenAI, EnvVar: "OPENAI_API_KEY"}
	}

	p := &Provider{
		model:      config.DefaultOpenAIModel,
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		jsonOutput: true,
		maxRetries: 2,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.client = openai.NewClient(
		option.WithAPIKey(p.apiKey),
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(p.maxRetries),
	)
	return p, nil
}

// Build adapts NewProvider to llm.Builder.
func Build(_ context.Context, s llm.Settings) (llm.Client, error) {
	return NewProvider(s.APIKey,
		WithModel(s.Model),
		WithBaseURL(s.BaseURL),
		WithReasoningEffort(s.ReasoningEffort),
		WithTemperature(s.Temperature),
	)
}

// Provider returns config.ProviderOpenAI.
func (p *Provider) Provider() config.Provider {
	return config.ProviderOpenAI
}

// Model returns the model name being used.
func (p *Provider) Model() string {
	return p.model
}

// Complete sends messages to the chat completions endpoint and returns the
// first choice.
func (p *Provider) Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.params(messages))
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	return &llm.Response{
		Text: completion.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

func (p *Provider) params(messages []llm.Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: convertToOpenAIMessages(messages),
	}
	if p.reasoningEffort != "" && isReasoningModel(p.model) {
		params.ReasoningEffort = shared.ReasoningEffort(p.reasoningEffort)
	}
	if p.temperature != nil {
		params.Temperature = openai.Float(*p.temperature)
	}
	if p.jsonOutput {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// isReasoningModel reports whether model accepts reasoning_effort.
func isReasoningModel(model string) bool {
	name := strings.ToLower(model)
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// convertToOpenAIMessages converts our Message format to OpenAI's ChatCompletionMessageParamUnion format.
func convertToOpenAIMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			openaiMessages = append(openaiMessages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			openaiMessages = append(openaiMessages, openai.AssistantMessage(msg.Content))
		default:
			// Default to user message for unknown roles
			openaiMessages = append(openaiMessages, openai.UserMessage(msg.Content))
		}
	}

	return openaiMessages
}
