// Package gemini provides a Google Gemini model client built on the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/entrhq/browser-agent/pkg/llm"
	"google.golang.org/genai"
)

// Provider implements llm.Client for the Gemini API.
type Provider struct {
	client      *genai.Client
	model       string
	temperature *float64
	jsonOutput  bool
}

type options struct {
	model       string
	baseURL     string
	httpClient  *http.Client
	temperature *float64
	jsonOutput  bool
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*options)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(o *options) {
		o.model = model
	}
}

// WithBaseURL points the client at a different Gemini API host.
func WithBaseURL(baseURL string) ProviderOption {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTemperature sets the sampling temperature. Nil leaves the API default.
func WithTemperature(t *float64) ProviderOption {
	return func(o *options) {
		o.temperature = t
	}
}

// WithJSONOutput requests an application/json reply.
func WithJSONOutput(enabled bool) ProviderOption {
	return func(o *options) {
		o.jsonOutput = enabled
	}
}

// NewProvider creates a Gemini client with the given API key.
func NewProvider(ctx context.Context, apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		return nil, &llm.CredentialError{Provider: config.ProviderGemini, EnvVar: "GOOGLE_API_KEY"}
	}

	o := options{model: config.DefaultGeminiModel, jsonOutput: true}
	for _, opt := range opts {
		opt(&o)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Provider{
		client:      client,
		model:       o.model,
		temperature: o.temperature,
		jsonOutput:  o.jsonOutput,
	}, nil
}

// Build adapts NewProvider to llm.Builder.
func Build(ctx context.Context, s llm.Settings) (llm.Client, error) {
	return NewProvider(ctx, s.APIKey,
		WithModel(s.Model),
		WithTemperature(s.Temperature),
	)
}

// Provider returns config.ProviderGemini.
func (p *Provider) Provider() config.Provider {
	return config.ProviderGemini
}

// Model returns the model name being used.
func (p *Provider) Model() string {
	return p.model
}

// Complete sends the conversation to GenerateContent. System messages become
// the system instruction.
func (p *Provider) Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	system, rest := llm.SplitSystem(messages)
	if len(rest) == 0 {
		return nil, errors.New("gemini request needs at least one user message")
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, toContents(rest), p.generateConfig(system))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}

	out := &llm.Response{Text: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func (p *Provider) generateConfig(system string) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if p.temperature != nil {
		gc.Temperature = genai.Ptr(float32(*p.temperature))
	}
	if p.jsonOutput {
		gc.ResponseMIMEType = "application/json"
	}
	return gc
}

func toContents(messages []llm.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}
