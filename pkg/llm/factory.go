package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/browser-agent/pkg/config"
)

// Settings is everything a provider needs to build a client.
type Settings struct {
	Provider        config.Provider
	Model           string
	APIKey          string
	BaseURL         string
	ReasoningEffort string
	Temperature     *float64
}

// Builder constructs a client for one provider.
type Builder func(ctx context.Context, s Settings) (Client, error)

// Factory maps concrete providers to their builders.
type Factory struct {
	OpenAI Builder
	Gemini Builder
}

// Resolve picks the concrete provider and model for cfg and checks that the
// pair can be served. It performs no I/O.
//
// With ProviderAuto the provider whose key is present wins; when both keys
// are present OpenAI is used.
func Resolve(cfg config.Config) (Settings, error) {
	provider, err := config.ParseProvider(string(cfg.Provider))
	if err != nil {
		return Settings{}, err
	}

	if provider == config.ProviderAuto {
		switch {
		case cfg.OpenAIAPIKey != "":
			provider = config.ProviderOpenAI
		case cfg.GoogleAPIKey != "":
			provider = config.ProviderGemini
		default:
			return Settings{}, &CredentialError{Provider: config.ProviderAuto}
		}
	}

	s := Settings{
		Provider:    provider,
		Model:       strings.TrimSpace(cfg.ResolvedModel(provider)),
		Temperature: cfg.Temperature,
	}

	switch provider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return Settings{}, &CredentialError{Provider: provider, EnvVar: "OPENAI_API_KEY"}
		}
		s.APIKey = cfg.OpenAIAPIKey
		s.BaseURL = cfg.OpenAIBaseURL
		s.ReasoningEffort = cfg.ReasoningEffort
	case config.ProviderGemini:
		if cfg.GoogleAPIKey == "" {
			return Settings{}, &CredentialError{Provider: provider, EnvVar: "GOOGLE_API_KEY"}
		}
		s.APIKey = cfg.GoogleAPIKey
	}

	if !Supports(provider, s.Model) {
		return Settings{}, &UnsupportedModelError{Provider: provider, Model: s.Model}
	}
	return s, nil
}

// Supports reports whether provider can serve model.
func Supports(provider config.Provider, model string) bool {
	name := strings.ToLower(strings.TrimSpace(model))
	if name == "" {
		return false
	}
	switch provider {
	case config.ProviderGemini:
		return strings.HasPrefix(name, "gemini") || strings.HasPrefix(name, "models/gemini")
	case config.ProviderOpenAI:
		return !strings.HasPrefix(name, "gemini") && !strings.HasPrefix(name, "models/")
	}
	return false
}

// New resolves cfg and builds the matching client.
func (f Factory) New(ctx context.Context, cfg config.Config) (Client, error) {
	s, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}

	var build Builder
	switch s.Provider {
	case config.ProviderOpenAI:
		build = f.OpenAI
	case config.ProviderGemini:
		build = f.Gemini
	}
	if build == nil {
		return nil, fmt.Errorf("no client builder registered for provider %s", s.Provider)
	}

	client, err := build(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", s.Provider, err)
	}
	return client, nil
}
