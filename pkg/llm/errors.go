package llm

import (
	"fmt"

	"github.com/entrhq/browser-agent/pkg/config"
)

// CredentialError is returned when the resolved provider has no API key.
type CredentialError struct {
	Provider config.Provider
	// EnvVar names the variable that would have supplied the key
	EnvVar string
}

func (e *CredentialError) Error() string {
	if e.Provider == config.ProviderAuto {
		return "no LLM credentials: set OPENAI_API_KEY or GOOGLE_API_KEY"
	}
	return fmt.Sprintf("missing credentials for provider %s: set %s", e.Provider, e.EnvVar)
}

// Unwrap lets callers match every credential failure with
// errors.Is(err, config.ErrMissingCredentials).
func (e *CredentialError) Unwrap() error {
	return config.ErrMissingCredentials
}

// UnsupportedModelError is returned when a model name cannot be served by
// the resolved provider.
type UnsupportedModelError struct {
	Provider config.Provider
	Model    string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("model %q is not supported by provider %s", e.Model, e.Provider)
}
