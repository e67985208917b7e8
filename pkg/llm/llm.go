// Package llm defines the model client used by the agent loop and the
// factory that picks a provider and model from the run configuration.
//
// Concrete clients live in the openai and gemini subpackages. Both return
// whole responses; the agent loop asks for one JSON document per step and
// has no use for streaming.
package llm

import (
	"context"

	"github.com/entrhq/browser-agent/pkg/config"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a completed model reply.
type Response struct {
	Text  string
	Usage Usage
}

// Client is a model handle bound to one provider and one model name.
type Client interface {
	// Provider returns the concrete provider, never ProviderAuto.
	Provider() config.Provider

	// Model returns the model name requests are sent to.
	Model() string

	// Complete sends the conversation and waits for the full reply.
	Complete(ctx context.Context, messages []Message) (*Response, error)
}

// SplitSystem separates system messages from the rest of the conversation.
// Providers that take the system prompt as a dedicated field use it.
func SplitSystem(messages []Message) (system string, rest []Message) {
	rest = make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
