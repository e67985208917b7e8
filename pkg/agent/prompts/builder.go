package prompts

import (
	"fmt"
	"strings"

	"github.com/entrhq/browser-agent/pkg/llm"
)

// PromptBuilder constructs the system prompt for the browser loop
type PromptBuilder struct {
	extension      string
	flashMode      bool
	useThinking    bool
	maxActions     int
	allowedDomains []string
}

// NewPromptBuilder creates a new prompt builder with default settings
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{useThinking: true}
}

// WithExtension appends extra instructions after the built-in sections
func (pb *PromptBuilder) WithExtension(text string) *PromptBuilder {
	pb.extension = strings.TrimSpace(text)
	return pb
}

// WithFlashMode requests the short reply format
func (pb *PromptBuilder) WithFlashMode(enabled bool) *PromptBuilder {
	pb.flashMode = enabled
	return pb
}

// WithThinking controls whether the reply carries a thinking field
func (pb *PromptBuilder) WithThinking(enabled bool) *PromptBuilder {
	pb.useThinking = enabled
	return pb
}

// WithMaxActions states how many actions one reply may hold
func (pb *PromptBuilder) WithMaxActions(n int) *PromptBuilder {
	pb.maxActions = n
	return pb
}

// WithAllowedDomains tells the model which sites it may visit
func (pb *PromptBuilder) WithAllowedDomains(domains []string) *PromptBuilder {
	pb.allowedDomains = domains
	return pb
}

// Build constructs the complete system prompt by assembling all sections
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	builder.WriteString(SystemCapabilitiesPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(AgentLoopPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(ActionsPrompt)
	builder.WriteString("\n\n")

	switch {
	case pb.flashMode:
		builder.WriteString(FlashReplyFormatPrompt)
	case !pb.useThinking:
		builder.WriteString(strings.Replace(ReplyFormatPrompt,
			"  \"thinking\": \"short reasoning about the current state\",\n", "", 1))
	default:
		builder.WriteString(ReplyFormatPrompt)
	}

	if pb.maxActions > 0 {
		fmt.Fprintf(&builder, "\n\nUse at most %d actions per reply.", pb.maxActions)
	}
	if len(pb.allowedDomains) > 0 {
		fmt.Fprintf(&builder, "\nOnly visit these domains: %s.", strings.Join(pb.allowedDomains, ", "))
	}

	if pb.extension != "" {
		builder.WriteString("\n\n<extra_instructions>\n")
		builder.WriteString(pb.extension)
		builder.WriteString("\n</extra_instructions>")
	}

	return builder.String()
}

// StepState is what the model sees about the page at one step.
type StepState struct {
	Task     string
	Step     int
	MaxSteps int
	URL      string
	Title    string
	Elements string

	// Above and Below count elements left out of the listing that
	// scrolling up or down would list.
	Above int
	Below int

	// Omitted counts elements left out that scrolling would not reveal.
	Omitted int
	Memory  string
	Results []string
}

// BuildStateMessage renders the per-step user message.
func BuildStateMessage(s StepState) string {
	var b strings.Builder

	b.WriteString("<task>\n")
	b.WriteString(s.Task)
	b.WriteString("\n</task>\n\n")

	fmt.Fprintf(&b, "<step>%d of %d</step>\n\n", s.Step, s.MaxSteps)

	if s.Memory != "" {
		b.WriteString("<memory>\n")
		b.WriteString(s.Memory)
		b.WriteString("\n</memory>\n\n")
	}

	if len(s.Results) > 0 {
		b.WriteString("<previous_actions>\n")
		for _, r := range s.Results {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteByte('\n')
		}
		b.WriteString("</previous_actions>\n\n")
	}

	b.WriteString("<browser_state>\n")
	fmt.Fprintf(&b, "URL: %s\nTitle: %s\n", s.URL, s.Title)
	if strings.TrimSpace(s.Elements) == "" {
		b.WriteString("Interactive elements: none\n")
	} else {
		b.WriteString("Interactive elements:\n")
		if s.Above > 0 {
			fmt.Fprintf(&b, "... %d more elements above the viewport; scroll up to list them\n", s.Above)
		}
		b.WriteString(s.Elements)
		if !strings.HasSuffix(s.Elements, "\n") {
			b.WriteByte('\n')
		}
	}
	if s.Below > 0 {
		fmt.Fprintf(&b, "... %d more elements below the viewport; scroll down to list them\n", s.Below)
	}
	if s.Omitted > 0 {
		fmt.Fprintf(&b, "... %d more elements not shown\n", s.Omitted)
	}
	b.WriteString("</browser_state>")

	return b.String()
}

// BuildMessages creates the message list for one step
func BuildMessages(systemPrompt string, state StepState) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(BuildStateMessage(state)),
	}
}
