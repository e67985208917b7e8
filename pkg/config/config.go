// Package config resolves the runtime settings of a browser-agent run.
//
// Settings are layered: built-in defaults, an optional YAML override file,
// the process environment (plus .env), and finally command-line overrides.
// The result is a Config value that is treated as read-only for the rest of
// the run.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Provider selects which LLM backend drives the agent.
type Provider string

const (
	// ProviderAuto picks a provider from the credentials that are present
	ProviderAuto Provider = "auto"
	// ProviderOpenAI uses the OpenAI chat completions API
	ProviderOpenAI Provider = "openai"
	// ProviderGemini uses the Google Gemini API
	ProviderGemini Provider = "gemini"
)

// ParseProvider converts a user supplied provider name into a Provider.
// "google" is accepted as an alias for gemini.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ProviderAuto, nil
	case "openai":
		return ProviderOpenAI, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("unsupported provider %q (use auto, openai, or gemini)", s)
	}
}

// BrowserMode selects how the browser session is obtained.
type BrowserMode string

const (
	// ModeAuto attaches to a running browser if one answers, otherwise launches a fresh one
	ModeAuto BrowserMode = "auto"
	// ModeOwn attaches to the user's already running browser and never launches
	ModeOwn BrowserMode = "own"
	// ModeFresh always launches a new Chrome process with an isolated profile
	ModeFresh BrowserMode = "fresh"
	// ModeManaged leaves the browser lifecycle to the agent loop
	ModeManaged BrowserMode = "managed"
)

// BrowserModes lists every valid mode in display order.
var BrowserModes = []BrowserMode{ModeAuto, ModeOwn, ModeFresh, ModeManaged}

// ParseBrowserMode converts a user supplied mode name into a BrowserMode.
func ParseBrowserMode(s string) (BrowserMode, error) {
	mode := BrowserMode(strings.ToLower(strings.TrimSpace(s)))
	if mode == "" {
		return ModeAuto, nil
	}
	if !slices.Contains(BrowserModes, mode) {
		return "", fmt.Errorf("browser mode must be one of auto, fresh, managed, own; got %q", s)
	}
	return mode, nil
}

// Default values for optional settings.
const (
	DefaultOpenAIModel      = "gpt-5-mini"
	DefaultGeminiModel      = "gemini-2.5-flash"
	DefaultReasoningEffort  = "low"
	DefaultPromptFile       = "prompt.txt"
	DefaultLogFile          = "logs/browser_agent.log"
	DefaultLogLevel         = "INFO"
	DefaultCDPPort          = 9222
	DefaultFreshProfileDir  = ".browser-agent/chrome-fresh-profile"
	DefaultFreshStartWait   = 45 * time.Second
	DefaultProfileDirectory = "Default"
	DefaultMaxSteps         = 60
	DefaultMaxActions       = 6
	DefaultLLMTimeout       = 90 * time.Second
	DefaultStepTimeout      = 120 * time.Second
	DefaultMinPageLoadWait  = 250 * time.Millisecond
	DefaultNetworkIdleWait  = time.Second
	DefaultWaitBetween      = 150 * time.Millisecond
	DefaultMaxElementTokens = 8000
)

// DefaultPermissions are granted to the browser context unless overridden.
var DefaultPermissions = []string{"notifications", "clipboardReadWrite"}

// DefaultIncludeAttributes is the DOM attribute allowlist shown to the model.
var DefaultIncludeAttributes = []string{
	"id",
	"name",
	"role",
	"type",
	"value",
	"placeholder",
	"aria-label",
	"data-testid",
	"href",
	"title",
	"alt",
}

// Config holds every resolved setting for a run.
type Config struct {
	// LLM selection
	Provider        Provider `yaml:"provider" json:"provider"`
	Model           string   `yaml:"model" json:"model"`
	OpenAIModel     string   `yaml:"openai_model" json:"openai_model"`
	GeminiModel     string   `yaml:"gemini_model" json:"gemini_model"`
	OpenAIAPIKey    string   `yaml:"openai_api_key" json:"-"`
	GoogleAPIKey    string   `yaml:"google_api_key" json:"-"`
	OpenAIBaseURL   string   `yaml:"openai_base_url" json:"openai_base_url"`
	ReasoningEffort string   `yaml:"openai_reasoning_effort" json:"openai_reasoning_effort"`
	Temperature     *float64 `yaml:"temperature" json:"temperature,omitempty"`

	// Task input
	PromptFile   string `yaml:"prompt_file" json:"prompt_file"`
	TaskOverride string `yaml:"task" json:"task,omitempty"`

	// Logging and telemetry
	LogFile          string `yaml:"log_file" json:"log_file"`
	LogLevel         string `yaml:"log_level" json:"log_level"`
	LogStepDetails   bool   `yaml:"log_step_details" json:"log_step_details"`
	LogDOMTagSummary bool   `yaml:"log_dom_tag_summary" json:"log_dom_tag_summary"`
	MetricsFile      string `yaml:"metrics_file" json:"metrics_file,omitempty"`
	TraceFile        string `yaml:"trace_file" json:"trace_file,omitempty"`

	// Browser acquisition
	BrowserMode             BrowserMode   `yaml:"browser_mode" json:"browser_mode"`
	ConnectExistingCDP      bool          `yaml:"connect_existing_cdp" json:"connect_existing_cdp"`
	CDPURL                  string        `yaml:"cdp_url" json:"cdp_url,omitempty"`
	CDPPort                 int           `yaml:"cdp_port" json:"cdp_port"`
	ChromeExecutablePath    string        `yaml:"chrome_executable_path" json:"chrome_executable_path,omitempty"`
	BrowserChannel          string        `yaml:"browser_channel" json:"browser_channel,omitempty"`
	FreshUserDataDir        string        `yaml:"fresh_chrome_user_data_dir" json:"fresh_chrome_user_data_dir"`
	FreshStartTimeout       time.Duration `yaml:"fresh_chrome_start_timeout" json:"fresh_chrome_start_timeout"`
	ProfileDirectory        string        `yaml:"profile_directory" json:"profile_directory"`
	EnableDefaultExtensions bool          `yaml:"enable_default_extensions" json:"enable_default_extensions"`
	Headless                bool          `yaml:"headless" json:"headless"`
	KeepAlive               bool          `yaml:"keep_alive" json:"keep_alive"`
	AllowedDomains          []string      `yaml:"allowed_domains" json:"allowed_domains"`
	Permissions             []string      `yaml:"permissions" json:"permissions"`

	// Page timing
	MinPageLoadWait    time.Duration `yaml:"min_page_load_wait" json:"min_page_load_wait"`
	NetworkIdleWait    time.Duration `yaml:"network_idle_wait" json:"network_idle_wait"`
	WaitBetweenActions time.Duration `yaml:"wait_between_actions" json:"wait_between_actions"`
	HighlightElements  bool          `yaml:"highlight_elements" json:"highlight_elements"`

	// Agent loop
	UseThinking       bool          `yaml:"use_thinking" json:"use_thinking"`
	UseVision         bool          `yaml:"use_vision" json:"use_vision"`
	FlashMode         bool          `yaml:"flash_mode" json:"flash_mode"`
	MaxSteps          int           `yaml:"max_steps" json:"max_steps"`
	MaxActionsPerStep int           `yaml:"max_actions_per_step" json:"max_actions_per_step"`
	LLMTimeout        time.Duration `yaml:"llm_timeout" json:"llm_timeout"`
	StepTimeout       time.Duration `yaml:"step_timeout" json:"step_timeout"`
	IncludeAttributes []string      `yaml:"include_attributes" json:"include_attributes"`
	MaxElementTokens  int           `yaml:"max_element_tokens" json:"max_element_tokens"`
}

// Default returns a configuration populated with every built-in default.
// Credentials are left empty.
func Default() Config {
	return Config{
		Provider:        ProviderAuto,
		OpenAIModel:     DefaultOpenAIModel,
		GeminiModel:     DefaultGeminiModel,
		ReasoningEffort: DefaultReasoningEffort,

		PromptFile: DefaultPromptFile,

		LogFile:        DefaultLogFile,
		LogLevel:       DefaultLogLevel,
		LogStepDetails: true,

		BrowserMode:        ModeAuto,
		ConnectExistingCDP: true,
		CDPPort:            DefaultCDPPort,
		FreshUserDataDir:   DefaultFreshProfileDir,
		FreshStartTimeout:  DefaultFreshStartWait,
		ProfileDirectory:   DefaultProfileDirectory,
		AllowedDomains:     []string{},
		Permissions:        slices.Clone(DefaultPermissions),

		MinPageLoadWait:    DefaultMinPageLoadWait,
		NetworkIdleWait:    DefaultNetworkIdleWait,
		WaitBetweenActions: DefaultWaitBetween,

		UseThinking:       true,
		UseVision:         true,
		FlashMode:         true,
		MaxSteps:          DefaultMaxSteps,
		MaxActionsPerStep: DefaultMaxActions,
		LLMTimeout:        DefaultLLMTimeout,
		StepTimeout:       DefaultStepTimeout,
		IncludeAttributes: slices.Clone(DefaultIncludeAttributes),
		MaxElementTokens:  DefaultMaxElementTokens,
	}
}

// Clone returns a deep copy so callers can derive a new Config without
// sharing slices with the original.
func (c Config) Clone() Config {
	out := c
	out.AllowedDomains = slices.Clone(c.AllowedDomains)
	out.Permissions = slices.Clone(c.Permissions)
	out.IncludeAttributes = slices.Clone(c.IncludeAttributes)
	if c.Temperature != nil {
		t := *c.Temperature
		out.Temperature = &t
	}
	return out
}

// HasCredentials reports whether at least one provider credential is present.
func (c Config) HasCredentials() bool {
	return c.OpenAIAPIKey != "" || c.GoogleAPIKey != ""
}

// Validate checks the configuration for values no run can work with.
func (c Config) Validate() error {
	if _, err := ParseBrowserMode(string(c.BrowserMode)); err != nil {
		return newError("BROWSER_MODE", err.Error(), err)
	}
	if _, err := ParseProvider(string(c.Provider)); err != nil {
		return newError("PROVIDER", err.Error(), err)
	}

	if !c.HasCredentials() {
		return newError("OPENAI_API_KEY", "no API key found: set OPENAI_API_KEY or GOOGLE_API_KEY", ErrMissingCredentials)
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"MAX_STEPS", int64(c.MaxSteps)},
		{"MAX_ACTIONS_PER_STEP", int64(c.MaxActionsPerStep)},
		{"LLM_TIMEOUT", int64(c.LLMTimeout)},
		{"STEP_TIMEOUT", int64(c.StepTimeout)},
		{"CDP_PORT", int64(c.CDPPort)},
		{"FRESH_CHROME_START_TIMEOUT", int64(c.FreshStartTimeout)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return newError(p.name, fmt.Sprintf("%s must be greater than 0", p.name), nil)
		}
	}
	if c.CDPPort > 65535 {
		return newError("CDP_PORT", "CDP_PORT must be at most 65535", nil)
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"MIN_PAGE_LOAD_WAIT", c.MinPageLoadWait},
		{"NETWORK_IDLE_WAIT", c.NetworkIdleWait},
		{"WAIT_BETWEEN_ACTIONS", c.WaitBetweenActions},
	} {
		if d.value < 0 {
			return newError(d.name, fmt.Sprintf("%s cannot be negative", d.name), nil)
		}
	}
	if c.MaxElementTokens < 0 {
		return newError("MAX_ELEMENT_TOKENS", "MAX_ELEMENT_TOKENS cannot be negative", nil)
	}

	return nil
}

// ResolvedModel returns the explicit model override, or the per-provider
// default for the given concrete provider.
func (c Config) ResolvedModel(p Provider) string {
	if c.Model != "" {
		return c.Model
	}
	if p == ProviderGemini {
		return c.GeminiModel
	}
	return c.OpenAIModel
}
