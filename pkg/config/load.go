package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnvVar names the variable that points at a YAML override file.
const FileEnvVar = "BROWSER_AGENT_CONFIG"

// LoadOptions controls where Load reads settings from.
type LoadOptions struct {
	// Lookup reads the process environment. Defaults to OSLookup.
	Lookup LookupFunc

	// DotEnvFiles are read with godotenv and consulted after Lookup, so they
	// never override variables already set. Defaults to [".env"]; missing
	// files are ignored.
	DotEnvFiles []string

	// File is a YAML override file. When empty, BROWSER_AGENT_CONFIG is used.
	File string

	// Overrides are applied last, typically from command-line flags.
	Overrides Overrides
}

// Overrides carries command-line values that take precedence over the
// environment. Zero values mean "not given".
type Overrides struct {
	Task        string
	PromptFile  string
	MaxSteps    *int
	Headless    *bool
	NoCDP       bool
	BrowserMode string
	ChromePath  string
	CDPPort     *int
	CDPURL      string
}

// Load resolves and validates a Config. It reads the environment and the
// optional files, nothing else. Calling it twice with identical inputs
// yields equal values.
func Load(opts LoadOptions) (Config, error) {
	cfg, err := Resolve(opts)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Resolve builds a Config from every source without validating it.
func Resolve(opts LoadOptions) (Config, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = OSLookup
	}

	dotenvFiles := opts.DotEnvFiles
	if dotenvFiles == nil {
		dotenvFiles = []string{".env"}
	}
	dotenv, err := readDotEnv(dotenvFiles)
	if err != nil {
		return Config{}, err
	}
	lookup = ChainLookup(lookup, MapLookup(dotenv))

	cfg := Default()

	file := opts.File
	if file == "" {
		if v, ok := lookup(FileEnvVar); ok {
			file = cleanValue(v)
		}
	}
	if file != "" {
		if cfg, err = applyFile(cfg, file); err != nil {
			return Config{}, err
		}
	}

	cfg, err = applyEnv(cfg, lookup)
	if err != nil {
		return Config{}, err
	}

	return cfg.WithOverrides(opts.Overrides)
}

func readDotEnv(paths []string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, path := range paths {
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, newError(path, fmt.Sprintf("failed to read %s: %v", path, err), err)
		}
		// Earlier files win, matching godotenv.Load semantics.
		for k, v := range values {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

// applyFile overlays a YAML file on top of cfg. Unknown keys are rejected so
// typos surface as configuration errors.
func applyFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, newError(FileEnvVar, fmt.Sprintf("failed to read config file: %v", err), err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, newError(FileEnvVar, fmt.Sprintf("failed to parse config file %s: %v", path, err), err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of cfg. Every field keeps
// its current value when the variable is unset or blank.
func applyEnv(cfg Config, lookup LookupFunc) (Config, error) {
	r := &envReader{lookup: lookup}

	provider, err := ParseProvider(r.String("PROVIDER", string(cfg.Provider)))
	if err != nil {
		r.fail("PROVIDER", err.Error(), err)
	}
	cfg.Provider = provider
	cfg.Model = r.String("MODEL", cfg.Model)
	cfg.OpenAIModel = r.String("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.GeminiModel = r.String("GEMINI_MODEL", cfg.GeminiModel)
	cfg.OpenAIAPIKey = r.String("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.GoogleAPIKey = r.String("GOOGLE_API_KEY", cfg.GoogleAPIKey)
	cfg.OpenAIBaseURL = r.String("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.ReasoningEffort = strings.ToLower(r.String("OPENAI_REASONING_EFFORT", cfg.ReasoningEffort))
	cfg.Temperature = r.OptionalFloat("TEMPERATURE", cfg.Temperature)

	cfg.PromptFile = r.String("PROMPT_FILE", cfg.PromptFile)

	cfg.LogFile = r.String("LOG_FILE", cfg.LogFile)
	cfg.LogLevel = strings.ToUpper(r.String("LOG_LEVEL", cfg.LogLevel))
	cfg.LogStepDetails = r.Bool("LOG_STEP_DETAILS", cfg.LogStepDetails)
	cfg.LogDOMTagSummary = r.Bool("LOG_DOM_TAG_SUMMARY", cfg.LogDOMTagSummary)
	cfg.MetricsFile = r.String("METRICS_FILE", cfg.MetricsFile)
	cfg.TraceFile = r.String("TRACE_FILE", cfg.TraceFile)

	mode, err := ParseBrowserMode(r.String("BROWSER_MODE", string(cfg.BrowserMode)))
	if err != nil {
		r.fail("BROWSER_MODE", err.Error(), err)
	}
	cfg.BrowserMode = mode
	cfg.ConnectExistingCDP = r.Bool("CONNECT_EXISTING_CDP", cfg.ConnectExistingCDP)
	cfg.CDPURL = r.String("CDP_URL", cfg.CDPURL)
	cfg.CDPPort = r.Int("CDP_PORT", cfg.CDPPort)
	cfg.ChromeExecutablePath = r.String("CHROME_EXECUTABLE_PATH", cfg.ChromeExecutablePath)
	cfg.BrowserChannel = r.String("BROWSER_CHANNEL", cfg.BrowserChannel)
	cfg.FreshUserDataDir = r.String("FRESH_CHROME_USER_DATA_DIR", cfg.FreshUserDataDir)
	cfg.FreshStartTimeout = r.Seconds("FRESH_CHROME_START_TIMEOUT", cfg.FreshStartTimeout)
	cfg.ProfileDirectory = r.String("PROFILE_DIRECTORY", cfg.ProfileDirectory)
	cfg.EnableDefaultExtensions = r.Bool("ENABLE_DEFAULT_EXTENSIONS", cfg.EnableDefaultExtensions)
	cfg.Headless = r.Bool("HEADLESS", cfg.Headless)
	cfg.KeepAlive = r.Bool("KEEP_ALIVE", cfg.KeepAlive)
	cfg.AllowedDomains = r.List("ALLOWED_DOMAINS", cfg.AllowedDomains)
	cfg.Permissions = r.List("BROWSER_PERMISSIONS", cfg.Permissions)

	cfg.MinPageLoadWait = r.Seconds("MIN_PAGE_LOAD_WAIT", cfg.MinPageLoadWait)
	cfg.NetworkIdleWait = r.Seconds("NETWORK_IDLE_WAIT", cfg.NetworkIdleWait)
	cfg.WaitBetweenActions = r.Seconds("WAIT_BETWEEN_ACTIONS", cfg.WaitBetweenActions)
	cfg.HighlightElements = r.Bool("HIGHLIGHT_ELEMENTS", cfg.HighlightElements)

	cfg.UseThinking = r.Bool("USE_THINKING", cfg.UseThinking)
	cfg.UseVision = r.Bool("USE_VISION", cfg.UseVision)
	cfg.FlashMode = r.Bool("FLASH_MODE", cfg.FlashMode)
	cfg.MaxSteps = r.Int("MAX_STEPS", cfg.MaxSteps)
	cfg.MaxActionsPerStep = r.Int("MAX_ACTIONS_PER_STEP", cfg.MaxActionsPerStep)
	cfg.LLMTimeout = r.Seconds("LLM_TIMEOUT", cfg.LLMTimeout)
	cfg.StepTimeout = r.Seconds("STEP_TIMEOUT", cfg.StepTimeout)
	cfg.IncludeAttributes = r.List("INCLUDE_ATTRIBUTES", cfg.IncludeAttributes)
	cfg.MaxElementTokens = r.Int("MAX_ELEMENT_TOKENS", cfg.MaxElementTokens)

	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, nil
}

// WithOverrides returns a copy of c with command-line overrides applied.
func (c Config) WithOverrides(o Overrides) (Config, error) {
	out := c.Clone()

	if strings.TrimSpace(o.Task) != "" {
		out.TaskOverride = o.Task
	}
	if o.PromptFile != "" {
		out.PromptFile = o.PromptFile
	}
	if o.MaxSteps != nil {
		out.MaxSteps = *o.MaxSteps
	}
	if o.Headless != nil {
		out.Headless = *o.Headless
	}
	if o.NoCDP {
		out.ConnectExistingCDP = false
	}
	if o.BrowserMode != "" {
		mode, err := ParseBrowserMode(o.BrowserMode)
		if err != nil {
			return Config{}, newError("--browser-mode", err.Error(), err)
		}
		out.BrowserMode = mode
	}
	if o.ChromePath != "" {
		out.ChromeExecutablePath = o.ChromePath
	}
	if o.CDPPort != nil {
		out.CDPPort = *o.CDPPort
	}
	if o.CDPURL != "" {
		out.CDPURL = o.CDPURL
	}
	return out, nil
}
