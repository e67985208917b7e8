package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/entrhq/browser-agent/pkg/agent"
	"github.com/entrhq/browser-agent/pkg/browser"
	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/entrhq/browser-agent/pkg/llm"
)

func baseConfig() config.Config {
	cfg := config.Default()
	cfg.TaskOverride = "open example.com and report the title"
	cfg.FreshUserDataDir = "/tmp/agent-fresh-profile"
	return cfg
}

func TestRun_NoCredentialsNeverTouchesBrowser(t *testing.T) {
	for _, provider := range []config.Provider{config.ProviderAuto, config.ProviderOpenAI, config.ProviderGemini} {
		t.Run(string(provider), func(t *testing.T) {
			cfg := baseConfig()
			cfg.Provider = provider
			models := &recordingModels{}
			sessions := &countingSessions{}
			loop := &scriptedLoop{}

			r := New(cfg, Deps{Models: models.factory(), Sessions: sessions, Loop: loop})
			summary, err := r.Run(context.Background())

			var credErr *llm.CredentialError
			require.ErrorAs(t, err, &credErr)
			assert.ErrorIs(t, err, config.ErrMissingCredentials)
			assert.Zero(t, sessions.calls)
			assert.Empty(t, models.built)
			assert.Empty(t, loop.requests)
			assert.Equal(t, StateFailed, r.State())
			assert.Equal(t, StateFailed, summary.State)
			assert.NotEmpty(t, summary.Error)
		})
	}
}

func TestRun_OwnModeWithoutBrowser(t *testing.T) {
	cfg := baseConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.BrowserMode = config.ModeOwn

	models := &recordingModels{}
	launcher := &recordingLauncher{}
	loop := &scriptedLoop{}
	log, logs := observedLogger()

	r := New(cfg, Deps{
		Models:   models.factory(),
		Sessions: browser.NewFactory(cfg, browser.WithProber(deadProber{}), browser.WithLauncher(launcher)),
		Loop:     loop,
		Log:      log,
	})
	_, err := r.Run(context.Background())

	var attachErr *browser.AttachError
	require.ErrorAs(t, err, &attachErr)
	assert.Empty(t, launcher.calls)
	assert.Empty(t, loop.requests)
	assert.Zero(t, models.completions())
	assert.Equal(t, StateFailed, r.State())
	assert.Equal(t, 1, logs.FilterMessage("Provider: openai").Len())
}

func TestRun_FreshWithGemini(t *testing.T) {
	cfg := baseConfig()
	cfg.GoogleAPIKey = "g-test"
	cfg.BrowserMode = config.ModeFresh

	models := &recordingModels{}
	launcher := &recordingLauncher{}
	loop := &scriptedLoop{
		callModel: true,
		events:    []agent.StepEvent{{Step: 1, ActionType: agent.ActionDone, Actions: []string{agent.ActionDone}, Success: true}},
		history:   &agent.History{Steps: 1, Actions: 1, Done: true, Success: true, Result: "Example Domain"},
	}
	log, logs := observedLogger()

	r := New(cfg, Deps{
		Models:   models.factory(),
		Sessions: browser.NewFactory(cfg, browser.WithProber(deadProber{}), browser.WithLauncher(launcher)),
		Loop:     loop,
		Log:      log,
	})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, models.built, 1)
	assert.Equal(t, config.ProviderGemini, models.built[0].Provider)
	assert.Equal(t, config.DefaultGeminiModel, models.built[0].Model)

	require.Len(t, launcher.calls, 1)
	assert.Equal(t, "/tmp/agent-fresh-profile", launcher.calls[0].ProfileDir)
	assert.Equal(t, 1, launcher.process.terminated)
	assert.Zero(t, launcher.process.released)

	require.Len(t, loop.requests, 1)
	req := loop.requests[0]
	assert.Equal(t, "http://127.0.0.1:9222", req.Browser.CDPURL)
	assert.Equal(t, cfg.MaxSteps, req.MaxSteps)
	assert.Equal(t, cfg.IncludeAttributes, req.IncludeAttributes)
	assert.Contains(t, req.ExtendSystemMessage, "HTML tag semantics")

	assert.Equal(t, StateTornDown, r.State())
	assert.Equal(t, StateTornDown, summary.State)
	assert.True(t, summary.Success)
	assert.Equal(t, config.ModeFresh, summary.Mode)
	assert.Equal(t, config.ProviderGemini, summary.Provider)
	assert.Equal(t, "Example Domain", summary.FinalResult)
	assert.Equal(t, "CLI", summary.TaskSource)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 1, logs.FilterMessage("Final result:\nExample Domain").Len())
	assert.Equal(t, 1, logs.FilterMessage("Browser mode: fresh").Len())
}

func TestRun_StepLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.BrowserMode = config.ModeFresh
	cfg.MaxSteps = 3

	launcher := &recordingLauncher{}
	loop := &scriptedLoop{
		history: &agent.History{Steps: 3, Actions: 3},
		err:     agent.ErrStepLimit,
	}
	log, logs := observedLogger()

	r := New(cfg, Deps{
		Models:   (&recordingModels{}).factory(),
		Sessions: browser.NewFactory(cfg, browser.WithProber(deadProber{}), browser.WithLauncher(launcher)),
		Loop:     loop,
		Log:      log,
	})
	summary, err := r.Run(context.Background())

	var loopErr *LoopError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, 3, loopErr.Steps)
	assert.ErrorIs(t, err, agent.ErrStepLimit)
	assert.Equal(t, 1, launcher.process.terminated)
	assert.Equal(t, StateTornDown, r.State())
	assert.False(t, summary.Success)
	assert.Equal(t, 3, summary.Steps)
	assert.Equal(t, 1, logs.FilterMessage("Final result is empty.").Len())
}

func TestRun_KeepAliveDetaches(t *testing.T) {
	cfg := baseConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.BrowserMode = config.ModeAuto
	cfg.KeepAlive = true

	launcher := &recordingLauncher{}
	r := New(cfg, Deps{
		Models:   (&recordingModels{}).factory(),
		Sessions: browser.NewFactory(cfg, browser.WithProber(deadProber{}), browser.WithLauncher(launcher)),
		Loop:     &scriptedLoop{history: &agent.History{Steps: 1, Done: true, Success: true}},
	})
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, launcher.calls, 1, "auto falls back to exactly one launch")
	assert.Zero(t, launcher.process.terminated)
	assert.Equal(t, 1, launcher.process.released)
	assert.Equal(t, StateDetached, summary.State)
	assert.Equal(t, config.ModeAuto, summary.RequestedMode)
	assert.Equal(t, config.ModeFresh, summary.Mode)
}

func TestRun_InterruptIsNotWrapped(t *testing.T) {
	cfg := baseConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.BrowserMode = config.ModeFresh

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	launcher := &recordingLauncher{}
	loop := &scriptedLoop{history: &agent.History{Steps: 1}, err: context.Canceled}
	r := New(cfg, Deps{
		Models:   (&recordingModels{}).factory(),
		Sessions: browser.NewFactory(cfg, browser.WithProber(deadProber{}), browser.WithLauncher(launcher)),
		Loop:     loop,
	})
	_, err := r.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	var loopErr *LoopError
	assert.False(t, errors.As(err, &loopErr))
	require.NotNil(t, launcher.process)
	assert.Equal(t, 1, launcher.process.terminated)
}

func TestRun_ManagedIgnoresKeepAlive(t *testing.T) {
	cfg := baseConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.BrowserMode = config.ModeManaged
	cfg.KeepAlive = true
	log, logs := observedLogger()

	summary, err := Run(context.Background(), cfg, Deps{
		Models: (&recordingModels{}).factory(),
		Loop:   &scriptedLoop{history: &agent.History{Steps: 1, Done: true, Success: true}},
		Log:    log,
	})
	require.NoError(t, err)

	assert.Equal(t, StateTornDown, summary.State)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).
		FilterMessage("KEEP_ALIVE has no effect in managed mode; the browser closed with the agent loop.").Len())
}

func TestRun_LogsStepsAndErrors(t *testing.T) {
	cfg := baseConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.BrowserMode = config.ModeManaged
	cfg.LogDOMTagSummary = true
	cfg.MetricsFile = filepath.Join(t.TempDir(), "metrics.prom")

	loop := &scriptedLoop{
		events: []agent.StepEvent{
			{Step: 1, ActionIndex: 0, ActionType: "click", Actions: []string{"click", "input_text"}, URL: "https://example.com", NextGoal: "search", TagSummary: "a:2, input:1", Success: true, Elapsed: time.Second},
			{Step: 1, ActionIndex: 1, ActionType: "input_text", Actions: []string{"click", "input_text"}, URL: "https://example.com", Success: false, Error: "element index 9 does not exist"},
			{Step: 2, Error: "model call failed"},
		},
		history: &agent.History{
			Steps: 3, Actions: 3, Done: true, Success: true, Result: "done",
			Errs: []string{"e1", "e2", "e3", "e4"},
		},
	}
	log, logs := observedLogger()

	r := New(cfg, Deps{Models: (&recordingModels{}).factory(), Loop: loop, Log: log})
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("Using managed launch mode.").Len())
	assert.Equal(t, 1, logs.FilterMessage("Step 1 | url=https://example.com | actions=click,input_text | next_goal=search | elapsed=1s | tags=a:2, input:1").Len())
	assert.Equal(t, 1, logs.FilterMessage("Step 2 | url=- | actions=- | elapsed=0s | tags=-").Len())
	assert.Equal(t, 1, logs.FilterMessage("Step 1 action 2 input_text failed: element index 9 does not exist").Len())

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessageSnippet("Error: ").All()
	require.Len(t, warnings, 3)
	assert.Equal(t, "Error: e2", warnings[0].Message)
	assert.Equal(t, 1, logs.FilterMessage("Agent finished with 4 error(s).").Len())
	assert.Empty(t, loop.requests[0].Browser.CDPURL, "managed sessions leave the browser to the loop")

	data, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `browser_agent_actions_total{action="input_text",outcome="failure"} 1`)
	assert.Contains(t, string(data), `browser_agent_steps_total{outcome="failure"} 2`)
	assert.Contains(t, string(data), "browser_agent_run_success 1")
}

func TestRun_StepDetailsDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.BrowserMode = config.ModeManaged
	cfg.LogStepDetails = false

	loop := &scriptedLoop{
		events:  []agent.StepEvent{{Step: 1, ActionType: "scroll", Actions: []string{"scroll"}, Success: true}},
		history: &agent.History{Steps: 1, Done: true},
	}
	log, logs := observedLogger()

	_, err := Run(context.Background(), cfg, Deps{Models: (&recordingModels{}).factory(), Loop: loop, Log: log})
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessageSnippet("Step 1 |").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.InfoLevel).FilterMessageSnippet("Step 1 action").Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.DebugLevel).FilterMessage("Step 1 action 1 scroll target=- elapsed=0s").Len())
}

func TestRun_MissingPromptFile(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.PromptFile = filepath.Join(t.TempDir(), "missing.txt")
	sessions := &countingSessions{}

	_, err := Run(context.Background(), cfg, Deps{Models: (&recordingModels{}).factory(), Sessions: sessions})
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Zero(t, sessions.calls)
}

func TestRunner_SingleUse(t *testing.T) {
	cfg := baseConfig()
	r := New(cfg, Deps{Models: (&recordingModels{}).factory(), Sessions: &countingSessions{}})
	_, err := r.Run(context.Background())
	require.Error(t, err)

	_, err = r.Run(context.Background())
	assert.ErrorContains(t, err, "already been used")
}
