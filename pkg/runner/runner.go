// Package runner wires one browser-agent run together: it builds the model
// client, acquires the browser session, runs the agent loop with a step
// logger attached, and tears the session down on every exit path.
package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/browser-agent/pkg/agent"
	"github.com/entrhq/browser-agent/pkg/agent/prompts"
	"github.com/entrhq/browser-agent/pkg/browser"
	"github.com/entrhq/browser-agent/pkg/browser/driver"
	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/entrhq/browser-agent/pkg/llm"
	"github.com/entrhq/browser-agent/pkg/llm/gemini"
	"github.com/entrhq/browser-agent/pkg/llm/openai"
	"github.com/entrhq/browser-agent/pkg/logging"
	"github.com/entrhq/browser-agent/pkg/telemetry"
)

// shownErrors is how many loop errors are repeated after a run.
const shownErrors = 3

// ModelFactory builds the model client for a run. llm.Factory implements it.
type ModelFactory interface {
	New(ctx context.Context, cfg config.Config) (llm.Client, error)
}

// SessionFactory acquires the browser session. browser.Factory implements it.
type SessionFactory interface {
	Acquire(ctx context.Context) (*browser.Session, error)
}

// Deps are the collaborators of a run. Zero fields get production defaults.
type Deps struct {
	Models   ModelFactory
	Sessions SessionFactory
	Loop     agent.Loop
	Log      *logging.Logger
	Metrics  *telemetry.Metrics
	Tracer   trace.Tracer
	Now      func() time.Time
}

// DefaultModels is the production model factory.
var DefaultModels = llm.Factory{OpenAI: openai.Build, Gemini: gemini.Build}

// Runner executes a single run. It is not reusable.
type Runner struct {
	cfg     config.Config
	deps    Deps
	log     *logging.Logger
	tracing *telemetry.Tracing

	mu    sync.Mutex
	state State
}

// New returns a Runner for cfg.
func New(cfg config.Config, deps Deps) *Runner {
	if deps.Log == nil {
		deps.Log = logging.Nop()
	}
	if deps.Models == nil {
		deps.Models = DefaultModels
	}
	if deps.Sessions == nil {
		deps.Sessions = browser.NewFactory(cfg, browser.WithLogger(deps.Log.Named("browser")))
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewMetrics()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runner{cfg: cfg, deps: deps, log: deps.Log, state: StateIdle}
}

// Run is shorthand for New(cfg, deps).Run(ctx).
func Run(ctx context.Context, cfg config.Config, deps Deps) (*Summary, error) {
	return New(cfg, deps).Run(ctx)
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) transition(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !CanTransition(r.state, to) {
		return &TransitionError{From: r.state, To: to}
	}
	r.state = to
	return nil
}

// Run executes the task. The returned summary is never nil.
func (r *Runner) Run(ctx context.Context) (summary *Summary, err error) {
	summary = &Summary{
		RunID:         uuid.NewString(),
		RequestedMode: r.cfg.BrowserMode,
		StartTime:     r.deps.Now(),
		State:         r.State(),
	}
	if r.State() != StateIdle {
		return summary, errors.New("runner has already been used")
	}

	tracer := r.deps.Tracer
	if tracer == nil {
		r.tracing, err = telemetry.NewTracing(r.cfg.TraceFile, summary.RunID)
		if err != nil {
			r.log.Warnf("Tracing disabled: %v", err)
			r.tracing, _ = telemetry.NewTracing("", summary.RunID)
		}
		tracer = r.tracing.Tracer()
	}

	ctx, span := tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run.id", summary.RunID)))
	defer func() {
		r.finish(summary, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.shutdownTelemetry()
	}()

	task, err := r.cfg.TaskText()
	if err != nil {
		r.fail()
		return summary, err
	}
	summary.TaskSource = r.cfg.PromptFile
	if strings.TrimSpace(r.cfg.TaskOverride) != "" {
		summary.TaskSource = "CLI"
	}

	client, err := r.deps.Models.New(ctx, r.cfg)
	if err != nil {
		r.fail()
		return summary, err
	}
	summary.Provider, summary.Model = client.Provider(), client.Model()
	if err := r.transition(StateModelReady); err != nil {
		return summary, err
	}
	span.SetAttributes(attribute.String("provider", string(summary.Provider)), attribute.String("model", summary.Model))

	r.log.Infof("Provider: %s", summary.Provider)
	r.log.Infof("Model: %s", summary.Model)
	r.log.Infof("Task source: %s", summary.TaskSource)
	if len(r.cfg.AllowedDomains) > 0 {
		r.log.Infof("Allowed domains: %s", strings.Join(r.cfg.AllowedDomains, ", "))
	} else {
		r.log.Infof("Allowed domains: unrestricted")
	}

	sess, err := r.acquire(ctx, tracer)
	if err != nil {
		r.fail()
		return summary, err
	}
	summary.Mode, summary.CDPURL = sess.Mode, sess.CDPURL
	defer r.teardown(sess)

	if err := r.transition(StateSessionReady); err != nil {
		return summary, err
	}
	r.deps.Metrics.RecordSession(string(sess.Requested), string(sess.Mode))
	r.log.Infof("Browser mode: %s", sess.Mode)
	if sess.CDPURL != "" {
		r.log.Infof("CDP endpoint: %s", sess.CDPURL)
	}

	if err := r.transition(StateRunning); err != nil {
		return summary, err
	}
	history, err := r.runLoop(ctx, tracer, task, client, sess)
	if history != nil {
		summary.Steps = history.Steps
		summary.Actions = history.Actions
		summary.Success = history.Done && history.Success
		summary.FinalResult = history.FinalResult()
		summary.Errors = history.Errors()
		r.report(history)
	}
	if err != nil {
		r.fail()
		return summary, err
	}
	return summary, r.transition(StateCompleted)
}

func (r *Runner) fail() {
	if err := r.transition(StateFailed); err != nil {
		r.log.Debugf("%v", err)
	}
}

func (r *Runner) acquire(ctx context.Context, tracer trace.Tracer) (*browser.Session, error) {
	ctx, span := tracer.Start(ctx, "session.acquire",
		trace.WithAttributes(attribute.String("requested_mode", string(r.cfg.BrowserMode))))
	defer span.End()

	sess, err := r.deps.Sessions.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("mode", string(sess.Mode)), attribute.String("cdp_url", sess.CDPURL))
	return sess, nil
}

func (r *Runner) runLoop(ctx context.Context, tracer trace.Tracer, task string, client llm.Client, sess *browser.Session) (*agent.History, error) {
	ctx, span := tracer.Start(ctx, "loop")
	defer span.End()

	loop := r.deps.Loop
	if loop == nil {
		bl := agent.NewBrowserLoop(r.log)
		bl.Tracer = tracer
		loop = bl
	}

	steps := &stepLogger{
		log:      r.log,
		metrics:  r.deps.Metrics,
		details:  r.cfg.LogStepDetails,
		withTags: r.cfg.LogDOMTagSummary,
	}
	defer steps.finish()

	history, err := loop.Run(ctx, r.request(task, client, sess, steps))
	if err == nil {
		return history, nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	// interrupts propagate unwrapped
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return history, err
	}

	loopErr := &LoopError{Reason: err.Error(), Err: err}
	if history != nil {
		loopErr.Steps = history.Steps
	}
	if errors.Is(err, agent.ErrStepLimit) {
		loopErr.Steps = r.cfg.MaxSteps
	}
	return history, loopErr
}

func (r *Runner) request(task string, client llm.Client, sess *browser.Session, obs agent.StepObserver) agent.Request {
	return agent.Request{
		Task:  task,
		Model: client,
		Browser: driver.Options{
			CDPURL:      sess.CDPURL,
			Executable:  r.cfg.ChromeExecutablePath,
			Channel:     r.cfg.BrowserChannel,
			Headless:    r.cfg.Headless,
			Permissions: r.cfg.Permissions,
			Log:         r.log.Named("driver"),
		},
		MaxSteps:            r.cfg.MaxSteps,
		MaxActionsPerStep:   r.cfg.MaxActionsPerStep,
		IncludeAttributes:   r.cfg.IncludeAttributes,
		MaxElementTokens:    r.cfg.MaxElementTokens,
		AllowedDomains:      r.cfg.AllowedDomains,
		StepTimeout:         r.cfg.StepTimeout,
		LLMTimeout:          r.cfg.LLMTimeout,
		MinPageLoadWait:     r.cfg.MinPageLoadWait,
		NetworkIdleWait:     r.cfg.NetworkIdleWait,
		WaitBetweenActions:  r.cfg.WaitBetweenActions,
		FlashMode:           r.cfg.FlashMode,
		UseThinking:         r.cfg.UseThinking,
		UseVision:           r.cfg.UseVision,
		ExtendSystemMessage: prompts.TagAwareGuidance,
		Observer:            obs,
	}
}

// report logs loop-reported errors and the final result.
func (r *Runner) report(h *agent.History) {
	if h.HasErrors() {
		errs := h.Errors()
		r.log.Warnf("Agent finished with %d error(s).", len(errs))
		for _, e := range errs[max(0, len(errs)-shownErrors):] {
			r.log.Warnf("Error: %s", e)
		}
	}
	if result := h.FinalResult(); result != "" {
		r.log.Infof("Final result:\n%s", result)
	} else {
		r.log.Infof("Final result is empty.")
	}
}

func (r *Runner) teardown(sess *browser.Session) {
	if err := sess.Close(r.cfg.KeepAlive); err != nil {
		r.log.Errorf("Failed to stop browser session cleanly: %v", err)
	}
	next := StateTornDown
	if sess.State() == browser.StateDetached {
		next = StateDetached
	}
	if err := r.transition(next); err != nil {
		r.log.Debugf("%v", err)
	}
}

func (r *Runner) finish(summary *Summary, err error) {
	summary.EndTime = r.deps.Now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)
	summary.State = r.State()
	if err != nil {
		summary.Error = err.Error()
		summary.Success = false
	}
	r.deps.Metrics.RecordRun(summary.Duration, err == nil)

	if r.cfg.MetricsFile != "" {
		if werr := r.deps.Metrics.WriteFile(r.cfg.MetricsFile); werr != nil {
			r.log.Warnf("%v", werr)
		}
	}
	r.log.Infow("Run finished",
		"run_id", summary.RunID,
		"state", summary.State,
		"steps", summary.Steps,
		"actions", summary.Actions,
		"duration", summary.Duration.Round(time.Millisecond).String(),
	)
}

func (r *Runner) shutdownTelemetry() {
	if r.tracing == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tracing.Shutdown(ctx); err != nil {
		r.log.Warnf("Failed to flush traces: %v", err)
	}
}
