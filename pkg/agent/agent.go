// Package agent defines the boundary between the runner and the loop that
// drives the browser, and ships BrowserLoop, the default loop.
//
// The runner treats a Loop as an opaque collaborator:
//
//	history, err := loop.Run(ctx, agent.Request{Task: task, Model: client, ...})
//
// Progress is reported through a StepObserver, one event per executed action.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/entrhq/browser-agent/pkg/browser/driver"
	"github.com/entrhq/browser-agent/pkg/llm"
)

// ErrStepLimit is returned, together with the history, when the step limit is
// reached before the model reports done.
var ErrStepLimit = errors.New("step limit reached")

// ErrTooManyFailures is returned when consecutive steps keep failing.
var ErrTooManyFailures = errors.New("too many consecutive step failures")

// Loop runs a task to completion against one browser.
type Loop interface {
	// Run executes steps until the model reports done, the step limit is
	// reached, or ctx is cancelled. The returned history is non-nil whenever
	// at least one step started, including on error.
	Run(ctx context.Context, req Request) (*History, error)
}

// Request carries everything a loop needs for one run.
type Request struct {
	Task  string
	Model llm.Client

	// Browser selects the page to drive. An empty CDPURL means the loop
	// launches and owns its browser.
	Browser driver.Options

	MaxSteps          int
	MaxActionsPerStep int
	MaxFailures       int
	IncludeAttributes []string
	AllowedDomains    []string

	StepTimeout        time.Duration
	LLMTimeout         time.Duration
	MinPageLoadWait    time.Duration
	NetworkIdleWait    time.Duration
	WaitBetweenActions time.Duration

	// MaxElementTokens caps the element listing sent to the model. Zero
	// sends every element.
	MaxElementTokens int

	FlashMode           bool
	UseThinking         bool
	UseVision           bool
	ExtendSystemMessage string

	Observer StepObserver
}

// StepObserver receives step events as they happen.
type StepObserver interface {
	OnStep(StepEvent)
}

// ObserverFunc adapts a function to StepObserver.
type ObserverFunc func(StepEvent)

// OnStep calls f(e).
func (f ObserverFunc) OnStep(e StepEvent) { f(e) }

// StepEvent describes one executed action, or a step that failed before any
// action ran (ActionType empty).
type StepEvent struct {
	Step        int
	ActionIndex int
	ActionType  string
	// Actions lists every action the model chose for this step.
	Actions   []string
	Target    string
	URL       string
	NextGoal  string
	Timestamp time.Time
	Elapsed   time.Duration
	Success   bool
	Error     string
	// TagSummary is the "tag:count" summary of the page the step saw.
	TagSummary string
}

// History is the outcome of a run.
type History struct {
	Steps   int
	Actions int
	Done    bool
	Success bool
	Result  string
	Errs    []string
}

// HasErrors reports whether any step or action failed.
func (h *History) HasErrors() bool {
	return h != nil && len(h.Errs) > 0
}

// Errors returns the recorded failures in order.
func (h *History) Errors() []string {
	if h == nil {
		return nil
	}
	return h.Errs
}

// FinalResult returns the text of the done action, or "" when the run did not
// finish.
func (h *History) FinalResult() string {
	if h == nil || !h.Done {
		return ""
	}
	return h.Result
}
