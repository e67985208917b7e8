package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/browser-agent/pkg/agent/prompts"
	"github.com/entrhq/browser-agent/pkg/browser/driver"
	"github.com/entrhq/browser-agent/pkg/dom"
	"github.com/entrhq/browser-agent/pkg/logging"
)

const (
	defaultMaxFailures = 3
	tagSummaryLimit    = 6
	scrollPixels       = 600.0
	maxWait            = 10 * time.Second
	extractLimit       = 4000
)

// BrowserLoop is the default Loop. Each step it renders the page as an
// indexed element listing, asks the model for the next actions and runs them
// on the page.
type BrowserLoop struct {
	Open   driver.Opener
	Log    *logging.Logger
	Tracer trace.Tracer
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

// NewBrowserLoop returns a loop that drives pages through playwright.
func NewBrowserLoop(log *logging.Logger) *BrowserLoop {
	return &BrowserLoop{Open: driver.Open, Log: log}
}

func (l *BrowserLoop) defaults() BrowserLoop {
	c := *l
	if c.Open == nil {
		c.Open = driver.Open
	}
	if c.Log == nil {
		c.Log = logging.Nop()
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("github.com/entrhq/browser-agent/pkg/agent")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run implements Loop.
func (l *BrowserLoop) Run(ctx context.Context, req Request) (*History, error) {
	if req.Model == nil {
		return nil, errors.New("agent request has no model client")
	}
	if req.MaxSteps <= 0 {
		return nil, fmt.Errorf("max steps must be positive, got %d", req.MaxSteps)
	}
	guard, err := NewDomainGuard(req.AllowedDomains)
	if err != nil {
		return nil, err
	}

	cfg := l.defaults()
	log := cfg.Log.Named("loop")
	if req.UseVision {
		log.Debugf("Screenshots are not sent to the model; steps use the element listing")
	}

	opts := req.Browser
	if opts.Log == nil {
		opts.Log = log
	}
	page, err := cfg.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warnf("Failed to close browser page: %v", err)
		}
	}()

	r := &run{
		loop:    cfg,
		req:     req,
		page:    page,
		guard:   guard,
		log:     log,
		history: &History{},
		system: prompts.NewPromptBuilder().
			WithFlashMode(req.FlashMode).
			WithThinking(req.UseThinking).
			WithMaxActions(req.MaxActionsPerStep).
			WithAllowedDomains(guard.Patterns()).
			WithExtension(req.ExtendSystemMessage).
			Build(),
	}

	maxFailures := req.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}

	failures := 0
	for step := 1; step <= req.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return r.history, err
		}
		r.history.Steps = step

		ok := r.step(ctx, step)
		if r.history.Done {
			return r.history, nil
		}
		if err := ctx.Err(); err != nil {
			return r.history, err
		}
		if ok {
			failures = 0
			continue
		}
		failures++
		if failures >= maxFailures {
			return r.history, fmt.Errorf("%w: %d in a row", ErrTooManyFailures, failures)
		}
	}
	return r.history, ErrStepLimit
}

type run struct {
	loop    BrowserLoop
	req     Request
	page    driver.Page
	guard   *DomainGuard
	log     *logging.Logger
	system  string
	history *History
	memory  string
	results []string

	// lastAllowed is the last URL seen inside ALLOWED_DOMAINS
	lastAllowed string

	// extracted holds page text read by extract_content until it is reported
	extracted string
}

func (r *run) emit(e StepEvent) {
	if r.req.Observer != nil {
		r.req.Observer.OnStep(e)
	}
}

// step runs one step and reports whether every part of it succeeded.
func (r *run) step(ctx context.Context, n int) bool {
	ctx, span := r.loop.Tracer.Start(ctx, "step", trace.WithAttributes(attribute.Int("step", n)))
	defer span.End()

	if r.req.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.req.StepTimeout)
		defer cancel()
	}
	start := r.loop.Now()

	fail := func(err error) bool {
		r.history.Errs = append(r.history.Errs, fmt.Sprintf("step %d: %v", n, err))
		r.results = []string{"step failed: " + err.Error()}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Warnf("Step %d failed: %v", n, err)
		now := r.loop.Now()
		r.emit(StepEvent{
			Step:      n,
			URL:       r.page.URL(),
			Timestamp: now,
			Elapsed:   now.Sub(start),
			Error:     err.Error(),
		})
		return false
	}

	if err := r.loop.Sleep(ctx, r.req.MinPageLoadWait); err != nil {
		return fail(err)
	}
	if err := r.page.WaitForLoad(ctx, r.req.NetworkIdleWait); err != nil {
		return fail(err)
	}

	html, err := r.page.Content()
	if err != nil {
		return fail(fmt.Errorf("failed to read page: %w", err))
	}
	state, err := dom.Extract(html, r.req.IncludeAttributes)
	if err != nil {
		return fail(err)
	}
	state.URL = r.page.URL()
	if title, err := r.page.Title(); err == nil {
		state.Title = title
	}
	if r.guard.Allowed(state.URL) {
		r.lastAllowed = state.URL
	}
	span.SetAttributes(attribute.String("url", state.URL), attribute.Int("elements", len(state.Elements)))

	if r.req.MaxElementTokens > 0 {
		r.locate(ctx, state)
	}
	listing := state.RenderWithin(r.req.MaxElementTokens)
	messages := prompts.BuildMessages(r.system, prompts.StepState{
		Task:     r.req.Task,
		Step:     n,
		MaxSteps: r.req.MaxSteps,
		URL:      state.URL,
		Title:    state.Title,
		Elements: listing.Text,
		Above:    listing.Above,
		Below:    listing.Below,
		Omitted:  listing.Omitted,
		Memory:   r.memory,
		Results:  r.results,
	})

	llmCtx := ctx
	if r.req.LLMTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, r.req.LLMTimeout)
		defer cancel()
	}
	resp, err := r.req.Model.Complete(llmCtx, messages)
	if err != nil {
		return fail(fmt.Errorf("model call failed: %w", err))
	}
	reply, err := ParseReply(resp.Text)
	if err != nil {
		return fail(err)
	}
	r.memory = reply.Memory

	if limit := r.req.MaxActionsPerStep; limit > 0 && len(reply.Actions) > limit {
		r.log.Debugf("Step %d: model chose %d actions, running the first %d", n, len(reply.Actions), limit)
		reply.Actions = reply.Actions[:limit]
	}
	actions := reply.Actions
	names := reply.Names()
	tags := state.TagSummary(tagSummaryLimit)

	ok := true
	var results []string
	for i, a := range actions {
		if i > 0 {
			if err := r.loop.Sleep(ctx, r.req.WaitBetweenActions); err != nil {
				results = append(results, "remaining actions skipped: "+err.Error())
				ok = false
				break
			}
		}

		before := r.page.URL()
		target, err := r.execute(ctx, state, a)
		if err == nil && a.Type != ActionDone {
			err = r.stayInside(ctx, a)
		}
		r.history.Actions++

		now := r.loop.Now()
		event := StepEvent{
			Step:        n,
			ActionIndex: i,
			ActionType:  a.Type,
			Actions:     names,
			Target:      target,
			URL:         r.page.URL(),
			NextGoal:    reply.NextGoal,
			Timestamp:   now,
			Elapsed:     now.Sub(start),
			Success:     err == nil,
			TagSummary:  tags,
		}
		if err != nil {
			ok = false
			event.Error = err.Error()
			r.history.Errs = append(r.history.Errs, fmt.Sprintf("step %d action %d (%s): %v", n, i+1, a.Type, err))
			results = append(results, fmt.Sprintf("%s: failed: %v", a.Type, err))
			span.RecordError(err)
		} else if r.extracted != "" {
			results = append(results, a.Type+": "+r.extracted)
			r.extracted = ""
		} else {
			results = append(results, a.Type+": ok")
		}
		r.emit(event)

		if err != nil || a.Type == ActionDone {
			break
		}
		// element indexes are stale once the page changed
		if i < len(actions)-1 && r.page.URL() != before {
			results = append(results, "page changed, remaining actions skipped")
			break
		}
	}
	r.results = results
	if !ok {
		span.SetStatus(codes.Error, "action failed")
	}
	return ok
}

// execute runs one action and returns a description of its target element.
func (r *run) execute(ctx context.Context, state *dom.State, a Action) (string, error) {
	switch a.Type {
	case ActionGoToURL:
		if a.URL == "" {
			return "", errors.New("go_to_url requires a url")
		}
		if !r.guard.Allowed(a.URL) {
			return "", fmt.Errorf("navigation to %s is outside ALLOWED_DOMAINS", a.URL)
		}
		return "", r.page.Goto(ctx, a.URL)

	case ActionClick:
		el, err := element(state, a)
		if err != nil {
			return "", err
		}
		return el.Describe(), r.page.Click(ctx, el.Selector)

	case ActionInputText:
		el, err := element(state, a)
		if err != nil {
			return "", err
		}
		return el.Describe(), r.page.Fill(ctx, el.Selector, a.Text)

	case ActionSelectOption:
		el, err := element(state, a)
		if err != nil {
			return "", err
		}
		if el.Tag != "select" {
			return el.Describe(), fmt.Errorf("element %d is a %s, not a select", el.Index, el.Tag)
		}
		opt, ok := el.Option(a.Text)
		if !ok {
			return el.Describe(), fmt.Errorf("select %d has no option %q; options are %s", el.Index, a.Text, el.Text)
		}
		return el.Describe(), r.page.SelectOption(ctx, el.Selector, opt.Value)

	case ActionScroll:
		px := a.NumPages * scrollPixels
		if !a.Down {
			px = -px
		}
		return "", r.page.Scroll(ctx, px)

	case ActionGoBack:
		return "", r.page.GoBack(ctx)

	case ActionSendKeys:
		if a.Keys == "" {
			return "", errors.New("send_keys requires keys")
		}
		return "", r.page.Press(ctx, a.Keys)

	case ActionWait:
		d := min(time.Duration(a.Seconds*float64(time.Second)), maxWait)
		return "", r.loop.Sleep(ctx, d)

	case ActionExtract:
		raw, err := r.page.Content()
		if err != nil {
			return "", fmt.Errorf("failed to read page: %w", err)
		}
		text, err := dom.ExtractText(raw, extractLimit)
		if err != nil {
			return "", err
		}
		r.extracted = text.String()
		return text.Title, nil

	case ActionDone:
		r.history.Done = true
		r.history.Success = a.Success
		r.history.Result = a.Text
		return "", nil

	default:
		return "", fmt.Errorf("unknown action %q", a.Type)
	}
}

// stayInside fails an action that left ALLOWED_DOMAINS, whether by a link, a
// redirect, a form submit or history, and returns the page to the last
// allowed URL or about:blank.
func (r *run) stayInside(ctx context.Context, a Action) error {
	u := r.page.URL()
	if r.guard.Allowed(u) {
		r.lastAllowed = u
		return nil
	}
	back := r.lastAllowed
	if back == "" {
		back = "about:blank"
	}
	if err := r.page.Goto(ctx, back); err != nil {
		r.log.Warnf("Failed to leave %s: %v", u, err)
	}
	return fmt.Errorf("%s landed on %s, outside ALLOWED_DOMAINS", a.Type, u)
}

// locate places the elements against the viewport so the listing can favour
// what is on screen. Without a layout the listing falls back to page order.
func (r *run) locate(ctx context.Context, state *dom.State) {
	if len(state.Elements) == 0 {
		return
	}
	selectors := make([]string, len(state.Elements))
	for i, e := range state.Elements {
		selectors[i] = e.Selector
	}
	layout, err := r.page.Layout(ctx, selectors)
	if err != nil {
		r.log.Debugf("Element layout unavailable: %v", err)
		return
	}
	for i, box := range layout.Boxes {
		if box != nil {
			state.Place(i, box.Top, box.Bottom, layout.Viewport)
		}
	}
}

func element(state *dom.State, a Action) (dom.Element, error) {
	if a.Index == nil {
		return dom.Element{}, fmt.Errorf("%s requires an element index", a.Type)
	}
	el, ok := state.Element(*a.Index)
	if !ok {
		return dom.Element{}, fmt.Errorf("element index %d does not exist on the page", *a.Index)
	}
	return el, nil
}
