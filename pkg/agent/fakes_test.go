package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/entrhq/browser-agent/pkg/browser/driver"
	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/entrhq/browser-agent/pkg/llm"
)

// fakePage serves canned HTML per URL and follows scripted click targets.
// With a viewport set, it lays elements out as rows of rowHeight pixels in
// the order they are asked for.
type fakePage struct {
	mu        sync.Mutex
	pages     map[string]string
	links     map[string]string // selector -> URL opened by a click
	redirects map[string]string // URL -> URL the server sends the page on to
	url       string
	back      []string
	clicks    []string
	fills     map[string]string
	selects   map[string]string
	keys      []string
	scrolls   []float64
	closed    bool

	viewport  float64
	rowHeight float64
	scrollY   float64
	rows      int
}

func newFakePage(pages map[string]string) *fakePage {
	return &fakePage{
		pages:     pages,
		links:     map[string]string{},
		redirects: map[string]string{},
		fills:     map[string]string{},
		selects:   map[string]string{},
		url:       "about:blank",
	}
}

func (p *fakePage) navigate(url string) {
	if to, ok := p.redirects[url]; ok {
		url = to
	}
	p.back = append(p.back, p.url)
	p.url = url
	p.scrollY = 0
}

func (p *fakePage) Goto(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigate(url)
	return nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Title() (string, error) { return "Fake", nil }

func (p *fakePage) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if html, ok := p.pages[p.url]; ok {
		return html, nil
	}
	return "<html><body></body></html>", nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	if url, ok := p.links[selector]; ok {
		p.navigate(url)
	}
	return nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fills[selector] = value
	return nil
}

func (p *fakePage) SelectOption(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selects[selector] = value
	return nil
}

func (p *fakePage) Scroll(_ context.Context, pixels float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls = append(p.scrolls, pixels)
	maxY := max(float64(p.rows)*p.rowHeight-p.viewport, 0)
	p.scrollY = min(max(p.scrollY+pixels, 0), maxY)
	return nil
}

func (p *fakePage) GoBack(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.back); n > 0 {
		p.url = p.back[n-1]
		p.back = p.back[:n-1]
		p.scrollY = 0
	}
	return nil
}

func (p *fakePage) Press(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *fakePage) WaitForLoad(context.Context, time.Duration) error { return nil }

func (p *fakePage) Layout(_ context.Context, selectors []string) (*driver.Layout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.viewport <= 0 {
		return nil, errors.New("layout not available")
	}
	p.rows = len(selectors)
	layout := &driver.Layout{Viewport: p.viewport}
	for i := range selectors {
		top := float64(i)*p.rowHeight - p.scrollY
		layout.Boxes = append(layout.Boxes, &driver.Box{Top: top, Bottom: top + p.rowHeight})
	}
	return layout, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func openerFor(page *fakePage) driver.Opener {
	return func(context.Context, driver.Options) (driver.Page, error) {
		return page, nil
	}
}

// scriptedModel returns replies in order and repeats the last one.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []string
	err      error
	calls    int
	messages [][]llm.Message
}

func (m *scriptedModel) Provider() config.Provider { return config.ProviderOpenAI }
func (m *scriptedModel) Model() string             { return "scripted" }

func (m *scriptedModel) Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, messages)
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted replies")
	}
	i := min(m.calls-1, len(m.replies)-1)
	return &llm.Response{Text: m.replies[i]}, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []StepEvent
}

func (r *eventRecorder) OnStep(e StepEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }
