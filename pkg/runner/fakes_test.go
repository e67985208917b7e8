package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/entrhq/browser-agent/pkg/agent"
	"github.com/entrhq/browser-agent/pkg/browser"
	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/entrhq/browser-agent/pkg/llm"
	"github.com/entrhq/browser-agent/pkg/logging"
)

func observedLogger() (*logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logging.NewFromZap(zap.New(core)), logs
}

type stubClient struct {
	provider config.Provider
	model    string
	calls    int
}

func (c *stubClient) Provider() config.Provider { return c.provider }
func (c *stubClient) Model() string             { return c.model }

func (c *stubClient) Complete(context.Context, []llm.Message) (*llm.Response, error) {
	c.calls++
	return &llm.Response{Text: `{"action": [{"done": {}}]}`}, nil
}

// recordingModels is an llm.Factory whose builders return stub clients.
type recordingModels struct {
	mu      sync.Mutex
	built   []llm.Settings
	clients []*stubClient
}

func (m *recordingModels) factory() llm.Factory {
	build := func(_ context.Context, s llm.Settings) (llm.Client, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		c := &stubClient{provider: s.Provider, model: s.Model}
		m.built = append(m.built, s)
		m.clients = append(m.clients, c)
		return c, nil
	}
	return llm.Factory{OpenAI: build, Gemini: build}
}

func (m *recordingModels) completions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.clients {
		n += c.calls
	}
	return n
}

// countingSessions fails the test scenario if it is ever used.
type countingSessions struct {
	calls int
}

func (s *countingSessions) Acquire(context.Context) (*browser.Session, error) {
	s.calls++
	return nil, errors.New("no browser in this test")
}

type deadProber struct{}

func (deadProber) Alive(context.Context, string) (*browser.VersionInfo, error) {
	return nil, errors.New("connection refused")
}

type fakeProcess struct {
	mu         sync.Mutex
	exited     bool
	terminated int
	released   int
}

func (p *fakeProcess) Pid() int { return 777 }

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated++
	p.exited = true
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
	return nil
}

func (p *fakeProcess) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
	return nil
}

func (p *fakeProcess) Wait(time.Duration) bool { return p.Exited() }

func (p *fakeProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *fakeProcess) ExitCode() int { return 0 }

type recordingLauncher struct {
	mu      sync.Mutex
	calls   []browser.LaunchOptions
	process *fakeProcess
	err     error
}

func (l *recordingLauncher) Launch(_ context.Context, opts browser.LaunchOptions) (*browser.Launched, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, opts)
	if l.err != nil {
		return nil, l.err
	}
	l.process = &fakeProcess{}
	return &browser.Launched{
		Process:    l.process,
		CDPURL:     "http://127.0.0.1:9222",
		ProfileDir: opts.ProfileDir,
		Port:       opts.Port,
	}, nil
}

// scriptedLoop emits the given events, then returns history and err.
type scriptedLoop struct {
	events   []agent.StepEvent
	history  *agent.History
	err      error
	requests []agent.Request
	// callModel makes the loop ask the model once per event, as a real loop would.
	callModel bool
}

func (l *scriptedLoop) Run(ctx context.Context, req agent.Request) (*agent.History, error) {
	l.requests = append(l.requests, req)
	for _, e := range l.events {
		if l.callModel {
			if _, err := req.Model.Complete(ctx, nil); err != nil {
				return nil, err
			}
		}
		req.Observer.OnStep(e)
	}
	return l.history, l.err
}

func agentEvent(step int, url, goal string, actions ...string) agent.StepEvent {
	var names []string
	for _, a := range actions {
		if a != "" {
			names = append(names, a)
		}
	}
	return agent.StepEvent{Step: step, URL: url, NextGoal: goal, Actions: names}
}
