package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// fakeProber answers from a fixed set of live endpoints.
type fakeProber struct {
	mu    sync.Mutex
	live  map[string]*VersionInfo
	calls []string
}

func newFakeProber(live ...string) *fakeProber {
	p := &fakeProber{live: make(map[string]*VersionInfo)}
	for _, u := range live {
		p.live[u] = &VersionInfo{Browser: "Chrome/130.0", WebSocketDebuggerURL: "ws://" + u[len("http://"):] + "/devtools/browser/abc"}
	}
	return p
}

func (p *fakeProber) Alive(_ context.Context, baseURL string) (*VersionInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, baseURL)
	if info, ok := p.live[baseURL]; ok {
		return info, nil
	}
	return nil, errors.New("connection refused")
}

func (p *fakeProber) setLive(baseURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live[baseURL] = &VersionInfo{Browser: "Chrome/130.0"}
}

// mockLauncher records Launch calls.
type mockLauncher struct {
	mock.Mock
}

func (m *mockLauncher) Launch(ctx context.Context, opts LaunchOptions) (*Launched, error) {
	args := m.Called(ctx, opts)
	launched, _ := args.Get(0).(*Launched)
	return launched, args.Error(1)
}

// fakeProcess is a controllable Process.
type fakeProcess struct {
	mu         sync.Mutex
	pid        int
	exited     bool
	exitCode   int
	ignoreTerm bool
	terminated int
	killed     int
	released   int
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated++
	if !p.ignoreTerm {
		p.exited = true
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed++
	p.exited = true
	return nil
}

func (p *fakeProcess) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
	return nil
}

func (p *fakeProcess) Wait(time.Duration) bool {
	return p.Exited()
}

func (p *fakeProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *fakeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *fakeProcess) exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
	p.exitCode = code
}
