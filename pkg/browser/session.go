package browser

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/entrhq/browser-agent/pkg/logging"
)

// DefaultStopTimeout is how long Close waits after asking Chrome to exit
// before killing it.
const DefaultStopTimeout = 5 * time.Second

// State is the lifecycle state of a Session.
type State string

const (
	StateActive   State = "active"
	StateTornDown State = "torn_down"
	StateDetached State = "detached"
)

// Session is the browser acquired for one run.
type Session struct {
	// Requested is the configured mode; Mode is the one that actually ran.
	Requested config.BrowserMode
	Mode      config.BrowserMode

	// CDPURL is the DevTools base URL, empty for managed sessions.
	CDPURL       string
	WebSocketURL string
	BrowserName  string

	// Launch details, set only when this program started the browser.
	ProfileDir string
	Port       int
	Executable string
	Process    Process

	StopTimeout time.Duration

	log   *logging.Logger
	mu    sync.Mutex
	state State
}

func newSession(requested, mode config.BrowserMode, log *logging.Logger) *Session {
	if log == nil {
		log = logging.Nop()
	}
	return &Session{
		Requested:   requested,
		Mode:        mode,
		StopTimeout: DefaultStopTimeout,
		log:         log,
		state:       StateActive,
	}
}

// Managed reports whether the agent loop owns the browser lifecycle.
func (s *Session) Managed() bool {
	return s.Mode == config.ModeManaged
}

// Launched reports whether this program started the browser process.
func (s *Session) Launched() bool {
	return s.Process != nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close ends the session. With keepAlive a launched browser is released and
// left running; otherwise it is terminated, then killed if it has not exited
// within StopTimeout. Attached and managed sessions own no process. A managed
// browser is closed by the agent loop, so keepAlive cannot keep it and the
// session ends torn down. Close is idempotent.
func (s *Session) Close(keepAlive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil
	}

	if keepAlive && s.Managed() {
		s.log.Warnf("KEEP_ALIVE has no effect in managed mode; the browser closed with the agent loop.")
		keepAlive = false
	}
	if keepAlive {
		s.state = StateDetached
		if s.Process == nil {
			return nil
		}
		s.log.Infof("Leaving Chrome running (pid %d, keep-alive).", s.Process.Pid())
		return s.Process.Release()
	}

	s.state = StateTornDown
	if s.Process == nil || s.Process.Exited() {
		return nil
	}

	if err := s.Process.Terminate(); err == nil && s.Process.Wait(s.StopTimeout) {
		s.log.Infof("Stopped fresh Chrome process.")
		return nil
	}

	if err := s.Process.Kill(); err != nil {
		return fmt.Errorf("failed to close fresh Chrome process cleanly: %w", err)
	}
	s.Process.Wait(s.StopTimeout)
	s.log.Infof("Killed fresh Chrome process.")
	return nil
}
