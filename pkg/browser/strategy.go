package browser

import (
	"context"
	"errors"

	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/entrhq/browser-agent/pkg/logging"
)

// Strategy acquires a browser session in one particular way.
type Strategy interface {
	Mode() config.BrowserMode
	Acquire(ctx context.Context) (*Session, error)
}

// AttachStrategy connects to an already running browser. It never launches.
type AttachStrategy struct {
	Prober     Prober
	Candidates []string
	Port       int
	Requested  config.BrowserMode
	Log        *logging.Logger
}

func (s *AttachStrategy) Mode() config.BrowserMode { return config.ModeOwn }

func (s *AttachStrategy) Acquire(ctx context.Context) (*Session, error) {
	if len(s.Candidates) == 0 {
		return nil, &AttachError{Hint: ManualStartHint(s.Port), Err: errors.New("no CDP endpoint configured")}
	}

	ep, err := FindEndpoint(ctx, s.Prober, s.Candidates)
	if err != nil {
		return nil, &AttachError{Candidates: s.Candidates, Hint: ManualStartHint(s.Port), Err: err}
	}

	sess := newSession(requestedOr(s.Requested, config.ModeOwn), config.ModeOwn, s.Log)
	sess.CDPURL = ep.URL
	if ep.Info != nil {
		sess.WebSocketURL = ep.Info.WebSocketDebuggerURL
		sess.BrowserName = ep.Info.Browser
	}
	return sess, nil
}

// LaunchStrategy always starts a new browser with a dedicated profile.
type LaunchStrategy struct {
	Launcher  Launcher
	Options   LaunchOptions
	Requested config.BrowserMode
	Log       *logging.Logger
}

func (s *LaunchStrategy) Mode() config.BrowserMode { return config.ModeFresh }

func (s *LaunchStrategy) Acquire(ctx context.Context) (*Session, error) {
	launched, err := s.Launcher.Launch(ctx, s.Options)
	if err != nil {
		var launchErr *LaunchError
		if errors.As(err, &launchErr) {
			return nil, err
		}
		return nil, &LaunchError{ProfileDir: s.Options.ProfileDir, Err: err}
	}

	sess := newSession(requestedOr(s.Requested, config.ModeFresh), config.ModeFresh, s.Log)
	sess.CDPURL = launched.CDPURL
	sess.ProfileDir = launched.ProfileDir
	sess.Port = launched.Port
	sess.Executable = launched.Executable
	sess.Process = launched.Process
	if launched.Info != nil {
		sess.WebSocketURL = launched.Info.WebSocketDebuggerURL
		sess.BrowserName = launched.Info.Browser
	}
	return sess, nil
}

// ManagedStrategy leaves the browser to the agent loop. The session it
// returns has no endpoint and no process.
type ManagedStrategy struct {
	Log *logging.Logger
}

func (s *ManagedStrategy) Mode() config.BrowserMode { return config.ModeManaged }

func (s *ManagedStrategy) Acquire(context.Context) (*Session, error) {
	return newSession(config.ModeManaged, config.ModeManaged, s.Log), nil
}

// FallbackStrategy tries Primary once and, if it fails, Secondary once.
type FallbackStrategy struct {
	Primary   Strategy
	Secondary Strategy
	Log       *logging.Logger
}

func (s *FallbackStrategy) Mode() config.BrowserMode { return config.ModeAuto }

func (s *FallbackStrategy) Acquire(ctx context.Context) (*Session, error) {
	log := s.Log
	if log == nil {
		log = logging.Nop()
	}

	if s.Primary != nil {
		sess, err := s.Primary.Acquire(ctx)
		if err == nil {
			log.Infof("Browser mode auto -> %s (existing CDP found).", sess.Mode)
			sess.Requested = config.ModeAuto
			return sess, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debugf("Primary browser strategy failed: %v", err)
	}

	log.Infof("Browser mode auto -> %s (no existing CDP).", s.Secondary.Mode())
	sess, err := s.Secondary.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	sess.Requested = config.ModeAuto
	return sess, nil
}

func requestedOr(requested, fallback config.BrowserMode) config.BrowserMode {
	if requested == "" {
		return fallback
	}
	return requested
}
