// Package browser obtains the Chrome session an agent run drives: it attaches
// to a running browser over the DevTools protocol, launches a fresh one with
// an isolated profile, or defers to the agent loop.
package browser

import (
	"context"
	"fmt"

	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/entrhq/browser-agent/pkg/logging"
)

// Factory maps a configured browser mode to a Strategy.
type Factory struct {
	cfg      config.Config
	prober   Prober
	launcher Launcher
	log      *logging.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithProber replaces the DevTools endpoint prober.
func WithProber(p Prober) Option {
	return func(f *Factory) {
		f.prober = p
	}
}

// WithLauncher replaces the browser launcher.
func WithLauncher(l Launcher) Option {
	return func(f *Factory) {
		f.launcher = l
	}
}

// WithLogger sets the logger used by strategies and sessions.
func WithLogger(l *logging.Logger) Option {
	return func(f *Factory) {
		f.log = l
	}
}

// NewFactory returns a Factory for cfg.
func NewFactory(cfg config.Config, opts ...Option) *Factory {
	f := &Factory{cfg: cfg}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logging.Nop()
	}
	if f.prober == nil {
		f.prober = NewHTTPProber()
	}
	if f.launcher == nil {
		f.launcher = NewChromeLauncher(f.prober, f.log)
	}
	return f
}

// Strategy returns the strategy for the configured mode.
func (f *Factory) Strategy() (Strategy, error) {
	mode, err := config.ParseBrowserMode(string(f.cfg.BrowserMode))
	if err != nil {
		return nil, err
	}

	switch mode {
	case config.ModeOwn:
		return f.attach(config.ModeOwn), nil
	case config.ModeFresh:
		return f.launch(config.ModeFresh), nil
	case config.ModeManaged:
		return &ManagedStrategy{Log: f.log}, nil
	case config.ModeAuto:
		fb := &FallbackStrategy{Secondary: f.launch(config.ModeAuto), Log: f.log}
		if f.cfg.ConnectExistingCDP {
			fb.Primary = f.attach(config.ModeAuto)
		}
		return fb, nil
	}
	return nil, fmt.Errorf("unsupported browser mode %q", mode)
}

// Acquire resolves the strategy and runs it.
func (f *Factory) Acquire(ctx context.Context) (*Session, error) {
	s, err := f.Strategy()
	if err != nil {
		return nil, err
	}

	sess, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case sess.Managed():
		f.log.Infof("Using managed launch mode.")
	case sess.Mode == config.ModeOwn:
		f.log.Infof("Using your existing Chrome CDP endpoint: %s", sess.CDPURL)
	}
	return sess, nil
}

func (f *Factory) attach(requested config.BrowserMode) *AttachStrategy {
	return &AttachStrategy{
		Prober:     f.prober,
		Candidates: Candidates(f.cfg.CDPURL, f.cfg.CDPPort),
		Port:       f.cfg.CDPPort,
		Requested:  requested,
		Log:        f.log,
	}
}

func (f *Factory) launch(requested config.BrowserMode) *LaunchStrategy {
	return &LaunchStrategy{
		Launcher: f.launcher,
		Options: LaunchOptions{
			Executable:        f.cfg.ChromeExecutablePath,
			ProfileDir:        f.cfg.FreshUserDataDir,
			ProfileDirectory:  f.cfg.ProfileDirectory,
			Port:              f.cfg.CDPPort,
			Headless:          f.cfg.Headless,
			DefaultExtensions: f.cfg.EnableDefaultExtensions,
			StartTimeout:      f.cfg.FreshStartTimeout,
		},
		Requested: requested,
		Log:       f.log,
	}
}
