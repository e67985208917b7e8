package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/entrhq/browser-agent/pkg/logging"
)

// MaxFreePort is the upper bound of the free debugging port search.
const MaxFreePort = 9400

// LaunchOptions describes a fresh browser launch.
type LaunchOptions struct {
	// Executable is the configured binary; empty means auto-detect.
	Executable        string
	ProfileDir        string
	ProfileDirectory  string
	Port              int
	Headless          bool
	DefaultExtensions bool
	StartTimeout      time.Duration
}

// Launched describes a browser started by a Launcher.
type Launched struct {
	Process    Process
	CDPURL     string
	Info       *VersionInfo
	ProfileDir string
	Port       int
	Executable string
}

// Launcher starts a browser and waits for its DevTools endpoint.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (*Launched, error)
}

// ChromeLauncher launches a local Chrome or Chromium process.
type ChromeLauncher struct {
	Prober Prober
	Start  StartFunc
	// PortInUse reports whether a local port already has a listener.
	PortInUse func(port int) bool
	// Now is used to name the isolated retry profile.
	Now func() time.Time
	// PollInterval is the initial readiness poll interval.
	PollInterval time.Duration
	Log          *logging.Logger
}

// NewChromeLauncher returns a launcher that runs real processes.
func NewChromeLauncher(prober Prober, log *logging.Logger) *ChromeLauncher {
	if log == nil {
		log = logging.Nop()
	}
	return &ChromeLauncher{
		Prober:       prober,
		Start:        StartProcess,
		PortInUse:    portInUse,
		Now:          time.Now,
		PollInterval: 250 * time.Millisecond,
		Log:          log,
	}
}

// Launch starts Chrome with opts.ProfileDir. If that fails, it retries once
// with an isolated sibling directory named <dir>-run-<unix>.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (*Launched, error) {
	executable, err := FindExecutable(opts.Executable)
	if err != nil {
		return nil, &LaunchError{Reason: "executable not available", Err: err}
	}

	base, err := expandPath(opts.ProfileDir)
	if err != nil {
		return nil, &LaunchError{Executable: executable, ProfileDir: opts.ProfileDir, Err: err}
	}

	launched, firstErr := l.launchWithProfile(ctx, executable, base, opts)
	if firstErr == nil {
		return launched, nil
	}
	if ctx.Err() != nil {
		return nil, &LaunchError{Executable: executable, ProfileDir: base, Err: firstErr}
	}

	retryDir := filepath.Join(filepath.Dir(base), fmt.Sprintf("%s-run-%d", filepath.Base(base), l.Now().Unix()))
	l.Log.Warnf("Fresh Chrome failed with profile %s (%v). Retrying with isolated profile %s.", base, firstErr, retryDir)

	launched, err = l.launchWithProfile(ctx, executable, retryDir, opts)
	if err != nil {
		return nil, &LaunchError{
			Executable: executable,
			ProfileDir: retryDir,
			Err:        errors.Join(firstErr, err),
		}
	}
	return launched, nil
}

func (l *ChromeLauncher) launchWithProfile(ctx context.Context, executable, dir string, opts LaunchOptions) (*Launched, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	port, err := l.choosePort(opts.Port)
	if err != nil {
		return nil, err
	}

	proc, err := l.Start(executable, ChromeArgs(port, dir, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", executable, err)
	}

	cdpURL := "http://127.0.0.1:" + strconv.Itoa(port)
	info, err := l.waitReady(ctx, proc, cdpURL, opts.StartTimeout)
	if err != nil {
		_ = proc.Terminate()
		if !proc.Wait(DefaultStopTimeout) {
			_ = proc.Kill()
		}
		return nil, err
	}

	l.Log.Infof("Started fresh Chrome on %s (profile: %s)", cdpURL, dir)
	return &Launched{
		Process:    proc,
		CDPURL:     cdpURL,
		Info:       info,
		ProfileDir: dir,
		Port:       port,
		Executable: executable,
	}, nil
}

// waitReady polls the DevTools endpoint with exponential backoff until it
// answers, the process exits, or timeout passes.
func (l *ChromeLauncher) waitReady(ctx context.Context, proc Process, cdpURL string, timeout time.Duration) (*VersionInfo, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.PollInterval
	b.MaxInterval = 2 * time.Second

	op := func() (*VersionInfo, error) {
		if proc.Exited() {
			return nil, backoff.Permanent(fmt.Errorf("chrome exited early with code %d before CDP became available", proc.ExitCode()))
		}
		return l.Prober.Alive(ctx, cdpURL)
	}

	info, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Err
		}
		if proc.Exited() {
			return nil, fmt.Errorf("chrome exited early with code %d before CDP became available", proc.ExitCode())
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fresh Chrome did not expose CDP within %s: %w", timeout, err)
	}
	return info, nil
}

func (l *ChromeLauncher) choosePort(desired int) (int, error) {
	if !l.PortInUse(desired) {
		return desired, nil
	}
	for port := desired + 1; port <= MaxFreePort; port++ {
		if !l.PortInUse(port) {
			l.Log.Infof("CDP port %d is busy; using free port %d for fresh Chrome.", desired, port)
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free local port found in range %d-%d", desired+1, MaxFreePort)
}

// ChromeArgs builds the command line for a debuggable Chrome.
func ChromeArgs(port int, profileDir string, opts LaunchOptions) []string {
	profile := opts.ProfileDirectory
	if profile == "" {
		profile = "Default"
	}
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--user-data-dir=" + profileDir,
		"--profile-directory=" + profile,
		"--no-first-run",
		"--no-default-browser-check",
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	if !opts.DefaultExtensions {
		args = append(args, "--disable-extensions")
	}
	return args
}

func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 300*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
