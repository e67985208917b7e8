// Package main provides the browser-agent command: it loads the run
// configuration, drives one browser task with the agent loop, and exits with
// a status that tells scripts what went wrong.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/entrhq/browser-agent/pkg/logging"
	"github.com/entrhq/browser-agent/pkg/runner"
)

const version = "0.1.0"

// Exit statuses.
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitInterrupted = 130
)

// cliFlags holds command-line values before they become config overrides.
type cliFlags struct {
	task        string
	promptFile  string
	maxSteps    int
	headless    bool
	showBrowser bool
	noCDP       bool
	browserMode string
	cdpPort     int
	cdpURL      string
	chromePath  string
	configFile  string
	summaryFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stderr, runTask)
	stop()
	os.Exit(code)
}

// taskFunc runs one task with a resolved configuration.
type taskFunc func(ctx context.Context, cfg config.Config, f *cliFlags) error

// execute parses args, runs the task, and maps the outcome to an exit status.
func execute(ctx context.Context, args []string, stderr io.Writer, run taskFunc) int {
	cmd := newRootCmd(run)
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	cmd.SetOut(stderr)

	err := cmd.ExecuteContext(ctx)
	code := exitCode(ctx, err)
	if err != nil && code != exitInterrupted {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

func newRootCmd(run taskFunc) *cobra.Command {
	f := &cliFlags{}
	cmd := &cobra.Command{
		Use:           "browser-agent",
		Short:         "Drive a Chrome browser with an LLM agent to complete a task",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{
				File:      f.configFile,
				Overrides: overrides(cmd, f),
			})
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.task, "task", "", "task text; overrides the prompt file")
	fs.StringVar(&f.promptFile, "prompt-file", "", "file holding the task (default prompt.txt)")
	fs.IntVar(&f.maxSteps, "max-steps", 0, "maximum agent steps")
	fs.BoolVar(&f.headless, "headless", false, "run a launched browser without a window")
	fs.BoolVar(&f.showBrowser, "show-browser", false, "run a launched browser with a window")
	fs.BoolVar(&f.noCDP, "no-cdp", false, "in auto mode, skip looking for a running browser")
	fs.StringVar(&f.browserMode, "browser-mode", "", "auto, own, fresh or managed")
	fs.IntVar(&f.cdpPort, "cdp-port", 0, "remote debugging port")
	fs.StringVar(&f.cdpURL, "cdp-url", "", "DevTools endpoint of a running browser")
	fs.StringVar(&f.chromePath, "chrome-path", "", "Chrome executable to launch")
	fs.StringVar(&f.configFile, "config", "", "YAML file with setting overrides")
	fs.StringVar(&f.summaryFile, "summary", "", "write a JSON run summary to this file")
	cmd.MarkFlagsMutuallyExclusive("headless", "show-browser")

	return cmd
}

// overrides converts the flags that were actually given.
func overrides(cmd *cobra.Command, f *cliFlags) config.Overrides {
	o := config.Overrides{
		Task:        f.task,
		PromptFile:  f.promptFile,
		NoCDP:       f.noCDP,
		BrowserMode: f.browserMode,
		ChromePath:  f.chromePath,
		CDPURL:      f.cdpURL,
	}
	flags := cmd.Flags()
	if flags.Changed("max-steps") {
		o.MaxSteps = &f.maxSteps
	}
	if flags.Changed("cdp-port") {
		o.CDPPort = &f.cdpPort
	}
	switch {
	case flags.Changed("headless"):
		o.Headless = &f.headless
	case flags.Changed("show-browser"):
		headless := !f.showBrowser
		o.Headless = &headless
	}
	return o
}

func runTask(ctx context.Context, cfg config.Config, f *cliFlags) error {
	// a log file that cannot be opened leaves a console logger that has
	// already reported the problem
	log, _ := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer log.Close()

	summary, runErr := runner.Run(ctx, cfg, runner.Deps{Log: log})
	if f.summaryFile != "" {
		if err := writeSummary(f.summaryFile, summary); err != nil {
			log.Warnf("Failed to write run summary: %v", err)
		}
	}
	return runErr
}

func writeSummary(path string, s *runner.Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create summary directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// exitCode maps a run outcome to the process exit status.
func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return exitInterrupted
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return exitConfig
	}
	return exitFailure
}
