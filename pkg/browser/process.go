package browser

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"
)

// Process is a browser process started by this program.
type Process interface {
	Pid() int
	// Terminate asks the process to exit.
	Terminate() error
	// Kill stops the process immediately.
	Kill() error
	// Release gives up ownership; the process keeps running.
	Release() error
	// Wait blocks until the process exits or timeout passes. It reports
	// whether the process exited.
	Wait(timeout time.Duration) bool
	// Exited reports whether the process has already exited.
	Exited() bool
	// ExitCode is valid once Exited is true.
	ExitCode() int
}

// StartFunc starts an executable with args.
type StartFunc func(name string, args []string) (Process, error)

// StartProcess runs name with stdout and stderr discarded. A goroutine reaps
// the process when it exits.
func StartProcess(name string, args []string) (Process, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Terminate() error {
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	err := p.cmd.Process.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Release leaves the OS process untouched; the reaper goroutine still owns
// the handle.
func (p *execProcess) Release() error {
	return nil
}

func (p *execProcess) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

func (p *execProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) ExitCode() int {
	if !p.Exited() || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}
