package browser

import (
	"fmt"
	"strings"
)

// AttachError is returned when no live DevTools endpoint answers.
type AttachError struct {
	// Candidates are the endpoints that were probed, in preference order
	Candidates []string
	// Hint is a shell command that starts a debuggable browser
	Hint string
	Err  error
}

func (e *AttachError) Error() string {
	var b strings.Builder
	b.WriteString("BROWSER_MODE=own requires a live Chrome CDP session")
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " (probed %s)", strings.Join(e.Candidates, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, "\nStart Chrome with:\n  %s\nOr switch to BROWSER_MODE=fresh.", e.Hint)
	}
	return b.String()
}

func (e *AttachError) Unwrap() error {
	return e.Err
}

// LaunchError is returned when a fresh browser cannot be started.
type LaunchError struct {
	Executable string
	ProfileDir string
	Reason     string
	Err        error
}

func (e *LaunchError) Error() string {
	msg := "failed to launch Chrome"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
