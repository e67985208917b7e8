package runner

import "fmt"

// LoopError reports that the agent loop failed or stopped without finishing
// the task.
type LoopError struct {
	Steps  int
	Reason string
	Err    error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("agent loop stopped after %d step(s): %s", e.Steps, e.Reason)
}

func (e *LoopError) Unwrap() error {
	return e.Err
}
