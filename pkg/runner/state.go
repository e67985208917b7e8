package runner

import (
	"fmt"
	"slices"
)

// State is the lifecycle state of a run.
type State string

const (
	StateIdle         State = "idle"
	StateModelReady   State = "model_ready"
	StateSessionReady State = "session_ready"
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateTornDown     State = "torn_down"
	StateDetached     State = "detached"
)

var transitions = map[State][]State{
	StateIdle:         {StateModelReady, StateFailed},
	StateModelReady:   {StateSessionReady, StateFailed},
	StateSessionReady: {StateRunning, StateFailed},
	StateRunning:      {StateCompleted, StateFailed},
	StateCompleted:    {StateTornDown, StateDetached},
	StateFailed:       {StateTornDown, StateDetached},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// TransitionError reports an illegal state change.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal run state transition %s -> %s", e.From, e.To)
}
