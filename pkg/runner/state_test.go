package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitions(t *testing.T) {
	legal := [][2]State{
		{StateIdle, StateModelReady},
		{StateModelReady, StateSessionReady},
		{StateSessionReady, StateRunning},
		{StateRunning, StateCompleted},
		{StateRunning, StateFailed},
		{StateCompleted, StateTornDown},
		{StateCompleted, StateDetached},
		{StateFailed, StateTornDown},
		{StateIdle, StateFailed},
	}
	for _, tr := range legal {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	illegal := [][2]State{
		{StateIdle, StateRunning},
		{StateModelReady, StateRunning},
		{StateIdle, StateSessionReady},
		{StateRunning, StateTornDown},
		{StateTornDown, StateIdle},
		{StateDetached, StateTornDown},
	}
	for _, tr := range illegal {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestRunner_IllegalTransition(t *testing.T) {
	r := New(baseConfig(), Deps{})
	err := r.transition(StateRunning)

	var trErr *TransitionError
	assert.ErrorAs(t, err, &trErr)
	assert.Equal(t, "illegal run state transition idle -> running", err.Error())
	assert.Equal(t, StateIdle, r.State())
}

func TestFormatStep(t *testing.T) {
	assert.Equal(t, "Step 3 | url=https://a.com | actions=click | next_goal=open menu | elapsed=0s",
		FormatStep(agentEvent(3, "https://a.com", "open menu", "click"), false))
	assert.Equal(t, "Step 1 | url=- | actions=- | elapsed=0s | tags=-",
		FormatStep(agentEvent(1, "", " ", ""), true))
}
