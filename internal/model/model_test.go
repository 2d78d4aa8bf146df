package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStrings(t *testing.T) {
	cases := []struct {
		ev   TaskEvent
		want string
	}{
		{Started{ID: "a", Command: []string{"echo", "hi"}}, "[a] started: echo hi (cwd=.)"},
		{Started{ID: "a", Command: []string{"ls"}, WorkDir: "/tmp"}, "[a] started: ls (cwd=/tmp)"},
		{Stdout{ID: "a", Line: "out"}, "[a] stdout: out"},
		{Stderr{ID: "a", Line: "err"}, "[a] stderr: err"},
		{Finished{ID: "a", ExitCode: 0, Duration: 1500 * time.Millisecond}, "[a] finished: exit=0 duration=1.500s"},
		{Failed{ID: "a", ExitCode: 2, Duration: 10 * time.Millisecond}, "[a] failed: exit=2 duration=0.010s"},
		{Canceled{ID: "a", Duration: time.Second}, "[a] canceled: duration=1.000s"},
		{Timeout{ID: "a", Duration: 200 * time.Millisecond}, "[a] timeout: duration=0.200s"},
		{Retrying{ID: "a", Attempt: 1, Delay: 0}, "[a] retrying: attempt=1 delay=0.000s"},
		{InternalError{ID: "a", Message: "queue full"}, "[a] internal error: queue full"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.ev.String())
		assert.Equal(t, "a", tc.ev.TaskID())
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, IsTerminal(Finished{}))
	assert.True(t, IsTerminal(Timeout{}))
	assert.False(t, IsTerminal(Retrying{}))
	assert.False(t, IsTerminal(InternalError{}))

	assert.Equal(t, StateCompleted, StateOf(Finished{}))
	assert.Equal(t, StateCanceled, StateOf(Canceled{}))
	assert.Equal(t, "", StateOf(Stdout{}))

	assert.True(t, Outcome{State: StateTimeout}.IsDead())
	assert.True(t, Outcome{State: StateAborted}.IsDead())
	assert.False(t, Outcome{State: StateCanceled}.IsDead())
	assert.False(t, Outcome{State: StateInterrupted}.IsDead())
}

func TestDescriptorRoundTrip(t *testing.T) {
	desc := TaskDescriptor{ID: "a", Command: []string{"true"}, Timeout: 2500 * time.Millisecond}.Normalize()
	data, err := json.Marshal(desc)
	require.NoError(t, err)

	var back TaskDescriptor
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, desc.Timeout, back.Normalize().Timeout)
}

func TestCloneIsDeep(t *testing.T) {
	desc := TaskDescriptor{Command: []string{"a"}, Env: map[string]string{"K": "V"}}
	c := desc.Clone()
	c.Command[0] = "b"
	c.Env["K"] = "W"
	assert.Equal(t, "a", desc.Command[0])
	assert.Equal(t, "V", desc.Env["K"])
}
