// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

func TestNewStateMachine_StartsAtInit(t *testing.T) {
	sm := NewStateMachine(noopLogger{})
	assert.Equal(t, StateInit, sm.CurrentState())
	assert.False(t, sm.IsTerminal())
}

func TestStateMachine_HappyPath(t *testing.T) {
	sm := NewStateMachine(noopLogger{})

	sm.Advance(StateLoop3Run, "start")
	sm.Advance(StateLoop3Gate, "results collected")

	result := sm.Transition(true, false, &GateResult{GateName: "confidence_gate", Passed: true})
	require.Equal(t, StateLoop2Run, result.NextState)

	sm.Advance(StateLoop2Gate, "votes collected")
	result = sm.Transition(true, false, &GateResult{GateName: "consensus_gate", Passed: true})

	assert.Equal(t, StateDone, result.NextState)
	assert.True(t, result.TerminalState)
	assert.True(t, sm.IsTerminal())
}

func TestStateMachine_ConfidenceGateFailureRetriesLoop3(t *testing.T) {
	sm := NewStateMachine(noopLogger{})
	sm.Advance(StateLoop3Run, "start")
	sm.Advance(StateLoop3Gate, "results collected")

	result := sm.Transition(false, false, &GateResult{GateName: "confidence_gate", Passed: false})
	assert.Equal(t, StateLoop3Run, result.NextState)
	assert.True(t, result.ShouldRetry)
	assert.False(t, result.TerminalState)
}

func TestStateMachine_ConfidenceGateExhaustedFailsTerminally(t *testing.T) {
	sm := NewStateMachine(noopLogger{})
	sm.Advance(StateLoop3Run, "start")
	sm.Advance(StateLoop3Gate, "results collected")

	result := sm.Transition(false, true, &GateResult{GateName: "confidence_gate", Passed: false})
	assert.Equal(t, StateFailL3, result.NextState)
	assert.True(t, result.TerminalState)
}

func TestStateMachine_ConsensusGateFailureReentersLoop3(t *testing.T) {
	sm := NewStateMachine(noopLogger{})
	sm.Advance(StateLoop3Run, "start")
	sm.Advance(StateLoop3Gate, "results collected")
	sm.Transition(true, false, &GateResult{Passed: true})
	sm.Advance(StateLoop2Gate, "votes collected")

	result := sm.Transition(false, false, &GateResult{GateName: "consensus_gate", Passed: false})
	assert.Equal(t, StateLoop3Run, result.NextState)
	assert.False(t, result.TerminalState)
}

func TestStateMachine_ConsensusGateExhaustedFailsTerminally(t *testing.T) {
	sm := NewStateMachine(noopLogger{})
	sm.Advance(StateLoop3Run, "start")
	sm.Advance(StateLoop3Gate, "results collected")
	sm.Transition(true, false, &GateResult{Passed: true})
	sm.Advance(StateLoop2Gate, "votes collected")

	result := sm.Transition(false, true, &GateResult{GateName: "consensus_gate", Passed: false})
	assert.Equal(t, StateFailL2, result.NextState)
	assert.True(t, result.TerminalState)
}

func TestStateMachine_AbortForcesTerminalRegardlessOfState(t *testing.T) {
	sm := NewStateMachine(noopLogger{})
	sm.Advance(StateLoop3Run, "start")

	result := sm.Abort("global timeout exceeded")
	assert.Equal(t, StateAborted, result.NextState)
	assert.True(t, result.TerminalState)
	assert.True(t, sm.IsTerminal())
}
