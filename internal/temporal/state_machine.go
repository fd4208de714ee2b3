// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package temporal

import (
	"time"

	"go.temporal.io/sdk/log"
)

// WorkflowState is one state of a sprint's LoopRunner state machine:
// INIT → LOOP3_RUN → LOOP3_GATE → LOOP2_RUN → LOOP2_GATE → DONE, with
// retry edges back into LOOP3_RUN and three distinct terminal failure
// states.
type WorkflowState string

const (
	StateInit      WorkflowState = "INIT"
	StateLoop3Run  WorkflowState = "LOOP3_RUN"
	StateLoop3Gate WorkflowState = "LOOP3_GATE"
	StateLoop2Run  WorkflowState = "LOOP2_RUN"
	StateLoop2Gate WorkflowState = "LOOP2_GATE"
	StateDone      WorkflowState = "DONE"
	StateFailL2    WorkflowState = "FAIL_L2"
	StateFailL3    WorkflowState = "FAIL_L3"
	StateAborted   WorkflowState = "ABORTED"
)

// GateResult carries one gate evaluation's outcome into the state machine,
// so transition logging can report what produced the decision.
type GateResult struct {
	GateName string
	Passed   bool
	Min      float64
	Mean     float64
	Rate     float64
}

// StateTransition is one row of the state machine's transition table: from
// a given state, on a given gate outcome, move to a given state.
type StateTransition struct {
	FromState   WorkflowState
	GatePassed  bool
	ToState     WorkflowState
	Description string
}

// TransitionResult reports what Transition decided: the new state, whether
// the caller should attempt another iteration, and whether the sprint has
// reached a terminal state.
type TransitionResult struct {
	NextState     WorkflowState
	ShouldRetry   bool
	TerminalState bool
	Reason        string
}

// StateMachine drives one sprint's LOOP3/LOOP2 state machine. Iteration-cap
// bookkeeping lives in RetryBudget, consulted by the caller before calling
// Transition with exhausted=true; the state machine itself only knows legal
// state-to-state edges, generalized from an earlier StateMachine/
// StateTransition shape built around an eight-gate TCR sequence,
// substituting this package's five-state CFN sequence for that one.
type StateMachine struct {
	logger       log.Logger
	currentState WorkflowState
}

// NewStateMachine constructs a StateMachine at StateInit.
func NewStateMachine(logger log.Logger) *StateMachine {
	return &StateMachine{logger: logger, currentState: StateInit}
}

// CurrentState returns the state machine's current state.
func (sm *StateMachine) CurrentState() WorkflowState {
	return sm.currentState
}

// IsTerminal reports whether the current state is one of DONE, FAIL_L2,
// FAIL_L3, or ABORTED.
func (sm *StateMachine) IsTerminal() bool {
	switch sm.currentState {
	case StateDone, StateFailL2, StateFailL3, StateAborted:
		return true
	default:
		return false
	}
}

func (sm *StateMachine) transitions() []StateTransition {
	return []StateTransition{
		{StateInit, true, StateLoop3Run, "starting sprint execution"},

		{StateLoop3Run, true, StateLoop3Gate, "primary swarm results collected"},

		{StateLoop3Gate, true, StateLoop2Run, "confidence gate passed, starting validator swarm"},
		{StateLoop3Gate, false, StateLoop3Run, "confidence gate failed, retrying primary swarm"},

		{StateLoop2Run, true, StateLoop2Gate, "validator swarm votes collected"},

		{StateLoop2Gate, true, StateDone, "consensus gate passed"},
		{StateLoop2Gate, false, StateLoop3Run, "consensus gate failed, re-entering loop 3 with feedback"},
	}
}

// Advance moves the state machine forward unconditionally (used for the
// INIT→LOOP3_RUN and *_RUN→*_GATE edges, which have no gate outcome to
// branch on).
func (sm *StateMachine) Advance(to WorkflowState, reason string) TransitionResult {
	sm.logger.Info("state transition", "from", sm.currentState, "to", to, "reason", reason)
	sm.currentState = to
	return TransitionResult{NextState: to, TerminalState: sm.IsTerminal(), Reason: reason}
}

// Transition evaluates a gate outcome against the transition table. When
// exhausted is true and the gate failed, the caller has already determined
// the loop's iteration budget is spent; Transition then moves directly to
// the matching terminal failure state (FAIL_L3 from LOOP3_GATE, FAIL_L2 from
// LOOP2_GATE) instead of the normal retry edge.
func (sm *StateMachine) Transition(gatePassed bool, exhausted bool, result *GateResult) TransitionResult {
	if !gatePassed && exhausted {
		var failState WorkflowState
		switch sm.currentState {
		case StateLoop3Gate:
			failState = StateFailL3
		case StateLoop2Gate:
			failState = StateFailL2
		default:
			failState = StateFailL3
		}
		sm.logger.Warn("iteration cap exhausted, sprint fails",
			"from", sm.currentState, "to", failState, "gate", gateName(result))
		sm.currentState = failState
		return TransitionResult{NextState: failState, TerminalState: true, Reason: "iteration cap exhausted"}
	}

	for _, t := range sm.transitions() {
		if t.FromState == sm.currentState && t.GatePassed == gatePassed {
			sm.logger.Info("state transition",
				"from", t.FromState, "to", t.ToState, "gatePassed", gatePassed,
				"gate", gateName(result), "reason", t.Description)
			sm.currentState = t.ToState
			return TransitionResult{
				NextState:     t.ToState,
				ShouldRetry:   !gatePassed,
				TerminalState: sm.IsTerminal(),
				Reason:        t.Description,
			}
		}
	}

	// No matching row: current state has no gate-branching edge defined
	// for this outcome. Treat as a no-op rather than silently advancing.
	return TransitionResult{NextState: sm.currentState, Reason: "no transition defined"}
}

// Abort forces the state machine into ABORTED, used when the global timeout
// fires regardless of where the sprint currently sits in the loop.
func (sm *StateMachine) Abort(reason string) TransitionResult {
	sm.logger.Warn("sprint aborted", "from", sm.currentState, "reason", reason)
	sm.currentState = StateAborted
	return TransitionResult{NextState: StateAborted, TerminalState: true, Reason: reason}
}

func gateName(r *GateResult) string {
	if r == nil {
		return ""
	}
	return r.GateName
}

// StateSnapshot captures a point-in-time transition for durable logging or
// LoopState history.
type StateSnapshot struct {
	Timestamp  time.Time
	State      WorkflowState
	GateResult *GateResult
	Transition TransitionResult
}
