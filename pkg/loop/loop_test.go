// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package loop

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"cfnloop/internal/temporal"
	"cfnloop/pkg/cfntypes"
)

func testPolicy() cfntypes.Policy {
	p := cfntypes.DefaultPolicy()
	p.PrimarySwarm.MaxAgents = 2
	p.ValidatorSwarm.MaxAgents = 3
	p.Loop3MaxIterations = 3
	p.Loop2MaxIterations = 3
	p.AutonomousExtension = false
	return p
}

func twoTaskSprint() cfntypes.Sprint {
	return cfntypes.Sprint{
		ID: "sprint-1",
		Tasks: []cfntypes.Task{
			{ID: "task-1", Description: "implement the thing"},
			{ID: "task-2", Description: "write the tests"},
		},
	}
}

func oneTaskSprint() cfntypes.Sprint {
	return cfntypes.Sprint{
		ID:    "sprint-1",
		Tasks: []cfntypes.Task{{ID: "task-1", Description: "implement the thing"}},
	}
}

func TestSprintWorkflow_HappyPath(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	acts := &Activities{}

	env.OnActivity(acts.ExecuteAgentTask, mock.Anything, mock.Anything).
		Return(cfntypes.AgentResult{Confidence: 0.85, HasConfidence: true}, nil)
	env.OnActivity(acts.ExecuteValidatorTask, mock.Anything, mock.Anything).
		Return(cfntypes.ValidatorVote{Decision: cfntypes.DecisionApprove, Confidence: 0.90}, nil)

	input := SprintInput{EpicID: "epic-1", PhaseID: "phase-1", Sprint: twoTaskSprint(), Policy: testPolicy()}
	env.ExecuteWorkflow(SprintWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SprintResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, temporal.StateDone, result.FinalState)
	require.Equal(t, 1, result.Loop3Iterations)
	require.Equal(t, 1, result.Loop2Iterations)
}

func TestSprintWorkflow_ConfidenceGateRetriesThenPasses(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	acts := &Activities{}

	env.OnActivity(acts.ExecuteAgentTask, mock.Anything, mock.Anything).
		Return(cfntypes.AgentResult{Confidence: 0.40, HasConfidence: true}, nil).Once()
	env.OnActivity(acts.ExecuteAgentTask, mock.Anything, mock.Anything).
		Return(cfntypes.AgentResult{Confidence: 0.85, HasConfidence: true}, nil)
	env.OnActivity(acts.ExecuteValidatorTask, mock.Anything, mock.Anything).
		Return(cfntypes.ValidatorVote{Decision: cfntypes.DecisionApprove, Confidence: 0.90}, nil)

	input := SprintInput{EpicID: "epic-1", PhaseID: "phase-1", Sprint: oneTaskSprint(), Policy: testPolicy()}
	env.ExecuteWorkflow(SprintWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SprintResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, temporal.StateDone, result.FinalState)
	require.Equal(t, 2, result.Loop3Iterations)
	require.Len(t, result.ConfidenceHistory, 2)
	require.False(t, result.ConfidenceHistory[0] >= 0.80)
	require.True(t, result.ConfidenceHistory[1] >= 0.80)
}

func TestSprintWorkflow_ConsensusRejectThenApprove(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	acts := &Activities{}

	env.OnActivity(acts.ExecuteAgentTask, mock.Anything, mock.Anything).
		Return(cfntypes.AgentResult{Confidence: 0.85, HasConfidence: true}, nil)
	env.OnActivity(acts.ExecuteValidatorTask, mock.Anything, mock.Anything).
		Return(cfntypes.ValidatorVote{Decision: cfntypes.DecisionReject, Confidence: 0.40, Reasons: []string{"missing tests"}}, nil).Once()
	env.OnActivity(acts.ExecuteValidatorTask, mock.Anything, mock.Anything).
		Return(cfntypes.ValidatorVote{Decision: cfntypes.DecisionApprove, Confidence: 0.90}, nil)

	input := SprintInput{EpicID: "epic-1", PhaseID: "phase-1", Sprint: oneTaskSprint(), Policy: testPolicy()}
	env.ExecuteWorkflow(SprintWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SprintResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, temporal.StateDone, result.FinalState)
	require.Equal(t, 1, result.Loop3Iterations, "re-entering loop 3 after a consensus reject restarts the loop 3 counter")
	require.Equal(t, 2, result.Loop2Iterations)
}

func TestSprintWorkflow_IterationCapExhaustedFailsL3(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	acts := &Activities{}

	env.OnActivity(acts.ExecuteAgentTask, mock.Anything, mock.Anything).
		Return(cfntypes.AgentResult{Confidence: 0.10, HasConfidence: true}, nil)

	policy := testPolicy()
	policy.Loop3MaxIterations = 2
	input := SprintInput{EpicID: "epic-1", PhaseID: "phase-1", Sprint: oneTaskSprint(), Policy: policy}
	env.ExecuteWorkflow(SprintWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SprintResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, temporal.StateFailL3, result.FinalState)
	require.Equal(t, 2, result.Loop3Iterations)
}

func TestSprintWorkflow_MissingConfidenceCountsAsZero(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	acts := &Activities{}

	env.OnActivity(acts.ExecuteAgentTask, mock.Anything, mock.Anything).
		Return(cfntypes.AgentResult{HasConfidence: false}, nil)

	policy := testPolicy()
	policy.Loop3MaxIterations = 1
	input := SprintInput{EpicID: "epic-1", PhaseID: "phase-1", Sprint: oneTaskSprint(), Policy: policy}
	env.ExecuteWorkflow(SprintWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SprintResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, temporal.StateFailL3, result.FinalState)
	require.Equal(t, 0.0, result.ConfidenceHistory[0])
}
