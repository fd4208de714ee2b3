// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package epic

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"cfnloop/pkg/cfntypes"
	"cfnloop/pkg/loop"
	"cfnloop/pkg/phase"
)

func testPolicy() cfntypes.Policy {
	p := cfntypes.DefaultPolicy()
	p.PrimarySwarm.MaxAgents = 1
	p.ValidatorSwarm.MaxAgents = 1
	p.Loop3MaxIterations = 1
	p.Loop2MaxIterations = 1
	p.AutonomousExtension = false
	return p
}

func onePhase(id string, deps ...string) cfntypes.Phase {
	return cfntypes.Phase{
		ID:           id,
		Dependencies: deps,
		Sprints: []cfntypes.Sprint{
			{ID: id + "-sprint-1", Tasks: []cfntypes.Task{{ID: id + "-task-1", Description: "do the thing"}}},
		},
	}
}

func TestEpicWorkflow_SequentialPhasesAllComplete(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	loopActs := &loop.Activities{}
	epicActs := &Activities{}

	env.RegisterWorkflow(phase.PhaseWorkflow)
	env.RegisterWorkflow(loop.SprintWorkflow)
	env.OnActivity(loopActs.ExecuteAgentTask, mock.Anything, mock.Anything).
		Return(cfntypes.AgentResult{Confidence: 0.85, HasConfidence: true}, nil)
	env.OnActivity(loopActs.ExecuteValidatorTask, mock.Anything, mock.Anything).
		Return(cfntypes.ValidatorVote{Decision: cfntypes.DecisionApprove, Confidence: 0.90}, nil)
	env.OnActivity(epicActs.ReportEpicStatus, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(epicActs.ReportPhaseStatus, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	input := EpicInput{
		CoordinatorID: "coord-1",
		Policy:        testPolicy(),
		Epic: cfntypes.Epic{
			ID: "epic-1",
			Phases: []cfntypes.Phase{
				onePhase("phase-1"),
				onePhase("phase-2", "phase-1"),
			},
		},
	}
	env.ExecuteWorkflow(EpicWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result EpicResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, cfntypes.StatusComplete, result.Status)
	require.Len(t, result.Phases, 2)
}

func TestEpicWorkflow_DependentPhaseBlockedOnUpstreamFailure(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	loopActs := &loop.Activities{}
	epicActs := &Activities{}

	env.RegisterWorkflow(phase.PhaseWorkflow)
	env.RegisterWorkflow(loop.SprintWorkflow)
	env.OnActivity(loopActs.ExecuteAgentTask, mock.Anything, mock.Anything).
		Return(cfntypes.AgentResult{Confidence: 0.10, HasConfidence: true}, nil)
	env.OnActivity(loopActs.ExecuteValidatorTask, mock.Anything, mock.Anything).
		Return(cfntypes.ValidatorVote{Decision: cfntypes.DecisionApprove, Confidence: 0.90}, nil)
	env.OnActivity(epicActs.ReportEpicStatus, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(epicActs.ReportPhaseStatus, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	input := EpicInput{
		CoordinatorID: "coord-1",
		Policy:        testPolicy(),
		Epic: cfntypes.Epic{
			ID: "epic-1",
			Phases: []cfntypes.Phase{
				onePhase("phase-1"),
				onePhase("phase-2", "phase-1"),
			},
		},
	}
	env.ExecuteWorkflow(EpicWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result EpicResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, cfntypes.StatusFailed, result.Status)
	require.NotContains(t, result.Phases, "phase-2")
}
