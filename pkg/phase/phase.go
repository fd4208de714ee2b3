// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package phase sequences one phase's sprints as Temporal child workflows:
// each round produced by depgraph.ReadySets runs its sprints concurrently
// as children of PhaseWorkflow, and the next round only starts once every
// sprint in the previous round has reached a terminal state — a sprint
// depends on its dependencies having finished, not merely having started.
//
// Within a round, sprints whose tasks declare overlapping FilePatterns are
// additionally grouped by conflictGroups and run one after another inside a
// single workflow.Go coroutine, so two sprints that would edit the same
// files never execute as true siblings even though depgraph considers them
// independent.
//
// Each sprint child gets a WorkflowID built from its phase and sprint IDs
// ("sprint-{phaseID}-{sprintID}"). Every conflict group runs in its own
// workflow.Go coroutine that reports through a workflow.Future, and
// PhaseWorkflow gathers those futures after every group of the round has
// been launched; round boundaries sit on top of that because sprints within
// a phase can depend on each other.
package phase

import (
	"fmt"
	"strings"

	"go.temporal.io/sdk/workflow"

	"cfnloop/internal/depgraph"
	"cfnloop/internal/gates"
	"cfnloop/internal/temporal"
	"cfnloop/pkg/cfntypes"
	"cfnloop/pkg/loop"
)

// phaseValidatorRoles are the roles a phase-level consensus swarm always
// spawns one validator task for, regardless of Policy.ValidatorSwarm.MaxAgents
// (that policy field bounds the per-sprint validator swarms inside
// loop.SprintWorkflow, not this phase-level review).
var phaseValidatorRoles = []string{"reviewer", "system-architect", "security"}

// buildPhaseConsensusTask assembles the review instructions for one
// phase-level consensus validator, summarizing every sprint this phase ran
// and the terminal state it reached.
func buildPhaseConsensusTask(phaseID string, sprints map[string]loop.SprintResult, role string) cfntypes.AgentTask {
	var b strings.Builder
	fmt.Fprintf(&b, "Review phase %s as %s. Every sprint below completed its own loop3/loop2 gates; vote approve only if the phase as a whole is ready to close:\n\n", phaseID, role)
	for id, sr := range sprints {
		fmt.Fprintf(&b, "--- sprint %s ---\nfinal state: %s\nloop3 iterations: %d, loop2 iterations: %d\n\n", id, sr.FinalState, sr.Loop3Iterations, sr.Loop2Iterations)
	}
	return cfntypes.AgentTask{
		AgentID:      fmt.Sprintf("phase-consensus-%s", role),
		AgentType:    "validator",
		Instructions: b.String(),
	}
}

// runPhaseConsensus spawns one validator task per phaseValidatorRoles entry
// and collects their votes through loop.RunValidatorTasks' bounded-pool
// dispatch, reusing the same deterministic worker-pool primitive
// loop.SprintWorkflow uses for its own validator swarm rather than
// duplicating the workflow.Go/workflow.Channel plumbing here.
func runPhaseConsensus(ctx workflow.Context, phaseID string, sprints map[string]loop.SprintResult) []cfntypes.ValidatorVote {
	tasks := make([]cfntypes.AgentTask, len(phaseValidatorRoles))
	for i, role := range phaseValidatorRoles {
		tasks[i] = buildPhaseConsensusTask(phaseID, sprints, role)
	}
	return loop.RunValidatorTasks(ctx, &loop.Activities{}, tasks, len(tasks))
}

// aggregateRejectReasons flattens every rejecting vote's reasons into one
// ordered slice, the same shape loop.go's aggregateReasons builds for a
// sprint's FeedbackPacket.
func aggregateRejectReasons(votes []cfntypes.ValidatorVote) []string {
	var reasons []string
	for _, v := range votes {
		reasons = append(reasons, v.Reasons...)
	}
	return reasons
}

// PhaseInput is one invocation of PhaseWorkflow.
type PhaseInput struct {
	EpicID        string
	CoordinatorID string
	Phase         cfntypes.Phase
	Policy        cfntypes.Policy
}

// PhaseResult is what PhaseWorkflow returns once every reachable sprint has
// run, or a dependency stall has blocked the rest.
type PhaseResult struct {
	PhaseID        string
	Status         cfntypes.Status
	Sprints        map[string]loop.SprintResult
	ConsensusVotes []cfntypes.ValidatorVote
	FailedReasons  []string
}

// groupResult is what one conflictGroups chain reports once its sprints
// have run to completion or one of them failed.
type groupResult struct {
	results map[string]loop.SprintResult
	failed  bool
}

// PhaseWorkflow drives a phase's sprint DAG to completion: each round of
// depgraph.ReadySets runs concurrently as SprintWorkflow children, and a
// round only proceeds once every sprint in the prior round reached a
// terminal state. A sprint that does not terminate in StateDone marks the
// phase failed and later rounds (whose sprints may depend on the failed
// one) are not started — matching the "dependents are blocked, not
// skipped" rule rather than silently running orphaned work.
func PhaseWorkflow(ctx workflow.Context, input PhaseInput) (PhaseResult, error) {
	logger := workflow.GetLogger(ctx)

	result := PhaseResult{
		PhaseID: input.Phase.ID,
		Sprints: make(map[string]loop.SprintResult, len(input.Phase.Sprints)),
	}

	rounds, err := depgraph.ReadySets(depgraph.SprintNodes(input.Phase.Sprints))
	if err != nil {
		result.Status = cfntypes.StatusBlocked
		return result, err
	}

	sprintByID := make(map[string]cfntypes.Sprint, len(input.Phase.Sprints))
	for _, s := range input.Phase.Sprints {
		sprintByID[s.ID] = s
	}

	logger.Info("phase sprint DAG resolved", "phaseId", input.Phase.ID, "rounds", len(rounds))

	roundFailed := false
	for roundIdx, round := range rounds {
		if roundFailed {
			logger.Info("phase halted before round: a dependency failed", "phaseId", input.Phase.ID, "round", roundIdx)
			break
		}

		groups := conflictGroups(round, sprintByID)
		groupFutures := make([]workflow.Future, len(groups))
		for gi, group := range groups {
			group := group
			future, settable := workflow.NewFuture(ctx)
			groupFutures[gi] = future
			workflow.Go(ctx, func(gctx workflow.Context) {
				gr := groupResult{results: make(map[string]loop.SprintResult, len(group))}
				for _, sprintID := range group {
					sprint := sprintByID[sprintID]
					cwo := workflow.ChildWorkflowOptions{
						WorkflowID: fmt.Sprintf("sprint-%s-%s", input.Phase.ID, sprint.ID),
					}
					childCtx := workflow.WithChildOptions(gctx, cwo)
					sprintInput := loop.SprintInput{
						EpicID:        input.EpicID,
						PhaseID:       input.Phase.ID,
						CoordinatorID: input.CoordinatorID,
						Sprint:        sprint,
						Policy:        input.Policy,
					}
					var sr loop.SprintResult
					if err := workflow.ExecuteChildWorkflow(childCtx, loop.SprintWorkflow, sprintInput).Get(gctx, &sr); err != nil {
						logger.Error("sprint child workflow failed", "phaseId", input.Phase.ID, "sprintId", sprintID, "err", err)
						gr.failed = true
						settable.Set(gr, nil)
						return
					}
					gr.results[sprintID] = sr
					if sr.FinalState != temporal.StateDone {
						gr.failed = true
						settable.Set(gr, nil)
						return
					}
				}
				settable.Set(gr, nil)
			})
		}

		for _, f := range groupFutures {
			var gr groupResult
			if err := f.Get(ctx, &gr); err != nil {
				roundFailed = true
				continue
			}
			for sprintID, sr := range gr.results {
				result.Sprints[sprintID] = sr
			}
			if gr.failed {
				roundFailed = true
			}
		}
	}

	if roundFailed {
		result.Status = cfntypes.StatusFailed
		logger.Info("phase reached terminal status", "phaseId", input.Phase.ID, "status", result.Status)
		return result, nil
	}

	_, consGate := gates.FromPolicy(input.Policy)
	votes := runPhaseConsensus(ctx, input.Phase.ID, result.Sprints)
	result.ConsensusVotes = votes
	outcome := consGate.Evaluate(votes)
	logger.Info("phase consensus gate evaluated", "phaseId", input.Phase.ID, "passed", outcome.Passed, "rate", outcome.Rate, "mean", outcome.Mean)

	if outcome.Passed {
		result.Status = cfntypes.StatusComplete
	} else {
		result.Status = cfntypes.StatusFailed
		result.FailedReasons = aggregateRejectReasons(gates.RejectedVotes(votes))
	}
	logger.Info("phase reached terminal status", "phaseId", input.Phase.ID, "status", result.Status)
	return result, nil
}
