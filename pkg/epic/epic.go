// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package epic sequences an epic's phases as Temporal child workflows,
// mirroring pkg/phase's round-based fan-out one level up: depgraph.PhaseNodes
// feeds depgraph.ReadySets to produce rounds of mutually independent
// phases, each phase in a round runs concurrently as a PhaseWorkflow child,
// and a round only proceeds once every phase in the previous round reached
// a terminal status.
package epic

import (
	"fmt"
	"strings"

	"go.temporal.io/sdk/workflow"

	"cfnloop/internal/depgraph"
	"cfnloop/internal/gates"
	"cfnloop/internal/temporal"
	"cfnloop/pkg/cfntypes"
	"cfnloop/pkg/loop"
	"cfnloop/pkg/phase"
)

// epicValidatorRoles are the roles an epic-level consensus swarm always
// spawns one validator task for: integration, security, performance, and
// maintainability — distinct from both the per-sprint validator swarm and
// phaseValidatorRoles one level down.
var epicValidatorRoles = []string{"integration", "security", "performance", "maintainability"}

// buildEpicConsensusTask assembles the review instructions for one
// epic-level consensus validator, summarizing every phase this epic ran and
// the terminal status it reached.
func buildEpicConsensusTask(epicID string, phases map[string]phase.PhaseResult, role string) cfntypes.AgentTask {
	var b strings.Builder
	fmt.Fprintf(&b, "Review epic %s as %s. Every phase below closed its own phase-level consensus gate; vote approve only if the epic as a whole is ready to close:\n\n", epicID, role)
	for id, pr := range phases {
		fmt.Fprintf(&b, "--- phase %s ---\nstatus: %s\nsprints: %d\n\n", id, pr.Status, len(pr.Sprints))
	}
	return cfntypes.AgentTask{
		AgentID:      fmt.Sprintf("epic-consensus-%s", role),
		AgentType:    "validator",
		Instructions: b.String(),
	}
}

// runEpicConsensus spawns one validator task per epicValidatorRoles entry
// and collects their votes through loop.RunValidatorTasks' bounded-pool
// dispatch, the same reusable primitive pkg/phase's runPhaseConsensus uses.
func runEpicConsensus(ctx workflow.Context, epicID string, phases map[string]phase.PhaseResult) []cfntypes.ValidatorVote {
	tasks := make([]cfntypes.AgentTask, len(epicValidatorRoles))
	for i, role := range epicValidatorRoles {
		tasks[i] = buildEpicConsensusTask(epicID, phases, role)
	}
	return loop.RunValidatorTasks(ctx, &loop.Activities{}, tasks, len(tasks))
}

// aggregateRejectReasons flattens every rejecting vote's reasons into one
// ordered slice, the same shape pkg/phase and loop.go build for their own
// rejected-vote feedback.
func aggregateRejectReasons(votes []cfntypes.ValidatorVote) []string {
	var reasons []string
	for _, v := range votes {
		reasons = append(reasons, v.Reasons...)
	}
	return reasons
}

// EpicInput is one invocation of EpicWorkflow.
type EpicInput struct {
	CoordinatorID string
	Epic          cfntypes.Epic
	Policy        cfntypes.Policy
}

// EpicResult is what EpicWorkflow returns once every reachable phase has
// run, or a dependency stall has blocked the rest.
type EpicResult struct {
	EpicID         string
	Status         cfntypes.Status
	Phases         map[string]phase.PhaseResult
	ConsensusVotes []cfntypes.ValidatorVote
	FailedReasons  []string
}

// EpicWorkflow drives an epic's phase DAG to completion, reporting each
// phase's terminal status through Activities.ReportPhaseStatus and the
// epic's own terminal status through Activities.ReportEpicStatus once done.
// A phase that does not complete blocks any phase depending on it, the same
// "dependents are blocked, not skipped" rule PhaseWorkflow applies to
// sprints.
func EpicWorkflow(ctx workflow.Context, input EpicInput) (EpicResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, temporal.GetNonIdempotentActivityOptions())

	acts := &Activities{}
	result := EpicResult{
		EpicID: input.Epic.ID,
		Phases: make(map[string]phase.PhaseResult, len(input.Epic.Phases)),
	}

	if err := workflow.ExecuteActivity(ctx, acts.ReportEpicStatus, input.Epic.ID, input.Epic.Name, cfntypes.StatusInProgress).Get(ctx, nil); err != nil {
		logger.Warn("failed to report epic status", "epicId", input.Epic.ID, "err", err)
	}

	rounds, err := depgraph.ReadySets(depgraph.PhaseNodes(input.Epic.Phases))
	if err != nil {
		result.Status = cfntypes.StatusBlocked
		return result, err
	}

	phaseByID := make(map[string]cfntypes.Phase, len(input.Epic.Phases))
	for _, p := range input.Epic.Phases {
		phaseByID[p.ID] = p
	}

	logger.Info("epic phase DAG resolved", "epicId", input.Epic.ID, "rounds", len(rounds))

	roundFailed := false
	for roundIdx, round := range rounds {
		if roundFailed {
			logger.Info("epic halted before round: a dependency failed", "epicId", input.Epic.ID, "round", roundIdx)
			break
		}

		futures := make(map[string]workflow.Future, len(round))
		for _, phaseID := range round {
			p := phaseByID[phaseID]
			cwo := workflow.ChildWorkflowOptions{
				WorkflowID: fmt.Sprintf("phase-%s-%s", input.Epic.ID, p.ID),
			}
			childCtx := workflow.WithChildOptions(ctx, cwo)
			phaseInput := phase.PhaseInput{
				EpicID:        input.Epic.ID,
				CoordinatorID: input.CoordinatorID,
				Phase:         p,
				Policy:        input.Policy,
			}
			futures[phaseID] = workflow.ExecuteChildWorkflow(childCtx, phase.PhaseWorkflow, phaseInput)
		}

		for phaseID, f := range futures {
			var pr phase.PhaseResult
			if err := f.Get(ctx, &pr); err != nil {
				logger.Error("phase child workflow failed", "epicId", input.Epic.ID, "phaseId", phaseID, "err", err)
				roundFailed = true
				continue
			}
			result.Phases[phaseID] = pr

			reportErr := workflow.ExecuteActivity(ctx, acts.ReportPhaseStatus,
				input.Epic.ID, phaseID, phaseByID[phaseID].Name, pr.Status).Get(ctx, nil)
			if reportErr != nil {
				logger.Warn("failed to report phase status", "epicId", input.Epic.ID, "phaseId", phaseID, "err", reportErr)
			}

			if pr.Status != cfntypes.StatusComplete {
				roundFailed = true
			}
		}
	}

	if roundFailed {
		result.Status = cfntypes.StatusFailed
	} else {
		_, consGate := gates.FromPolicy(input.Policy)
		votes := runEpicConsensus(ctx, input.Epic.ID, result.Phases)
		result.ConsensusVotes = votes
		outcome := consGate.Evaluate(votes)
		logger.Info("epic consensus gate evaluated", "epicId", input.Epic.ID, "passed", outcome.Passed, "rate", outcome.Rate, "mean", outcome.Mean)

		if outcome.Passed {
			result.Status = cfntypes.StatusComplete
		} else {
			result.Status = cfntypes.StatusFailed
			result.FailedReasons = aggregateRejectReasons(gates.RejectedVotes(votes))
		}
	}

	// Final status must be reported even if the epic's own context was
	// canceled by a caller (a parent workflow giving up, a CLI Ctrl-C) —
	// temporal.NewSagaContext disconnects this one activity from that
	// cancellation the same way saga cleanup steps survive a workflow
	// cancellation elsewhere in this package's call tree.
	reportCtx, cancelReport := temporal.NewSagaContext(ctx)
	defer cancelReport()
	if err := workflow.ExecuteActivity(reportCtx, acts.ReportEpicStatus, input.Epic.ID, input.Epic.Name, result.Status).Get(reportCtx, nil); err != nil {
		logger.Warn("failed to report epic status", "epicId", input.Epic.ID, "err", err)
	}

	logger.Info("epic reached terminal status", "epicId", input.Epic.ID, "status", result.Status)
	return result, nil
}
