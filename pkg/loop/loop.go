// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package loop implements the LoopRunner: one sprint's
// INIT→LOOP3_RUN→LOOP3_GATE→LOOP2_RUN→LOOP2_GATE state machine as a
// Temporal workflow, fanning out primary-swarm and validator-swarm tasks to
// activities and folding their results through the confidence and consensus
// gates.
//
// The fan-out/wait shape lives in swarm.go: a fixed pool of workflow.Go
// workers pulls task indices off a pre-filled workflow.Channel, runs one
// activity at a time, and sends each outcome to a result channel the caller
// drains once per task, collecting failures instead of aborting on the
// first one. Every task in a sprint's primary swarm runs in the same round;
// there is no per-task dependency check.
//
// Structured lifecycle events (telemetry.Sink) are emitted from Activities,
// not from the workflow function itself: a workflow replays, and a Sink's
// side effects (log lines, span events) must not re-fire on replay the way
// workflow.GetLogger already knows how to suppress.
package loop

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"

	"cfnloop/internal/gates"
	"cfnloop/internal/temporal"
	"cfnloop/pkg/cfntypes"
)

// loopStateKey is the MemoryStore key a sprint's durable LoopState snapshot
// is persisted under: cfn/{epic}/{phase}/{sprint}/loop_state.
func loopStateKey(input SprintInput) string {
	return fmt.Sprintf("cfn/%s/%s/%s/loop_state", input.EpicID, input.PhaseID, input.Sprint.ID)
}

// persistLoopState snapshots the sprint's current iteration counters, gate
// history, and outstanding feedback to the MemoryStore, so a durable
// LoopState exists for anything polling cfn/{epic}/{phase}/{sprint}/loop_state
// between activity completions, not just at workflow completion.
func persistLoopState(ctx workflow.Context, acts *Activities, input SprintInput, startTime time.Time, rb *temporal.RetryBudget, result *SprintResult, feedback *cfntypes.FeedbackPacket) error {
	state := cfntypes.LoopState{
		Loop3Iteration:    rb.Loop3Iterations,
		Loop2Iteration:    rb.Loop2Iterations,
		PhaseStartTime:    startTime,
		LastFeedback:      feedback,
		ConfidenceHistory: result.ConfidenceHistory,
		ConsensusHistory:  result.ConsensusHistory,
	}
	return workflow.ExecuteActivity(ctx, acts.PersistLoopState,
		input.EpicID, input.PhaseID, input.Sprint.ID, loopStateKey(input), state).Get(ctx, nil)
}

// publishAndAck publishes a coordination Signal announcing a sprint-level
// state change to the owning phase coordinator, then immediately
// self-acknowledges it on the sprint's own CoordinatorID. Every cooperating
// coordinator must ack before it is considered to have processed a signal;
// the sprint is itself the first such coordinator, so its own ack is always
// recorded at publish time, leaving WaitForAcks at the phase level free to
// poll for the remaining targets without ever stalling on the publisher.
func publishAndAck(ctx workflow.Context, acts *Activities, input SprintInput, kind cfntypes.SignalKind, payload map[string]any) error {
	sig := cfntypes.Signal{
		SignalID:  fmt.Sprintf("%s-%s-%d", input.Sprint.ID, kind, workflow.Now(ctx).UnixNano()),
		Kind:      kind,
		Source:    input.CoordinatorID,
		Targets:   []string{input.PhaseID},
		Payload:   payload,
		CreatedAt: workflow.Now(ctx),
	}
	if err := workflow.ExecuteActivity(ctx, acts.PublishSignal, sig).Get(ctx, nil); err != nil {
		return fmt.Errorf("loop: publish %s signal: %w", kind, err)
	}
	var ack cfntypes.SignalAck
	if err := workflow.ExecuteActivity(ctx, acts.AcknowledgeSignal, input.CoordinatorID, sig.SignalID).Get(ctx, &ack); err != nil {
		return fmt.Errorf("loop: acknowledge %s signal: %w", kind, err)
	}
	return nil
}

// buildAgentTask assembles the instructions handed to an agent for one
// Task, folding in the feedback packet (if any) carried over from a prior
// Loop 2 rejection. This has to be a plain deterministic function rather
// than an injected closure: SprintInput crosses the Temporal data converter
// both as a top-level workflow argument and, from pkg/phase, as a child
// workflow argument, and a func value can't survive that round trip.
func buildAgentTask(task cfntypes.Task, agentID string, feedback *cfntypes.FeedbackPacket) cfntypes.AgentTask {
	at := cfntypes.AgentTask{
		AgentID:      agentID,
		AgentType:    "primary",
		Instructions: fmt.Sprintf("%s\n\n%s", task.ID, task.Description),
		FilePatterns: task.FilePatterns,
	}
	if feedback != nil {
		at.FeedbackContext = fmt.Sprintf("Loop 2 rejected this sprint at iteration %d for:\n%s",
			feedback.Loop2Iteration, strings.Join(feedback.AggregatedReasons, "\n"))
	}
	return at
}

// buildValidatorTask assembles a validation task from the primary swarm's
// collected self-reports, same constraint as buildAgentTask above.
func buildValidatorTask(results []cfntypes.AgentResult, validatorID string) cfntypes.AgentTask {
	var b strings.Builder
	b.WriteString("Review the following agent submissions and vote approve or reject:\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", r.AgentID, r.SelfReport)
	}
	return cfntypes.AgentTask{
		AgentID:      validatorID,
		AgentType:    "validator",
		Instructions: b.String(),
	}
}

// SprintInput is one invocation of SprintWorkflow.
type SprintInput struct {
	EpicID        string
	PhaseID       string
	CoordinatorID string
	Sprint        cfntypes.Sprint
	Policy        cfntypes.Policy
}

// SprintResult is what SprintWorkflow returns once the sprint reaches a
// terminal state.
type SprintResult struct {
	SprintID          string
	FinalState        temporal.WorkflowState
	Loop3Iterations   int
	Loop2Iterations   int
	ConfidenceHistory []float64
	ConsensusHistory  []float64
	Results           []cfntypes.AgentResult
	Votes             []cfntypes.ValidatorVote
}

// SprintWorkflow drives one sprint through its LOOP3/LOOP2 state machine to
// a terminal state (DONE, FAIL_L3, FAIL_L2, or ABORTED), honoring
// Policy.AutonomousExtension as a single-shot iteration-cap extension and
// re-entering LOOP3_RUN with an accumulated FeedbackPacket whenever the
// consensus gate rejects.
//
// The state machine loop itself runs in runSprintLoop, inside its own
// cancellable workflow.Go coroutine, raced against a workflow.NewTimer set
// to Policy.GlobalTimeout. Whichever resolves first wins: normal completion
// cancels the timer, and a timer fire cancels the loop's context, forces the
// state machine into ABORTED via StateMachine.Abort, and trips the global
// circuit breaker through the RecordGlobalTimeout activity — without
// touching the primary or validator breakers, since a wall-clock timeout is
// not a swarm failure.
func SprintWorkflow(ctx workflow.Context, input SprintInput) (SprintResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, temporal.GetNonIdempotentActivityOptions())

	acts := &Activities{}
	sm := temporal.NewStateMachine(logger)
	rb := temporal.NewRetryBudget(input.Policy.Loop3MaxIterations, input.Policy.Loop2MaxIterations)
	confGate, consGate := gates.FromPolicy(input.Policy)

	result := SprintResult{SprintID: input.Sprint.ID}
	var feedback *cfntypes.FeedbackPacket
	startTime := workflow.Now(ctx)

	timeout := input.Policy.GlobalTimeout
	if timeout <= 0 {
		timeout = cfntypes.DefaultPolicy().GlobalTimeout
	}

	runCtx, cancelRun := workflow.WithCancel(ctx)
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	done := workflow.NewChannel(ctx)

	var runErr error
	workflow.Go(runCtx, func(gctx workflow.Context) {
		runErr = runSprintLoop(gctx, acts, sm, rb, confGate, consGate, input, startTime, &result, &feedback)
		done.Send(gctx, struct{}{})
	})

	timer := workflow.NewTimer(timerCtx, timeout)
	aborted := false
	selector := workflow.NewSelector(ctx)
	selector.AddReceive(done, func(workflow.ReceiveChannel, bool) {})
	selector.AddFuture(timer, func(workflow.Future) { aborted = true })
	selector.Select(ctx)

	if aborted {
		cancelRun()
		sm.Abort(fmt.Sprintf("global timeout of %s exceeded", timeout))
		result.FinalState = sm.CurrentState()
		result.Loop3Iterations = rb.Loop3Iterations
		result.Loop2Iterations = rb.Loop2Iterations
		logger.Warn("sprint aborted on global timeout", "sprintId", input.Sprint.ID, "timeout", timeout)

		if err := workflow.ExecuteActivity(ctx, acts.RecordGlobalTimeout, input.Sprint.ID).Get(ctx, nil); err != nil {
			logger.Warn("failed to record global timeout breaker trip", "sprintId", input.Sprint.ID, "error", err)
		}
		if err := persistLoopState(ctx, acts, input, startTime, rb, &result, feedback); err != nil {
			logger.Warn("failed to persist loop state on abort", "sprintId", input.Sprint.ID, "error", err)
		}
		return result, nil
	}

	cancelTimer()
	return result, runErr
}

// runSprintLoop is the sprint's deterministic INIT→LOOP3_RUN→LOOP3_GATE→
// LOOP2_RUN→LOOP2_GATE state machine, extracted from SprintWorkflow so it
// can run inside a cancellable coroutine raced against the global timeout
// timer. It returns once sm reaches a terminal state or ctx is canceled.
func runSprintLoop(ctx workflow.Context, acts *Activities, sm *temporal.StateMachine, rb *temporal.RetryBudget, confGate gates.ConfidenceGate, consGate gates.ConsensusGate, input SprintInput, startTime time.Time, result *SprintResult, feedback **cfntypes.FeedbackPacket) error {
	logger := workflow.GetLogger(ctx)
	sm.Advance(temporal.StateLoop3Run, "starting sprint execution")

	for {
		switch sm.CurrentState() {

		case temporal.StateLoop3Run:
			rb.Increment(temporal.Loop3)
			logger.Info("loop3 iteration starting", "sprintId", input.Sprint.ID, "iteration", rb.Loop3Iterations)

			results, err := runPrimarySwarm(ctx, acts, input, *feedback)
			if err != nil {
				return err
			}
			result.Results = results
			sm.Advance(temporal.StateLoop3Gate, "primary swarm results collected")

		case temporal.StateLoop3Gate:
			outcome := confGate.Evaluate(result.Results)
			result.ConfidenceHistory = append(result.ConfidenceHistory, outcome.Mean)
			logger.Info("confidence gate evaluated", "sprintId", input.Sprint.ID, "passed", outcome.Passed, "min", outcome.Min, "mean", outcome.Mean)

			maybeExtend(rb, temporal.Loop3, outcome.Passed, input.Policy)
			exhausted := rb.IsExhausted(temporal.Loop3)

			sm.Transition(outcome.Passed, exhausted && !outcome.Passed, &temporal.GateResult{
				GateName: confGate.Name(), Passed: outcome.Passed, Min: outcome.Min, Mean: outcome.Mean,
			})

			if err := persistLoopState(ctx, acts, input, startTime, rb, result, *feedback); err != nil {
				logger.Warn("failed to persist loop state", "sprintId", input.Sprint.ID, "error", err)
			}
			if outcome.Passed {
				if err := publishAndAck(ctx, acts, input, cfntypes.SignalValidation, map[string]any{"loop3Iteration": rb.Loop3Iterations}); err != nil {
					logger.Warn("failed to publish validation signal", "sprintId", input.Sprint.ID, "error", err)
				}
			}

		case temporal.StateLoop2Run:
			rb.Increment(temporal.Loop2)
			logger.Info("loop2 iteration starting", "sprintId", input.Sprint.ID, "iteration", rb.Loop2Iterations)

			votes, err := runValidatorSwarm(ctx, acts, input, result.Results)
			if err != nil {
				return err
			}
			result.Votes = votes
			sm.Advance(temporal.StateLoop2Gate, "validator swarm votes collected")

		case temporal.StateLoop2Gate:
			outcome := consGate.Evaluate(result.Votes)
			result.ConsensusHistory = append(result.ConsensusHistory, outcome.Rate)
			logger.Info("consensus gate evaluated", "sprintId", input.Sprint.ID, "passed", outcome.Passed, "rate", outcome.Rate, "mean", outcome.Mean)

			if !outcome.Passed {
				rejected := gates.RejectedVotes(result.Votes)
				*feedback = &cfntypes.FeedbackPacket{
					SprintID:          input.Sprint.ID,
					Loop2Iteration:    rb.Loop2Iterations,
					RejectedVotes:     rejected,
					AggregatedReasons: aggregateReasons(rejected),
				}
				logger.Info("feedback packet assembled for next loop3 attempt", "sprintId", input.Sprint.ID, "rejected", len(rejected))
			}

			maybeExtend(rb, temporal.Loop2, outcome.Passed, input.Policy)
			exhausted := rb.IsExhausted(temporal.Loop2)

			tr := sm.Transition(outcome.Passed, exhausted && !outcome.Passed, &temporal.GateResult{
				GateName: consGate.Name(), Passed: outcome.Passed, Mean: outcome.Mean, Rate: outcome.Rate,
			})
			if tr.NextState == temporal.StateLoop3Run {
				rb.ResetLoop3()
			}

			if err := persistLoopState(ctx, acts, input, startTime, rb, result, *feedback); err != nil {
				logger.Warn("failed to persist loop state", "sprintId", input.Sprint.ID, "error", err)
			}

			signalKind := cfntypes.SignalCompletion
			switch {
			case outcome.Passed:
				signalKind = cfntypes.SignalCompletion
			case tr.NextState == temporal.StateLoop3Run:
				signalKind = cfntypes.SignalRetry
			default:
				signalKind = cfntypes.SignalError
			}
			if err := publishAndAck(ctx, acts, input, signalKind, map[string]any{"loop2Iteration": rb.Loop2Iterations, "passed": outcome.Passed}); err != nil {
				logger.Warn("failed to publish loop2 gate signal", "sprintId", input.Sprint.ID, "kind", signalKind, "error", err)
			}

		case temporal.StateDone, temporal.StateFailL2, temporal.StateFailL3, temporal.StateAborted:
			result.FinalState = sm.CurrentState()
			result.Loop3Iterations = rb.Loop3Iterations
			result.Loop2Iterations = rb.Loop2Iterations
			logger.Info("sprint reached terminal state", "sprintId", input.Sprint.ID, "state", result.FinalState)
			return nil

		default:
			return fmt.Errorf("loop: sprint %s reached unhandled state %s", input.Sprint.ID, sm.CurrentState())
		}
	}
}

// maybeExtend grants the one-shot autonomous extension when level is
// exhausted, the gate failed, the policy allows it, and it hasn't already
// been used. It is a no-op otherwise; RetryBudget.IsExhausted reflects the
// extended cap immediately after.
func maybeExtend(rb *temporal.RetryBudget, level temporal.LoopLevel, gatePassed bool, policy cfntypes.Policy) {
	if gatePassed || !rb.IsExhausted(level) || !policy.AutonomousExtension || rb.ExtensionUsed() {
		return
	}
	amount := policy.Loop3MaxIterations
	if level == temporal.Loop2 {
		amount = policy.Loop2MaxIterations
	}
	rb.ExtendOnce(amount)
}

func aggregateReasons(votes []cfntypes.ValidatorVote) []string {
	var reasons []string
	for _, v := range votes {
		reasons = append(reasons, v.Reasons...)
	}
	return reasons
}
