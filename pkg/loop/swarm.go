// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package loop

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"cfnloop/pkg/cfntypes"
)

// AgentOutcome is one task's result out of a RunAgentTasks dispatch, keyed
// by the originating task index so callers can reassemble results in the
// order the caller's own task slice expects regardless of completion order.
type AgentOutcome struct {
	Idx    int
	Result cfntypes.AgentResult
	Err    error
}

// voteOutcome is RunValidatorTasks' internal equivalent of AgentOutcome; it
// stays unexported because ValidatorVote already carries a ValidatorID a
// caller can key off of, so there is no reason to expose the index.
type voteOutcome struct {
	idx  int
	vote cfntypes.ValidatorVote
}

// boundedWorkers clamps maxConcurrent to a sane worker count: zero or
// negative means unbounded (one worker per task), and a bound wider than
// the task count is wasted, so it's clamped down to n.
func boundedWorkers(n, maxConcurrent int) int {
	if maxConcurrent <= 0 || maxConcurrent > n {
		return n
	}
	return maxConcurrent
}

// RunAgentTasks dispatches n tasks across a pool of at most maxConcurrent
// persistent workers, bounding in-flight ExecuteAgentTask activity calls the
// way a real semaphore would. A literal golang.org/x/sync/semaphore can't be
// used here: its Acquire blocks on a real channel the Temporal dispatcher
// doesn't coordinate, which is unsafe inside workflow code (the same reason
// internal/opencode/server_pool.go's errgroup-based HealthCheckAll is
// confined to non-workflow code). This achieves the same bound
// deterministically: a fixed number of workflow.Go coroutines pull task
// indices off a shared, pre-filled workflow.Channel, so at most
// maxConcurrent ExecuteAgentTask futures are ever outstanding at once.
// build is called once per dispatched task with the worker slot that will
// run it (for agent-ID naming) and the task's index into the caller's slice.
func RunAgentTasks(ctx workflow.Context, acts *Activities, n, maxConcurrent int, build func(workerSlot, taskIdx int) cfntypes.AgentTask) []AgentOutcome {
	if n == 0 {
		return nil
	}
	workers := boundedWorkers(n, maxConcurrent)

	taskCh := workflow.NewBufferedChannel(ctx, n)
	for i := 0; i < n; i++ {
		taskCh.Send(ctx, i)
	}
	taskCh.Close()

	outCh := workflow.NewBufferedChannel(ctx, n)
	for w := 0; w < workers; w++ {
		w := w
		workflow.Go(ctx, func(gctx workflow.Context) {
			for {
				var idx int
				if !taskCh.Receive(gctx, &idx) {
					return
				}
				at := build(w, idx)
				var r cfntypes.AgentResult
				err := workflow.ExecuteActivity(gctx, acts.ExecuteAgentTask, at).Get(gctx, &r)
				outCh.Send(gctx, AgentOutcome{Idx: idx, Result: r, Err: err})
			}
		})
	}

	outcomes := make([]AgentOutcome, 0, n)
	for i := 0; i < n; i++ {
		var o AgentOutcome
		outCh.Receive(ctx, &o)
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// RunValidatorTasks dispatches tasks across a pool of at most maxConcurrent
// persistent workers, the same deterministic bounded-pool shape as
// RunAgentTasks. A validator whose activity errors does not fail the whole
// dispatch: it is replaced with a reject vote at confidence 0, so a single
// unreachable validator can't stall consensus indefinitely.
func RunValidatorTasks(ctx workflow.Context, acts *Activities, tasks []cfntypes.AgentTask, maxConcurrent int) []cfntypes.ValidatorVote {
	n := len(tasks)
	if n == 0 {
		return nil
	}
	workers := boundedWorkers(n, maxConcurrent)

	idxCh := workflow.NewBufferedChannel(ctx, n)
	for i := 0; i < n; i++ {
		idxCh.Send(ctx, i)
	}
	idxCh.Close()

	outCh := workflow.NewBufferedChannel(ctx, n)
	for w := 0; w < workers; w++ {
		workflow.Go(ctx, func(gctx workflow.Context) {
			for {
				var idx int
				if !idxCh.Receive(gctx, &idx) {
					return
				}
				var v cfntypes.ValidatorVote
				err := workflow.ExecuteActivity(gctx, acts.ExecuteValidatorTask, tasks[idx]).Get(gctx, &v)
				if err != nil {
					v = cfntypes.ValidatorVote{
						ValidatorID: tasks[idx].AgentID,
						Decision:    cfntypes.DecisionReject,
						Confidence:  0,
						Reasons:     []string{fmt.Sprintf("validator unreachable: %v", err)},
					}
				}
				outCh.Send(gctx, voteOutcome{idx: idx, vote: v})
			}
		})
	}

	votes := make([]cfntypes.ValidatorVote, n)
	for i := 0; i < n; i++ {
		var o voteOutcome
		outCh.Receive(ctx, &o)
		votes[o.idx] = o.vote
	}
	return votes
}

// runPrimarySwarm dispatches one AgentTask per sprint task to the configured
// AgentExecutor through RunAgentTasks, bounding the number of concurrently
// in-flight tasks (and distinct agent identities) to
// Policy.PrimarySwarm.MaxAgents; tasks beyond that count round-robin onto
// the same agent slots once a slot frees up, rather than all starting at
// once the way a naive fan-out would.
func runPrimarySwarm(ctx workflow.Context, acts *Activities, input SprintInput, feedback *cfntypes.FeedbackPacket) ([]cfntypes.AgentResult, error) {
	tasks := input.Sprint.Tasks
	if len(tasks) == 0 {
		return nil, fmt.Errorf("loop: sprint %s has no tasks", input.Sprint.ID)
	}

	slots := input.Policy.PrimarySwarm.MaxAgents
	if slots <= 0 {
		slots = len(tasks)
	}

	outcomes := RunAgentTasks(ctx, acts, len(tasks), slots, func(workerSlot, taskIdx int) cfntypes.AgentTask {
		return buildAgentTask(tasks[taskIdx], fmt.Sprintf("agent-%d", workerSlot), feedback)
	})

	results := make([]cfntypes.AgentResult, 0, len(tasks))
	var failures []error
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, fmt.Errorf("task %s: %w", tasks[o.Idx].ID, o.Err))
			continue
		}
		results = append(results, o.Result)
	}

	if len(failures) > 0 {
		return results, fmt.Errorf("loop: primary swarm failures: %v", failures)
	}
	return results, nil
}

// runValidatorSwarm dispatches one validation AgentTask per configured
// validator slot against the primary swarm's collected results through
// RunValidatorTasks, bounding concurrently in-flight validations to
// Policy.ValidatorSwarm.MaxAgents.
func runValidatorSwarm(ctx workflow.Context, acts *Activities, input SprintInput, primaryResults []cfntypes.AgentResult) ([]cfntypes.ValidatorVote, error) {
	slots := input.Policy.ValidatorSwarm.MaxAgents
	if slots <= 0 {
		slots = 1
	}

	tasks := make([]cfntypes.AgentTask, slots)
	for i := 0; i < slots; i++ {
		tasks[i] = buildValidatorTask(primaryResults, fmt.Sprintf("validator-%d", i))
	}

	return RunValidatorTasks(ctx, acts, tasks, slots), nil
}
