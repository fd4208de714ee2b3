// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"cfnloop/internal/breaker"
	"cfnloop/internal/coordination"
	"cfnloop/internal/filelock"
	"cfnloop/internal/memory"
	"cfnloop/internal/notify"
	"cfnloop/internal/telemetry"
	"cfnloop/pkg/agent"
	"cfnloop/pkg/cfntypes"
	"cfnloop/pkg/executor"
)

// agentTaskLockTTL bounds how long ExecuteAgentTask may hold an exclusive
// file lock before it is eligible for another holder to steal it; a task
// that legitimately runs longer renews nothing, so a stuck activity can't
// wedge a file forever.
const agentTaskLockTTL = 15 * time.Minute

// Activities bundles every side-effecting operation a SprintWorkflow
// delegates to Temporal activities: running one agent or validator task,
// persisting durable sprint state, and publishing/acknowledging signals on
// the coordination bus. One Activities instance is constructed per worker
// process and registered with worker.RegisterActivity; its breaker fields
// carry real wall-clock state (time.Now) across calls, which is why they
// live here and not inside the deterministic workflow function, keeping the
// workflow's control flow apart from the activities that actually touch the
// outside world.
type Activities struct {
	Executor   executor.AgentExecutor
	Validator  executor.ValidatorExecutor
	Store      memory.Store
	Bus        *coordination.Bus
	Sink       telemetry.Sink
	Notifier   notify.Notifier
	Registry   *agent.Manager
	FileLocks  *filelock.MemoryRegistry

	primaryBreaker   *breaker.CircuitBreaker
	validatorBreaker *breaker.CircuitBreaker
	globalBreaker    *breaker.CircuitBreaker
}

// NewActivities constructs an Activities with fresh, closed circuit
// breakers for the primary and validator swarms. A nil notifier falls back
// to notify.NoOpNotifier; a nil registry falls back to a fresh
// agent.Manager tracking this worker's own swarm membership. A fresh
// in-memory file lock registry guards against two agent tasks in the same
// process editing overlapping FilePatterns concurrently, as a last line of
// defense under whatever conflictGroups already serialized at the phase
// level.
func NewActivities(exec executor.AgentExecutor, val executor.ValidatorExecutor, store memory.Store, bus *coordination.Bus, sink telemetry.Sink, notifier notify.Notifier, registry *agent.Manager) *Activities {
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	if registry == nil {
		registry = agent.NewManager("cfn-loop")
	}
	return &Activities{
		Executor:         exec,
		Validator:        val,
		Store:            store,
		Bus:              bus,
		Sink:             sink,
		Notifier:         notifier,
		Registry:         registry,
		FileLocks:        filelock.NewMemoryRegistry(),
		primaryBreaker:   breaker.New("primary_swarm"),
		validatorBreaker: breaker.New("validator_swarm"),
		globalBreaker:    breaker.New("global"),
	}
}

// ExecuteAgentTask runs one primary-swarm AgentTask through the configured
// AgentExecutor, guarded by the primary swarm's circuit breaker.
func (a *Activities) ExecuteAgentTask(ctx context.Context, task cfntypes.AgentTask) (cfntypes.AgentResult, error) {
	logger := activity.GetLogger(ctx)
	a.registerAgent(task)

	if err := a.primaryBreaker.Allow(); err != nil {
		logger.Warn("primary breaker refused task", "agentId", task.AgentID, "error", err)
		return cfntypes.AgentResult{}, err
	}

	release, err := a.acquireFileLocks(task)
	if err != nil {
		logger.Warn("file lock conflict, deferring task", "agentId", task.AgentID, "error", err)
		return cfntypes.AgentResult{}, err
	}
	defer release()

	spanCtx, span := telemetry.StartSpan(ctx, "cfnloop/loop", "ExecuteAgentTask")
	span.SetAttributes(telemetry.OpenCodeAttrs(task.AgentID, "", task.AgentType)...)
	defer span.End()

	result, err := a.Executor.Execute(spanCtx, task)
	if err != nil {
		a.primaryBreaker.RecordFailure()
		logger.Error("agent task failed", "agentId", task.AgentID, "error", err)
		a.emit(ctx, telemetry.EventCircuitTripped, map[string]any{"breaker": "primary_swarm", "agentId": task.AgentID})
		telemetry.RecordError(spanCtx, err)
		if notifyErr := a.Notifier.NotifyTaskFailed(ctx, task.AgentID, task.AgentType, err.Error()); notifyErr != nil {
			logger.Warn("task failure notification dropped", "agentId", task.AgentID, "error", notifyErr)
		}
		return cfntypes.AgentResult{}, &cfntypes.AgentFailureError{AgentID: task.AgentID, TaskID: task.AgentID, Err: err}
	}
	a.primaryBreaker.RecordSuccess()
	return result, nil
}

// registerAgent records task as the given agent's most recent activity in
// the swarm registry, so List/CountActive reflect who is currently working
// a sprint.
func (a *Activities) registerAgent(task cfntypes.AgentTask) {
	if a.Registry == nil {
		return
	}
	_ = a.Registry.Register(agent.Agent{
		Name:            task.AgentID,
		Program:         task.AgentType,
		TaskDescription: task.Instructions,
	})
}

// acquireFileLocks grants task.AgentID an exclusive lock on every one of
// task.FilePatterns, rolling back anything already granted the moment one
// pattern conflicts. The returned func releases whatever was granted and is
// always safe to call, even with zero patterns.
func (a *Activities) acquireFileLocks(task cfntypes.AgentTask) (func(), error) {
	release := func() {}
	if a.FileLocks == nil || len(task.FilePatterns) == 0 {
		return release, nil
	}

	acquired := make([]string, 0, len(task.FilePatterns))
	release = func() {
		for _, p := range acquired {
			_ = a.FileLocks.Release(p, task.AgentID)
		}
	}

	for _, pattern := range task.FilePatterns {
		result, err := a.FileLocks.Acquire(filelock.LockRequest{
			Path:      pattern,
			Holder:    task.AgentID,
			Exclusive: true,
			TTL:       agentTaskLockTTL,
		})
		if err != nil || !result.Granted {
			release()
			if err == nil {
				err = fmt.Errorf("loop: file lock on %q held by another agent", pattern)
			}
			return func() {}, err
		}
		acquired = append(acquired, pattern)
	}
	return release, nil
}

func (a *Activities) emit(ctx context.Context, name telemetry.EventName, fields map[string]any) {
	if a.Sink == nil {
		return
	}
	a.Sink.Emit(ctx, telemetry.Event{Name: name, Fields: fields})
}

// ExecuteValidatorTask runs one validator-swarm AgentTask through the
// configured ValidatorExecutor, guarded by the validator swarm's circuit
// breaker. A breaker-refused or failed validation is not retried here; the
// caller synthesizes a reject vote for it instead.
func (a *Activities) ExecuteValidatorTask(ctx context.Context, task cfntypes.AgentTask) (cfntypes.ValidatorVote, error) {
	logger := activity.GetLogger(ctx)
	a.registerAgent(task)

	if err := a.validatorBreaker.Allow(); err != nil {
		logger.Warn("validator breaker refused task", "agentId", task.AgentID, "error", err)
		return cfntypes.ValidatorVote{}, err
	}

	spanCtx, span := telemetry.StartSpan(ctx, "cfnloop/loop", "ExecuteValidatorTask")
	span.SetAttributes(telemetry.OpenCodeAttrs(task.AgentID, "", task.AgentType)...)
	defer span.End()

	vote, err := a.Validator.Validate(spanCtx, task)
	if err != nil {
		a.validatorBreaker.RecordFailure()
		logger.Error("validator task failed", "agentId", task.AgentID, "error", err)
		telemetry.RecordError(spanCtx, err)
		return cfntypes.ValidatorVote{}, &cfntypes.AgentFailureError{AgentID: task.AgentID, TaskID: task.AgentID, Err: err}
	}
	span.SetAttributes(telemetry.AttrGatePassed.Bool(vote.Decision == cfntypes.DecisionApprove), telemetry.AttrConfidence.Float64(vote.Confidence))
	a.validatorBreaker.RecordSuccess()
	return vote, nil
}

// PersistLoopState writes a sprint's LoopState snapshot to the MemoryStore
// at cfn/{epic}/{phase}/{sprint}/loop_state. epicID/phaseID/sprintID are
// carried separately from key purely for span attribution — they're already
// folded into key by loopStateKey.
func (a *Activities) PersistLoopState(ctx context.Context, epicID, phaseID, sprintID, key string, state cfntypes.LoopState) error {
	spanCtx, span := telemetry.StartSpan(ctx, "cfnloop/loop", "PersistLoopState")
	span.SetAttributes(telemetry.SprintAttrs(epicID, phaseID, sprintID)...)
	span.SetAttributes(
		telemetry.AttrIteration.Int(state.Loop3Iteration+state.Loop2Iteration),
	)
	defer span.End()

	payload, err := json.Marshal(state)
	if err != nil {
		telemetry.RecordError(spanCtx, err)
		return fmt.Errorf("loop: marshal loop state: %w", err)
	}
	if err := a.Store.Put(spanCtx, key, payload, 0); err != nil {
		telemetry.RecordError(spanCtx, err)
		return err
	}
	return nil
}

// PublishSignal publishes a coordination Signal on the bus.
func (a *Activities) PublishSignal(ctx context.Context, sig cfntypes.Signal) error {
	return a.Bus.Publish(ctx, sig)
}

// AcknowledgeSignal acknowledges signalID on behalf of coordinatorID.
func (a *Activities) AcknowledgeSignal(ctx context.Context, coordinatorID, signalID string) (cfntypes.SignalAck, error) {
	return a.Bus.Acknowledge(ctx, coordinatorID, signalID)
}

// RecordGlobalTimeout trips the global breaker when a sprint's workflow-level
// timer fires before the loop reaches a terminal state. Unlike the
// primary/validator breakers, the global breaker never recovers on its own
// consecutive-failure counter — a wall-clock timeout is fatal on its own
// occurrence, so this always trips unconditionally via TripNow.
func (a *Activities) RecordGlobalTimeout(ctx context.Context, sprintID string) error {
	logger := activity.GetLogger(ctx)
	_, span := telemetry.StartSpan(ctx, "cfnloop/loop", "RecordGlobalTimeout")
	span.SetAttributes(telemetry.GateAttrs("global_timeout", false, 0, 0)...)
	defer span.End()

	a.globalBreaker.TripNow()
	logger.Warn("global breaker tripped", "sprintId", sprintID)
	a.emit(ctx, telemetry.EventCircuitTripped, map[string]any{"breaker": "global", "sprintId": sprintID})
	return nil
}
