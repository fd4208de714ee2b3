// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package executor defines the two execution contracts LoopRunner activities
// call through: one for primary-swarm agents producing an artifact plus a
// confidence score, one for validator-swarm agents producing an approve or
// reject vote. Concrete backends — an OpenCode SDK session, a sandboxed
// shell script, a Docker-isolated validator — live in sibling packages and
// implement these interfaces; pkg/loop never imports a concrete backend.
package executor

import (
	"context"

	"cfnloop/pkg/cfntypes"
)

// AgentExecutor runs one AgentTask to completion as a primary-swarm agent and
// returns its AgentResult. A result with HasConfidence false is treated by
// the confidence gate as confidence 0, never dropped from the batch.
type AgentExecutor interface {
	Execute(ctx context.Context, task cfntypes.AgentTask) (cfntypes.AgentResult, error)
}

// ValidatorExecutor runs one AgentTask as a validator-swarm agent and returns
// its approve/reject vote.
type ValidatorExecutor interface {
	Validate(ctx context.Context, task cfntypes.AgentTask) (cfntypes.ValidatorVote, error)
}
