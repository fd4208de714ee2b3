// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package shell implements an AgentExecutor that runs an AgentTask's
// instructions as a shell command via github.com/bitfield/script. It
// exists for sprints whose tasks are themselves shell
// scripts or deterministic build/test commands rather than freeform agent
// prompts — there is no LLM in the loop, so confidence is always 1.0 on
// success and the result carries no artifacts beyond the combined output.
package shell

import (
	"context"
	"fmt"

	"github.com/bitfield/script"

	"cfnloop/pkg/cfntypes"
)

// Executor runs AgentTask.Instructions as a shell command.
type Executor struct{}

// New constructs a shell Executor.
func New() *Executor {
	return &Executor{}
}

// Execute runs task.Instructions as a shell command and reports success as
// full confidence, failure as an error (never a silent low-confidence
// result — a broken build is not an agent with doubts).
func (e *Executor) Execute(ctx context.Context, task cfntypes.AgentTask) (cfntypes.AgentResult, error) {
	p := script.Exec(task.Instructions)
	output, err := p.String()
	if err != nil {
		return cfntypes.AgentResult{}, fmt.Errorf("shell: command failed: %w: %s", err, output)
	}
	return cfntypes.AgentResult{
		AgentID:       task.AgentID,
		Confidence:    1.0,
		HasConfidence: true,
		SelfReport:    output,
	}, nil
}
