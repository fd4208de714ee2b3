// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package sandbox

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cfnloop/pkg/cfntypes"
)

var (
	decisionPattern = regexp.MustCompile(`(?im)^DECISION:\s*(approve|reject)\s*$`)
	confidencePattern = regexp.MustCompile(`(?im)^CONFIDENCE:\s*([01](?:\.\d+)?)\s*$`)
	reasonPattern     = regexp.MustCompile(`(?im)^REASON:\s*(.+)$`)
)

// Config fixes the image a validator task runs in and the entrypoint used
// to hand it the task's instructions.
type Config struct {
	Image string
	// Entrypoint wraps task.Instructions into the full command vector run
	// inside the container, e.g. []string{"/bin/sh", "-c", instructions}.
	Entrypoint func(instructions string) []string
}

// DefaultEntrypoint runs instructions through /bin/sh -c inside the
// container.
func DefaultEntrypoint(instructions string) []string {
	return []string{"/bin/sh", "-c", instructions}
}

// Executor runs a validator task inside a sandboxed container and parses
// its stdout for the DECISION/CONFIDENCE/REASON trailer, the same
// fixed-format contract pkg/executor/opencode expects of an LLM reply. A
// container that exits nonzero, or whose output carries no DECISION line,
// is treated as a reject vote with confidence 0 — a crashing validator must
// never read as an approval.
type Executor struct {
	docker *DockerManager
	config Config
}

// New wraps a DockerManager as a validator-swarm ValidatorExecutor.
func New(docker *DockerManager, config Config) *Executor {
	if config.Entrypoint == nil {
		config.Entrypoint = DefaultEntrypoint
	}
	return &Executor{docker: docker, config: config}
}

// Validate runs task inside a fresh container and extracts the resulting
// vote.
func (e *Executor) Validate(ctx context.Context, task cfntypes.AgentTask) (cfntypes.ValidatorVote, error) {
	cmd := e.config.Entrypoint(buildInstructions(task))
	result, err := e.docker.Run(ctx, e.config.Image, cmd)
	if err != nil {
		return cfntypes.ValidatorVote{}, fmt.Errorf("sandbox: validate: %w", err)
	}

	if result.ExitCode != 0 {
		return cfntypes.ValidatorVote{
			ValidatorID: task.AgentID,
			Decision:    cfntypes.DecisionReject,
			Confidence:  0,
			Reasons:     []string{fmt.Sprintf("sandbox exited %d", result.ExitCode)},
		}, nil
	}

	decision := cfntypes.DecisionReject
	confidence := 0.0
	if m := decisionPattern.FindStringSubmatch(result.Output); m != nil {
		if strings.EqualFold(m[1], "approve") {
			decision = cfntypes.DecisionApprove
		}
		if c := confidencePattern.FindStringSubmatch(result.Output); c != nil {
			if v, err := strconv.ParseFloat(c[1], 64); err == nil {
				confidence = v
			}
		}
	}

	return cfntypes.ValidatorVote{
		ValidatorID: task.AgentID,
		Decision:    decision,
		Confidence:  confidence,
		Reasons:     parseReasons(result.Output),
	}, nil
}

func buildInstructions(task cfntypes.AgentTask) string {
	if task.FeedbackContext == "" {
		return task.Instructions
	}
	return fmt.Sprintf("%s\n\nPrevious rejection feedback:\n%s", task.Instructions, task.FeedbackContext)
}

func parseReasons(output string) []string {
	matches := reasonPattern.FindAllStringSubmatch(output, -1)
	if matches == nil {
		return nil
	}
	reasons := make([]string, 0, len(matches))
	for _, m := range matches {
		reasons = append(reasons, strings.TrimSpace(m[1]))
	}
	return reasons
}
