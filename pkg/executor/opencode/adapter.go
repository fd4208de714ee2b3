// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package opencode adapts the existing OpenCode SDK executor
// (cfnloop/internal/opencode, wrapping github.com/sst/opencode-sdk-go) into
// the pkg/executor.AgentExecutor and pkg/executor.ValidatorExecutor
// contracts primary and validator swarms run through.
//
// Confidence and consensus scores never come back as structured fields from
// an LLM's free-text reply; this package extracts them from a fixed-format
// trailer every CFN prompt template instructs the agent to emit
// ("CONFIDENCE: 0.87", "DECISION: approve", "REASON: ..."). A reply that
// omits the trailer — an agent that ignored instructions, or crashed
// mid-response — produces a result with HasConfidence false, which the
// confidence gate treats as 0 rather than silently excluding the agent.
package opencode

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cfnloop/internal/opencode"
	"cfnloop/pkg/cfntypes"
)

var (
	confidencePattern = regexp.MustCompile(`(?im)^CONFIDENCE:\s*([01](?:\.\d+)?)\s*$`)
	decisionPattern   = regexp.MustCompile(`(?im)^DECISION:\s*(approve|reject)\s*$`)
	reasonPattern     = regexp.MustCompile(`(?im)^REASON:\s*(.+)$`)
)

// Adapter wraps an *opencode.ExecutorImpl (the SDK-backed prompt executor in
// internal/opencode) to satisfy both primary-agent and validator-agent
// contracts.
type Adapter struct {
	executor *opencode.ExecutorImpl
}

// New wraps executor for use as a primary-swarm AgentExecutor and a
// validator-swarm ValidatorExecutor.
func New(executor *opencode.ExecutorImpl) *Adapter {
	return &Adapter{executor: executor}
}

// Execute runs one primary-swarm AgentTask and extracts its self-reported
// confidence.
func (a *Adapter) Execute(ctx context.Context, task cfntypes.AgentTask) (cfntypes.AgentResult, error) {
	req := &opencode.ExecuteRequest{
		TaskID: task.AgentID,
		Prompt: buildPrompt(task),
	}

	resp, err := a.executor.Execute(ctx, req)
	if err != nil {
		return cfntypes.AgentResult{}, fmt.Errorf("opencode: execute: %w", err)
	}
	if !resp.Success {
		return cfntypes.AgentResult{}, fmt.Errorf("opencode: %s", resp.ErrorMessage)
	}

	confidence, has := parseConfidence(resp.Output)
	return cfntypes.AgentResult{
		AgentID:       task.AgentID,
		Confidence:    confidence,
		HasConfidence: has,
		Artifacts:     resp.FilesModified,
		SelfReport:    resp.Output,
	}, nil
}

// Validate runs one validator-swarm AgentTask and extracts its decision,
// confidence, and stated reasons. A reply with no DECISION trailer is
// treated as a reject with confidence 0, the same "absence is not silent
// success" rule Execute applies to HasConfidence.
func (a *Adapter) Validate(ctx context.Context, task cfntypes.AgentTask) (cfntypes.ValidatorVote, error) {
	req := &opencode.ExecuteRequest{
		TaskID: task.AgentID,
		Prompt: buildPrompt(task),
	}

	resp, err := a.executor.Execute(ctx, req)
	if err != nil {
		return cfntypes.ValidatorVote{}, fmt.Errorf("opencode: validate: %w", err)
	}
	if !resp.Success {
		return cfntypes.ValidatorVote{
			ValidatorID: task.AgentID,
			Decision:    cfntypes.DecisionReject,
			Confidence:  0,
			Reasons:     []string{resp.ErrorMessage},
		}, nil
	}

	decision := cfntypes.DecisionReject
	confidence := 0.0
	if m := decisionPattern.FindStringSubmatch(resp.Output); m != nil {
		if strings.EqualFold(m[1], "approve") {
			decision = cfntypes.DecisionApprove
		}
		confidence, _ = parseConfidence(resp.Output)
	}

	return cfntypes.ValidatorVote{
		ValidatorID: task.AgentID,
		Decision:    decision,
		Confidence:  confidence,
		Reasons:     parseReasons(resp.Output),
	}, nil
}

func buildPrompt(task cfntypes.AgentTask) string {
	if task.FeedbackContext == "" {
		return task.Instructions
	}
	return fmt.Sprintf("%s\n\nFeedback from the previous validation round:\n%s", task.Instructions, task.FeedbackContext)
}

func parseConfidence(output string) (float64, bool) {
	m := confidencePattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
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
