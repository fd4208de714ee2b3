// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package gates

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cfnloop/pkg/cfntypes"
)

func confidenceResults(scores ...float64) []cfntypes.AgentResult {
	out := make([]cfntypes.AgentResult, len(scores))
	for i, s := range scores {
		out[i] = cfntypes.AgentResult{AgentID: "agent", Confidence: s, HasConfidence: true}
	}
	return out
}

func TestConfidenceGate_S1HappyPath(t *testing.T) {
	g := ConfidenceGate{MinGate: 0.75, AvgGate: 0.80}
	out := g.Evaluate(confidenceResults(0.80, 0.82, 0.90))
	assert.True(t, out.Passed)
}

func TestConfidenceGate_MissingConfidenceCountsAsZero(t *testing.T) {
	g := ConfidenceGate{MinGate: 0.75, AvgGate: 0.80}
	results := confidenceResults(0.90, 0.90)
	results = append(results, cfntypes.AgentResult{AgentID: "silent"}) // HasConfidence false
	out := g.Evaluate(results)

	assert.False(t, out.Passed, "any agent with no score fails the gate")
	assert.Equal(t, 0.0, out.Min)
}

func TestConfidenceGate_S2RetrySucceedsOnSecondIteration(t *testing.T) {
	g := ConfidenceGate{MinGate: 0.75, AvgGate: 0.80}

	first := g.Evaluate(confidenceResults(0.60, 0.90, 0.85))
	assert.False(t, first.Passed)

	second := g.Evaluate(confidenceResults(0.80, 0.88, 0.82))
	assert.True(t, second.Passed)
}

func approveVotes(confidences ...float64) []cfntypes.ValidatorVote {
	out := make([]cfntypes.ValidatorVote, len(confidences))
	for i, c := range confidences {
		out[i] = cfntypes.ValidatorVote{ValidatorID: "v", Decision: cfntypes.DecisionApprove, Confidence: c}
	}
	return out
}

func TestConsensusGate_S1HappyPath(t *testing.T) {
	g := ConsensusGate{RateGate: 0.90, ConfGate: 0.85}
	out := g.Evaluate(approveVotes(0.9, 0.9, 0.9, 0.9))
	assert.True(t, out.Passed)
	assert.Equal(t, 1.0, out.Rate)
}

func TestConsensusGate_S3RejectThenApprove(t *testing.T) {
	g := ConsensusGate{RateGate: 0.90, ConfGate: 0.75}

	firstVotes := []cfntypes.ValidatorVote{
		{ValidatorID: "v1", Decision: cfntypes.DecisionApprove, Confidence: 0.9},
		{ValidatorID: "v2", Decision: cfntypes.DecisionReject, Confidence: 0.5, Reasons: []string{"missing tests"}},
		{ValidatorID: "v3", Decision: cfntypes.DecisionApprove, Confidence: 0.9},
		{ValidatorID: "v4", Decision: cfntypes.DecisionApprove, Confidence: 0.9},
	}
	first := g.Evaluate(firstVotes)
	assert.False(t, first.Passed)
	assert.InDelta(t, 0.75, first.Rate, 0.001)

	rejected := RejectedVotes(firstVotes)
	assert.Len(t, rejected, 1)
	assert.Equal(t, []string{"missing tests"}, rejected[0].Reasons)

	second := g.Evaluate(approveVotes(0.9, 0.9, 0.9, 0.9))
	assert.True(t, second.Passed)
}

func TestConsensusGate_ThresholdOneRequiresUnanimity(t *testing.T) {
	g := ConsensusGate{RateGate: 1.0, ConfGate: 0.5}

	votes := []cfntypes.ValidatorVote{
		{ValidatorID: "v1", Decision: cfntypes.DecisionApprove, Confidence: 0.9},
		{ValidatorID: "v2", Decision: cfntypes.DecisionReject, Confidence: 0.9},
	}
	out := g.Evaluate(votes)
	assert.False(t, out.Passed)
}

func TestConfidenceGate_EmptyBatchNeverPasses(t *testing.T) {
	g := ConfidenceGate{MinGate: 0.5, AvgGate: 0.5}
	out := g.Evaluate(nil)
	assert.False(t, out.Passed)
}

func TestFromPolicy(t *testing.T) {
	p := cfntypes.DefaultPolicy()
	conf, cons := FromPolicy(p)
	assert.Equal(t, 0.75, conf.MinGate)
	assert.Equal(t, 0.90, cons.RateGate)
}
