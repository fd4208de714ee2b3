// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package gates evaluates the two quality gates that decide whether a
// LoopRunner advances out of Loop 3 (confidence) or Loop 2 (consensus).
//
// The two gates are independent value types, each with its own Evaluate
// method and Outcome; the LoopRunner evaluates each one at its own loop
// level rather than running them as a chain.
package gates

import (
	"cfnloop/pkg/cfntypes"
)

// Gate is the surface the gates share: a stable name used in logs and gate
// results. Evaluation is a method on each concrete gate type.
type Gate interface {
	Name() string
}

// ConfidenceGate implements Loop 3's exit condition:
// min(confidences) ≥ MinGate AND mean(confidences) ≥ AvgGate. A result with
// HasConfidence false counts as confidence 0; such a result is never
// dropped from the batch.
type ConfidenceGate struct {
	MinGate float64
	AvgGate float64
}

func (g ConfidenceGate) Name() string { return "confidence_gate" }

// Outcome holds the computed statistics and pass/fail verdict for one gate
// evaluation, so callers can record the values in LoopState history without
// recomputing them.
type Outcome struct {
	Passed bool
	Min    float64
	Mean   float64
	Rate   float64 // consensus gate only; zero for confidence gate
}

// Evaluate scores a set of primary-agent results against the confidence
// gate. An empty batch never passes (there is nothing to have confidence
// in).
func (g ConfidenceGate) Evaluate(results []cfntypes.AgentResult) Outcome {
	if len(results) == 0 {
		return Outcome{}
	}

	min := 1.0
	sum := 0.0
	for _, r := range results {
		c := r.Confidence
		if !r.HasConfidence {
			c = 0
		}
		if c < min {
			min = c
		}
		sum += c
	}
	mean := sum / float64(len(results))

	return Outcome{
		Passed: min >= g.MinGate && mean >= g.AvgGate,
		Min:    min,
		Mean:   mean,
	}
}

// ConsensusGate implements Loop 2's exit condition:
// approval_rate ≥ RateGate AND mean(validator_confidence) ≥ ConfGate.
// Abstentions are not representable in ValidatorVote (every vote carries a
// Decision); a caller that cannot reach a validator in time must itself
// synthesize a reject vote with confidence 0 before calling Evaluate: a late
// or missing vote must always count as a reject.
type ConsensusGate struct {
	RateGate float64
	ConfGate float64
}

func (g ConsensusGate) Name() string { return "consensus_gate" }

// Evaluate scores a set of validator votes against the consensus gate.
func (g ConsensusGate) Evaluate(votes []cfntypes.ValidatorVote) Outcome {
	if len(votes) == 0 {
		return Outcome{}
	}

	approvals := 0
	sum := 0.0
	for _, v := range votes {
		if v.Decision == cfntypes.DecisionApprove {
			approvals++
		}
		sum += v.Confidence
	}
	rate := float64(approvals) / float64(len(votes))
	mean := sum / float64(len(votes))

	return Outcome{
		Passed: rate >= g.RateGate && mean >= g.ConfGate,
		Mean:   mean,
		Rate:   rate,
	}
}

// RejectedVotes extracts the subset of votes that rejected, for feedback
// packet aggregation by the caller.
func RejectedVotes(votes []cfntypes.ValidatorVote) []cfntypes.ValidatorVote {
	var rejected []cfntypes.ValidatorVote
	for _, v := range votes {
		if v.Decision == cfntypes.DecisionReject {
			rejected = append(rejected, v)
		}
	}
	return rejected
}

// FromPolicy builds the two gates governing one Policy's loop runs.
func FromPolicy(p cfntypes.Policy) (ConfidenceGate, ConsensusGate) {
	return ConfidenceGate{
			MinGate: p.Gates.ConfidenceMinGate,
			AvgGate: p.Gates.ConfidenceAvgGate,
		}, ConsensusGate{
			RateGate: p.Gates.ConsensusRateGate,
			ConfGate: p.Gates.ConsensusConfGate,
		}
}
