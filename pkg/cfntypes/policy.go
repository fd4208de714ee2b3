// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package cfntypes

import "time"

// SwarmConfig bounds the concurrency and composition of one LoopRunner's
// primary or validator swarm.
type SwarmConfig struct {
	MaxAgents   int      `json:"maxAgents" yaml:"maxAgents"`
	AgentTypes  []string `json:"agentTypes,omitempty" yaml:"agentTypes,omitempty"`
	Strategy    string   `json:"strategy,omitempty" yaml:"strategy,omitempty"` // "mesh", "fixed"
}

// GateConfig holds the thresholds the confidence and consensus gates
// evaluate against.
type GateConfig struct {
	ConfidenceMinGate float64 `json:"confidenceMinGate" yaml:"confidenceMinGate"`
	ConfidenceAvgGate float64 `json:"confidenceAvgGate" yaml:"confidenceAvgGate"`
	ConsensusRateGate float64 `json:"consensusRateGate" yaml:"consensusRateGate"`
	ConsensusConfGate float64 `json:"consensusConfGate" yaml:"consensusConfGate"`
}

// Policy is the full set of tunables a deployment supplies for one epic run,
// loaded from YAML by internal/config and threaded into every orchestrator.
type Policy struct {
	Loop3MaxIterations int           `json:"loop3MaxIterations" yaml:"loop3MaxIterations"`
	Loop2MaxIterations int           `json:"loop2MaxIterations" yaml:"loop2MaxIterations"`
	AutonomousExtension bool         `json:"autonomousExtension" yaml:"autonomousExtension"`
	GlobalTimeout       time.Duration `json:"globalTimeout" yaml:"globalTimeout"`
	PrimarySwarm        SwarmConfig   `json:"primarySwarm" yaml:"primarySwarm"`
	ValidatorSwarm      SwarmConfig   `json:"validatorSwarm" yaml:"validatorSwarm"`
	Gates               GateConfig    `json:"gates" yaml:"gates"`
}

// DefaultPolicy is the policy applied to an epic with no explicit
// override.
func DefaultPolicy() Policy {
	return Policy{
		Loop3MaxIterations:  10,
		Loop2MaxIterations:  10,
		AutonomousExtension: true,
		GlobalTimeout:       30 * time.Minute,
		PrimarySwarm:        SwarmConfig{MaxAgents: 4, Strategy: "mesh"},
		ValidatorSwarm:      SwarmConfig{MaxAgents: 3, Strategy: "mesh"},
		Gates: GateConfig{
			ConfidenceMinGate: 0.75,
			ConfidenceAvgGate: 0.80,
			ConsensusRateGate: 0.90,
			ConsensusConfGate: 0.85,
		},
	}
}

// EpicConfig is the top-level document a caller submits to start an epic
// run: the DAG itself plus the policy governing it.
type EpicConfig struct {
	Epic   Epic   `json:"epic" yaml:"epic"`
	Policy Policy `json:"policy" yaml:"policy"`
}
