// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cfnloop/pkg/cfntypes"
)

// CoordinationSecretEnv is the environment variable carrying the shared
// HMAC signing secret every coordinator on a run must agree on.
const CoordinationSecretEnv = "BLOCKING_COORDINATION_SECRET"

// LoadEpicConfig reads and parses an EpicConfig document (epic DAG plus its
// governing policy) from path. A Policy with a zero value for any of its
// iteration caps, swarm sizes, or gate thresholds is filled in from
// cfntypes.DefaultPolicy field by field, so a caller can override just the
// fields an epic needs without restating every default.
func LoadEpicConfig(path string) (*cfntypes.EpicConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read epic config %s: %w", path, err)
	}

	var ec cfntypes.EpicConfig
	if err := yaml.Unmarshal(data, &ec); err != nil {
		return nil, fmt.Errorf("config: parse epic config %s: %w", path, err)
	}

	applyPolicyDefaults(&ec.Policy)
	return &ec, nil
}

func applyPolicyDefaults(p *cfntypes.Policy) {
	d := cfntypes.DefaultPolicy()

	if p.Loop3MaxIterations == 0 {
		p.Loop3MaxIterations = d.Loop3MaxIterations
	}
	if p.Loop2MaxIterations == 0 {
		p.Loop2MaxIterations = d.Loop2MaxIterations
	}
	if p.GlobalTimeout == 0 {
		p.GlobalTimeout = d.GlobalTimeout
	}
	if p.PrimarySwarm.MaxAgents == 0 {
		p.PrimarySwarm = d.PrimarySwarm
	}
	if p.ValidatorSwarm.MaxAgents == 0 {
		p.ValidatorSwarm = d.ValidatorSwarm
	}
	if p.Gates.ConfidenceMinGate == 0 {
		p.Gates.ConfidenceMinGate = d.Gates.ConfidenceMinGate
	}
	if p.Gates.ConfidenceAvgGate == 0 {
		p.Gates.ConfidenceAvgGate = d.Gates.ConfidenceAvgGate
	}
	if p.Gates.ConsensusRateGate == 0 {
		p.Gates.ConsensusRateGate = d.Gates.ConsensusRateGate
	}
	if p.Gates.ConsensusConfGate == 0 {
		p.Gates.ConsensusConfGate = d.Gates.ConsensusConfGate
	}
}

// RequireCoordinationSecret reads BLOCKING_COORDINATION_SECRET from the
// environment. A run with no secret set has no safe way to authenticate
// signal acknowledgments between coordinators, so this fails loudly rather
// than falling back to an empty or default key.
func RequireCoordinationSecret() (string, error) {
	secret := os.Getenv(CoordinationSecretEnv)
	if secret == "" {
		return "", fmt.Errorf("config: %s must be set to a shared signing secret", CoordinationSecretEnv)
	}
	return secret, nil
}
