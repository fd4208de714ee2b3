// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package depgraph resolves the static dependency DAGs declared between
// sprints within a phase and phases within an epic: topological ordering for
// sequencing, and per-round "ready set" computation for parallel_ready
// execution of independent branches.
//
// The topological sort is generalized from pkg/dag/scheduler.go's
// Scheduler.BuildExecutionOrder, which is itself a thin wrapper over
// github.com/gammazero/toposort; this package keeps that same "build edges,
// sort, reinsert disconnected roots" shape but exposes a round-based
// ready-set view instead of a single flat order, since sprints within a
// round can run concurrently.
package depgraph

import (
	"fmt"

	"github.com/gammazero/toposort"

	"cfnloop/pkg/cfntypes"
)

// Node is one item in a dependency graph: an ID and the IDs it depends on.
type Node struct {
	ID           string
	Dependencies []string
}

// Order returns a flat topological ordering of nodes. A cycle produces a
// *cfntypes.ConfigurationError, never a panic or partial result.
func Order(nodes []Node) ([]string, error) {
	if len(nodes) == 0 {
		return []string{}, nil
	}

	edges := make([]toposort.Edge, 0)
	for _, n := range nodes {
		for _, dep := range n.Dependencies {
			edges = append(edges, toposort.Edge{dep, n.ID})
		}
	}

	if len(edges) == 0 {
		flat := make([]string, 0, len(nodes))
		for _, n := range nodes {
			flat = append(flat, n.ID)
		}
		return flat, nil
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &cfntypes.ConfigurationError{
			Component: "depgraph",
			Reason:    "dependency cycle detected",
			Err:       fmt.Errorf("%w", err),
		}
	}

	inSorted := make(map[string]bool, len(sorted))
	flat := make([]string, 0, len(nodes))
	for _, raw := range sorted {
		name := raw.(string)
		inSorted[name] = true
		flat = append(flat, name)
	}

	for _, n := range nodes {
		if !inSorted[n.ID] {
			flat = append([]string{n.ID}, flat...)
		}
	}
	return flat, nil
}

// ReadySets groups a topologically valid node set into sequential rounds:
// round 0 holds every node with no dependencies, round N holds every node
// whose dependencies are entirely satisfied by rounds 0..N-1. All nodes
// within one round are mutually independent and may run concurrently
// (policy.swarm_config allowing); this is the structure parallel_ready
// exploits in the phase and epic orchestrators.
func ReadySets(nodes []Node) ([][]string, error) {
	if _, err := Order(nodes); err != nil {
		return nil, err
	}

	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	done := make(map[string]bool, len(nodes))
	var rounds [][]string

	for len(done) < len(nodes) {
		var round []string
		for _, n := range nodes {
			if done[n.ID] {
				continue
			}
			if allSatisfied(n.Dependencies, done) {
				round = append(round, n.ID)
			}
		}
		if len(round) == 0 {
			// Order() already rejected true cycles; a stall here means a
			// dependency named a node ID that doesn't exist in the set.
			return nil, &cfntypes.ConfigurationError{
				Component: "depgraph",
				Reason:    "dependency graph stalled: a node depends on an unknown or unresolved node",
			}
		}
		for _, id := range round {
			done[id] = true
		}
		rounds = append(rounds, round)
	}
	return rounds, nil
}

func allSatisfied(deps []string, done map[string]bool) bool {
	for _, d := range deps {
		if !done[d] {
			return false
		}
	}
	return true
}

// PhaseNodes converts an epic's phases into Node form for Order/ReadySets.
func PhaseNodes(phases []cfntypes.Phase) []Node {
	nodes := make([]Node, len(phases))
	for i, p := range phases {
		nodes[i] = Node{ID: p.ID, Dependencies: p.Dependencies}
	}
	return nodes
}

// SprintNodes converts a phase's sprints into Node form for Order/ReadySets.
func SprintNodes(sprints []cfntypes.Sprint) []Node {
	nodes := make([]Node, len(sprints))
	for i, s := range sprints {
		nodes[i] = Node{ID: s.ID, Dependencies: s.Dependencies}
	}
	return nodes
}
