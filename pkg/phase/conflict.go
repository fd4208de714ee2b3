// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package phase

import (
	"cfnloop/internal/patternmatch"
	"cfnloop/pkg/cfntypes"
)

// filePatterns flattens every task's FilePatterns for one sprint.
func filePatterns(s cfntypes.Sprint) []string {
	var patterns []string
	for _, t := range s.Tasks {
		patterns = append(patterns, t.FilePatterns...)
	}
	return patterns
}

// sprintsConflict reports whether a and b declare any overlapping file
// pattern, meaning their child workflows must not run concurrently.
func sprintsConflict(a, b cfntypes.Sprint) bool {
	for _, pa := range filePatterns(a) {
		for _, pb := range filePatterns(b) {
			if patternmatch.Overlap(pa, pb) {
				return true
			}
		}
	}
	return false
}

// conflictGroups partitions one round's sprint IDs into groups that must run
// sequentially among themselves (because some pair of sprints in the group
// declares overlapping file patterns) using a simple union-find over the
// conflict graph. A sprint with no file-pattern conflicts lands alone in its
// own single-element group and still runs concurrently with every other
// group.
func conflictGroups(round []string, sprintByID map[string]cfntypes.Sprint) [][]string {
	parent := make(map[string]string, len(round))
	for _, id := range round {
		parent[id] = id
	}
	var find func(string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < len(round); i++ {
		for j := i + 1; j < len(round); j++ {
			if sprintsConflict(sprintByID[round[i]], sprintByID[round[j]]) {
				union(round[i], round[j])
			}
		}
	}

	groups := make(map[string][]string)
	for _, id := range round {
		root := find(id)
		groups[root] = append(groups[root], id)
	}

	ordered := make([][]string, 0, len(groups))
	for _, id := range round {
		if g, ok := groups[find(id)]; ok {
			ordered = append(ordered, g)
			delete(groups, find(id))
		}
	}
	return ordered
}
