// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package patternmatch glob-matches the FilePatterns carried on a CFN Task
// or AgentTask, the primitive pkg/phase's conflictGroups uses to decide
// whether two sprints in the same dependency round would write the same
// files and must therefore run serially instead of concurrently.
package patternmatch

import (
	"path/filepath"
)

// Match reports whether filePath matches the glob pattern, also trying just
// the basename so a pattern like "*.go" matches a task's FilePatterns entry
// "internal/foo/bar.go" without the caller having to strip the directory.
func Match(filePath, pattern string) (bool, error) {
	matched, err := filepath.Match(pattern, filePath)
	if err != nil {
		return false, err
	}
	if matched {
		return true, nil
	}

	// Also try matching just the basename
	basename := filepath.Base(filePath)
	return filepath.Match(pattern, basename)
}

// Overlap reports whether two FilePatterns entries (one per sprint) could
// both match the same file — symmetric, since either pattern may be the
// more specific one.
func Overlap(pattern1, pattern2 string) bool {
	if pattern1 == pattern2 {
		return true
	}

	// Try matching in both directions (symmetric)
	match1, _ := filepath.Match(pattern1, pattern2)
	match2, _ := filepath.Match(pattern2, pattern1)

	return match1 || match2
}

// MatchAny reports whether filePath matches any pattern in a sprint's
// FilePatterns.
func MatchAny(filePath string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, _ := Match(filePath, pattern); matched {
			return true
		}
	}
	return false
}
