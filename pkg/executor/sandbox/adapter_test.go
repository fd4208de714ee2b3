// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cfnloop/pkg/cfntypes"
)

func TestBuildInstructions_NoFeedback(t *testing.T) {
	task := cfntypes.AgentTask{Instructions: "review the diff"}
	require.Equal(t, "review the diff", buildInstructions(task))
}

func TestBuildInstructions_AppendsFeedback(t *testing.T) {
	task := cfntypes.AgentTask{Instructions: "review the diff", FeedbackContext: "missing tests"}
	require.Contains(t, buildInstructions(task), "missing tests")
	require.Contains(t, buildInstructions(task), "review the diff")
}

func TestParseReasons_Multiple(t *testing.T) {
	output := "DECISION: reject\nREASON: missing tests\nREASON: no docs\n"
	require.Equal(t, []string{"missing tests", "no docs"}, parseReasons(output))
}

func TestParseReasons_None(t *testing.T) {
	require.Nil(t, parseReasons("DECISION: approve\n"))
}

func TestDefaultEntrypoint(t *testing.T) {
	require.Equal(t, []string{"/bin/sh", "-c", "echo hi"}, DefaultEntrypoint("echo hi"))
}
