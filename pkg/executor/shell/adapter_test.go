// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"cfnloop/pkg/cfntypes"
)

func TestExecutor_Execute_Success(t *testing.T) {
	e := New()
	result, err := e.Execute(context.Background(), cfntypes.AgentTask{AgentID: "agent-0", Instructions: "echo hello"})
	require.NoError(t, err)
	require.True(t, result.HasConfidence)
	require.Equal(t, 1.0, result.Confidence)
	require.Contains(t, result.SelfReport, "hello")
}

func TestExecutor_Execute_CommandFailure(t *testing.T) {
	e := New()
	_, err := e.Execute(context.Background(), cfntypes.AgentTask{AgentID: "agent-0", Instructions: "exit 1"})
	require.Error(t, err)
}
