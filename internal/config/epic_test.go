// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cfnloop/pkg/cfntypes"
)

func writeEpicConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "epic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEpicConfig_FillsPolicyDefaults(t *testing.T) {
	path := writeEpicConfig(t, `
epic:
  epicId: epic-1
  name: Example Epic
policy:
  loop3MaxIterations: 5
`)

	ec, err := LoadEpicConfig(path)
	require.NoError(t, err)
	require.Equal(t, "epic-1", ec.Epic.ID)
	require.Equal(t, 5, ec.Policy.Loop3MaxIterations)

	d := cfntypes.DefaultPolicy()
	require.Equal(t, d.Loop2MaxIterations, ec.Policy.Loop2MaxIterations)
	require.Equal(t, d.PrimarySwarm, ec.Policy.PrimarySwarm)
	require.Equal(t, d.Gates, ec.Policy.Gates)
}

func TestLoadEpicConfig_MissingFile(t *testing.T) {
	_, err := LoadEpicConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRequireCoordinationSecret(t *testing.T) {
	t.Setenv(CoordinationSecretEnv, "")
	_, err := RequireCoordinationSecret()
	require.Error(t, err)

	t.Setenv(CoordinationSecretEnv, "super-secret")
	secret, err := RequireCoordinationSecret()
	require.NoError(t, err)
	require.Equal(t, "super-secret", secret)
}
