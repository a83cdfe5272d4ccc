package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)
	return scenario
}

func TestRun_AppendSequencing(t *testing.T) {
	scenario := loadTestdata(t, "append_sequencing.yaml")
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed(), "%v", result.Errors)
}

func TestRun_SessionClosure(t *testing.T) {
	scenario := loadTestdata(t, "session_closure.yaml")
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed(), "%v", result.Errors)
}

func TestRun_CascadeDelete(t *testing.T) {
	scenario := loadTestdata(t, "cascade_delete.yaml")
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed(), "%v", result.Errors)
}

func TestLoadScenario_UnknownOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	content := `
name: bad
description: "uses an unknown op"
steps:
  - op: teleport_session
    args: {}
assertions: []
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown op")
}
