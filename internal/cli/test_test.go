package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

const failingScenario = `name: wrong_expectation
description: Undoing an operation that was never recorded cannot succeed
now: "2025-03-10T09:00:00Z"
timezone: UTC
cabinet: |
  medicines: vitamina: {
  	name: "Vitamina D"
  	packages: box: units: 5
  }
flow:
  - action: undo
    args: {target: never-recorded, operation_id: undo-1}
    expect: {outcome: recorded}
assertions:
  - type: trace_count
    action: undo
    count: 1
`

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	golden := t.TempDir()

	out, err := runTestCommand(t, "text", scenariosDir, "--golden-dir", golden, "--update")
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(golden, "intake_undo.golden"))
	assert.FileExists(t, filepath.Join(golden, "missed_dose.golden"))

	out, err = runTestCommand(t, "text", scenariosDir, "--golden-dir", golden)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ intake_undo")
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
	assert.Contains(t, out, "All scenarios passed")
}

func TestTestCommandDetectsGoldenDrift(t *testing.T) {
	golden := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(golden, "intake_undo.golden"), []byte("{}\n"), 0o644))

	out, err := runTestCommand(t, "json", scenariosDir, "--golden-dir", golden, "--filter", "intake*")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	assert.Equal(t, ErrCodeTestFailed, response.Error.Code)
	require.Len(t, response.Data.Scenarios, 1)
	assert.Contains(t, response.Data.Scenarios[0].Errors[0], "does not match golden file")
}

func TestTestCommandReportsFailedAssertion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(failingScenario), 0o644))

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_expectation")
	assert.Contains(t, out, "1 failed")
}

func TestTestHelpText(t *testing.T) {
	out, err := runTestCommand(t, "text", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "conformance")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
	assert.Contains(t, out, "--golden-dir")
	assert.Contains(t, out, "scenarios-dir")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "intake-undo.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "intake-twice.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "purchase.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "intake-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	for _, f := range files {
		assert.Contains(t, filepath.Base(f), "intake-")
	}

	_, err = findScenarioFiles(tmpDir, "[")
	require.Error(t, err)
}

func TestFindScenarioFilesSkipsGoldenDir(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	goldenDir := filepath.Join(tmpDir, "golden")
	require.NoError(t, os.MkdirAll(subDir, 0755))
	require.NoError(t, os.MkdirAll(goldenDir, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "stray.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
