package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

const passingScenario = `
name: frozen_on_join
description: "An unlinked session is frozen on join"
sessions:
  steve: { id: "123e4567-e89b-12d3-a456-426614174000", name: Steve }
steps:
  - { op: join, session: steve, pos: [1, 2, 3] }
assertions:
  - { type: frozen, session: steve }
`

const failingScenario = `
name: wrongly_unfrozen
description: "Expects the wrong freeze state"
sessions:
  steve: { id: "123e4567-e89b-12d3-a456-426614174000" }
steps:
  - { op: join, session: steve }
assertions:
  - { type: unfrozen, session: steve }
`

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, "", "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := execute(t, "", "test", scenarioDir(t, nil))
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := execute(t, "", "test", scenarioDir(t, nil), "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestTestCommandBundledScenarios(t *testing.T) {
	out, err := execute(t, "", "test", harnessScenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ register_then_link")
	assert.Contains(t, out, "✓ store_down")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(t, "", "test", harnessScenarios, "--filter", "sender_*", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, "sender_mismatch", resp.Data.Scenarios[0].Name)
}

func TestTestCommandFailure(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"frozen_on_join.yaml":   passingScenario,
		"wrongly_unfrozen.yaml": failingScenario,
	})

	out, err := execute(t, "", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ frozen_on_join")
	assert.Contains(t, out, "✗ wrongly_unfrozen")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"frozen_on_join.yaml": passingScenario})
	golden := filepath.Join(filepath.Dir(dir), "golden", "frozen_on_join.golden")

	_, err := execute(t, "", "test", dir, "--update")
	require.NoError(t, err)
	require.FileExists(t, golden)

	_, err = execute(t, "", "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0644))
	out, err := execute(t, "", "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"broken.yaml": "name: [unclosed"})

	out, err := execute(t, "", "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"a.yaml":    passingScenario,
		"b.yml":     passingScenario,
		"notes.txt": "ignored",
	})

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = findScenarioFiles(dir, "a")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}
