package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyScenarios copies the shelf scenario and its schema into a temp dir
// without the golden file.
func copyScenarios(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0o755))

	for src, dst := range map[string]string{
		"testdata/shop.cue":             filepath.Join(dir, "shop.cue"),
		"testdata/scenarios/shelf.yaml": filepath.Join(scenarios, "shelf.yaml"),
	} {
		data, err := os.ReadFile(src)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(dst, data, 0o644))
	}
	return scenarios
}

func decodeTestResult(t *testing.T, out string) TestResult {
	t.Helper()
	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp.Data
}

func TestTestCommand_Args(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_MissingPath(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestTestCommand_Empty(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommand_Pass(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ shelf")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")

	out, err = execute(t, "--format", "json", "test", "testdata/scenarios")
	require.NoError(t, err)
	result := decodeTestResult(t, out)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, ScenarioResult{Name: "shelf", Pass: true, Golden: "match"}, result.Scenarios[0])
}

func TestTestCommand_Update(t *testing.T) {
	dir := copyScenarios(t)

	out, err := execute(t, "--format", "json", "test", dir)
	require.NoError(t, err)
	assert.Equal(t, "missing", decodeTestResult(t, out).Scenarios[0].Golden)

	out, err = execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ shelf (golden updated)")

	written, err := os.ReadFile(filepath.Join(dir, "golden", "shelf.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("testdata/scenarios/golden/shelf.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	out, err = execute(t, "--format", "json", "test", dir)
	require.NoError(t, err)
	assert.Equal(t, "match", decodeTestResult(t, out).Scenarios[0].Golden)
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := copyScenarios(t)
	require.NoError(t, writeGolden(filepath.Join(dir, "golden", "shelf.golden"), []byte("{}\n")))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ shelf")
	assert.Contains(t, out, "trace does not match golden file")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := copyScenarios(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(`
name: broken
schema: ../shop.cue
steps:
  - query: {from: Product, terminal: Count}
    expect: {value: 3}
`), 0o644))

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	result := decodeTestResult(t, out)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)

	byName := map[string]ScenarioResult{}
	for _, s := range result.Scenarios {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "broken")
	assert.False(t, byName["broken"].Pass)
	assert.NotEmpty(t, byName["broken"].Errors)
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios", "--filter", "cart-*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)

	out, err = execute(t, "test", "testdata/scenarios", "--filter", "sh*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ shelf")

	_, err = execute(t, "test", "testdata/scenarios", "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestFilterScenarios(t *testing.T) {
	files := []string{"a/cart-add.yaml", "a/cart-remove.yml", "a/shelf.yaml"}

	got, err := filterScenarios(files, "")
	require.NoError(t, err)
	assert.Equal(t, files, got)

	got, err = filterScenarios(files, "cart-*")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/cart-add.yaml", "a/cart-remove.yml"}, got)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "cart.golden"), goldenFilePath(filepath.Join("s", "cart.yaml"), "cart"))
}
