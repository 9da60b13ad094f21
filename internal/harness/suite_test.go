package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const scenariosDir = "../../testdata/scenarios"

// TestRepositoryScenarios runs every scenario shipped in testdata/scenarios,
// comparing golden traces where present.
func TestRepositoryScenarios(t *testing.T) {
	paths, err := FindScenarios(scenariosDir, "")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			sr := RunFile(context.Background(), path, SuiteOptions{Logger: zaptest.NewLogger(t)})
			assert.True(t, sr.Pass, "errors: %v", sr.Errors)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt", "nested/c.yaml", "golden/a.golden", "golden/stray.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	paths, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, paths)

	paths, err = FindScenarios(dir, "[ab]")
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	_, err = FindScenarios(dir, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")

	_, err = FindScenarios(filepath.Join(dir, "missing"), "")
	assert.Error(t, err)
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t, filepath.Join("x", "golden", "case.golden"), GoldenPath(filepath.Join("x", "case.yaml")))
}

// copyScenario copies a repository scenario into a temp dir with its
// definitions, so golden files can be written.
func copyScenario(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "defs"), 0o755))
	for _, def := range []string{"article.cue", "memo.cue"} {
		data, err := os.ReadFile(filepath.Join("../../testdata/defs", def))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "defs", def), data, 0o644))
	}

	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0o755))
	data, err := os.ReadFile(filepath.Join(scenariosDir, name))
	require.NoError(t, err)
	path := filepath.Join(scenarios, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunFile_GoldenLifecycle(t *testing.T) {
	path := copyScenario(t, "memo_rows.yaml")
	ctx := context.Background()

	sr := RunFile(ctx, path, SuiteOptions{})
	assert.True(t, sr.Pass, sr.Errors)
	assert.Empty(t, sr.Golden, "no golden file yet")
	assert.Equal(t, "memo_rows", sr.Name)

	sr = RunFile(ctx, path, SuiteOptions{Update: true})
	assert.True(t, sr.Pass, sr.Errors)
	assert.Equal(t, GoldenUpdated, sr.Golden)
	assert.FileExists(t, GoldenPath(path))

	sr = RunFile(ctx, path, SuiteOptions{})
	assert.True(t, sr.Pass, sr.Errors)
	assert.Equal(t, GoldenMatched, sr.Golden)

	require.NoError(t, os.WriteFile(GoldenPath(path), []byte(`{"scenario_name":"memo_rows","trace":[]}`), 0o644))
	sr = RunFile(ctx, path, SuiteOptions{})
	assert.False(t, sr.Pass)
	assert.Equal(t, GoldenMismatch, sr.Golden)
	assert.Contains(t, sr.Errors[0], "trace does not match golden file")
}

func TestRunSuite_Summary(t *testing.T) {
	good := copyScenario(t, "row_quota.yaml")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\n"), 0o644))

	result := RunSuite(context.Background(), []string{good, bad}, SuiteOptions{})
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)

	require.Len(t, result.Scenarios, 2)
	assert.Equal(t, "row_quota", result.Scenarios[0].Name)
	assert.Equal(t, "bad.yaml", result.Scenarios[1].Name)
	assert.Contains(t, result.Scenarios[1].Errors[0], "failed to load scenario")
}
