package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/config"
)

func writeRepoFixture(t *testing.T, root string) {
	t.Helper()
	files := map[string]string{
		"README.md": "# Tool Discovery\n\nThe registry supports tool discovery over the protocol.\n",
		"docs/manual.md": "# Manual Registration\n\nProviders register tools manually with the registry.\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func writeTestConfig(t *testing.T, dir, repoRoot string) string {
	t.Helper()
	cfg := config.NewConfig()
	cfg.DataDir = filepath.Join(dir, ".knowbase")
	cfg.Repositories = []config.RepositoryConfig{
		{Name: "alpha", Root: repoRoot},
	}
	path := filepath.Join(dir, "knowbase.yaml")
	require.NoError(t, cfg.Save(path))
	return path
}

func TestRunCmd_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	repoRoot := filepath.Join(dir, "alpha")
	writeRepoFixture(t, repoRoot)
	cfgPath := writeTestConfig(t, dir, repoRoot)

	out, err := execute(t, "--config", cfgPath, "run", "--skip-check")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")

	out, err = execute(t, "--config", cfgPath, "stats", "--json")
	require.NoError(t, err)

	var stats struct {
		Concepts int `json:"concepts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Greater(t, stats.Concepts, 0)

	out, err = execute(t, "--config", cfgPath, "search", "--json", "tool")
	require.NoError(t, err)

	var resp struct {
		Results []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.NotEmpty(t, resp.Results)
}

func TestRunCmd_NoRepositories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.DataDir = filepath.Join(dir, ".knowbase")
	path := filepath.Join(dir, "knowbase.yaml")
	require.NoError(t, cfg.Save(path))

	_, err := execute(t, "--config", path, "run", "--skip-check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no repositories")
}
