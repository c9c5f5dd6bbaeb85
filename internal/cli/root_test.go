package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MemHarness/internal/llm"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memharness.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigCommandMasksSecrets(t *testing.T) {
	path := writeConfig(t, `
network:
  api_key: topsecret
llm:
  provider: anthropic
  api_key: sk-ant-123
scale:
  points: [10, 20]
`)
	out, err := run(t, "--config", path, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: anthropic")
	assert.Contains(t, out, "- 10")
	assert.NotContains(t, out, "topsecret")
	assert.NotContains(t, out, "sk-ant-123")
	assert.Contains(t, out, "********")
}

func TestGlobalFlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, "output:\n  markdown: false\n")
	root := NewRootCommand()
	root.SetArgs([]string{"--config", path, "--markdown", "--duckdb", "runs.duckdb", "config"})
	var out bytes.Buffer
	root.SetOut(&out)
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "markdown: true")
	assert.Contains(t, out.String(), "duckdb_path: runs.duckdb")
}

func TestMissingConfigFileFails(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "config")
	assert.ErrorContains(t, err, "not found")
}

func TestEvalUnknownProviderIsConfigError(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")
	_, err := run(t, "--config", path, "eval", "--provider", "nope", "--dataset", "unused.json")

	var cfgErr *llm.ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "nope", cfgErr.Provider)
}

func TestEvalRejectsUnknownPath(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "items.json")
	require.NoError(t, os.WriteFile(dataset, []byte(`[{"question_id":"q1","question":"?","choices":["a","b"],"correct_choice_index":0}]`), 0o644))
	path := writeConfig(t, "logging:\n  level: error\n")

	_, err := run(t, "--config", path, "eval",
		"--provider", "llamacpp", "--dataset", dataset, "--path", "carrier-pigeon")
	assert.ErrorContains(t, err, "unknown memory path")
}

func TestScaleEmbeddedOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a small sweep")
	}
	dir := t.TempDir()
	path := writeConfig(t, `
memory:
  temp_dir: `+filepath.Join(dir, "roots")+`
scale:
  query_iterations: 1
  aux_iterations: 1
logging:
  level: error
`)
	output := filepath.Join(dir, "scale.json")
	_, err := run(t, "--config", path, "scale", "--points", "5,10", "--no-network", "--output", output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var rep struct {
		Points []struct {
			MemoryCount int             `json:"memory_count"`
			Embedded    json.RawMessage `json:"embedded"`
			Network     json.RawMessage `json:"network"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(data, &rep))
	require.Len(t, rep.Points, 2)
	assert.Equal(t, 5, rep.Points[0].MemoryCount)
	assert.NotEqual(t, "null", string(rep.Points[0].Embedded))
	assert.True(t, len(rep.Points[0].Network) == 0 || string(rep.Points[0].Network) == "null")

	roots, err := os.ReadDir(filepath.Join(dir, "roots"))
	require.NoError(t, err)
	assert.Empty(t, roots, "disposable roots are removed")
}
