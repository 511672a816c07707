package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8420", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Solver.MaxIterations)
	assert.Equal(t, 10*time.Second, cfg.Solver.MaxExecutionTime)
	assert.Equal(t, "python3", cfg.Sandbox.PythonPath)
	require.NoError(t, cfg.validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pips.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
model:
  provider: anthropic
  model: claude-sonnet-4-5
solver:
  max_iterations: 4
  max_execution_time: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, 4, cfg.Solver.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.Solver.MaxExecutionTime)

	// Untouched sections keep defaults.
	assert.Equal(t, "python3", cfg.Sandbox.PythonPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PIPS_ADDR", ":7777")
	t.Setenv("PIPS_MODEL", "gpt-4o-mini")
	t.Setenv("PIPS_MAX_ITERATIONS", "3")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Model)
	assert.Equal(t, 3, cfg.Solver.MaxIterations)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
}

func TestLoad_AnthropicKeyFallback(t *testing.T) {
	t.Setenv("PIPS_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "ant-test")
	t.Setenv("OPENAI_API_KEY", "sk-ignored")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ant-test", cfg.Model.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("PIPS_PROVIDER", "llamacloud")
	_, err := Load("")
	assert.ErrorContains(t, err, "unknown provider")

	t.Setenv("PIPS_PROVIDER", "openai")
	t.Setenv("PIPS_MAX_ITERATIONS", "-1")
	_, err = Load("")
	assert.ErrorContains(t, err, "max_iterations")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
