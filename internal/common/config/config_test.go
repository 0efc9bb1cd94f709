package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
port: 9090
logger:
  level: debug
  format: console
history:
  capacity: 50
`)

	cfg, gotPath, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, gotPath)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, 50, cfg.History.Capacity)
	assert.Equal(t, "broker", cfg.Metrics.Namespace)
}

func TestLoadConfig_PortFromEnvPlaceholder(t *testing.T) {
	path := writeConfig(t, "port: ${PORT:8080}\n")

	t.Setenv("PORT", "9999")
	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
}

func TestLoadConfig_PlaceholderDefault(t *testing.T) {
	path := writeConfig(t, "port: ${BROKER_TEST_UNSET_PORT:8080}\n")

	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadConfig_DefaultPort(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n")

	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("BROKER_TEST_VALUE", "from-env")

	out := resolveEnv([]byte("a: ${BROKER_TEST_VALUE}\nb: ${BROKER_TEST_MISSING:fallback}\n"))
	assert.Equal(t, "a: from-env\nb: fallback\n", string(out))
}
