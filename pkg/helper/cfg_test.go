package helper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCfgPath(t *testing.T) {
	// panic on empty
	assert.Panics(t, func() { GetCfgPath("") })

	// absolute path returns as-is
	abs := "/tmp/test.yaml"
	assert.Equal(t, abs, GetCfgPath(abs))

	// use temp dir
	old, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(old) })

	tmp := t.TempDir()
	require.NoError(t, os.Chdir(tmp))

	// not present anywhere: falls back to /etc/broker
	assert.Equal(t, filepath.Join("/etc/broker", "broker.yaml"), GetCfgPath("broker.yaml"))

	// present in cwd
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "broker.yaml"), []byte("port: 1\n"), 0o644))
	got := GetCfgPath("broker.yaml")
	assert.Equal(t, "broker.yaml", filepath.Base(got))
	assert.True(t, filepath.IsAbs(got))

	// present in ./configs
	require.NoError(t, os.Remove(filepath.Join(tmp, "broker.yaml")))
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "configs", "broker.yaml"), []byte("port: 1\n"), 0o644))
	got = GetCfgPath("broker.yaml")
	assert.Contains(t, got, filepath.Join("configs", "broker.yaml"))
}
