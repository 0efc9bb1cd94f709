package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remoteview/broker/internal/common/config"
)

func TestNewLogger_Defaults(t *testing.T) {
	cfg := &config.LoggerConfig{}
	lg, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, lg)

	// defaults applied in place
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestNewLogger_ConsoleWithColor(t *testing.T) {
	lg, err := NewLogger(&config.LoggerConfig{Level: "debug", Format: "console", Color: true})
	require.NoError(t, err)
	lg.Debug("console logger works")
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "broker.log")
	lg, err := NewLogger(&config.LoggerConfig{Output: "file", FilePath: path})
	require.NoError(t, err)
	lg.Info("file logger works")
	require.NoError(t, lg.Sync())

	assert.FileExists(t, path)
}

func TestNewLogger_InvalidLevelFallsBack(t *testing.T) {
	lg, err := NewLogger(&config.LoggerConfig{Level: "shouting"})
	require.NoError(t, err)
	require.NotNil(t, lg)
}
