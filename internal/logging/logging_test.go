package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/aquatrack/internal/conf"
)

func TestNewFileLoggerWritesToFile(t *testing.T) {
	logConf := conf.LogConfig{
		Enabled:  true,
		Path:     filepath.Join(t.TempDir(), "core.log"),
		Rotation: conf.RotationDaily,
	}

	logger, closeFn, err := NewFileLogger(logConf, "assimilation", slog.LevelInfo)
	require.NoError(t, err)

	logger.Info("recompute completed", "assignment_id", 42)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(logConf.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"assimilation"`)
	assert.Contains(t, string(data), "recompute completed")
	assert.Contains(t, string(data), `"assignment_id":42`)
}

func TestNewFileLoggerRespectsLevel(t *testing.T) {
	logConf := conf.LogConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "warn.log"),
	}

	logger, closeFn, err := NewFileLogger(logConf, "http", slog.LevelWarn)
	require.NoError(t, err)

	logger.Info("suppressed")
	logger.Warn("kept")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(logConf.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed")
	assert.Contains(t, string(data), "kept")
}

func TestNewFileLoggerCreatesDirectory(t *testing.T) {
	logConf := conf.LogConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "logs", "nested", "core.log"),
	}

	logger, closeFn, err := NewFileLogger(logConf, "serve", slog.LevelInfo)
	require.NoError(t, err)
	logger.Info("started")
	require.NoError(t, closeFn())

	_, err = os.Stat(logConf.Path)
	require.NoError(t, err)
}

func TestInitFileLoggingRoutesForService(t *testing.T) {
	prev := structuredLogger
	t.Cleanup(func() {
		structuredLogger = prev
		if prev != nil {
			slog.SetDefault(prev)
		}
	})

	logConf := conf.LogConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "main.log"),
	}

	closeFn, err := InitFileLogging(logConf)
	require.NoError(t, err)

	ForService("scheduler").Info("scheduler started", "workers", 4)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(logConf.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"scheduler"`)
	assert.Contains(t, string(data), "scheduler started")
}
