package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curriculum.log")
	logger, _, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)

	logger.Info("run finished", zap.String("run_id", "r1"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"r1"`)
}

func TestInvalidLevel(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	_, level, err := New(Config{Level: "info"})
	require.NoError(t, err)
	require.NoError(t, SetLevel(level, "debug"))
	assert.Equal(t, zap.DebugLevel, level.Level())
	assert.Error(t, SetLevel(level, "nope"))
	assert.Equal(t, zap.DebugLevel, level.Level())
}

func TestOutput(t *testing.T) {
	_, _, err := New(Config{Output: "stderr"})
	require.NoError(t, err)
	_, _, err = New(Config{Output: "syslog"})
	assert.Error(t, err)
}

func TestRaiseLevel(t *testing.T) {
	_, level, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	RaiseLevel(level, zapcore.WarnLevel)
	assert.Equal(t, zap.WarnLevel, level.Level())

	require.NoError(t, SetLevel(level, "error"))
	RaiseLevel(level, zapcore.WarnLevel)
	assert.Equal(t, zap.ErrorLevel, level.Level())
}
