package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := New(level)
		require.NoError(t, err, "level %s", level)
		require.NotNil(t, logger)
		_ = logger.Sync()
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	logger, err := New("")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestWaBridgeWritesThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	wa := Wa(logger, "Client")
	wa.Infof("connected to %s", "server")
	wa.Warnf("retry %d", 3)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "connected to server", entries[0].Message)
	assert.Equal(t, "Client", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestWaSubNamesChild(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	wa := Wa(logger, "Database").Sub("Migrations")
	wa.Debugf("step %d", 1)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Database.Migrations", entries[0].LoggerName)
}
