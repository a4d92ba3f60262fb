package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_KeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerFromZap(zap.New(core)).With("component", "test")

	logger.Info("Run completed", "run_id", 42, "results", 3)
	logger.Debug("detail")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Run completed", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, int64(42), ctx["run_id"])
	assert.Equal(t, "test", ctx["component"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := NewLoggerFromZap(zap.New(core))

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown")

	assert.Equal(t, 2, logs.Len())
}

func TestSetLogLevel(t *testing.T) {
	prev := atomicLevel.Level()
	defer atomicLevel.SetLevel(prev)

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, atomicLevel.Level())

	require.NoError(t, SetLogLevel("ERROR"))
	assert.Equal(t, zapcore.ErrorLevel, atomicLevel.Level())

	assert.Error(t, SetLogLevel("loud"))
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.Error("ignored", "k", "v")
	})
}
