package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerWithOptions(t *testing.T) {
	t.Run("should write entries to the rotating log file", func(t *testing.T) {
		// Arrange
		logFile := filepath.Join(t.TempDir(), "logs", "corpusprep.log")

		// Act
		logger, err := NewLoggerWithOptions(Options{Level: "debug", File: logFile})
		require.NoError(t, err)
		logger.Info("segment written", zap.String("path", "speaker/a_0.wav"))
		_ = logger.Sync()

		// Assert
		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"segment written"`)
		assert.Contains(t, string(data), `"path":"speaker/a_0.wav"`)
	})

	t.Run("should filter entries below the configured level", func(t *testing.T) {
		// Arrange
		logFile := filepath.Join(t.TempDir(), "warn.log")

		// Act
		logger, err := NewLoggerWithOptions(Options{Level: "warn", File: logFile})
		require.NoError(t, err)
		logger.Info("hidden")
		logger.Warn("shown")
		_ = logger.Sync()

		// Assert
		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "hidden")
		assert.Contains(t, string(data), "shown")
	})

	t.Run("should reject an unknown level", func(t *testing.T) {
		// Act
		logger, err := NewLoggerWithOptions(Options{Level: "loud"})

		// Assert
		assert.Error(t, err)
		assert.Nil(t, logger)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		expected zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		level, err := ParseLevel(tt.name)
		assert.NoError(t, err)
		assert.Equal(t, tt.expected, level, "level %q", tt.name)
	}
}
