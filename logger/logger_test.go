package logger

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromEnv(t *testing.T) {
	originalValue := os.Getenv("OPENCLAW_LOG_LEVEL")
	defer os.Setenv("OPENCLAW_LOG_LEVEL", originalValue)

	tests := []struct {
		name          string
		envValue      string
		expectedLevel LogLevel
	}{
		{
			name:          "trace level",
			envValue:      "trace",
			expectedLevel: LevelTrace,
		},
		{
			name:          "debug level",
			envValue:      "debug",
			expectedLevel: LevelDebug,
		},
		{
			name:          "info level",
			envValue:      "info",
			expectedLevel: LevelInfo,
		},
		{
			name:          "warn level",
			envValue:      "warn",
			expectedLevel: LevelWarn,
		},
		{
			name:          "error level",
			envValue:      "error",
			expectedLevel: LevelError,
		},
		{
			name:          "uppercase trace",
			envValue:      "TRACE",
			expectedLevel: LevelTrace,
		},
		{
			name:          "empty string",
			envValue:      "",
			expectedLevel: LevelInfo, // Default value
		},
		{
			name:          "invalid value",
			envValue:      "invalid",
			expectedLevel: LevelInfo, // Default value
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("OPENCLAW_LOG_LEVEL", tt.envValue)

			level := GetLevelFromEnv()

			assert.Equal(t, tt.expectedLevel, level)
		})
	}
}

func TestLogLevelConstants(t *testing.T) {
	assert.Equal(t, LogLevel(0), LevelTrace)
	assert.Equal(t, LogLevel(1), LevelDebug)
	assert.Equal(t, LogLevel(2), LevelInfo)
	assert.Equal(t, LogLevel(3), LevelWarn)
	assert.Equal(t, LogLevel(4), LevelError)
	assert.Equal(t, LogLevel(5), LevelNone)
}

func TestConsoleLoggerLevelEnabled(t *testing.T) {
	l := NewConsoleLogger(LevelWarn)
	assert.False(t, l.IsLevelEnabled(LevelDebug))
	assert.False(t, l.IsLevelEnabled(LevelInfo))
	assert.True(t, l.IsLevelEnabled(LevelWarn))
	assert.True(t, l.IsLevelEnabled(LevelError))
}

func TestConsoleLoggerWithIsolation(t *testing.T) {
	base := NewConsoleLogger(LevelInfo).(*consoleLogger)
	child := base.With(map[string]interface{}{"vm_id": "vm-1"}).(*consoleLogger)
	assert.Empty(t, base.metadata)
	assert.Equal(t, "vm-1", child.metadata["vm_id"])

	prefixed := child.WithPrefix("queue").(*consoleLogger)
	assert.Empty(t, child.prefixes)
	assert.Equal(t, []string{"queue"}, prefixed.prefixes)

	// adding the same prefix twice should not duplicate it
	again := prefixed.WithPrefix("queue").(*consoleLogger)
	assert.Equal(t, []string{"queue"}, again.prefixes)
}
