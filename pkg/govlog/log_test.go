package govlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestCreateLoggerWithLumberjackBasic(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	logger := CreateLoggerWithLumberjack(logFile, 5, zapcore.InfoLevel)
	require.NotNil(t, logger)

	logger.Info("hello governor")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "hello governor")
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		name        string
		in          string
		want        zapcore.Level
		expectError bool
	}{
		{"empty defaults to info", "", zapcore.InfoLevel, false},
		{"debug", "debug", zapcore.DebugLevel, false},
		{"warn", "warn", zapcore.WarnLevel, false},
		{"bogus", "not-a-level", zapcore.InfoLevel, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lvl, err := ParseLogLevel(tc.in)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, lvl.Level())
		})
	}
}

func TestErrorwDowngradesContextCanceled(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "canceled.log")
	logger := CreateLoggerWithLumberjack(logFile, 1, zapcore.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger.Errorw("stopped", "error", ctx.Err())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "stopped")
	assert.Contains(t, string(content), `"level":"warn"`)
	assert.True(t, errors.Is(ctx.Err(), context.Canceled))
}
