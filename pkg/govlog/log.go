// Package govlog provides the structured logger used throughout the
// governor: a zap.SugaredLogger wrapper that rotates to disk via lumberjack
// when a log file is configured, and otherwise writes a human-readable
// console encoding.
package govlog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the package-wide logger instance. Replaced by CreateLogger
// during startup; safe to use before that, when it is zap's example logger
// (JSON lines on stdout).
var Logger = &governorLogger{zap.NewExample().Sugar()}

// ParseLogLevel parses a case-insensitive level name ("debug", "info",
// "warn", "error"); the empty string defaults to info.
func ParseLogLevel(s string) (zap.AtomicLevel, error) {
	if s == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return zap.NewAtomicLevelAt(lvl), nil
}

// CreateLoggerWithLumberjack builds a JSON-encoded logger that rotates
// logFile once it exceeds maxSizeMB.
func CreateLoggerWithLumberjack(logFile string, maxSizeMB int, level zapcore.Level) *governorLogger {
	writer := &lumberjack.Logger{
		Filename: logFile,
		MaxSize:  maxSizeMB,
		Compress: true,
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer), level)
	return &governorLogger{zap.New(core).Sugar()}
}

// CreateLogger builds the package logger: a file logger when logFile is
// non-empty, otherwise a console logger at the given level.
func CreateLogger(level zap.AtomicLevel, logFile string) *governorLogger {
	if logFile != "" {
		return CreateLoggerWithLumberjack(logFile, 100, level.Level())
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	l, err := cfg.Build()
	if err != nil {
		// fall back to a bare example logger; logging must never panic startup
		return &governorLogger{zap.NewExample().Sugar()}
	}
	return &governorLogger{l.Sugar()}
}

// governorLogger narrows errors that are really just context cancellation
// down to a warning, so routine shutdown doesn't look like a fatal bug in
// aggregated logs.
type governorLogger struct {
	*zap.SugaredLogger
}

func (l *governorLogger) Errorw(msg string, keysAndValues ...interface{}) {
	for i := 1; i < len(keysAndValues); i += 2 {
		if err, ok := keysAndValues[i].(error); ok && errors.Is(err, context.Canceled) {
			l.SugaredLogger.Warnw(msg, keysAndValues...)
			return
		}
	}
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}
