// Package logging provides per-worker structured logging using zap.
// Each worker writes to its own file under the configured log path, so
// the logs can be inspected independently, one file per daemon.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level maps the numeric level scale from the config file
// (0/10/20/30/40/50) to a zap level.
func Level(level int) zapcore.Level {
	switch {
	case level <= 10:
		return zap.DebugLevel
	case level <= 20:
		return zap.InfoLevel
	case level <= 30:
		return zap.WarnLevel
	case level <= 40:
		return zap.ErrorLevel
	default:
		return zap.FatalLevel
	}
}

// New creates a logger for the named worker, writing JSON lines to
// <path>/<name>.log and mirroring to stderr. The log directory is
// created if missing.
func New(path, name string, level int) (*zap.Logger, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log path %s: %w", path, err)
	}

	file, err := os.OpenFile(filepath.Join(path, name+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), Level(level)),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stderr), Level(level)),
	)

	return zap.New(core).Named(name), nil
}
