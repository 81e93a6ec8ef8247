// Package logging builds the zap loggers used by the language server.
// Stdout belongs to the LSP wire protocol, so all logging goes to stderr
// or to an explicit log file.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Level is one of off, error, warn, info, debug, trace.
	Level string

	// File, when set, receives log output instead of stderr.
	File string
}

// Build constructs the root logger. The returned function flushes and
// must be called before process exit.
func Build(opts Options) (*zap.Logger, func(), error) {
	level, off, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if off {
		return zap.NewNop(), func() {}, nil
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if opts.File != "" {
		cfg.OutputPaths = []string{opts.File}
		cfg.ErrorOutputPaths = []string{opts.File}
	} else {
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, func() { _ = logger.Sync() }, nil
}

// parseLevel maps the CLI level names onto zap levels. The trace level
// has no zap equivalent and maps to debug.
func parseLevel(s string) (zapcore.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return 0, true, nil
	case "error":
		return zapcore.ErrorLevel, false, nil
	case "warn", "warning":
		return zapcore.WarnLevel, false, nil
	case "", "info":
		return zapcore.InfoLevel, false, nil
	case "debug", "trace":
		return zapcore.DebugLevel, false, nil
	default:
		return 0, false, fmt.Errorf("unknown log level %q", s)
	}
}
