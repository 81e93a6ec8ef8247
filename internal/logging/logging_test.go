package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
		off  bool
		err  bool
	}{
		{"off", 0, true, false},
		{"error", zapcore.ErrorLevel, false, false},
		{"warn", zapcore.WarnLevel, false, false},
		{"warning", zapcore.WarnLevel, false, false},
		{"info", zapcore.InfoLevel, false, false},
		{"", zapcore.InfoLevel, false, false},
		{"debug", zapcore.DebugLevel, false, false},
		{"trace", zapcore.DebugLevel, false, false},
		{"DEBUG", zapcore.DebugLevel, false, false},
		{"verbose", 0, false, true},
	}
	for _, tt := range tests {
		level, off, err := parseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, "level %q", tt.in)
			continue
		}
		require.NoError(t, err, "level %q", tt.in)
		assert.Equal(t, tt.off, off, "level %q", tt.in)
		if !off {
			assert.Equal(t, tt.want, level, "level %q", tt.in)
		}
	}
}

func TestBuildOffIsNop(t *testing.T) {
	logger, flush, err := Build(Options{Level: "off"})
	require.NoError(t, err)
	defer flush()
	assert.NotNil(t, logger)
	logger.Info("discarded")
}

func TestBuildRejectsUnknownLevel(t *testing.T) {
	_, _, err := Build(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestBuildToFile(t *testing.T) {
	path := t.TempDir() + "/kotlin-ls.log"
	logger, flush, err := Build(Options{Level: "debug", File: path})
	require.NoError(t, err)
	logger.Info("hello")
	flush()

	assert.FileExists(t, path)
}
