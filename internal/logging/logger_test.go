package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/pipegate/internal/config"
)

func bufferedLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.sink = zapcore.AddSync(&buf)
	if mutate != nil {
		mutate(cfg)
	}
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger_JSONWithContextFields(t *testing.T) {
	logger, buf := bufferedLogger(t, nil)

	ctx := WithPhase(WithRunID(context.Background(), "run-42"), "plan")
	logger.Info(ctx, "gate evaluated", zap.String("status", "pass"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "gate evaluated", entry["msg"])
	assert.Equal(t, "pipegate", entry["service"])
	assert.Equal(t, "run-42", entry["run.id"])
	assert.Equal(t, "plan", entry["phase"])
	assert.Equal(t, "pass", entry["status"])
	assert.Contains(t, entry, "ts")
}

func TestNewLogger_TraceLevelName(t *testing.T) {
	logger, buf := bufferedLogger(t, nil)
	logger.Trace(context.Background(), "trace event")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "trace", lines[0]["level"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	logger, buf := bufferedLogger(t, func(c *Config) { c.Level = zapcore.WarnLevel })
	ctx := context.Background()

	logger.Trace(ctx, "dropped")
	logger.Debug(ctx, "dropped")
	logger.Info(ctx, "dropped")
	logger.Warn(ctx, "kept")
	logger.Error(ctx, "kept")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.False(t, logger.Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Enabled(zapcore.ErrorLevel))
}

func TestNewLogger_RedactsSensitiveFields(t *testing.T) {
	logger, buf := bufferedLogger(t, nil)
	logger.Info(context.Background(), "drift engine configured",
		zap.String("token", "ghp_abcdef"),
		zap.String("header", "Bearer abc.def"),
		zap.String("command", "drift-engine"),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["token"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["header"])
	assert.Equal(t, "drift-engine", lines[0]["command"])
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	logger, buf := bufferedLogger(t, func(c *Config) { c.Format = "console" })
	logger.Warn(context.Background(), "budget exceeded")
	assert.Contains(t, buf.String(), "warn")
	assert.Contains(t, buf.String(), "budget exceeded")
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"format", func(c *Config) { c.Format = "xml" }, "format must be"},
		{"no output", func(c *Config) { c.Output.Stderr = false }, "at least one output"},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, "invalid redaction pattern"},
		{"long pattern", func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", 201)} }, "too long"},
		{"empty field", func(c *Config) { c.Fields = map[string]string{"service": ""} }, "empty value"},
		{"caller skip", func(c *Config) { c.Caller.Skip = -1 }, "caller skip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			_, err := NewLogger(cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "trace", Format: "console", Sampling: true})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Sampling.Enabled)

	cfg, err = FromSettings(config.LoggingConfig{})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}

func TestLogger_WithAndNamed(t *testing.T) {
	logger, buf := bufferedLogger(t, nil)
	logger.Named("runner").With(zap.String("config_id", "phased_default")).Info(context.Background(), "stage started")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "runner", lines[0]["logger"])
	assert.Equal(t, "phased_default", lines[0]["config_id"])
	assert.NotNil(t, logger.Underlying())
	assert.NoError(t, logger.Sync())
}
