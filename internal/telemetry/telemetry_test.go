package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/pipegate/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Empty(t, tel.Degraded())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_WithExporterOverride(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Metrics.Enabled = false
	exp := tracetest.NewInMemoryExporter()

	tel, err := New(context.Background(), cfg, WithSpanExporter(exp))
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())

	_, span := tel.Tracer(Scope).Start(context.Background(), "pipegate.run_stage")
	span.End()
	require.NoError(t, tel.ForceFlush(context.Background()))
	require.Len(t, exp.GetSpans(), 1)
	assert.Equal(t, "pipegate.run_stage", exp.GetSpans()[0].Name)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.Degraded())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.Endpoint = "" }, ""},
		{"valid", func(*Config) {}, ""},
		{"endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint is required"},
		{"service", func(c *Config) { c.ServiceName = "" }, "service_name is required"},
		{"protocol", func(c *Config) { c.Protocol = "thrift" }, "protocol must be"},
		{"insecure remote", func(c *Config) { c.Endpoint = "otel.example.com:4317" }, "insecure connections"},
		{"secure remote", func(c *Config) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false }, ""},
		{"ipv6 loopback", func(c *Config) { c.Endpoint = "[::1]:4317" }, ""},
		{"http scheme", func(c *Config) { c.Endpoint = "http://127.0.0.1:4318"; c.Protocol = "http/protobuf" }, ""},
		{"rate", func(c *Config) { c.SampleRate = 1.5 }, "sample_rate"},
		{"interval", func(c *Config) { c.Metrics.ExportInterval = 0 }, "export interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:        true,
		Endpoint:       "collector:4317",
		ServiceName:    "pipegate-ci",
		SampleRate:     0.5,
		ExportInterval: config.Duration(time.Minute),
		Headers:        map[string]config.Secret{"x-api-key": "k"},
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4317", cfg.Endpoint)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "pipegate-ci", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, 0.5, cfg.SampleRate)
	assert.Equal(t, time.Minute, cfg.Metrics.ExportInterval.Duration())
	assert.Equal(t, map[string]string{"x-api-key": "k"}, cfg.headers())
}

func TestInstruments(t *testing.T) {
	tt := NewTestTelemetry()
	inst, err := NewInstruments(tt.Telemetry)
	require.NoError(t, err)

	ctx, span := inst.StartStage(context.Background(), "run-1", "plan", "phased_default")
	inst.RecordGate(ctx, "plan", "traceability", "warn")
	inst.RecordGate(ctx, "plan", "phase", "fail")
	inst.EndStage(ctx, span, "plan", "fail", 1500*time.Millisecond)

	got := tt.SpanByName("pipegate.run_stage")
	require.NotNil(t, got)
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Len(t, got.Events(), 2)
	tt.AssertSpanAttribute(t, "pipegate.run_stage", AttrRunID, "run-1")
	tt.AssertSpanAttribute(t, "pipegate.run_stage", AttrStatus, "fail")

	assert.Equal(t, int64(2), tt.Counter(t, "pipegate.gate.results", AttrPhase.String("plan")))
	assert.Equal(t, int64(1), tt.Counter(t, "pipegate.gate.results", AttrGateType.String("phase"), AttrStatus.String("fail")))
}

func TestInstruments_Nil(t *testing.T) {
	var inst *Instruments
	ctx, span := inst.StartStage(context.Background(), "run-1", "plan", "phased_default")
	assert.NotPanics(t, func() {
		inst.RecordGate(ctx, "plan", "phase", "pass")
		inst.EndStage(ctx, span, "plan", "pass", time.Second)
	})

	fromGlobal, err := NewInstruments(nil)
	require.NoError(t, err)
	assert.NotNil(t, fromGlobal)
}
