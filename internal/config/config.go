// Package config loads process configuration for pipegate.
//
// Configuration is read from an optional pipegate.yaml and overridden by
// PIPEGATE_* environment variables. Pipeline behaviour (feature flags,
// orchestration policy, context budgets) is not configured here; it lives in
// the workspace's .pipeline/pipeline-state.json.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete pipegate process configuration.
type Config struct {
	Workspace WorkspaceConfig `koanf:"workspace"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Secrets   SecretsConfig   `koanf:"secrets"`
	Drift     DriftConfig     `koanf:"drift"`
	Events    EventsConfig    `koanf:"events"`
}

// WorkspaceConfig locates the workspace the runner operates on.
type WorkspaceConfig struct {
	Root string `koanf:"root"`
	// SchemaRoot is where schema refs resolve before the embedded contracts.
	// Defaults to Root.
	SchemaRoot string `koanf:"schema_root"`
}

// LoggingConfig holds the user-facing logging knobs.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
	OTEL     bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	SampleRate     float64  `koanf:"sample_rate"`
	ExportInterval Duration `koanf:"export_interval"`
	// Headers are sent with every OTLP export, typically an API key.
	Headers map[string]Secret `koanf:"headers"`
}

// SecretsConfig controls redaction of trace messages.
type SecretsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistFile string `koanf:"allowlist_file"`
}

// DriftConfig configures the external drift adjudication engine.
type DriftConfig struct {
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
	Timeout Duration `koanf:"timeout"`
}

// EventsConfig enables publishing trace events to NATS. An empty NATSURL
// disables publishing.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "pipegate",
			SampleRate:     1.0,
			ExportInterval: Duration(15 * time.Second),
		},
		Secrets: SecretsConfig{
			Enabled: true,
		},
		Drift: DriftConfig{
			Timeout: Duration(2 * time.Minute),
		},
		Events: EventsConfig{
			SubjectPrefix: "pipegate.runs",
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	var errs []error
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http/protobuf":
	default:
		errs = append(errs, fmt.Errorf("telemetry.protocol must be grpc or http/protobuf, got %q", c.Telemetry.Protocol))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate))
	}
	if c.Drift.Timeout.Duration() <= 0 {
		errs = append(errs, errors.New("drift.timeout must be positive"))
	}
	return errors.Join(errs...)
}

// SchemaRoot returns the directory schema refs resolve under.
func (c *Config) SchemaRoot() string {
	if c.Workspace.SchemaRoot != "" {
		return c.Workspace.SchemaRoot
	}
	return c.Workspace.Root
}
