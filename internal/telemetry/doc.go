// Package telemetry provides OpenTelemetry instrumentation for pipegate.
//
// Telemetry is off by default. When enabled, spans and metrics are exported
// over OTLP (gRPC or HTTP) to a collector:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sample_rate: 1.0
//	  export_interval: 15s
//
// The runner records through Instruments: one pipegate.run_stage span per
// stage, the pipegate.gate.results counter (phase, gate type, status) and the
// pipegate.stage.duration histogram. Provider failures degrade to no-ops and
// never fail a command.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
