// Package logging provides structured logging for pipegate on top of zap.
//
// Logs go to stderr, never stdout: every pipegate command prints its result
// as JSON on stdout and callers parse it. The Logger adds correlation fields
// from the context on every call:
//
//	ctx = logging.WithRunID(ctx, "run-42")
//	ctx = logging.WithPhase(ctx, "plan")
//	logger.Info(ctx, "gate evaluated", zap.String("status", "pass"))
//
// produces
//
//	{"level":"info","ts":"2026-03-01T12:00:00.000Z","msg":"gate evaluated",
//	 "service":"pipegate","run.id":"run-42","phase":"plan","status":"pass"}
//
// When a span is active its trace_id and span_id are added as well, and the
// OpenTelemetry bridge can mirror entries to a log provider.
//
// Sensitive keys (token, api_key, ...) and values matching the configured
// patterns are redacted by the encoder. Trace messages written to
// trace.jsonl are scrubbed separately by pkg/secrets.
//
// Components take their logger from the context with FromContext, which
// returns a nop logger when none is set. Tests use NewTestLogger and its
// assertion helpers.
package logging
