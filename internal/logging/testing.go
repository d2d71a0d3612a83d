package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry at TraceLevel and above for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a TestLogger with the default config.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// Reset drops everything recorded so far.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

func (t *TestLogger) logged(level zapcore.Level, msgContains string) bool {
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return true
		}
	}
	return false
}

// AssertLogged fails tb unless an entry at level contains msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if !t.logged(level, msgContains) {
		tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, t.observed.All())
	}
}

// AssertNotLogged fails tb if an entry at level contains msgContains.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if t.logged(level, msgContains) {
		tb.Errorf("unexpected log at %v containing %q", level, msgContains)
	}
}

// hasField reports whether any entry with message msg carries key=expected.
func (t *TestLogger) hasField(msg, key string, expected any) bool {
	for _, entry := range t.observed.FilterMessage(msg).All() {
		for _, field := range entry.Context {
			if field.Key != key {
				continue
			}
			if field.Type == zapcore.StringType && field.String == expected {
				return true
			}
			if reflect.DeepEqual(field.Interface, expected) {
				return true
			}
		}
	}
	return false
}

func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected any) {
	tb.Helper()
	if !t.hasField(msg, key, expected) {
		tb.Errorf("field %q=%v not found in message %q", key, expected, msg)
	}
}

// AssertRunCorrelation checks that msg was logged with run.id=runID.
func (t *TestLogger) AssertRunCorrelation(tb testing.TB, msg, runID string) {
	tb.Helper()
	if !t.hasField(msg, "run.id", runID) {
		tb.Errorf("message %q missing run.id=%s", msg, runID)
	}
}

// AssertNoSecrets fails tb when a field named like one of the default
// sensitive keys carries an unredacted string. Pattern matches are checked
// in messages and string fields alike.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), NewDefaultConfig().Redaction)
	if err != nil {
		tb.Fatalf("default redaction config: %v", err)
	}
	for _, entry := range t.observed.All() {
		if enc.value(entry.Message) != entry.Message {
			tb.Errorf("sensitive pattern in message: %q", entry.Message)
		}
		for _, field := range entry.Context {
			if field.Type != zapcore.StringType || field.String == "" {
				continue
			}
			if enc.sensitive(field.Key) && !strings.HasPrefix(field.String, "[REDACTED") {
				tb.Errorf("sensitive field %q not redacted: %q", field.Key, field.String)
			}
			if enc.value(field.String) != field.String {
				tb.Errorf("sensitive pattern in field %q: %q", field.Key, field.String)
			}
		}
	}
}
