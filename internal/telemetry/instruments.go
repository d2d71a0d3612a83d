package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Scope is the instrumentation scope for all pipegate spans and metrics.
const Scope = "github.com/fyrsmithlabs/pipegate"

// Attribute keys shared by spans and metrics.
const (
	AttrRunID    = attribute.Key("pipegate.run_id")
	AttrPhase    = attribute.Key("pipegate.phase")
	AttrConfigID = attribute.Key("pipegate.config_id")
	AttrGateType = attribute.Key("pipegate.gate_type")
	AttrStatus   = attribute.Key("pipegate.status")
)

// Instruments records runner activity: one span per stage, a counter of gate
// results and a histogram of stage durations. A nil *Instruments is valid
// and records nothing.
type Instruments struct {
	tracer        oteltrace.Tracer
	gateResults   metric.Int64Counter
	stageDuration metric.Float64Histogram
}

// NewInstruments creates the runner instruments from t. A nil t uses the
// global providers, which are no-ops unless something installed real ones.
func NewInstruments(t *Telemetry) (*Instruments, error) {
	meter := t.Meter(Scope)
	gateResults, err := meter.Int64Counter("pipegate.gate.results",
		metric.WithDescription("Gate evaluations by phase, gate type and status"),
		metric.WithUnit("{gate}"),
	)
	if err != nil {
		return nil, err
	}
	stageDuration, err := meter.Float64Histogram("pipegate.stage.duration",
		metric.WithDescription("Wall time of run-stage invocations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &Instruments{
		tracer:        t.Tracer(Scope),
		gateResults:   gateResults,
		stageDuration: stageDuration,
	}, nil
}

// StartStage opens the span covering one run-stage invocation.
func (i *Instruments) StartStage(ctx context.Context, runID, phase, configID string) (context.Context, oteltrace.Span) {
	if i == nil {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	return i.tracer.Start(ctx, "pipegate.run_stage",
		oteltrace.WithAttributes(
			AttrRunID.String(runID),
			AttrPhase.String(phase),
			AttrConfigID.String(configID),
		),
	)
}

// RecordGate counts one gate result and annotates the active span.
func (i *Instruments) RecordGate(ctx context.Context, phase, gateType, status string) {
	if i == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrPhase.String(phase),
		AttrGateType.String(gateType),
		AttrStatus.String(status),
	}
	i.gateResults.Add(ctx, 1, metric.WithAttributes(attrs...))
	oteltrace.SpanFromContext(ctx).AddEvent("gate_result", oteltrace.WithAttributes(attrs...))
}

// EndStage records the stage duration and closes span. A failed primary
// gate marks the span as an error.
func (i *Instruments) EndStage(ctx context.Context, span oteltrace.Span, phase, status string, elapsed time.Duration) {
	if i == nil {
		return
	}
	i.stageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		AttrPhase.String(phase),
		AttrStatus.String(status),
	))
	span.SetAttributes(AttrStatus.String(status))
	if status == "fail" {
		span.SetStatus(codes.Error, phase+" gate failed")
	}
	span.End()
}
