// Package runner drives a pipeline run one phase at a time.
//
// Every operation appends to the run's trace, writes gate files under the
// run's gates directory and advances the run state. The runner never keeps
// state between calls: each invocation re-reads what it needs from the
// workspace, so separate processes may drive the same run in sequence.
package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/artifact"
	"github.com/fyrsmithlabs/pipegate/internal/drift"
	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/events"
	"github.com/fyrsmithlabs/pipegate/internal/gate"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/schema"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/internal/telemetry"
	"github.com/fyrsmithlabs/pipegate/internal/trace"
	"github.com/fyrsmithlabs/pipegate/internal/traceability"
	"github.com/fyrsmithlabs/pipegate/pkg/secrets"
)

// Gate metadata values.
const (
	modeEnforce = "enforce"
	modeShadow  = "shadow"

	// notApplicable labels gates that have no artifact.
	notApplicable = "n/a"

	eventSource = "runner"
)

// Runner executes phase operations against one workspace.
type Runner struct {
	ws     *store.Workspace
	config store.PipelineConfig

	validator    schema.Validator
	engine       *gate.Engine
	traceability *traceability.Evaluator
	collector    *trace.Collector
	synth        *artifact.Synthesizer
	detector     drift.Detector
	scrubber     secrets.Scrubber
	instruments  *telemetry.Instruments
	publisher    events.Publisher
	now          func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithDetector sets the drift engine consulted by pmatch stages that name a
// drift source.
func WithDetector(d drift.Detector) Option {
	return func(r *Runner) {
		r.detector = d
	}
}

// WithScrubber redacts secrets from trace messages.
func WithScrubber(s secrets.Scrubber) Option {
	return func(r *Runner) {
		if s != nil {
			r.scrubber = s
		}
	}
}

// WithInstruments records stage spans and gate counters.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(r *Runner) {
		r.instruments = i
	}
}

// WithPublisher forwards every trace event to p after it is written.
func WithPublisher(p events.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithClock overrides the wall clock for events, gates and artifacts.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a runner for ws. cfg is the pipeline config loaded for this
// invocation; v validates artifacts against their contracts.
func New(ws *store.Workspace, cfg store.PipelineConfig, v schema.Validator, opts ...Option) (*Runner, error) {
	if ws == nil {
		return nil, errcode.New(errcode.MissingDependency, "workspace is required")
	}
	if v == nil {
		return nil, errcode.New(errcode.MissingDependency, "schema validator is not configured")
	}
	r := &Runner{
		ws:        ws,
		config:    cfg,
		validator: v,
		scrubber:  secrets.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.engine = &gate.Engine{Validator: v, Now: r.now}
	r.traceability = &traceability.Evaluator{Validator: v}
	r.collector = &trace.Collector{Validator: v}
	r.synth = &artifact.Synthesizer{Now: r.now}
	return r, nil
}

// Workspace returns the runner's workspace.
func (r *Runner) Workspace() *store.Workspace {
	return r.ws
}

// run is the per-invocation handle on one run's trace and state.
type run struct {
	id    string
	log   *trace.Log
	state *store.RunState
}

func (r *Runner) openRun(runID string) (*run, error) {
	log, err := trace.Open(r.ws, runID, trace.WithScrubber(r.scrubber), trace.WithClock(r.now))
	if err != nil {
		return nil, err
	}
	state, err := r.ws.LoadRunState(runID)
	if err != nil {
		return nil, err
	}
	return &run{id: runID, log: log, state: state}, nil
}

// emit appends e to the run's trace and forwards the stored event to the
// publisher. The trace is the record; publish failures are only logged.
func (r *Runner) emit(ctx context.Context, rn *run, e trace.Event) error {
	stored, err := rn.log.Append(ctx, e)
	if err != nil {
		return err
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, stored); err != nil {
			logging.FromContext(ctx).Warn(ctx, "failed to publish trace event",
				zap.String("event", string(stored.Event)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// ensureStarted appends run_start unless the trace already has one.
func (r *Runner) ensureStarted(ctx context.Context, rn *run) error {
	started, err := rn.log.Has(trace.RunStart)
	if err != nil || started {
		return err
	}
	phase := string(rn.state.CurrentPhase)
	if phase == "" {
		phase = string(pipeline.Arm)
	}
	return r.emit(ctx, rn, trace.Event{
		Event:    trace.RunStart,
		Phase:    phase,
		Status:   trace.StatusOK,
		Metadata: map[string]any{"source": eventSource},
	})
}

// ensureEnded appends run_end unless the trace already has one.
func (r *Runner) ensureEnded(ctx context.Context, rn *run) error {
	ended, err := rn.log.Has(trace.RunEnd)
	if err != nil || ended {
		return err
	}
	phase := string(rn.state.CurrentPhase)
	if phase == "" {
		phase = string(pipeline.ReleaseReadiness)
	}
	return r.emit(ctx, rn, trace.Event{
		Event:    trace.RunEnd,
		Phase:    phase,
		Status:   trace.StatusOK,
		Metadata: map[string]any{"source": eventSource},
	})
}

// retryIfNeeded appends a retry event when the phase's last primary gate
// failed. The count is the number of earlier retries for the phase plus one.
func (r *Runner) retryIfNeeded(ctx context.Context, rn *run, p pipeline.Phase) error {
	var prev gate.Gate
	found, err := r.ws.ReadGate(rn.id, store.GateFileName(p, store.GatePrimary), &prev)
	if err != nil {
		return err
	}
	if !found || prev.Status != gate.StatusFail {
		return nil
	}
	n, err := rn.log.Count(trace.Retry, string(p))
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Info(ctx, "retrying failed phase",
		zap.String("gate_id", prev.GateID),
		zap.Int("retry_count", n+1),
	)
	return r.emit(ctx, rn, trace.Event{
		Event:  trace.Retry,
		Phase:  string(p),
		Status: trace.StatusRetry,
		GateID: prev.GateID,
		Metadata: map[string]any{
			"retry_count":      n + 1,
			"previous_gate_id": prev.GateID,
			"previous_status":  string(prev.Status),
		},
	})
}

// emitGate stamps g, writes it to fileName under the run's gates directory
// and records a gate_result event.
func (r *Runner) emitGate(ctx context.Context, rn *run, g *gate.Gate, fileName string) (*gate.Gate, error) {
	if _, err := gate.ParseStatus(string(g.Status)); err != nil {
		return nil, err
	}
	if g.Criteria == nil {
		g.Criteria = []gate.CriterionResult{}
	}
	if g.BlockingFailures == nil {
		g.BlockingFailures = []string{}
	}
	if g.ArtifactRef == "" {
		g.ArtifactRef = notApplicable
	}
	if g.SchemaValidation.Errors == nil {
		if !g.SchemaValidation.Valid {
			g.SchemaValidation = schema.OK()
		} else {
			g.SchemaValidation.Errors = []string{}
		}
	}
	if g.Metadata == nil {
		g.Metadata = map[string]any{}
	}
	g.Timestamp = pipeline.Timestamp(r.now())

	if err := r.ws.WriteGate(rn.id, fileName, g); err != nil {
		return nil, err
	}
	if err := r.emit(ctx, rn, trace.Event{
		Event:       trace.GateResult,
		Phase:       g.Phase,
		GateID:      g.GateID,
		Status:      string(g.Status),
		ArtifactRef: g.ArtifactRef,
		Metadata:    g.Metadata,
	}); err != nil {
		return nil, err
	}

	gateType, _ := g.Metadata["gate_type"].(string)
	r.instruments.RecordGate(ctx, g.Phase, gateType, string(g.Status))
	logging.FromContext(ctx).Debug(ctx, "gate recorded",
		zap.String("gate_id", g.GateID),
		zap.String("gate_type", gateType),
		zap.String("status", string(g.Status)),
	)
	return g, nil
}

func enforceMode(enforce bool) string {
	if enforce {
		return modeEnforce
	}
	return modeShadow
}
