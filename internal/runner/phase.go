package runner

import (
	"context"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/gate"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/internal/trace"
)

// Artifact actions accepted by RecordArtifact.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// EventResult is the output of the manual phase operations.
type EventResult struct {
	Success     bool   `json:"success"`
	RunID       string `json:"run_id"`
	Phase       string `json:"phase"`
	Event       string `json:"event"`
	Status      string `json:"status,omitempty"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
}

// GateResult is the output of RecordGate.
type GateResult struct {
	Success bool       `json:"success"`
	RunID   string     `json:"run_id"`
	Gate    *gate.Gate `json:"gate"`
}

// StartPhase marks a phase as started outside of RunStage, emitting a retry
// first when the phase's previous gate failed.
func (r *Runner) StartPhase(ctx context.Context, runID, phase string) (*EventResult, error) {
	p, err := parsePhaseFlag(phase)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithPhase(logging.WithRunID(ctx, runID), string(p))
	rn, err := r.openRun(runID)
	if err != nil {
		return nil, err
	}
	if err := r.ensureStarted(ctx, rn); err != nil {
		return nil, err
	}
	if err := r.retryIfNeeded(ctx, rn, p); err != nil {
		return nil, err
	}
	if err := r.emit(ctx, rn, trace.Event{Event: trace.PhaseStart, Phase: string(p), Status: trace.StatusOK}); err != nil {
		return nil, err
	}
	rn.state.CurrentPhase = p
	if err := r.ws.SaveRunState(rn.state); err != nil {
		return nil, err
	}
	return &EventResult{Success: true, RunID: runID, Phase: string(p), Event: string(trace.PhaseStart)}, nil
}

// EndPhase records phase_end with status ok (the default) or error.
func (r *Runner) EndPhase(ctx context.Context, runID, phase, status string) (*EventResult, error) {
	p, err := parsePhaseFlag(phase)
	if err != nil {
		return nil, err
	}
	if status == "" {
		status = trace.StatusOK
	}
	if status != trace.StatusOK && status != trace.StatusError {
		return nil, errcode.BadInputf("--status must be one of: ok, error")
	}
	ctx = logging.WithPhase(logging.WithRunID(ctx, runID), string(p))
	rn, err := r.openRun(runID)
	if err != nil {
		return nil, err
	}
	if err := r.emit(ctx, rn, trace.Event{Event: trace.PhaseEnd, Phase: string(p), Status: status}); err != nil {
		return nil, err
	}
	return &EventResult{Success: true, RunID: runID, Phase: string(p), Event: string(trace.PhaseEnd), Status: status}, nil
}

// RecordArtifact records an artifact_read or artifact_write (the default)
// for ref.
func (r *Runner) RecordArtifact(ctx context.Context, runID, phase, ref, action string) (*EventResult, error) {
	p, err := parsePhaseFlag(phase)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		return nil, errcode.BadInputf("missing required option --artifact-ref")
	}
	kind := trace.ArtifactWrite
	switch action {
	case "", ActionWrite:
	case ActionRead:
		kind = trace.ArtifactRead
	default:
		return nil, errcode.BadInputf("--action must be one of: read, write")
	}
	ctx = logging.WithPhase(logging.WithRunID(ctx, runID), string(p))
	rn, err := r.openRun(runID)
	if err != nil {
		return nil, err
	}
	if err := r.emit(ctx, rn, trace.Event{Event: kind, Phase: string(p), ArtifactRef: ref, Status: trace.StatusOK}); err != nil {
		return nil, err
	}
	return &EventResult{Success: true, RunID: runID, Phase: string(p), Event: string(kind), ArtifactRef: ref}, nil
}

// GateRequest is a manually recorded gate.
type GateRequest struct {
	RunID       string
	Phase       string
	Status      string
	GateID      string
	ArtifactRef string

	// GateFile overrides the phase's primary gate file name.
	GateFile string
}

// RecordGate writes a gate with no criteria and emits gate_result. A failed
// gate blocks on its own id.
func (r *Runner) RecordGate(ctx context.Context, req GateRequest) (*GateResult, error) {
	p, err := parsePhaseFlag(req.Phase)
	if err != nil {
		return nil, err
	}
	status, err := gate.ParseStatus(req.Status)
	if err != nil {
		return nil, errcode.BadInputf("--status must be one of: pass, warn, fail")
	}
	ctx = logging.WithPhase(logging.WithRunID(ctx, req.RunID), string(p))
	rn, err := r.openRun(req.RunID)
	if err != nil {
		return nil, err
	}

	g := &gate.Gate{
		GateID:      orDefault(req.GateID, store.GateID(p, store.GatePrimary)),
		Phase:       string(p),
		Status:      status,
		ArtifactRef: orDefault(req.ArtifactRef, notApplicable),
		Metadata:    map[string]any{"source": "record-gate"},
	}
	if status == gate.StatusFail {
		g.BlockingFailures = []string{g.GateID}
	}
	g, err = r.emitGate(ctx, rn, g, orDefault(req.GateFile, store.GateFileName(p, store.GatePrimary)))
	if err != nil {
		return nil, err
	}
	return &GateResult{Success: true, RunID: req.RunID, Gate: g}, nil
}

func parsePhaseFlag(phase string) (pipeline.Phase, error) {
	if phase == "" {
		return "", errcode.BadInputf("missing required option --phase")
	}
	p, err := pipeline.Parse(phase)
	if err != nil {
		return "", errcode.BadInputf("--%v", err)
	}
	return p, nil
}
