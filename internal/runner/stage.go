package runner

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/artifact"
	"github.com/fyrsmithlabs/pipegate/internal/drift"
	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/gate"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/policy"
	"github.com/fyrsmithlabs/pipegate/internal/schema"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/internal/taskset"
	"github.com/fyrsmithlabs/pipegate/internal/trace"
)

// PolicyToolName is the tool_name of the agent_call event that records a
// fanout decision.
const PolicyToolName = "policy-engine"

// StageRequest selects one run-stage invocation.
type StageRequest struct {
	RunID    string
	Phase    string
	ConfigID string

	// TasksetRef and TaskID pick the task whose profile steers the stage.
	TasksetRef string
	TaskID     string

	// ArtifactRef overrides the phase's default artifact file. References
	// starting with ".pipeline/" are workspace-relative; others are relative
	// to the run directory.
	ArtifactRef string
	SchemaRef   string

	// InputArtifact is a workspace-relative JSON file copied in as the
	// phase artifact instead of synthesizing one.
	InputArtifact string

	RequestedFanout *float64
	GateStatus      string

	// DriftSource is a workspace-relative document sent to the drift engine
	// during pmatch.
	DriftSource string
}

// StageResult is the outcome of RunStage. Success is false when the primary
// gate failed.
type StageResult struct {
	Success        bool              `json:"success"`
	RunID          string            `json:"run_id"`
	Phase          pipeline.Phase    `json:"phase"`
	ConfigID       pipeline.ConfigID `json:"config_id"`
	Gate           *gate.Gate        `json:"gate"`
	AuxiliaryGates []*gate.Gate      `json:"auxiliary_gates"`
	PolicyDecision *policy.Decision  `json:"policy_decision"`
	ArtifactRef    string            `json:"artifact_ref,omitempty"`
	SchemaRef      string            `json:"schema_ref,omitempty"`
}

// RunStage executes one phase: optional fanout decision, artifact
// copy/synthesis, the context budget and traceability gates, then the
// primary gate whose status is the worst of everything evaluated. A failed
// primary gate is reported through StageResult.Success, not as an error.
func (r *Runner) RunStage(ctx context.Context, req StageRequest) (result *StageResult, err error) {
	p, err := pipeline.Parse(req.Phase)
	if err != nil {
		return nil, errcode.BadInputf("unsupported phase: %s", req.Phase)
	}
	configID, err := pipeline.ParseConfigID(req.ConfigID)
	if err != nil {
		return nil, err
	}
	var desired gate.Status
	if req.GateStatus != "" {
		if desired, err = gate.ParseStatus(req.GateStatus); err != nil {
			return nil, errcode.BadInputf("--gate-status must be one of: pass, warn, fail")
		}
	}

	ctx = logging.WithRunID(ctx, req.RunID)
	ctx = logging.WithPhase(ctx, string(p))
	ctx, span := r.instruments.StartStage(ctx, req.RunID, string(p), string(configID))
	started := time.Now()
	defer func() {
		status := string(gate.StatusFail)
		if err == nil && result != nil {
			status = string(result.Gate.Status)
		}
		r.instruments.EndStage(ctx, span, string(p), status, time.Since(started))
	}()
	log := logging.FromContext(ctx)

	rn, err := r.openRun(req.RunID)
	if err != nil {
		return nil, err
	}
	rn.state.ConfigID = configID
	if err := r.ensureStarted(ctx, rn); err != nil {
		return nil, err
	}

	var task *taskset.Task
	if req.TasksetRef != "" {
		sel, err := taskset.Load(r.ws, req.TasksetRef, req.TaskID)
		if err != nil {
			return nil, err
		}
		task = sel.Task
		if err := r.emit(ctx, rn, trace.Event{
			Event:       trace.ArtifactRead,
			Phase:       string(p),
			ArtifactRef: sel.Path,
			Status:      trace.StatusOK,
		}); err != nil {
			return nil, err
		}
	}
	profile := task.Profile(configID, p)

	if err := r.retryIfNeeded(ctx, rn, p); err != nil {
		return nil, err
	}
	if err := r.emit(ctx, rn, trace.Event{Event: trace.PhaseStart, Phase: string(p), Status: trace.StatusOK}); err != nil {
		return nil, err
	}

	var decision *policy.Decision
	if p.UsesFanout() {
		if decision, err = r.decideFanout(ctx, rn, p, profile, req.RequestedFanout); err != nil {
			return nil, err
		}
	}

	var budget *store.ContextBudget
	if b, ok := r.config.BudgetFor(p); ok {
		budget = &b
	}

	artifactRef := orDefault(req.ArtifactRef, artifact.DefaultRef(p))
	schemaRef := orDefault(req.SchemaRef, schema.PhaseRef(p))
	var doc artifact.Document
	if artifactRef != "" {
		doc, artifactRef, err = r.stageArtifact(ctx, rn, p, artifactRef, req, artifact.Request{
			Phase:    p,
			RunID:    rn.id,
			ConfigID: configID,
			Task:     task,
			Profile:  profile,
			Decision: decision,
			Budget:   budget,
		})
		if err != nil {
			return nil, err
		}
		if doc != nil {
			rn.state.RecordArtifact(p, artifactRef)
		}
	}

	var statuses []gate.Status
	auxiliary := []*gate.Gate{}

	if doc != nil && budget != nil && p.Gated() {
		g, err := r.contextBudgetGate(ctx, rn, p, doc, orDefault(artifactRef, notApplicable), schemaRef, *budget)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, g.Status)
		auxiliary = append(auxiliary, g)
	}

	if p.NeedsTraceability() {
		g, err := r.traceabilityGate(ctx, rn, p)
		if err != nil {
			return nil, err
		}
		// A traceability warn is advisory (shadow mode, missing design or
		// drift hops) and leaves the primary status alone; fail feeds it.
		if g.Status == gate.StatusFail {
			statuses = append(statuses, g.Status)
		}
		auxiliary = append(auxiliary, g)
	}

	if desired == "" {
		desired = profile.DesiredStatus()
	}
	primary, err := r.primaryGate(ctx, rn, p, configID, doc, artifactRef, schemaRef, desired, statuses)
	if err != nil {
		return nil, err
	}

	endStatus := trace.StatusOK
	if primary.Status == gate.StatusFail {
		endStatus = trace.StatusError
	}
	if err := r.emit(ctx, rn, trace.Event{
		Event:    trace.PhaseEnd,
		Phase:    string(p),
		Status:   endStatus,
		Metadata: map[string]any{"gate_status": string(primary.Status)},
	}); err != nil {
		return nil, err
	}

	rn.state.CurrentPhase = p
	rn.state.CompleteGate(primary.GateID)
	if err := r.ws.SaveRunState(rn.state); err != nil {
		return nil, err
	}

	result = &StageResult{
		Success:        primary.Status != gate.StatusFail,
		RunID:          rn.id,
		Phase:          p,
		ConfigID:       configID,
		Gate:           primary,
		AuxiliaryGates: auxiliary,
		PolicyDecision: decision,
		ArtifactRef:    artifactRef,
		SchemaRef:      schemaRef,
	}

	if !result.Success {
		if err := r.emit(ctx, rn, trace.Event{
			Event:   trace.Error,
			Phase:   string(p),
			Status:  trace.StatusError,
			Message: string(p) + " gate failed",
			GateID:  primary.GateID,
		}); err != nil {
			return nil, err
		}
		log.Warn(ctx, "stage gate failed",
			zap.String("gate_id", primary.GateID),
			zap.Strings("blocking_failures", primary.BlockingFailures),
		)
		return result, nil
	}
	log.Info(ctx, "stage completed",
		zap.String("gate_status", string(primary.Status)),
		zap.Int("auxiliary_gates", len(auxiliary)),
	)
	return result, nil
}

// decideFanout runs the fanout policy for adversarial-review and build and
// records the decision as a policy-engine agent_call.
func (r *Runner) decideFanout(ctx context.Context, rn *run, p pipeline.Phase, profile taskset.Profile, override *float64) (*policy.Decision, error) {
	var totals policy.Totals
	summary, found, err := trace.LoadSummary(r.ws, rn.id)
	if err != nil {
		return nil, err
	}
	if found {
		totals = policy.Totals{TotalCostUSD: summary.TotalCostUSD, TotalDurationS: summary.TotalDurationS}
	} else {
		events, err := rn.log.Read()
		if err != nil {
			return nil, err
		}
		s, _ := trace.Summarize(events)
		totals = policy.Totals{TotalCostUSD: s.TotalCostUSD, TotalDurationS: s.TotalDurationS}
	}

	pol := r.config.OrchestrationPolicy
	capSetting := pol.MaxBuilders
	if p == pipeline.AdversarialReview {
		capSetting = pol.MaxReviewers
	}
	requested := firstSet(override, profile.RequestedFanout, capSetting, policy.Float(1))

	decision := policy.DecideFanout(policy.Input{
		Phase:               p,
		Policy:              pol,
		Totals:              totals,
		RequestedFanout:     requested,
		QualityGainEstimate: profile.QualityGain,
		CostPerAgentUSD:     profile.CostPerAgentUSD,
		CoordinationCost:    profile.CoordinationCost,
	})
	logging.FromContext(ctx).Debug(ctx, "fanout decided",
		zap.Int("chosen_fanout", decision.ChosenFanout),
		zap.Int("requested_fanout", decision.RequestedFanout),
		zap.String("reason", decision.Reason),
	)

	if err := r.emit(ctx, rn, trace.Event{
		Event:    trace.AgentCall,
		Phase:    string(p),
		Status:   trace.StatusOK,
		ToolName: PolicyToolName,
		Metadata: map[string]any{"policy_decision": decision},
	}); err != nil {
		return nil, err
	}
	return &decision, nil
}

// stageArtifact produces the phase artifact at ref: a copy of the input
// artifact, a drift engine report, a synthesized artifact, or an existing
// file. It returns the document (nil when there is none) and the
// workspace-relative ref.
func (r *Runner) stageArtifact(ctx context.Context, rn *run, p pipeline.Phase, ref string, req StageRequest, synth artifact.Request) (artifact.Document, string, error) {
	abs, err := r.ws.ResolveArtifact(rn.id, ref)
	if err != nil {
		return nil, "", err
	}
	rel, err := r.ws.Relative(abs)
	if err != nil {
		return nil, "", err
	}

	var doc artifact.Document
	switch {
	case req.InputArtifact != "":
		inputAbs, err := r.ws.Resolve(req.InputArtifact)
		if err != nil {
			return nil, "", err
		}
		inputRel, err := r.ws.Relative(inputAbs)
		if err != nil {
			return nil, "", err
		}
		if err := r.readEvent(ctx, rn, p, inputRel); err != nil {
			return nil, "", err
		}
		if doc, err = artifact.Load(inputAbs); err != nil {
			return nil, "", err
		}

	case p == pipeline.PMatch && req.DriftSource != "" && r.detector != nil:
		if doc, err = r.detectDrift(ctx, rn, p, req.DriftSource, synth); err != nil {
			return nil, "", err
		}

	default:
		if doc, err = r.synth.SynthesizeDocument(synth); err != nil {
			return nil, "", err
		}
		if doc == nil {
			if _, statErr := os.Stat(abs); statErr != nil {
				return nil, rel, nil
			}
			if err := r.readEvent(ctx, rn, p, rel); err != nil {
				return nil, "", err
			}
			loaded, err := artifact.Load(abs)
			if err != nil {
				return nil, "", err
			}
			return loaded, rel, nil
		}
	}

	if err := store.WriteJSON(abs, doc); err != nil {
		return nil, "", err
	}
	if err := r.emit(ctx, rn, trace.Event{
		Event:       trace.ArtifactWrite,
		Phase:       string(p),
		ArtifactRef: rel,
		Status:      trace.StatusOK,
	}); err != nil {
		return nil, "", err
	}
	return doc, rel, nil
}

// detectDrift sends the drift source to the drift engine and turns its
// claims into the pmatch report. The brief is the comparison target.
func (r *Runner) detectDrift(ctx context.Context, rn *run, p pipeline.Phase, source string, synth artifact.Request) (artifact.Document, error) {
	abs, err := r.ws.Resolve(source)
	if err != nil {
		return nil, err
	}
	rel, err := r.ws.Relative(abs)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, errcode.BadInputf("drift source not found: %s", source)
	}
	if err := r.readEvent(ctx, rn, p, rel); err != nil {
		return nil, err
	}

	target := orDefault(rn.state.Artifacts.Brief, artifact.DefaultRef(pipeline.Arm))
	mode := artifact.DriftMode(synth.ConfigID, synth.Profile)
	resp, err := r.detector.Detect(ctx, drift.NewRequest(string(content), drift.DocumentPlan, target, mode))
	if err != nil {
		return nil, err
	}

	report := resp.Report()
	if report.SourceDocument == nil {
		report.SourceDocument = &artifact.DocumentRef{Type: drift.DocumentPlan, Ref: rel}
	}
	if report.TargetDocument == nil {
		report.TargetDocument = &artifact.DocumentRef{Type: "brief", Ref: target}
	}
	report.Context = artifact.BuildManifest(p, synth.Profile, synth.Budget, r.now())
	return artifact.ToDocument(report)
}

// primaryGate records the phase gate. Gated phases with an artifact and a
// schema run the gate engine; everything else records the desired status.
func (r *Runner) primaryGate(ctx context.Context, rn *run, p pipeline.Phase, configID pipeline.ConfigID, doc artifact.Document, artifactRef, schemaRef string, desired gate.Status, statuses []gate.Status) (*gate.Gate, error) {
	g := &gate.Gate{
		GateID: store.GateID(p, store.GatePrimary),
		Phase:  string(p),
		Metadata: map[string]any{
			"gate_type":  string(store.GatePrimary),
			"schema_ref": schemaRef,
			"config_id":  string(configID),
		},
	}

	if doc != nil && schemaRef != "" && p.Gated() {
		result, err := r.engine.Evaluate(ctx, gate.Input{
			Artifact:    doc,
			ArtifactRef: artifactRef,
			SchemaRef:   schemaRef,
			Phase:       string(p),
			Criteria:    []gate.Criterion{},
		})
		if err != nil {
			return nil, err
		}
		g.Status = gate.WorstStatus(append([]gate.Status{result.Status, desired}, statuses...)...)
		g.Criteria = result.Criteria
		g.ArtifactRef = orDefault(artifactRef, result.ArtifactRef)
		g.SchemaValidation = result.SchemaValidation
		if g.Status == gate.StatusFail {
			g.BlockingFailures = result.BlockingFailures
			if len(g.BlockingFailures) == 0 {
				g.BlockingFailures = []string{criterionPhaseStatus}
			}
		}
	} else {
		g.Status = gate.WorstStatus(append([]gate.Status{desired}, statuses...)...)
		g.ArtifactRef = orDefault(artifactRef, notApplicable)
		if g.Status == gate.StatusFail {
			g.BlockingFailures = []string{criterionPhaseStatus}
		}
	}
	return r.emitGate(ctx, rn, g, store.GateFileName(p, store.GatePrimary))
}

func (r *Runner) readEvent(ctx context.Context, rn *run, p pipeline.Phase, ref string) error {
	return r.emit(ctx, rn, trace.Event{
		Event:       trace.ArtifactRead,
		Phase:       string(p),
		ArtifactRef: ref,
		Status:      trace.StatusOK,
	})
}

func firstSet(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
