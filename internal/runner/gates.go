package runner

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/pipegate/internal/artifact"
	"github.com/fyrsmithlabs/pipegate/internal/gate"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/sanitize"
	"github.com/fyrsmithlabs/pipegate/internal/schema"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/internal/trace"
	"github.com/fyrsmithlabs/pipegate/internal/traceability"
)

// Criterion names owned by the runner.
const (
	criterionManifestPresent = "context-manifest-present"
	criterionFilesMax        = "context-files-max"
	criterionTokenMax        = "context-token-max"
	criterionInputsPresent   = "traceability-inputs-present"
	criterionPhaseStatus     = "phase-status"
)

// contextBudgetGate checks the artifact's context manifest against the
// phase's budget. Without context_budget_v1 a failure is recorded as warn.
func (r *Runner) contextBudgetGate(ctx context.Context, rn *run, p pipeline.Phase, doc artifact.Document, artifactRef, schemaRef string, budget store.ContextBudget) (*gate.Gate, error) {
	enforce := r.config.Enabled(store.FlagContextBudget)
	fileName := store.GateFileName(p, store.GateContextBudget)
	gateID := store.GateID(p, store.GateContextBudget)

	if _, ok := doc["context_manifest"].(map[string]any); !ok {
		status := gate.Downgrade(gate.StatusFail, enforce)
		g := &gate.Gate{
			GateID:      gateID,
			Phase:       string(p),
			Status:      status,
			ArtifactRef: artifactRef,
			Criteria: []gate.CriterionResult{{
				Name:     criterionManifestPresent,
				Passed:   false,
				Evidence: "context_manifest is missing",
			}},
			Metadata: map[string]any{
				"gate_type": string(store.GateContextBudget),
				"mode":      enforceMode(enforce),
			},
		}
		if status == gate.StatusFail {
			g.BlockingFailures = []string{criterionManifestPresent}
		}
		return r.emitGate(ctx, rn, g, fileName)
	}

	result, err := r.engine.Evaluate(ctx, gate.Input{
		Artifact:    doc,
		ArtifactRef: artifactRef,
		SchemaRef:   schema.ContextManifestGateRef,
		Phase:       string(p),
		Criteria: []gate.Criterion{
			{Name: criterionFilesMax, Type: gate.CountMax, Path: "context_manifest.files_loaded", Value: budget.FilesMax},
			{Name: criterionTokenMax, Type: gate.NumberMax, Path: "context_manifest.token_estimate", Value: budget.TokenMax},
		},
	})
	if err != nil {
		return nil, err
	}

	status := gate.Downgrade(result.Status, enforce)
	g := &gate.Gate{
		GateID:           gateID,
		Phase:            string(p),
		Status:           status,
		Criteria:         result.Criteria,
		ArtifactRef:      artifactRef,
		SchemaValidation: result.SchemaValidation,
		Metadata: map[string]any{
			"gate_type":  string(store.GateContextBudget),
			"mode":       enforceMode(enforce),
			"token_max":  budget.TokenMax,
			"files_max":  budget.FilesMax,
			"schema_ref": schemaRef,
		},
	}
	if status == gate.StatusFail {
		g.BlockingFailures = result.BlockingFailures
	}
	return r.emitGate(ctx, rn, g, fileName)
}

// traceabilityGate cross-checks the brief's must requirements against the
// plan, the latest drift report and the design.
func (r *Runner) traceabilityGate(ctx context.Context, rn *run, p pipeline.Phase) (*gate.Gate, error) {
	enforce := r.config.Enabled(store.FlagTraceability)
	fileName := store.GateFileName(p, store.GateTraceability)
	gateID := store.GateID(p, store.GateTraceability)
	arts := rn.state.Artifacts

	brief, err := r.artifactDocument(rn.id, orDefault(arts.Brief, artifact.DefaultRef(pipeline.Arm)), true)
	if err != nil {
		return nil, err
	}
	plan, err := r.artifactDocument(rn.id, orDefault(arts.Plan, artifact.DefaultRef(pipeline.Plan)), true)
	if err != nil {
		return nil, err
	}

	if !brief.Exists || !plan.Exists {
		status := gate.Downgrade(gate.StatusFail, enforce)
		g := &gate.Gate{
			GateID:      gateID,
			Phase:       string(p),
			Status:      status,
			ArtifactRef: brief.Ref + "|" + plan.Ref,
			Criteria: []gate.CriterionResult{{
				Name:     criterionInputsPresent,
				Passed:   false,
				Evidence: fmt.Sprintf("brief_exists=%t plan_exists=%t", brief.Exists, plan.Exists),
			}},
			Metadata: map[string]any{
				"gate_type": string(store.GateTraceability),
				"mode":      enforceMode(enforce),
			},
		}
		if enforce {
			g.BlockingFailures = []string{criterionInputsPresent}
		}
		return r.emitGate(ctx, rn, g, fileName)
	}

	design, err := r.artifactDocument(rn.id, orDefault(arts.Design, artifact.DefaultRef(pipeline.Design)), false)
	if err != nil {
		return nil, err
	}
	driftDoc, err := r.artifactDocument(rn.id, rn.state.LatestDriftReport(), false)
	if err != nil {
		return nil, err
	}

	for _, d := range []traceability.Document{brief, plan, design, driftDoc} {
		if !d.Exists {
			continue
		}
		if err := r.emit(ctx, rn, trace.Event{
			Event:       trace.ArtifactRead,
			Phase:       string(p),
			ArtifactRef: d.Ref,
			Status:      trace.StatusOK,
		}); err != nil {
			return nil, err
		}
	}

	outcome, err := r.traceability.Evaluate(ctx, traceability.Input{
		Phase:   p,
		Enforce: enforce,
		Brief:   brief,
		Plan:    plan,
		Design:  design,
		Drift:   driftDoc,
	})
	if err != nil {
		return nil, err
	}

	g := outcome.Gate
	g.GateID = gateID
	if g.Status != gate.StatusFail {
		g.BlockingFailures = []string{}
	}
	g.Metadata = map[string]any{
		"gate_type":               string(store.GateTraceability),
		"mode":                    enforceMode(enforce),
		"required_hops":           requiredHops(p),
		"warning_hops":            []string{"design"},
		"required_failures":       outcome.RequiredFailures,
		"warning_failures":        outcome.WarningFailures,
		"missing_by_criterion":    outcome.MissingByCriterion,
		"missing_requirement_ids": outcome.MissingRequirementIDs,
		"refs":                    outcome.Refs,
	}
	return r.emitGate(ctx, rn, g, fileName)
}

func requiredHops(p pipeline.Phase) []string {
	if p == pipeline.Build {
		return []string{"plan-tasks", "plan-tests", "drift-claims"}
	}
	return []string{"plan-tasks", "plan-tests"}
}

// artifactDocument loads a run artifact for the traceability check. A
// required reference that cannot be resolved is an error; an optional one
// is reported as absent.
func (r *Runner) artifactDocument(runID, ref string, required bool) (traceability.Document, error) {
	if ref == "" {
		return traceability.Document{}, nil
	}
	abs, err := r.ws.ResolveArtifact(runID, ref)
	if err != nil {
		if required {
			return traceability.Document{}, err
		}
		return traceability.Document{}, nil
	}
	rel, err := r.ws.Relative(abs)
	if err != nil {
		return traceability.Document{}, err
	}
	if !sanitize.Exists(abs) {
		return traceability.Document{Ref: rel}, nil
	}
	doc, err := artifact.Load(abs)
	if err != nil {
		return traceability.Document{}, err
	}
	return traceability.Document{Ref: rel, Data: doc, Exists: true}, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
