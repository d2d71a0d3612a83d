// Package schema validates artifact documents against JSON Schema contracts.
//
// Contract schemas ship embedded under contracts/. A workspace may override
// any of them by placing a file at the same relative path under its root.
package schema

import (
	"context"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
)

// Contract references used outside the per-phase artifact schemas.
const (
	ContextManifestGateRef = "contracts/artifacts/context-manifest-gate.schema.json"
	TraceabilityCheckRef   = "contracts/artifacts/traceability-check.schema.json"
	ExecutionTraceRef      = "contracts/artifacts/execution-trace.schema.json"
	QualityGateRef         = "contracts/quality-gate.schema.json"
	EvalTasksetRef         = "contracts/eval-taskset.schema.json"
)

// Validation is the outcome of validating one document.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// OK returns a passing validation.
func OK() Validation {
	return Validation{Valid: true, Errors: []string{}}
}

// Invalid returns a failing validation carrying errs.
func Invalid(errs ...string) Validation {
	return Validation{Valid: false, Errors: errs}
}

// Validator checks a decoded JSON document against the schema named by ref.
//
// A schema that cannot be loaded or compiled yields an invalid Validation,
// not an error. Errors are reserved for refs that are themselves unsafe.
type Validator interface {
	Validate(ctx context.Context, doc any, ref string) (Validation, error)
}

// PhaseRef returns the default artifact schema for a phase, or "" for
// phases whose artifacts carry no schema (build, post-build).
func PhaseRef(p pipeline.Phase) string {
	name := ""
	switch p {
	case pipeline.Arm:
		name = "brief"
	case pipeline.Design:
		name = "design-document"
	case pipeline.AdversarialReview:
		name = "review-report"
	case pipeline.Plan:
		name = "execution-plan"
	case pipeline.PMatch:
		name = "drift-report"
	case pipeline.QualityStatic, pipeline.QualityTests:
		name = "quality-report"
	case pipeline.ReleaseReadiness:
		name = "release-readiness"
	default:
		return ""
	}
	return "contracts/artifacts/" + name + ".schema.json"
}
