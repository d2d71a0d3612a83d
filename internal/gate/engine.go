// Package gate evaluates phase artifacts against a JSON schema and a list of
// named criteria, producing pass/warn/fail verdicts.
//
// A failing gate is a value, not an error. Errors are reserved for malformed
// input and missing collaborators.
package gate

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/schema"
)

// DefaultArtifactRef labels artifacts passed inline.
const DefaultArtifactRef = "inline:artifact"

// Gate is a recorded verdict for one artifact.
type Gate struct {
	GateID           string            `json:"gate_id"`
	Phase            string            `json:"phase"`
	Status           Status            `json:"status"`
	Criteria         []CriterionResult `json:"criteria"`
	BlockingFailures []string          `json:"blocking_failures"`
	ArtifactRef      string            `json:"artifact_ref"`
	SchemaValidation schema.Validation `json:"schema_validation"`
	Timestamp        string            `json:"timestamp,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// FailedCriteria returns the names of failing criteria in order.
func FailedCriteria(results []CriterionResult) []string {
	failed := []string{}
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name)
		}
	}
	return failed
}

// Input is one standalone gate evaluation request.
type Input struct {
	Artifact    map[string]any `json:"artifact"`
	ArtifactRef string         `json:"artifact_ref,omitempty"`
	SchemaRef   string         `json:"schema_ref"`
	Phase       string         `json:"phase"`
	Criteria    []Criterion    `json:"criteria"`
}

// Phases returns the phases a standalone gate may be evaluated for: the
// gated pipeline phases plus the auxiliary audit phases.
func Phases() []string {
	var out []string
	for _, p := range pipeline.All() {
		if p.Gated() {
			out = append(out, string(p))
		}
	}
	return append(out, "denoise", "quality-frontend", "quality-backend", "quality-docs",
		string(pipeline.SecurityReview))
}

func isGatePhase(s string) bool {
	for _, p := range Phases() {
		if p == s {
			return true
		}
	}
	return false
}

// Validate checks the request shape. Failures are E_BAD_INPUT.
func (in *Input) Validate() error {
	if in.Artifact == nil {
		return errcode.BadInputf("artifact must be a JSON object")
	}
	if strings.TrimSpace(in.SchemaRef) == "" {
		return errcode.BadInputf("schema_ref is required")
	}
	if !isGatePhase(in.Phase) {
		return errcode.BadInputf("phase must be a valid pipeline phase")
	}
	if in.Criteria == nil {
		return errcode.BadInputf("criteria must be an array")
	}
	for _, c := range in.Criteria {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Engine evaluates gates. Validator is required.
type Engine struct {
	Validator schema.Validator

	// Now and NewID default to the wall clock and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// NewEngine returns an engine backed by v.
func NewEngine(v schema.Validator) *Engine {
	return &Engine{Validator: v}
}

// Evaluate validates the artifact against its schema and runs every
// criterion. The gate fails when the schema is invalid or any criterion
// fails; failing criterion names become blocking failures.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*Gate, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if e == nil || e.Validator == nil {
		return nil, errcode.New(errcode.MissingDependency, "schema validator is not configured")
	}
	log := logging.FromContext(ctx)

	log.Debug(ctx, "validating artifact against schema", zap.String("schema_ref", in.SchemaRef))
	validation, err := e.Validator.Validate(ctx, in.Artifact, in.SchemaRef)
	if err != nil {
		return nil, err
	}
	if validation.Errors == nil {
		validation.Errors = []string{}
	}

	results, err := EvaluateCriteria(in.Artifact, in.Criteria)
	if err != nil {
		return nil, err
	}
	blocking := FailedCriteria(results)

	status := StatusPass
	if !validation.Valid || len(blocking) > 0 {
		status = StatusFail
	}
	log.Debug(ctx, "gate evaluated",
		zap.String("phase", in.Phase),
		zap.String("status", string(status)),
		zap.Bool("schema_valid", validation.Valid),
		zap.Int("criteria", len(results)),
		zap.Int("failures", len(blocking)),
	)

	ref := in.ArtifactRef
	if ref == "" {
		ref = DefaultArtifactRef
	}
	return &Gate{
		GateID:           e.newID(),
		Phase:            in.Phase,
		Status:           status,
		Criteria:         results,
		BlockingFailures: blocking,
		ArtifactRef:      ref,
		SchemaValidation: validation,
		Timestamp:        pipeline.Timestamp(e.now()),
	}, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}
