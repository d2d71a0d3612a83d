// Package traceability checks that every must-priority requirement in the
// brief is carried through the plan, drift report and design.
package traceability

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/gate"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/schema"
)

// Coverage criteria.
const (
	CoveredByPlanTasks  = "must-covered-by-plan-tasks"
	CoveredByPlanTests  = "must-covered-by-plan-tests"
	CoveredByDriftClaim = "must-covered-by-drift-claims"
	CoveredByDesign     = "must-covered-by-design"

	// SchemaValid blocks an enforced gate whose normalized input is invalid.
	SchemaValid = "traceability-schema-valid"
)

// RequiredCriteria returns the criteria whose failure fails the gate for a
// phase. Phases other than plan and build use the plan set.
func RequiredCriteria(p pipeline.Phase) []string {
	if p == pipeline.Build {
		return []string{CoveredByPlanTasks, CoveredByPlanTests, CoveredByDriftClaim}
	}
	return []string{CoveredByPlanTasks, CoveredByPlanTests}
}

// Document is one input artifact with its workspace-relative reference.
// Exists is false for an optional artifact that was not found.
type Document struct {
	Ref    string
	Data   any
	Exists bool
}

// Input selects the artifacts to cross-check.
type Input struct {
	Phase   pipeline.Phase
	Enforce bool
	Brief   Document
	Plan    Document
	Drift   Document
	Design  Document
}

// Sources records where the normalized ids came from.
type Sources struct {
	BriefRef  string `json:"brief_ref,omitempty"`
	PlanRef   string `json:"plan_ref,omitempty"`
	DriftRef  string `json:"drift_ref,omitempty"`
	DesignRef string `json:"design_ref,omitempty"`
}

// Normalized is the id sets extracted from the artifacts. It is validated
// against the traceability-check contract before coverage is computed.
type Normalized struct {
	MustRequirementIDs     []string `json:"must_requirement_ids"`
	PlanTaskRequirementIDs []string `json:"plan_task_requirement_ids"`
	PlanTestRequirementIDs []string `json:"plan_test_requirement_ids"`
	DriftRequirementIDs    []string `json:"drift_requirement_ids"`
	DesignRequirementIDs   []string `json:"design_requirement_ids"`
	Sources                Sources  `json:"sources"`
}

// Outcome is the traceability verdict plus the detail recorded as gate
// metadata.
type Outcome struct {
	Gate                  *gate.Gate          `json:"gate"`
	Normalized            Normalized          `json:"normalized"`
	RequiredFailures      []string            `json:"required_failures"`
	WarningFailures       []string            `json:"warning_failures"`
	MissingByCriterion    map[string][]string `json:"missing_by_criterion"`
	MissingRequirementIDs []string            `json:"missing_requirement_ids"`
	Refs                  Sources             `json:"refs"`
}

// Evaluator runs the traceability check. Validator is required.
type Evaluator struct {
	Validator schema.Validator
}

// Evaluate computes must-requirement coverage. Under enforcement a failed
// required criterion or an invalid normalized input fails the gate and a
// failed advisory criterion warns; without enforcement any failure warns.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (*Outcome, error) {
	if !in.Brief.Exists || !in.Plan.Exists {
		return nil, errcode.BadInputf("brief and plan artifacts are required for traceability")
	}
	if e == nil || e.Validator == nil {
		return nil, errcode.New(errcode.MissingDependency, "schema validator is not configured")
	}

	norm, err := Normalize(in)
	if err != nil {
		return nil, err
	}

	validation, err := e.Validator.Validate(ctx, norm, schema.TraceabilityCheckRef)
	if err != nil {
		return nil, err
	}
	if validation.Errors == nil {
		validation.Errors = []string{}
	}

	type scored struct {
		result  gate.CriterionResult
		missing []string
	}
	score := func(name string, target []string, present bool, absentNote string) scored {
		cov := gate.ComputeCoverage(norm.MustRequirementIDs, toSet(target))
		evidence := cov.Evidence(1)
		if !present {
			evidence += absentNote
		}
		return scored{
			result:  gate.CriterionResult{Name: name, Passed: cov.Passed(1), Evidence: evidence},
			missing: cov.Missing,
		}
	}
	all := []scored{
		score(CoveredByPlanTasks, norm.PlanTaskRequirementIDs, true, ""),
		score(CoveredByPlanTests, norm.PlanTestRequirementIDs, true, ""),
		score(CoveredByDriftClaim, norm.DriftRequirementIDs, in.Drift.Exists, " (drift artifact missing)"),
		score(CoveredByDesign, norm.DesignRequirementIDs, in.Design.Exists, " (design artifact missing)"),
	}

	required := toSet(RequiredCriteria(in.Phase))
	out := &Outcome{
		Normalized:         norm,
		RequiredFailures:   []string{},
		WarningFailures:    []string{},
		MissingByCriterion: map[string][]string{},
		Refs:               norm.Sources,
	}
	criteria := make([]gate.CriterionResult, 0, len(all))
	missingAll := map[string]bool{}
	for _, s := range all {
		criteria = append(criteria, s.result)
		if !s.result.Passed {
			if required[s.result.Name] {
				out.RequiredFailures = append(out.RequiredFailures, s.result.Name)
			} else {
				out.WarningFailures = append(out.WarningFailures, s.result.Name)
			}
		}
		if len(s.missing) > 0 {
			out.MissingByCriterion[s.result.Name] = s.missing
			for _, id := range s.missing {
				missingAll[id] = true
			}
		}
	}
	out.MissingRequirementIDs = sortedKeys(missingAll)

	schemaInvalid := !validation.Valid
	status := gate.StatusPass
	switch {
	case in.Enforce && (schemaInvalid || len(out.RequiredFailures) > 0):
		status = gate.StatusFail
	case in.Enforce && len(out.WarningFailures) > 0:
		status = gate.StatusWarn
	case !in.Enforce && (schemaInvalid || len(out.RequiredFailures) > 0 || len(out.WarningFailures) > 0):
		status = gate.StatusWarn
	}

	blocking := []string{}
	if in.Enforce && status == gate.StatusFail {
		if schemaInvalid {
			blocking = append(blocking, SchemaValid)
		}
		blocking = append(blocking, out.RequiredFailures...)
	}

	out.Gate = &gate.Gate{
		GateID:           string(in.Phase) + "-traceability-gate",
		Phase:            string(in.Phase),
		Status:           status,
		Criteria:         criteria,
		BlockingFailures: blocking,
		ArtifactRef:      in.Plan.Ref,
		SchemaValidation: validation,
	}
	return out, nil
}

// Normalize extracts the requirement id sets from the input artifacts.
func Normalize(in Input) (Normalized, error) {
	brief, err := parse(in.Brief)
	if err != nil {
		return Normalized{}, err
	}
	plan, err := parse(in.Plan)
	if err != nil {
		return Normalized{}, err
	}
	drift, err := parse(in.Drift)
	if err != nil {
		return Normalized{}, err
	}
	design, err := parse(in.Design)
	if err != nil {
		return Normalized{}, err
	}

	norm := Normalized{
		MustRequirementIDs:     ids(brief.Get(`requirements.#(priority=="must")#.id`)),
		PlanTaskRequirementIDs: ids(plan.Get("task_groups.#.tasks.#.covers_requirement_ids")),
		PlanTestRequirementIDs: ids(plan.Get("task_groups.#.tasks.#.test_cases.#.covers_requirement_ids")),
		DriftRequirementIDs:    ids(drift.Get("claims.#.covers_requirement_ids")),
		DesignRequirementIDs:   ids(design.Get("constraints_classification.#.covers_requirement_ids")),
		Sources: Sources{
			BriefRef: in.Brief.Ref,
			PlanRef:  in.Plan.Ref,
		},
	}
	if in.Drift.Exists || in.Drift.Ref != "" {
		norm.Sources.DriftRef = in.Drift.Ref
	}
	if in.Design.Exists || in.Design.Ref != "" {
		norm.Sources.DesignRef = in.Design.Ref
	}
	return norm, nil
}

func parse(d Document) (gjson.Result, error) {
	if !d.Exists || d.Data == nil {
		return gjson.Result{}, nil
	}
	data, err := json.Marshal(d.Data)
	if err != nil {
		return gjson.Result{}, errcode.Wrap(errcode.BadInput, "encode "+d.Ref, err)
	}
	return gjson.ParseBytes(data), nil
}

// ids flattens nested arrays into the unique sorted non-empty strings they
// hold. Non-string leaves are ignored.
func ids(r gjson.Result) []string {
	set := map[string]bool{}
	var walk func(gjson.Result)
	walk = func(v gjson.Result) {
		switch {
		case v.IsArray():
			for _, item := range v.Array() {
				walk(item)
			}
		case v.Type == gjson.String && v.Str != "":
			set[v.Str] = true
		}
	}
	walk(r)
	return sortedKeys(set)
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
