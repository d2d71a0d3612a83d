package artifact

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/policy"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/internal/taskset"
)

// Drift extractor names recorded on synthesized claims.
const (
	heuristicExtractor = "rule-based-drift-detector"
	dualAdjudicator    = "dual-adjudicator:a+b"
)

// Request carries what the synthesizer needs to build one phase artifact.
type Request struct {
	Phase    pipeline.Phase
	RunID    string
	ConfigID pipeline.ConfigID
	Task     *taskset.Task
	Profile  taskset.Profile

	// Decision is the fanout decision for adversarial-review and build.
	Decision *policy.Decision

	// Budget is the phase's resolved context budget, if any.
	Budget *store.ContextBudget
}

// Synthesizer builds deterministic artifacts for phases that have no input
// artifact.
type Synthesizer struct {
	Now func() time.Time
}

// NewSynthesizer returns a synthesizer stamped with the wall clock.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{Now: time.Now}
}

// Synthesize returns the typed artifact for req.Phase, or nil for phases
// that produce none.
func (s *Synthesizer) Synthesize(req Request) any {
	now := time.Now
	if s != nil && s.Now != nil {
		now = s.Now
	}
	at := now()
	reqs := req.Task.RequirementIDs()
	manifest := BuildManifest(req.Phase, req.Profile, req.Budget, at)

	switch req.Phase {
	case pipeline.Arm:
		return brief(req, reqs, manifest)
	case pipeline.Design:
		return design(reqs, manifest, at)
	case pipeline.AdversarialReview:
		return review(req, reqs, manifest)
	case pipeline.Plan:
		return plan(req, reqs, manifest)
	case pipeline.PMatch:
		return drift(req, reqs, manifest)
	case pipeline.Build:
		return &BuildRecord{
			TraceID:              "build-trace-1",
			Summary:              "Build phase executed by runner",
			Outputs:              []string{"internal/runner/stage.go", "internal/policy/policy.go"},
			CoversRequirementIDs: reqs[:1],
			Context:              manifest,
		}
	case pipeline.QualityStatic:
		return quality("static", manifest)
	case pipeline.QualityTests:
		return quality("tests", manifest)
	case pipeline.ReleaseReadiness:
		return release(manifest, at)
	}
	return nil
}

// SynthesizeDocument is Synthesize in generic form. It returns nil, nil
// for phases that produce no artifact.
func (s *Synthesizer) SynthesizeDocument(req Request) (Document, error) {
	v := s.Synthesize(req)
	if v == nil {
		return nil, nil
	}
	return ToDocument(v)
}

func brief(req Request, reqs []string, manifest *ContextManifest) *Brief {
	taskID := "task"
	if req.Task != nil && req.Task.ID != "" {
		taskID = req.Task.ID
	}
	requirements := make([]Requirement, len(reqs))
	for i, id := range reqs {
		requirements[i] = Requirement{
			ID:          id,
			TraceID:     id,
			Description: fmt.Sprintf("Requirement %d for %s", i+1, taskID),
			Priority:    "must",
		}
	}
	return &Brief{
		Requirements: requirements,
		Constraints:  []Constraint{{Type: "hard", Description: "Must keep contracts valid", Source: "taskset"}},
		NonGoals:     []NonGoal{{Description: "No external deployment", Reason: "Out of scope for evaluation"}},
		Style: &Style{
			Tone:        "technical",
			Patterns:    []string{"phase-scoped"},
			Conventions: []string{"typed-artifacts"},
		},
		KeyConcepts:   []KeyConcept{{Term: "traceability", Definition: "Requirement linkage across artifacts"}},
		Decisions:     []Decision{{Decision: "Use phased orchestration", Rationale: "Deterministic gate control"}},
		OpenQuestions: []string{},
		Context:       manifest,
	}
}

func design(reqs []string, manifest *ContextManifest, at time.Time) *DesignDocument {
	return &DesignDocument{
		Analysis: Analysis{
			Summary:    "Design is constrained by contracts and gateability.",
			Principles: []Principle{{Principle: "Minimize context noise", Implication: "Phase-local manifests"}},
		},
		ConstraintsClassification: []ConstraintClassification{{
			Constraint:           "Contracts must remain valid",
			TraceID:              "constraint-contracts",
			CoversRequirementIDs: reqs[:1],
			OriginalType:         "hard",
			ValidatedType:        "hard",
			Evaluation:           "Required for deterministic gates",
		}},
		Approach: Approach{
			Description: "Generate artifacts per phase and enforce gates.",
			Rationale:   "Keeps runner deterministic.",
			Components:  []Component{{Name: "runner", Responsibility: "Phase transitions", Interfaces: []string{"CLI"}}},
		},
		Research: []Research{{
			Source:     "repo-docs",
			URL:        "https://example.com/research",
			Finding:    "Phase scoping is beneficial.",
			VerifiedAt: pipeline.Timestamp(at),
		}},
		CodebaseAlignment: []Alignment{{
			Pattern:         "internal/runner/*",
			FilePaths:       []string{"internal/runner/stage.go"},
			AlignmentStatus: "new",
			Notes:           "runtime orchestration",
		}},
		IterationHistory: []Iteration{{Iteration: 1, Changes: "Initial design", Rationale: "Enable runtime gates"}},
		Context:          manifest,
	}
}

func review(req Request, reqs []string, manifest *ContextManifest) *ReviewReport {
	count := 1
	if req.Decision != nil && req.Decision.ChosenFanout > 1 {
		count = req.Decision.ChosenFanout
	}

	reviewers := make([]Reviewer, count)
	models := make([]string, count)
	for i := range reviewers {
		models[i] = fmt.Sprintf("reviewer-%d", i+1)
		reviewers[i] = Reviewer{
			ModelID: models[i],
			Findings: []Finding{{
				ID:                   fmt.Sprintf("finding-%d", i+1),
				TraceID:              fmt.Sprintf("finding-trace-%d", i+1),
				Category:             "robustness",
				Description:          "Check requirement linkage remains intact.",
				Severity:             SeverityMedium,
				CoversRequirementIDs: reqs[:1],
				Evidence:             "review signal",
				Suggestion:           "Keep coverage-min enforced",
			}},
		}
	}

	deduped := []Finding{{
		ID:                   "dedup-1",
		TraceID:              "dedup-trace-1",
		Category:             "robustness",
		Description:          "Ensure requirement coverage gates are active.",
		Severity:             SeverityMedium,
		SourceModels:         models,
		CoversRequirementIDs: reqs[:1],
		Evidence:             "deduplicated",
		Suggestion:           "Use traceability gate",
	}}

	return &ReviewReport{
		Reviewers:            reviewers,
		DeduplicatedFindings: deduped,
		FactChecks: []FactCheck{{
			FindingID: "dedup-1",
			Status:    "confirmed",
			Evidence:  "coverage-min criterion validates linkage",
		}},
		CostBenefit: AnalyzeCostBenefit(deduped),
		Mitigations: []Mitigation{{FindingID: "dedup-1", Status: "mitigated", Action: "Gate added"}},
		Iteration:   &ReviewIteration{LoopCount: 1, RemainingUnmitigated: []string{}},
		Context:     manifest,
	}
}

func plan(req Request, reqs []string, manifest *ContextManifest) *ExecutionPlan {
	tested := append([]string(nil), reqs...)
	if req.Profile.TraceabilityGap {
		tested = reqs[:1]
	}
	return &ExecutionPlan{
		TaskGroups: []TaskGroup{{
			GroupID:     "group-1",
			BuilderTier: "fast",
			Tasks: []PlanTask{{
				ID:                   "task-1",
				TraceID:              "task-trace-1",
				Description:          "Implement orchestrated runner flow",
				CoversRequirementIDs: append([]string(nil), reqs...),
				CoversConstraintIDs:  []string{"constraint-contracts"},
				FilePaths:            []string{"internal/runner/stage.go"},
				CodePatterns: []CodePattern{{
					File:        "internal/runner/stage.go",
					Pattern:     "RunStage",
					Description: "runtime stage execution",
				}},
				TestCases: []TestCase{{
					Name:                 "runner-stage-smoke",
					TraceID:              "test-trace-1",
					CoversRequirementIDs: tested,
					Setup:                "Initialize pipeline",
					Assertion:            "Run stage completes",
					Expected:             "gate passes",
				}},
				AcceptanceCriteria: []string{"trace events emitted", "gate output persisted"},
				Dependencies:       []string{},
			}},
		}},
		FileOwnership: map[string]string{"internal/runner/stage.go": "group-1"},
		VerificationCommands: []VerificationCommand{{
			Command:          "pipegate run-stage --help",
			Description:      "Ensure runner CLI is available",
			WorkingDirectory: ".",
		}},
		Context: manifest,
	}
}

// DriftStatus returns the claim status a config produces unless the profile
// forces one.
func DriftStatus(configID pipeline.ConfigID, profile taskset.Profile) string {
	if profile.DriftStatus != "" {
		return profile.DriftStatus
	}
	switch configID {
	case pipeline.BaselineSingleAgent:
		return taskset.DriftViolated
	case pipeline.PhasedDualExtractorDrift:
		return taskset.DriftVerified
	}
	return taskset.DriftPartial
}

// DriftMode returns the adjudication mode for a config and profile.
func DriftMode(configID pipeline.ConfigID, profile taskset.Profile) string {
	if configID == pipeline.PhasedDualExtractorDrift || profile.DriftMode == taskset.DriftModeDualExtractor {
		return taskset.DriftModeDualExtractor
	}
	return taskset.DriftModeHeuristic
}

// DriftScore maps a verification status to a score in [0,1].
func DriftScore(status string) float64 {
	switch status {
	case taskset.DriftVerified:
		return 0
	case taskset.DriftPartial:
		return 0.5
	case taskset.DriftViolated:
		return 1
	}
	return 0.75
}

func drift(req Request, reqs []string, manifest *ContextManifest) *DriftReport {
	status := DriftStatus(req.ConfigID, req.Profile)
	mode := DriftMode(req.ConfigID, req.Profile)
	dual := mode == taskset.DriftModeDualExtractor

	evidence := "simulated benchmark signal"
	if status == taskset.DriftVerified {
		evidence = "events observed"
	}
	extractor := heuristicExtractor
	adj := Adjudication{
		Mode:             mode,
		Extractors:       []string{heuristicExtractor},
		ResolutionPolicy: "keyword overlap deterministic thresholds",
	}
	if dual {
		extractor = dualAdjudicator
		adj = Adjudication{
			Mode:              mode,
			Extractors:        []string{"extractor-a", "extractor-b"},
			ConflictsResolved: 1,
			ResolutionPolicy:  "adjudicated dual extractor conflict policy",
		}
	}

	findings := []DriftFinding{}
	if status != taskset.DriftVerified {
		severity := SeverityMedium
		if status == taskset.DriftViolated {
			severity = SeverityHigh
		}
		findings = append(findings, DriftFinding{
			Description: fmt.Sprintf("Drift status is %s for runner gate emission", status),
			ClaimType:   "invariant",
			Severity:    severity,
			ClaimIDs:    []string{"drift-1"},
			Mitigation:  "Reconcile implementation with plan coverage",
		})
	}

	return &DriftReport{
		SourceDocument: &DocumentRef{Type: "plan", Ref: fmt.Sprintf(".pipeline/runs/%s/plan.json", req.RunID)},
		TargetDocument: &DocumentRef{Type: "implementation", Ref: "internal/runner/stage.go"},
		Claims: []Claim{{
			ID:                   "drift-1",
			TraceID:              "drift-trace-1",
			Claim:                "Runner must emit phase gate events",
			ClaimType:            "invariant",
			CoversRequirementIDs: append([]string(nil), reqs...),
			VerificationStatus:   status,
			Evidence:             evidence,
			Extractor:            extractor,
			DriftScore:           DriftScore(status),
			Confidence:           0.8,
		}},
		Findings:     findings,
		Adjudication: adj,
		Context:      manifest,
	}
}

func quality(audit string, manifest *ContextManifest) *QualityReport {
	return &QualityReport{
		AuditType:  audit,
		Violations: []Violation{},
		Summary:    QualitySummary{Pass: 1},
		Context:    manifest,
	}
}

func release(manifest *ContextManifest, at time.Time) *ReleaseReadiness {
	return &ReleaseReadiness{
		ReleaseDecision: "go",
		SemverImpact:    "minor",
		Changelog: Changelog{
			Updated: true,
			Path:    "README.md",
			Entries: []string{"Runner and evaluation harness upgraded"},
		},
		Migration: &Migration{Validated: true},
		Rollback:  Rollback{Strategy: "revert runner changes", Owner: "platform", Tested: true},
		OpenRisks: []string{},
		Approvals: []Approval{{
			Owner:      "release-lead",
			ApprovedAt: pipeline.Timestamp(at),
			Notes:      "automated taskset run",
		}},
		Context: manifest,
	}
}
