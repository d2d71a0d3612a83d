// Package pipeline defines the fixed phase vocabulary and configuration ids
// shared by the gate, policy and runner packages.
package pipeline

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
)

// Phase is one fixed stage of the delivery pipeline.
type Phase string

const (
	// Arm captures requirements into the brief.
	Arm Phase = "arm"

	// Design produces the design document.
	Design Phase = "design"

	// AdversarialReview runs parallel reviewers against the design.
	AdversarialReview Phase = "adversarial-review"

	// Plan produces the execution plan.
	Plan Phase = "plan"

	// PMatch verifies the plan against the brief and design for drift.
	PMatch Phase = "pmatch"

	// Build runs parallel builders.
	Build Phase = "build"

	QualityStatic    Phase = "quality-static"
	QualityTests     Phase = "quality-tests"
	PostBuild        Phase = "post-build"
	ReleaseReadiness Phase = "release-readiness"
)

// SecurityReview is not a pipeline phase but may appear in traces written by
// external tooling; its duration is reported as the security closure time.
const SecurityReview Phase = "security-review"

// All returns every phase in execution order.
func All() []Phase {
	return []Phase{
		Arm, Design, AdversarialReview, Plan, PMatch, Build,
		QualityStatic, QualityTests, PostBuild, ReleaseReadiness,
	}
}

// Parse validates s as a known phase.
func Parse(s string) (Phase, error) {
	for _, p := range All() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", errcode.BadInputf("phase must be one of: %s", joinPhases())
}

func joinPhases() string {
	names := make([]string, 0, len(All()))
	for _, p := range All() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

// Gated reports whether the phase's artifact runs through the primary
// criteria/schema gate. Post-build only records a status.
func (p Phase) Gated() bool {
	return p != PostBuild
}

// UsesFanout reports whether the phase consults the fanout policy.
func (p Phase) UsesFanout() bool {
	return p == AdversarialReview || p == Build
}

// NeedsTraceability reports whether the phase runs the traceability gate.
func (p Phase) NeedsTraceability() bool {
	return p == Plan || p == Build
}

// BudgetKey is the context_budgets key consulted for the phase.
func (p Phase) BudgetKey() string {
	if p == Build {
		return "build_lead"
	}
	return string(p)
}

// ArtifactKey names the run-state artifact slot the phase writes, or "".
func (p Phase) ArtifactKey() string {
	switch {
	case p == Arm:
		return "brief"
	case p == Design:
		return "design"
	case p == AdversarialReview:
		return "review"
	case p == Plan:
		return "plan"
	case p == PMatch:
		return "drift_reports"
	case strings.HasPrefix(string(p), "quality"), p == SecurityReview:
		return "quality_reports"
	}
	return ""
}

// ConfigID names one orchestration configuration under evaluation.
type ConfigID string

const (
	BaselineSingleAgent      ConfigID = "baseline_single_agent"
	PhasedDefault            ConfigID = "phased_default"
	PhasedPlusReviewers      ConfigID = "phased_plus_reviewers"
	PhasedWithContextBudgets ConfigID = "phased_with_context_budgets"
	PhasedDualExtractorDrift ConfigID = "phased_dual_extractor_drift"
)

// ConfigIDs returns every supported configuration id.
func ConfigIDs() []ConfigID {
	return []ConfigID{
		BaselineSingleAgent, PhasedDefault, PhasedPlusReviewers,
		PhasedWithContextBudgets, PhasedDualExtractorDrift,
	}
}

// ParseConfigID validates s, defaulting an empty value to PhasedDefault.
func ParseConfigID(s string) (ConfigID, error) {
	if s == "" {
		return PhasedDefault, nil
	}
	for _, id := range ConfigIDs() {
		if string(id) == s {
			return id, nil
		}
	}
	return "", errcode.BadInputf("unsupported config-id: %s", s)
}

func (c ConfigID) String() string { return string(c) }

// Timestamp formats t as UTC ISO-8601 with millisecond precision, the form
// used in trace events and gate files.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
