package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/policy"
	"github.com/fyrsmithlabs/pipegate/internal/schema"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/internal/taskset"
)

var fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func synth() *Synthesizer {
	return &Synthesizer{Now: func() time.Time { return fixed }}
}

func f64(v float64) *float64 { return &v }

func TestSynthesize_MatchesContracts(t *testing.T) {
	v := schema.NewJSONSchemaValidator(t.TempDir())
	task := &taskset.Task{ID: "task-a", Title: "A", MustRequirementIDs: []string{"REQ-1", "REQ-2"}}

	for _, p := range pipeline.All() {
		t.Run(string(p), func(t *testing.T) {
			doc, err := synth().SynthesizeDocument(Request{
				Phase:    p,
				RunID:    "run-1",
				ConfigID: pipeline.PhasedDefault,
				Task:     task,
				Decision: &policy.Decision{ChosenFanout: 2},
			})
			require.NoError(t, err)
			if p == pipeline.PostBuild {
				assert.Nil(t, doc)
				return
			}
			require.NotNil(t, doc)
			assert.Contains(t, doc, "context_manifest")

			ref := schema.PhaseRef(p)
			if ref == "" {
				return
			}
			res, err := v.Validate(context.Background(), doc, ref)
			require.NoError(t, err)
			assert.True(t, res.Valid, "%s: %v", p, res.Errors)

			res, err = v.Validate(context.Background(), doc, schema.ContextManifestGateRef)
			require.NoError(t, err)
			assert.True(t, res.Valid, "%s manifest: %v", p, res.Errors)
		})
	}
}

func TestSynthesize_Brief(t *testing.T) {
	got := synth().Synthesize(Request{Phase: pipeline.Arm, Task: &taskset.Task{ID: "t9", MustRequirementIDs: []string{"R1", "R2"}}})
	b, ok := got.(*Brief)
	require.True(t, ok)
	require.Len(t, b.Requirements, 2)
	assert.Equal(t, Requirement{ID: "R2", TraceID: "R2", Description: "Requirement 2 for t9", Priority: "must"}, b.Requirements[1])

	b = synth().Synthesize(Request{Phase: pipeline.Arm}).(*Brief)
	assert.Equal(t, taskset.DefaultRequirementID, b.Requirements[0].ID)
	assert.Equal(t, "Requirement 1 for task", b.Requirements[0].Description)
}

func TestSynthesize_ReviewerCountFollowsFanout(t *testing.T) {
	r := synth().Synthesize(Request{Phase: pipeline.AdversarialReview, Decision: &policy.Decision{ChosenFanout: 3}}).(*ReviewReport)
	require.Len(t, r.Reviewers, 3)
	assert.Equal(t, "reviewer-3", r.Reviewers[2].ModelID)
	assert.Equal(t, []string{"reviewer-1", "reviewer-2", "reviewer-3"}, r.DeduplicatedFindings[0].SourceModels)
	require.Len(t, r.CostBenefit, 1)
	assert.Equal(t, CostBenefit{
		FindingID:      "dedup-1",
		Severity:       SeverityMedium,
		FixCost:        CostTrivial,
		RiskOfIgnoring: RiskModerate,
		Recommendation: RecommendFixBeforeShip,
	}, r.CostBenefit[0])

	r = synth().Synthesize(Request{Phase: pipeline.AdversarialReview}).(*ReviewReport)
	assert.Len(t, r.Reviewers, 1)
}

func TestSynthesize_PlanTraceabilityGap(t *testing.T) {
	task := &taskset.Task{MustRequirementIDs: []string{"R1", "R2"}}

	full := synth().Synthesize(Request{Phase: pipeline.Plan, Task: task}).(*ExecutionPlan)
	tc := full.TaskGroups[0].Tasks[0]
	assert.Equal(t, []string{"R1", "R2"}, tc.CoversRequirementIDs)
	assert.Equal(t, []string{"R1", "R2"}, tc.TestCases[0].CoversRequirementIDs)

	gap := synth().Synthesize(Request{Phase: pipeline.Plan, Task: task, Profile: taskset.Profile{TraceabilityGap: true}}).(*ExecutionPlan)
	tc = gap.TaskGroups[0].Tasks[0]
	assert.Equal(t, []string{"R1", "R2"}, tc.CoversRequirementIDs)
	assert.Equal(t, []string{"R1"}, tc.TestCases[0].CoversRequirementIDs)
}

func TestSynthesize_Drift(t *testing.T) {
	tests := []struct {
		config    pipeline.ConfigID
		profile   taskset.Profile
		status    string
		mode      string
		score     float64
		findings  int
		extractor string
	}{
		{pipeline.BaselineSingleAgent, taskset.Profile{}, "violated", "heuristic", 1, 1, heuristicExtractor},
		{pipeline.PhasedDefault, taskset.Profile{}, "partial", "heuristic", 0.5, 1, heuristicExtractor},
		{pipeline.PhasedPlusReviewers, taskset.Profile{}, "partial", "heuristic", 0.5, 1, heuristicExtractor},
		{pipeline.PhasedWithContextBudgets, taskset.Profile{}, "partial", "heuristic", 0.5, 1, heuristicExtractor},
		{pipeline.PhasedDualExtractorDrift, taskset.Profile{}, "verified", "dual-extractor", 0, 0, dualAdjudicator},
		{pipeline.PhasedDefault, taskset.Profile{DriftStatus: "unverifiable", DriftMode: "dual-extractor"}, "unverifiable", "dual-extractor", 0.75, 1, dualAdjudicator},
	}
	for _, tt := range tests {
		t.Run(string(tt.config)+"/"+tt.status, func(t *testing.T) {
			d := synth().Synthesize(Request{Phase: pipeline.PMatch, RunID: "r1", ConfigID: tt.config, Profile: tt.profile}).(*DriftReport)
			require.Len(t, d.Claims, 1)
			assert.Equal(t, tt.status, d.Claims[0].VerificationStatus)
			assert.Equal(t, tt.score, d.Claims[0].DriftScore)
			assert.Equal(t, tt.extractor, d.Claims[0].Extractor)
			assert.Equal(t, tt.mode, d.Adjudication.Mode)
			assert.Len(t, d.Findings, tt.findings)
			assert.Equal(t, ".pipeline/runs/r1/plan.json", d.SourceDocument.Ref)
		})
	}

	violated := synth().Synthesize(Request{Phase: pipeline.PMatch, ConfigID: pipeline.BaselineSingleAgent}).(*DriftReport)
	assert.Equal(t, SeverityHigh, violated.Findings[0].Severity)
	assert.Equal(t, "Drift status is violated for runner gate emission", violated.Findings[0].Description)
}

func TestBuildManifest(t *testing.T) {
	m := BuildManifest(pipeline.Plan, taskset.Profile{}, nil, fixed)
	require.NotNil(t, m)
	assert.Len(t, m.FilesLoaded, 3)
	assert.Equal(t, LoadedFile{Path: "docs/task/plan/source-2.md", Bytes: 420}, m.FilesLoaded[1])
	assert.Equal(t, 2000, m.TokenEstimate)
	assert.Equal(t, 8000, m.CharCountEstimate)
	assert.Equal(t, "2026-03-01T12:00:00.000Z", m.DocsLoaded[0].RetrievedAt)

	m = BuildManifest(pipeline.Build, taskset.Profile{}, &store.ContextBudget{TokenMax: 9000, FilesMax: 4}, fixed)
	assert.Equal(t, 4000, m.TokenEstimate)
	m = BuildManifest(pipeline.Build, taskset.Profile{}, &store.ContextBudget{TokenMax: 1500, FilesMax: 4}, fixed)
	assert.Equal(t, 1500, m.TokenEstimate)

	m = BuildManifest(pipeline.Build, taskset.Profile{
		FilesLoaded:       f64(0),
		TokenEstimate:     f64(-5),
		CharCountEstimate: f64(12.9),
	}, nil, fixed)
	assert.Empty(t, m.FilesLoaded)
	assert.NotNil(t, m.FilesLoaded)
	assert.Equal(t, 0, m.TokenEstimate)
	assert.Equal(t, 12, m.CharCountEstimate)

	off := false
	assert.Nil(t, BuildManifest(pipeline.Plan, taskset.Profile{ContextManifestPresent: &off}, nil, fixed))
}

func TestAnalyzeCostBenefit(t *testing.T) {
	long := string(make([]byte, 301))
	mid := string(make([]byte, 120))
	tests := []struct {
		name    string
		finding Finding
		cost    string
		risk    string
		rec     string
	}{
		{"critical", Finding{Severity: SeverityCritical, Category: "correctness", Description: "x"}, CostTrivial, RiskCatastrophic, RecommendFixNow},
		{"high cheap", Finding{Severity: SeverityHigh, Description: "x"}, CostTrivial, RiskHigh, RecommendFixNow},
		{"architecture high", Finding{Severity: SeverityHigh, Category: "Architecture"}, CostHigh, RiskHigh, RecommendFixBeforeShip},
		{"feasibility critical", Finding{Severity: SeverityCritical, Category: "feasibility"}, CostProhibitive, RiskCatastrophic, RecommendFixNow},
		{"medium low cost", Finding{Severity: SeverityMedium, Description: mid}, CostLow, RiskModerate, RecommendFixBeforeShip},
		{"medium long", Finding{Severity: SeverityMedium, Description: long}, CostMedium, RiskModerate, RecommendDefer},
		{"low", Finding{Severity: SeverityLow, Description: "typo"}, CostTrivial, RiskLow, RecommendAccept},
		{"low perf", Finding{Severity: SeverityLow, Category: "performance"}, CostHigh, RiskLow, RecommendWontFix},
		{"info long", Finding{Severity: SeverityInfo, Description: long}, CostMedium, RiskNegligible, RecommendWontFix},
		{"info short", Finding{Severity: SeverityInfo}, CostTrivial, RiskNegligible, RecommendAccept},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeCostBenefit([]Finding{tt.finding})
			require.Len(t, got, 1)
			assert.Equal(t, tt.cost, got[0].FixCost)
			assert.Equal(t, tt.risk, got[0].RiskOfIgnoring)
			assert.Equal(t, tt.rec, got[0].Recommendation)
		})
	}
}

func TestKindAndDefaultRef(t *testing.T) {
	k, ok := KindOf(pipeline.QualityTests)
	assert.True(t, ok)
	assert.Equal(t, KindQualityReport, k)
	_, ok = KindOf(pipeline.PostBuild)
	assert.False(t, ok)

	assert.Equal(t, "drift-reports/pmatch.json", DefaultRef(pipeline.PMatch))
	assert.Equal(t, "", DefaultRef(pipeline.PostBuild))
	assert.Equal(t, "security-review.json", DefaultRef(pipeline.SecurityReview))
}

func TestLoadAndDecode(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "plan.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"task_groups":[{"group_id":"g","tasks":[]}]}`), 0o644))
	arr := filepath.Join(dir, "arr.json")
	require.NoError(t, os.WriteFile(arr, []byte(`[1,2]`), 0o644))
	null := filepath.Join(dir, "null.json")
	require.NoError(t, os.WriteFile(null, []byte(`null`), 0o644))

	doc, err := Load(good)
	require.NoError(t, err)
	var p ExecutionPlan
	require.NoError(t, Decode(doc, &p))
	assert.Equal(t, "g", p.TaskGroups[0].GroupID)

	for _, path := range []string{arr, null} {
		_, err = Load(path)
		require.Error(t, err)
		assert.True(t, errcode.Is(err, errcode.BadInput))
	}
	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
