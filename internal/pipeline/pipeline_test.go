package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
)

func TestAll_Order(t *testing.T) {
	phases := All()
	require.Len(t, phases, 10)
	assert.Equal(t, Arm, phases[0])
	assert.Equal(t, Build, phases[5])
	assert.Equal(t, ReleaseReadiness, phases[9])
}

func TestParse(t *testing.T) {
	p, err := Parse("adversarial-review")
	require.NoError(t, err)
	assert.Equal(t, AdversarialReview, p)

	_, err = Parse("security-review")
	require.Error(t, err)
	assert.Equal(t, errcode.BadInput, errcode.Code(err))
	assert.Contains(t, err.Error(), "arm, design")
}

func TestPhase_Predicates(t *testing.T) {
	assert.False(t, PostBuild.Gated())
	assert.True(t, Build.Gated())

	assert.True(t, AdversarialReview.UsesFanout())
	assert.True(t, Build.UsesFanout())
	assert.False(t, Plan.UsesFanout())

	assert.True(t, Plan.NeedsTraceability())
	assert.False(t, PMatch.NeedsTraceability())

	assert.Equal(t, "build_lead", Build.BudgetKey())
	assert.Equal(t, "plan", Plan.BudgetKey())
}

func TestPhase_ArtifactKey(t *testing.T) {
	tests := map[Phase]string{
		Arm:               "brief",
		Design:            "design",
		AdversarialReview: "review",
		Plan:              "plan",
		PMatch:            "drift_reports",
		QualityStatic:     "quality_reports",
		QualityTests:      "quality_reports",
		Build:             "",
		PostBuild:         "",
		ReleaseReadiness:  "",
	}
	for p, want := range tests {
		assert.Equal(t, want, p.ArtifactKey(), string(p))
	}
}

func TestParseConfigID(t *testing.T) {
	id, err := ParseConfigID("")
	require.NoError(t, err)
	assert.Equal(t, PhasedDefault, id)

	id, err = ParseConfigID("phased_dual_extractor_drift")
	require.NoError(t, err)
	assert.Equal(t, PhasedDualExtractorDrift, id)

	_, err = ParseConfigID("turbo")
	assert.True(t, errcode.Is(err, errcode.BadInput))
}

func TestTimestamp(t *testing.T) {
	ts := Timestamp(time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.FixedZone("x", 3600)))
	assert.Equal(t, "2026-03-04T04:06:07.890Z", ts)
}
