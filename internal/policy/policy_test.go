package policy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
)

func TestDecideFanout_BuildScenario(t *testing.T) {
	in := Input{
		Phase: pipeline.Build,
		Policy: Policy{
			MaxBuilders:     Float(2),
			Lambda:          Float(1),
			Mu:              Float(1),
			MinExpectedGain: Float(0.1),
		},
		RequestedFanout:     Float(2),
		QualityGainEstimate: Float(0.2),
		CostPerAgentUSD:     Float(0.5),
		CoordinationCost:    Float(0.05),
	}

	d := DecideFanout(in)
	assert.Equal(t, 1, d.ChosenFanout)
	assert.Equal(t, 2, d.MaxFanout)
	assert.Equal(t, 2, d.RequestedFanout)
	// delta(1) = 0.2 beats delta(2) and clears min_expected_gain.
	assert.Equal(t, ReasonBestDelta, d.Reason)

	require.Len(t, d.Candidates, 2)
	assert.Equal(t, Candidate{Fanout: 1, QualityGain: 0.2, Delta: 0.2}, d.Candidates[0])
	assert.Equal(t, 2, d.Candidates[1].Fanout)
	assert.InDelta(t, 0.316993, d.Candidates[1].QualityGain, 1e-9)
	assert.InDelta(t, -0.233007, d.Candidates[1].Delta, 1e-9)

	assert.Equal(t, d, DecideFanout(in), "decision must be deterministic")
}

func TestDecideFanout_SingleAgentEarnsBaseGain(t *testing.T) {
	d := DecideFanout(Input{
		Phase: pipeline.Build,
		Policy: Policy{
			MaxBuilders: Float(2),
			Lambda:      Float(1),
			Mu:          Float(1),
		},
		RequestedFanout:     Float(2),
		QualityGainEstimate: Float(1),
		CostPerAgentUSD:     Float(1),
		CoordinationCost:    Float(0),
	})
	// delta(1) = log2(2) = 1; delta(2) = log2(3) - 1.
	assert.Equal(t, 1, d.ChosenFanout)
	assert.Equal(t, ReasonBestDelta, d.Reason)
	require.Len(t, d.Candidates, 2)
	assert.Equal(t, 1, d.Candidates[0].Fanout)
	assert.InDelta(t, 1.0, d.Candidates[0].QualityGain, 1e-9)
	assert.InDelta(t, 1.0, d.Candidates[0].Delta, 1e-9)
	assert.InDelta(t, 0.584963, d.Candidates[1].Delta, 1e-9)
}

func TestDecideFanout_BelowMinGain(t *testing.T) {
	d := DecideFanout(Input{
		Phase:               pipeline.Build,
		Policy:              Policy{MaxBuilders: Float(3), MinExpectedGain: Float(0.5)},
		QualityGainEstimate: Float(0.1),
		CostPerAgentUSD:     Float(1),
		CoordinationCost:    Float(0),
	})
	// delta(1) = 0.1 is the best candidate but does not exceed 0.5.
	assert.Equal(t, 1, d.ChosenFanout)
	assert.Equal(t, ReasonBelowMinGain, d.Reason)
}

func TestDecideFanout_BestDelta(t *testing.T) {
	d := DecideFanout(Input{
		Phase:               pipeline.AdversarialReview,
		Policy:              Policy{MaxReviewers: Float(4)},
		QualityGainEstimate: Float(1),
		CostPerAgentUSD:     Float(0.1),
		CoordinationCost:    Float(0),
	})
	// delta(f) = log2(f+1) - 0.1(f-1) grows through f=4.
	assert.Equal(t, 4, d.ChosenFanout)
	assert.Equal(t, ReasonBestDelta, d.Reason)
	assert.Equal(t, 4, d.RequestedFanout)
	assert.Equal(t, 4, d.Candidates[0].Fanout)
}

func TestDecideFanout_Guardrails(t *testing.T) {
	base := Input{
		Phase:               pipeline.AdversarialReview,
		Policy:              Policy{MaxReviewers: Float(3), BudgetUSD: Float(10), LatencyBudgetS: Float(60)},
		QualityGainEstimate: Float(5),
		CostPerAgentUSD:     Float(0),
		CoordinationCost:    Float(0),
	}
	tests := []struct {
		name   string
		totals Totals
		chosen int
		reason string
	}{
		{"under budget", Totals{1, 1}, 3, ReasonBestDelta},
		{"budget", Totals{10, 1}, 1, ReasonBudget},
		{"latency", Totals{1, 61}, 1, ReasonLatency},
		{"both", Totals{11, 60}, 1, ReasonBudgetAndLatency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			in.Totals = tt.totals
			d := DecideFanout(in)
			assert.Equal(t, tt.chosen, d.ChosenFanout)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestMaxFanout(t *testing.T) {
	assert.Equal(t, 1, MaxFanout(pipeline.AdversarialReview, Policy{}))
	assert.Equal(t, 12, MaxFanout(pipeline.Build, Policy{MaxBuilders: Float(40)}))
	assert.Equal(t, 1, MaxFanout(pipeline.Build, Policy{MaxBuilders: Float(-3)}))
	assert.Equal(t, 2, MaxFanout(pipeline.Build, Policy{MaxBuilders: Float(2.9)}))
	assert.Equal(t, 1, MaxFanout(pipeline.Build, Policy{MaxBuilders: Float(math.NaN())}))
	assert.Equal(t, 1, MaxFanout(pipeline.Plan, Policy{MaxBuilders: Float(5), MaxReviewers: Float(5)}))
}

func TestDecideFanout_RequestedClamped(t *testing.T) {
	d := DecideFanout(Input{Phase: pipeline.Build, Policy: Policy{MaxBuilders: Float(3)}, RequestedFanout: Float(9)})
	assert.Equal(t, 3, d.RequestedFanout)
	assert.Len(t, d.Candidates, 3)

	d = DecideFanout(Input{Phase: pipeline.Build, Policy: Policy{MaxBuilders: Float(3)}, RequestedFanout: Float(0)})
	assert.Equal(t, 1, d.RequestedFanout)
}

func TestGuardrailProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		budget := rapid.Float64Range(0.01, 100).Draw(t, "budget")
		latency := rapid.Float64Range(0.01, 1000).Draw(t, "latency")
		overBudget := rapid.Bool().Draw(t, "overBudget")

		totals := Totals{
			TotalCostUSD:   rapid.Float64Range(0, budget*0.99).Draw(t, "cost"),
			TotalDurationS: rapid.Float64Range(latency, latency*10).Draw(t, "duration"),
		}
		if overBudget {
			totals.TotalCostUSD = rapid.Float64Range(budget, budget*10).Draw(t, "costOver")
		}

		d := DecideFanout(Input{
			Phase: rapid.SampledFrom([]pipeline.Phase{pipeline.AdversarialReview, pipeline.Build}).Draw(t, "phase"),
			Policy: Policy{
				MaxReviewers:   Float(float64(rapid.IntRange(1, 12).Draw(t, "maxReviewers"))),
				MaxBuilders:    Float(float64(rapid.IntRange(1, 12).Draw(t, "maxBuilders"))),
				BudgetUSD:      Float(budget),
				LatencyBudgetS: Float(latency),
			},
			Totals:              totals,
			QualityGainEstimate: Float(rapid.Float64Range(0, 10).Draw(t, "gain")),
			CostPerAgentUSD:     Float(rapid.Float64Range(0, 2).Draw(t, "cost")),
			CoordinationCost:    Float(rapid.Float64Range(0, 1).Draw(t, "coord")),
		})
		if d.ChosenFanout != 1 {
			t.Fatalf("guardrail tripped but chose %d (%s)", d.ChosenFanout, d.Reason)
		}
	})
}

func TestCapProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "maxReviewers")
		var requested *float64
		if rapid.Bool().Draw(t, "hasRequested") {
			requested = Float(float64(rapid.IntRange(-5, 30).Draw(t, "requested")))
		}
		d := DecideFanout(Input{
			Phase:               pipeline.AdversarialReview,
			Policy:              Policy{MaxReviewers: Float(float64(n))},
			RequestedFanout:     requested,
			QualityGainEstimate: Float(rapid.Float64Range(0, 10).Draw(t, "gain")),
			CostPerAgentUSD:     Float(rapid.Float64Range(0, 2).Draw(t, "cost")),
			CoordinationCost:    Float(rapid.Float64Range(0, 1).Draw(t, "coord")),
		})
		if d.ChosenFanout < 1 || d.ChosenFanout > n {
			t.Fatalf("chosen %d outside [1,%d]", d.ChosenFanout, n)
		}
	})
}
