// Package policy decides how many parallel reviewers or builders a phase
// should use by trading estimated quality gain against cost and
// coordination overhead.
package policy

import (
	"math"
	"sort"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
)

// MaxFanoutCeiling bounds any configured reviewer or builder limit.
const MaxFanoutCeiling = 12

// Defaults applied when a setting is absent or not finite.
const (
	DefaultLambda          = 1.0
	DefaultMu              = 1.0
	DefaultMinExpectedGain = 0.1
	DefaultQualityGain     = 0.2
	DefaultCostPerAgentUSD = 0.5
	DefaultCoordination    = 0.05
)

// Decision reasons.
const (
	ReasonBestDelta        = "best_delta"
	ReasonBelowMinGain     = "below_min_expected_gain"
	ReasonBudget           = "budget_guardrail"
	ReasonLatency          = "latency_guardrail"
	ReasonBudgetAndLatency = "budget_and_latency_guardrail"
)

// Policy is the orchestration_policy section of the pipeline config. Nil
// fields take the defaults above; zero budgets disable the guardrails.
type Policy struct {
	MaxReviewers    *float64 `json:"max_reviewers,omitempty"`
	MaxBuilders     *float64 `json:"max_builders,omitempty"`
	Lambda          *float64 `json:"lambda,omitempty"`
	Mu              *float64 `json:"mu,omitempty"`
	MinExpectedGain *float64 `json:"min_expected_gain,omitempty"`
	BudgetUSD       *float64 `json:"budget_usd,omitempty"`
	LatencyBudgetS  *float64 `json:"latency_budget_s,omitempty"`
}

// Totals is the run's accumulated spend so far.
type Totals struct {
	TotalCostUSD   float64
	TotalDurationS float64
}

// Input is one fanout decision request.
type Input struct {
	Phase               pipeline.Phase
	Policy              Policy
	Totals              Totals
	RequestedFanout     *float64
	QualityGainEstimate *float64
	CostPerAgentUSD     *float64
	CoordinationCost    *float64
}

// Candidate scores one fanout value. Values are rounded to 6 places.
type Candidate struct {
	Fanout           int     `json:"fanout"`
	QualityGain      float64 `json:"quality_gain"`
	CostDelta        float64 `json:"cost_delta"`
	CoordinationCost float64 `json:"coordination_cost"`
	Delta            float64 `json:"delta"`
}

// Thresholds echoes the effective policy settings.
type Thresholds struct {
	Lambda          float64 `json:"lambda"`
	Mu              float64 `json:"mu"`
	MinExpectedGain float64 `json:"min_expected_gain"`
	BudgetUSD       float64 `json:"budget_usd"`
	LatencyBudgetS  float64 `json:"latency_budget_s"`
}

// RuntimeTotals echoes the totals and which guardrails tripped.
type RuntimeTotals struct {
	TotalCostUSD    float64 `json:"total_cost_usd"`
	TotalLatencyS   float64 `json:"total_latency_s"`
	BudgetExceeded  bool    `json:"budget_exceeded"`
	LatencyExceeded bool    `json:"latency_exceeded"`
}

// Decision is the chosen fanout with everything needed to audit it.
type Decision struct {
	Phase           pipeline.Phase `json:"phase"`
	ChosenFanout    int            `json:"chosen_fanout"`
	MaxFanout       int            `json:"max_fanout"`
	RequestedFanout int            `json:"requested_fanout"`
	Reason          string         `json:"reason"`
	Thresholds      Thresholds     `json:"thresholds"`
	RuntimeTotals   RuntimeTotals  `json:"runtime_totals"`
	Candidates      []Candidate    `json:"candidates"`
}

// MaxFanout returns the phase's fanout cap. Only adversarial-review and
// build fan out; the cap defaults to 1 and never exceeds MaxFanoutCeiling.
func MaxFanout(p pipeline.Phase, pol Policy) int {
	switch p {
	case pipeline.AdversarialReview:
		return clampInt(valueOr(pol.MaxReviewers, 1), 1, MaxFanoutCeiling)
	case pipeline.Build:
		return clampInt(valueOr(pol.MaxBuilders, 1), 1, MaxFanoutCeiling)
	}
	return 1
}

// DecideFanout scores every fanout from 1 to the requested value with
//
//	delta(f) = base*log2(f+1) - lambda*(f-1)*costPerAgent - mu*(f-1)*coordination
//
// and picks the highest delta, ties going to the smaller fanout. A single
// agent already earns base, so f=1 competes on quality like every other
// candidate. A best delta at or below min_expected_gain, or a tripped
// budget or latency guardrail, forces fanout 1. It is pure.
func DecideFanout(in Input) Decision {
	maxFanout := MaxFanout(in.Phase, in.Policy)
	requested := clampInt(valueOr(in.RequestedFanout, float64(maxFanout)), 1, maxFanout)

	th := Thresholds{
		Lambda:          valueOr(in.Policy.Lambda, DefaultLambda),
		Mu:              valueOr(in.Policy.Mu, DefaultMu),
		MinExpectedGain: valueOr(in.Policy.MinExpectedGain, DefaultMinExpectedGain),
		BudgetUSD:       valueOr(in.Policy.BudgetUSD, 0),
		LatencyBudgetS:  valueOr(in.Policy.LatencyBudgetS, 0),
	}
	base := valueOr(in.QualityGainEstimate, DefaultQualityGain)
	perAgent := valueOr(in.CostPerAgentUSD, DefaultCostPerAgentUSD)
	coordUnit := valueOr(in.CoordinationCost, DefaultCoordination)

	totals := RuntimeTotals{
		TotalCostUSD:  finiteOr(in.Totals.TotalCostUSD, 0),
		TotalLatencyS: finiteOr(in.Totals.TotalDurationS, 0),
	}
	totals.BudgetExceeded = th.BudgetUSD > 0 && totals.TotalCostUSD >= th.BudgetUSD
	totals.LatencyExceeded = th.LatencyBudgetS > 0 && totals.TotalLatencyS >= th.LatencyBudgetS

	candidates := make([]Candidate, 0, requested)
	for f := 1; f <= requested; f++ {
		extra := float64(f - 1)
		gain := base * math.Log2(float64(f)+1)
		cost := extra * perAgent
		coord := extra * coordUnit
		delta := gain - th.Lambda*cost - th.Mu*coord
		candidates = append(candidates, Candidate{
			Fanout:           f,
			QualityGain:      round6(gain),
			CostDelta:        round6(cost),
			CoordinationCost: round6(coord),
			Delta:            round6(delta),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Delta != candidates[j].Delta {
			return candidates[i].Delta > candidates[j].Delta
		}
		return candidates[i].Fanout < candidates[j].Fanout
	})

	best := Candidate{Fanout: 1}
	if len(candidates) > 0 {
		best = candidates[0]
	}

	chosen, reason := best.Fanout, ReasonBestDelta
	if best.Delta <= th.MinExpectedGain {
		chosen, reason = 1, ReasonBelowMinGain
	}
	switch {
	case totals.BudgetExceeded && totals.LatencyExceeded:
		chosen, reason = 1, ReasonBudgetAndLatency
	case totals.BudgetExceeded:
		chosen, reason = 1, ReasonBudget
	case totals.LatencyExceeded:
		chosen, reason = 1, ReasonLatency
	}

	return Decision{
		Phase:           in.Phase,
		ChosenFanout:    clampInt(float64(chosen), 1, maxFanout),
		MaxFanout:       maxFanout,
		RequestedFanout: requested,
		Reason:          reason,
		Thresholds:      th,
		RuntimeTotals:   totals,
		Candidates:      candidates,
	}
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return finiteOr(*v, fallback)
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// clampInt truncates v into [lo, hi]; a non-finite v becomes lo.
func clampInt(v float64, lo, hi int) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	n := math.Trunc(v)
	if n < float64(lo) {
		return lo
	}
	if n > float64(hi) {
		return hi
	}
	return int(n)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Float returns a pointer to v, for building Policy and Input literals.
func Float(v float64) *float64 {
	return &v
}
