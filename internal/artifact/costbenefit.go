package artifact

import "strings"

// Finding severities.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Risk of ignoring a finding.
const (
	RiskCatastrophic = "catastrophic"
	RiskHigh         = "high"
	RiskModerate     = "moderate"
	RiskLow          = "low"
	RiskNegligible   = "negligible"
)

// Estimated cost of fixing a finding.
const (
	CostTrivial     = "trivial"
	CostLow         = "low"
	CostMedium      = "medium"
	CostHigh        = "high"
	CostProhibitive = "prohibitive"
)

// Recommendations.
const (
	RecommendFixNow        = "fix-now"
	RecommendFixBeforeShip = "fix-before-ship"
	RecommendDefer         = "defer"
	RecommendAccept        = "accept"
	RecommendWontFix       = "wont-fix"
)

var severityRisk = map[string]string{
	SeverityCritical: RiskCatastrophic,
	SeverityHigh:     RiskHigh,
	SeverityMedium:   RiskModerate,
	SeverityLow:      RiskLow,
	SeverityInfo:     RiskNegligible,
}

// Categories whose fixes are structural and therefore expensive.
var highCostCategories = map[string]bool{
	"architecture": true,
	"feasibility":  true,
	"performance":  true,
}

// CostBenefit weighs one finding.
type CostBenefit struct {
	FindingID      string `json:"finding_id"`
	Severity       string `json:"severity"`
	FixCost        string `json:"fix_cost"`
	RiskOfIgnoring string `json:"risk_of_ignoring"`
	Recommendation string `json:"recommendation"`
}

// AnalyzeCostBenefit maps each finding to a recommendation. Severity sets
// the risk; category and description length estimate the fix cost.
func AnalyzeCostBenefit(findings []Finding) []CostBenefit {
	out := make([]CostBenefit, 0, len(findings))
	for _, f := range findings {
		risk, ok := severityRisk[f.Severity]
		if !ok {
			risk = RiskNegligible
		}
		cost := EstimateFixCost(f)
		out = append(out, CostBenefit{
			FindingID:      f.ID,
			Severity:       f.Severity,
			FixCost:        cost,
			RiskOfIgnoring: risk,
			Recommendation: Recommend(risk, cost),
		})
	}
	return out
}

// EstimateFixCost guesses how expensive a finding is to fix.
func EstimateFixCost(f Finding) string {
	if highCostCategories[strings.ToLower(f.Category)] {
		if f.Severity == SeverityCritical {
			return CostProhibitive
		}
		return CostHigh
	}
	switch n := len(f.Description); {
	case n <= 80:
		return CostTrivial
	case n > 300:
		return CostMedium
	}
	return CostLow
}

// Recommend maps risk and cost to a recommendation:
//
//	risk\cost     trivial      low          medium       high|prohibitive
//	catastrophic  fix-now      fix-now      fix-now      fix-now
//	high          fix-now      fix-now      fix-before   fix-before
//	moderate      fix-before   fix-before   defer        defer
//	low           accept       accept       accept       wont-fix
//	negligible    accept       accept       wont-fix     wont-fix
func Recommend(risk, cost string) string {
	cheap := cost == CostTrivial || cost == CostLow
	switch risk {
	case RiskCatastrophic:
		return RecommendFixNow
	case RiskHigh:
		if cheap {
			return RecommendFixNow
		}
		return RecommendFixBeforeShip
	case RiskModerate:
		if cheap {
			return RecommendFixBeforeShip
		}
		return RecommendDefer
	case RiskLow:
		if cost == CostHigh || cost == CostProhibitive {
			return RecommendWontFix
		}
		return RecommendAccept
	}
	if cheap {
		return RecommendAccept
	}
	return RecommendWontFix
}
