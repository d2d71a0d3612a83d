package trace

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
)

// GateCounts tallies gate_result events by status.
type GateCounts struct {
	Pass int `json:"pass"`
	Fail int `json:"fail"`
	Warn int `json:"warn"`
}

// Summary aggregates a run's events.
type Summary struct {
	TotalEvents            int              `json:"total_events"`
	EventsByType           map[string]int   `json:"events_by_type"`
	GateResults            GateCounts       `json:"gate_results"`
	PhaseDurationsMS       map[string]int64 `json:"phase_durations_ms"`
	TotalTokensIn          float64          `json:"total_tokens_in"`
	TotalTokensOut         float64          `json:"total_tokens_out"`
	TotalCostUSD           float64          `json:"total_cost_usd"`
	FailureCount           int              `json:"failure_count"`
	RetryCount             int              `json:"retry_count"`
	TotalDurationS         float64          `json:"total_duration_s"`
	SecurityTimeToClosureS float64          `json:"security_time_to_closure_s"`
}

// Summarize aggregates events and reports structural issues.
//
// Each phase_end is paired with the earliest unmatched phase_start of the
// same phase stamped at or before it, so retried phases contribute one
// duration per attempt. Ends with no such start, starts never closed and
// starts with an unparsable ts are reported as issues. Negative token and
// cost values count as zero.
func Summarize(events []Event) (Summary, []string) {
	s := Summary{
		TotalEvents:      len(events),
		EventsByType:     map[string]int{},
		PhaseDurationsMS: map[string]int64{},
	}
	issues := []string{}

	type start struct {
		at      time.Time
		matched bool
	}
	starts := map[string][]*start{}
	var startOrder []string

	for _, e := range events {
		s.EventsByType[string(e.Event)]++

		switch e.Event {
		case PhaseStart:
			at, ok := parseTS(e.TS)
			if !ok {
				issues = append(issues, fmt.Sprintf("phase_start with unparsable ts: %s", e.Phase))
				continue
			}
			if _, seen := starts[e.Phase]; !seen {
				startOrder = append(startOrder, e.Phase)
			}
			starts[e.Phase] = append(starts[e.Phase], &start{at: at})
		case PhaseEnd:
			at, ok := parseTS(e.TS)
			var match *start
			if ok {
				for _, st := range starts[e.Phase] {
					if !st.matched && !st.at.After(at) {
						match = st
						break
					}
				}
			}
			if match == nil {
				issues = append(issues, fmt.Sprintf("phase_end without matching phase_start: %s", e.Phase))
				continue
			}
			match.matched = true
			s.PhaseDurationsMS[e.Phase] += at.Sub(match.at).Milliseconds()
		case GateResult:
			switch e.Status {
			case "pass":
				s.GateResults.Pass++
			case "fail":
				s.GateResults.Fail++
			case "warn":
				s.GateResults.Warn++
			}
		case Error:
			s.FailureCount++
		case Retry:
			s.RetryCount++
		}

		s.TotalTokensIn += nonNegative(e.TokensIn)
		s.TotalTokensOut += nonNegative(e.TokensOut)
		s.TotalCostUSD += nonNegative(e.CostUSD)
	}

	for _, phase := range startOrder {
		for _, st := range starts[phase] {
			if !st.matched {
				issues = append(issues, fmt.Sprintf("phase_start without matching phase_end: %s", phase))
			}
		}
	}

	var totalMS int64
	for _, ms := range s.PhaseDurationsMS {
		totalMS += ms
	}
	s.TotalCostUSD = round(s.TotalCostUSD, 6)
	s.TotalDurationS = round(float64(totalMS)/1000, 3)
	s.SecurityTimeToClosureS = round(float64(s.PhaseDurationsMS[string(pipeline.SecurityReview)])/1000, 3)
	return s, issues
}

// Phases returns the phases with recorded durations: pipeline phases in
// execution order, then any others sorted by name.
func (s Summary) Phases() []string {
	var out []string
	known := map[string]bool{}
	for _, p := range pipeline.All() {
		known[string(p)] = true
		if _, ok := s.PhaseDurationsMS[string(p)]; ok {
			out = append(out, string(p))
		}
	}
	var extra []string
	for p := range s.PhaseDurationsMS {
		if !known[p] {
			extra = append(extra, p)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func parseTS(ts string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func nonNegative(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || *v < 0 {
		return 0
	}
	return *v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
