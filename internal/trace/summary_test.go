package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func ev(kind Kind, phase, ts string) Event {
	return Event{TS: ts, RunID: "run-1", Event: kind, Phase: phase}
}

func withStatus(e Event, status string) Event {
	e.Status = status
	return e
}

func f64(v float64) *float64 { return &v }

func TestSummarize(t *testing.T) {
	call := ev(AgentCall, "build", "2026-03-01T12:00:06.500Z")
	call.TokensIn, call.TokensOut, call.CostUSD = f64(100), f64(50), f64(0.1234567)
	negative := ev(AgentCall, "build", "2026-03-01T12:00:06.600Z")
	negative.TokensIn, negative.CostUSD = f64(-20), f64(-1)

	events := []Event{
		ev(RunStart, "run", "2026-03-01T12:00:00.000Z"),
		ev(PhaseStart, "plan", "2026-03-01T12:00:01.000Z"),
		withStatus(ev(GateResult, "plan", "2026-03-01T12:00:03.000Z"), "pass"),
		ev(PhaseEnd, "plan", "2026-03-01T12:00:03.500Z"),
		ev(PhaseStart, "build", "2026-03-01T12:00:04.000Z"),
		withStatus(ev(GateResult, "build", "2026-03-01T12:00:04.900Z"), "fail"),
		ev(PhaseEnd, "build", "2026-03-01T12:00:05.000Z"),
		withStatus(ev(Retry, "build", "2026-03-01T12:00:05.500Z"), StatusRetry),
		ev(PhaseStart, "build", "2026-03-01T12:00:06.000Z"),
		call,
		negative,
		withStatus(ev(GateResult, "build", "2026-03-01T12:00:07.900Z"), "warn"),
		ev(PhaseEnd, "build", "2026-03-01T12:00:08.000Z"),
		withStatus(ev(Error, "build", "2026-03-01T12:00:08.100Z"), StatusError),
	}

	s, issues := Summarize(events)
	assert.Empty(t, issues)
	assert.Equal(t, len(events), s.TotalEvents)
	assert.Equal(t, 3, s.EventsByType["phase_start"])
	assert.Equal(t, GateCounts{Pass: 1, Fail: 1, Warn: 1}, s.GateResults)
	assert.Equal(t, map[string]int64{"plan": 2500, "build": 3000}, s.PhaseDurationsMS)
	assert.Equal(t, 100.0, s.TotalTokensIn)
	assert.Equal(t, 50.0, s.TotalTokensOut)
	assert.Equal(t, 0.123457, s.TotalCostUSD)
	assert.Equal(t, 1, s.FailureCount)
	assert.Equal(t, 1, s.RetryCount)
	assert.Equal(t, 5.5, s.TotalDurationS)
	assert.Equal(t, 0.0, s.SecurityTimeToClosureS)
	assert.Equal(t, []string{"plan", "build"}, s.Phases())
}

func TestSummarize_Issues(t *testing.T) {
	events := []Event{
		ev(PhaseEnd, "security-review", "2026-03-01T12:00:00.000Z"),
		ev(PhaseStart, "plan", "2026-03-01T12:00:10.000Z"),
		ev(PhaseEnd, "plan", "2026-03-01T12:00:09.000Z"),
		ev(PhaseStart, "quality-frontend", "2026-03-01T12:00:11.000Z"),
	}

	s, issues := Summarize(events)
	assert.Equal(t, []string{
		"phase_end without matching phase_start: security-review",
		"phase_end without matching phase_start: plan",
		"phase_start without matching phase_end: plan",
		"phase_start without matching phase_end: quality-frontend",
	}, issues)
	assert.Empty(t, s.PhaseDurationsMS)
	assert.Equal(t, 0.0, s.TotalDurationS)
}

func TestSummarize_UnparsableStartIsReported(t *testing.T) {
	events := []Event{
		ev(PhaseStart, "plan", "not-a-time"),
		ev(PhaseEnd, "plan", "2026-03-01T12:00:05.000Z"),
		ev(PhaseStart, "build", "2026-03-01T12:00:06.000Z"),
		ev(PhaseEnd, "build", "2026-03-01T12:00:08.000Z"),
	}

	s, issues := Summarize(events)
	assert.Equal(t, []string{
		"phase_start with unparsable ts: plan",
		"phase_end without matching phase_start: plan",
	}, issues)
	assert.Equal(t, map[string]int64{"build": 2000}, s.PhaseDurationsMS)
	assert.Equal(t, 2, s.EventsByType[string(PhaseStart)])
}

func TestSummarize_SecurityClosure(t *testing.T) {
	s, issues := Summarize([]Event{
		ev(PhaseStart, "security-review", "2026-03-01T12:00:00.000Z"),
		ev(PhaseEnd, "security-review", "2026-03-01T12:01:30.250Z"),
	})
	require.Empty(t, issues)
	assert.Equal(t, 90.25, s.SecurityTimeToClosureS)
}

func TestSummary_PhasesOrdersExtrasLast(t *testing.T) {
	s := Summary{PhaseDurationsMS: map[string]int64{
		"zeta":      1,
		"build":     2,
		"arm":       3,
		"accessory": 4,
	}}
	assert.Equal(t, []string{"arm", "build", "accessory", "zeta"}, s.Phases())
}

func TestSummarize_BalancedPairsHaveNoIssues(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		phases := []string{"arm", "plan", "build"}
		n := rapid.IntRange(0, 20).Draw(t, "n")
		var events []Event
		sec := 0
		want := map[string]int64{}
		for i := 0; i < n; i++ {
			phase := rapid.SampledFrom(phases).Draw(t, "phase")
			dur := rapid.IntRange(0, 5).Draw(t, "dur")
			events = append(events, ev(PhaseStart, phase, stamp(sec)))
			sec += dur
			events = append(events, ev(PhaseEnd, phase, stamp(sec)))
			sec++
			want[phase] += int64(dur) * 1000
		}

		s, issues := Summarize(events)
		if len(issues) != 0 {
			t.Fatalf("unexpected issues: %v", issues)
		}
		for phase, ms := range want {
			if s.PhaseDurationsMS[phase] != ms {
				t.Fatalf("phase %s: got %d ms, want %d", phase, s.PhaseDurationsMS[phase], ms)
			}
		}
	})
}

func stamp(sec int) string {
	return epoch.Add(time.Duration(sec) * time.Second).Format("2006-01-02T15:04:05.000Z07:00")
}
