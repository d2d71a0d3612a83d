package trace

import (
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fyrsmithlabs/pipegate/internal/store"
)

// MetricsFileName is the node-exporter textfile written beside the trace.
const MetricsFileName = "trace.prom"

// Metrics mirrors a run summary as Prometheus gauges. Each instance owns its
// registry so several runs can be exported from one process.
type Metrics struct {
	registry *prometheus.Registry

	events      *prometheus.GaugeVec
	gates       *prometheus.GaugeVec
	phaseMS     *prometheus.GaugeVec
	tokens      *prometheus.GaugeVec
	costUSD     *prometheus.GaugeVec
	failures    *prometheus.GaugeVec
	retries     *prometheus.GaugeVec
	durationS   *prometheus.GaugeVec
	traceIssues *prometheus.GaugeVec
	valid       *prometheus.GaugeVec
}

// NewMetrics creates the gauges on a private registry.
//
// Metrics:
//   - pipegate_trace_events{run_id,event}
//   - pipegate_gate_results{run_id,status}
//   - pipegate_phase_duration_ms{run_id,phase}
//   - pipegate_tokens{run_id,direction}
//   - pipegate_cost_usd{run_id}
//   - pipegate_failures{run_id}
//   - pipegate_retries{run_id}
//   - pipegate_duration_seconds{run_id}
//   - pipegate_trace_issues{run_id}
//   - pipegate_trace_valid{run_id}
func NewMetrics() *Metrics {
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pipegate",
			Name:      name,
			Help:      help,
		}, append([]string{"run_id"}, labels...))
	}

	m := &Metrics{
		registry:    prometheus.NewRegistry(),
		events:      gauge("trace_events", "Trace events recorded, by event type", "event"),
		gates:       gauge("gate_results", "Gate results recorded, by status", "status"),
		phaseMS:     gauge("phase_duration_ms", "Summed phase duration in milliseconds", "phase"),
		tokens:      gauge("tokens", "Tokens reported by agent calls", "direction"),
		costUSD:     gauge("cost_usd", "Reported cost in USD"),
		failures:    gauge("failures", "Error events recorded"),
		retries:     gauge("retries", "Retry events recorded"),
		durationS:   gauge("duration_seconds", "Total phase duration in seconds"),
		traceIssues: gauge("trace_issues", "Structural issues found in the trace"),
		valid:       gauge("trace_valid", "1 when the trace has no issues"),
	}
	m.registry.MustRegister(m.events, m.gates, m.phaseMS, m.tokens, m.costUSD,
		m.failures, m.retries, m.durationS, m.traceIssues, m.valid)
	return m
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe sets every gauge from s.
func (m *Metrics) Observe(s RunSummary) {
	id := s.RunID
	for event, n := range s.EventsByType {
		m.events.WithLabelValues(id, event).Set(float64(n))
	}
	m.gates.WithLabelValues(id, "pass").Set(float64(s.GateResults.Pass))
	m.gates.WithLabelValues(id, "warn").Set(float64(s.GateResults.Warn))
	m.gates.WithLabelValues(id, "fail").Set(float64(s.GateResults.Fail))
	for phase, ms := range s.PhaseDurationsMS {
		m.phaseMS.WithLabelValues(id, phase).Set(float64(ms))
	}
	m.tokens.WithLabelValues(id, "in").Set(s.TotalTokensIn)
	m.tokens.WithLabelValues(id, "out").Set(s.TotalTokensOut)
	m.costUSD.WithLabelValues(id).Set(s.TotalCostUSD)
	m.failures.WithLabelValues(id).Set(float64(s.FailureCount))
	m.retries.WithLabelValues(id).Set(float64(s.RetryCount))
	m.durationS.WithLabelValues(id).Set(s.TotalDurationS)
	m.traceIssues.WithLabelValues(id).Set(float64(len(s.Issues)))
	valid := 0.0
	if s.Valid {
		valid = 1
	}
	m.valid.WithLabelValues(id).Set(valid)
}

// WriteTextfile writes the registry to the run's trace.prom and returns the
// file path.
func (m *Metrics) WriteTextfile(ws *store.Workspace, runID string) (string, error) {
	dir, err := ws.RunDir(runID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, MetricsFileName)
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return "", err
	}
	return path, nil
}

// WriteMetrics exports s to the run's trace.prom on a fresh registry.
func WriteMetrics(ws *store.Workspace, s RunSummary) (string, error) {
	m := NewMetrics()
	m.Observe(s)
	return m.WriteTextfile(ws, s.RunID)
}
