package trace

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
	"github.com/fyrsmithlabs/pipegate/internal/schema"
	"github.com/fyrsmithlabs/pipegate/internal/store"
)

// Report is the collector's verdict on a run's trace.
type Report struct {
	RunID   string   `json:"run_id"`
	Valid   bool     `json:"valid"`
	Issues  []string `json:"issues"`
	Summary Summary  `json:"summary"`
}

// RunSummary is the flattened form persisted as trace.summary.json.
type RunSummary struct {
	RunID  string   `json:"run_id"`
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
	Summary
}

// Flatten converts a report to its persisted form.
func (r *Report) Flatten() RunSummary {
	return RunSummary{RunID: r.RunID, Valid: r.Valid, Issues: r.Issues, Summary: r.Summary}
}

// Collector re-validates trace events against the execution-trace contract
// and summarizes them. Validator is required.
type Collector struct {
	Validator schema.Validator

	// SchemaRef defaults to the execution-trace contract.
	SchemaRef string
}

// Collect checks every event and summarizes the run. Schema violations and
// run_id mismatches become issues; they never fail the call.
func (c *Collector) Collect(ctx context.Context, runID string, events []Event) (*Report, error) {
	if runID == "" {
		return nil, errcode.BadInputf("run_id is required")
	}
	if c == nil || c.Validator == nil {
		return nil, errcode.New(errcode.MissingDependency, "schema validator is not configured")
	}
	ref := c.SchemaRef
	if ref == "" {
		ref = schema.ExecutionTraceRef
	}

	issues := []string{}
	for i, e := range events {
		var doc any = e.Raw()
		if e.Raw() == nil {
			doc = e
		}
		res, err := c.Validator.Validate(ctx, doc, ref)
		if err != nil {
			return nil, errcode.Wrap(errcode.CollectorFailed, "validate trace", err)
		}
		if !res.Valid {
			issues = append(issues, fmt.Sprintf("event[%d] schema violation: %s", i, strings.Join(res.Errors, "; ")))
		}
		if e.RunID != runID {
			issues = append(issues, fmt.Sprintf("event[%d] run_id mismatch: expected %s, got %s", i, runID, e.RunID))
		}
	}

	summary, summaryIssues := Summarize(events)
	issues = append(issues, summaryIssues...)

	logging.FromContext(ctx).Debug(ctx, "trace collected",
		zap.String("run.id", runID),
		zap.Int("events", len(events)),
		zap.Int("issues", len(issues)),
	)
	return &Report{
		RunID:   runID,
		Valid:   len(issues) == 0,
		Issues:  issues,
		Summary: summary,
	}, nil
}

// SummarizeRun collects the log's events and writes trace.summary.json.
func SummarizeRun(ctx context.Context, ws *store.Workspace, log *Log, c *Collector) (RunSummary, error) {
	events, err := log.Read()
	if err != nil {
		return RunSummary{}, err
	}
	report, err := c.Collect(ctx, log.RunID(), events)
	if err != nil {
		return RunSummary{}, err
	}
	out := report.Flatten()
	path, err := ws.SummaryPath(log.RunID())
	if err != nil {
		return RunSummary{}, err
	}
	if err := store.WriteJSON(path, out); err != nil {
		return RunSummary{}, err
	}
	return out, nil
}

// LoadSummary reads a persisted trace.summary.json.
func LoadSummary(ws *store.Workspace, runID string) (RunSummary, bool, error) {
	path, err := ws.SummaryPath(runID)
	if err != nil {
		return RunSummary{}, false, err
	}
	var out RunSummary
	found, err := store.ReadJSON(path, &out)
	return out, found, err
}
