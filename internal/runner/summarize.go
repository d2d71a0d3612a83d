package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/logging"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/internal/trace"
)

// SummaryRequest selects a summarize-run invocation.
type SummaryRequest struct {
	RunID  string
	Format string

	// Output is a workspace-relative file to write the rendered summary to.
	Output string

	// Metrics also exports the summary as Prometheus text to trace.prom.
	Metrics bool

	// Styled adds terminal colors to text output written to stdout.
	Styled bool
}

// SummaryPayload is the JSON form of a summary, printed to stdout or written
// to the output file.
type SummaryPayload struct {
	Success    bool             `json:"success"`
	RunID      string           `json:"run_id"`
	Summary    trace.RunSummary `json:"summary"`
	Format     trace.Format     `json:"format,omitempty"`
	OutputRef  string           `json:"output_ref,omitempty"`
	MetricsRef string           `json:"metrics_ref,omitempty"`
}

// SummaryResult is what summarize-run prints. Rendered is set only for text
// and markdown without an output file; everything else prints Payload.
type SummaryResult struct {
	Format    trace.Format
	Summary   trace.RunSummary
	OutputRef string
	Metrics   string

	// Rendered holds text or markdown for stdout when no output file was
	// requested.
	Rendered string
}

// SummarizeRun closes the run's trace with run_start/run_end when missing,
// validates and summarizes it, and persists trace.summary.json.
func (r *Runner) SummarizeRun(ctx context.Context, req SummaryRequest) (*SummaryResult, error) {
	format, err := trace.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithRunID(ctx, req.RunID)
	rn, err := r.openRun(req.RunID)
	if err != nil {
		return nil, err
	}
	if err := r.ensureStarted(ctx, rn); err != nil {
		return nil, err
	}
	if err := r.ensureEnded(ctx, rn); err != nil {
		return nil, err
	}

	summary, err := trace.SummarizeRun(ctx, r.ws, rn.log, r.collector)
	if err != nil {
		return nil, err
	}
	out := &SummaryResult{Format: format, Summary: summary}

	if req.Metrics {
		path, err := trace.WriteMetrics(r.ws, summary)
		if err != nil {
			return nil, err
		}
		if out.Metrics, err = r.ws.Relative(path); err != nil {
			return nil, err
		}
	}

	var rendered string
	switch format {
	case trace.FormatText:
		rendered = trace.RenderText(summary, req.Styled && req.Output == "")
	case trace.FormatMarkdown:
		rendered = trace.RenderMarkdown(summary)
	}

	if req.Output != "" {
		abs, err := r.ws.Resolve(req.Output)
		if err != nil {
			return nil, err
		}
		if format == trace.FormatJSON {
			err = store.WriteJSON(abs, SummaryPayload{Success: true, RunID: summary.RunID, Summary: summary})
		} else {
			err = store.WriteFileAtomic(abs, []byte(rendered))
		}
		if err != nil {
			return nil, err
		}
		if out.OutputRef, err = r.ws.Relative(abs); err != nil {
			return nil, err
		}
	} else {
		out.Rendered = rendered
	}

	logging.FromContext(ctx).Info(ctx, "run summarized",
		zap.Bool("valid", summary.Valid),
		zap.Int("issues", len(summary.Issues)),
		zap.String("format", string(format)),
	)
	return out, nil
}

// Payload returns the JSON document summarize-run prints when nothing was
// rendered for stdout.
func (s *SummaryResult) Payload() SummaryPayload {
	p := SummaryPayload{Success: true, RunID: s.Summary.RunID, Summary: s.Summary, MetricsRef: s.Metrics}
	if s.OutputRef != "" {
		p.Format = s.Format
		p.OutputRef = s.OutputRef
	}
	return p
}
