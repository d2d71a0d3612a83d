package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pipegate/internal/runner"
)

func newSummarizeRunCmd(a *app) *cobra.Command {
	var req runner.SummaryRequest
	cmd := &cobra.Command{
		Use:   "summarize-run",
		Short: "Validate and summarize a run's trace",
		Long: `Close the trace with run_start and run_end when missing, validate every
event, and write trace.summary.json next to the trace.

Examples:
  pipegate summarize-run --run-id run-1
  pipegate summarize-run --run-id run-1 --format markdown --output reports/run-1.md
  pipegate summarize-run --run-id run-1 --metrics-out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.withLogger(cmd.Context())
			r, err := a.runner(ctx, true)
			if err != nil {
				return err
			}
			// lipgloss drops colors itself when stdout is not a terminal.
			req.Styled = a.stdout == os.Stdout
			res, err := r.SummarizeRun(ctx, req)
			if err != nil {
				return err
			}
			if res.Rendered != "" {
				_, err := fmt.Fprint(a.stdout, res.Rendered)
				return err
			}
			return a.print(res.Payload())
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run id")
	cmd.Flags().StringVar(&req.Format, "format", "json", "json, text or markdown")
	cmd.Flags().StringVar(&req.Output, "output", "", "workspace-relative file to write the summary to")
	cmd.Flags().BoolVar(&req.Metrics, "metrics-out", false, "also export the summary as Prometheus text to the run's trace.prom")
	return cmd
}
