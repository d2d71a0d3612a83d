package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pipegate/internal/runner"
)

func newRunStageCmd(a *app) *cobra.Command {
	var (
		req    runner.StageRequest
		fanout float64
	)
	cmd := &cobra.Command{
		Use:   "run-stage",
		Short: "Run one phase through its gates",
		Long: `Run a phase end to end: retry bookkeeping, fanout policy, artifact
staging, context-budget and traceability gates, and the primary gate.

The result is printed even when the primary gate fails; the exit status is
then 1 and the phase may be run again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.withLogger(cmd.Context())
			if cmd.Flags().Changed("requested-fanout") {
				req.RequestedFanout = &fanout
			}
			r, err := a.runner(ctx, true)
			if err != nil {
				return err
			}
			res, err := r.RunStage(ctx, req)
			if err != nil {
				return err
			}
			if err := a.print(res); err != nil {
				return err
			}
			if !res.Success {
				return errGateFailed
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.RunID, "run-id", "", "run id")
	f.StringVar(&req.Phase, "phase", "", "pipeline phase")
	f.StringVar(&req.ConfigID, "config-id", "", "configuration id (default phased_default)")
	f.StringVar(&req.TasksetRef, "taskset", "", "workspace-relative taskset YAML")
	f.StringVar(&req.TaskID, "task-id", "", "task within the taskset")
	f.StringVar(&req.ArtifactRef, "artifact-ref", "", "artifact file (default the phase's artifact)")
	f.StringVar(&req.SchemaRef, "schema-ref", "", "schema for the primary gate (default the phase contract)")
	f.StringVar(&req.InputArtifact, "input-artifact", "", "workspace-relative JSON copied in as the phase artifact")
	f.Float64Var(&fanout, "requested-fanout", 0, "reviewer or builder count to request from the policy engine")
	f.StringVar(&req.GateStatus, "gate-status", "", "desired gate status: pass, warn or fail")
	f.StringVar(&req.DriftSource, "drift-source", "", "document sent to the drift engine during pmatch")
	return cmd
}
