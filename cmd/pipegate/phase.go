package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pipegate/internal/gate"
	"github.com/fyrsmithlabs/pipegate/internal/runner"
)

func newInitRunCmd(a *app) *cobra.Command {
	var req runner.InitRequest
	cmd := &cobra.Command{
		Use:   "init-run",
		Short: "Start a run and apply a configuration preset",
		Long: `Create the pipeline document if missing, apply the feature flags and
fanout caps of a configuration id, write the run state and record run_start.

Config ids: baseline_single_agent, phased_default, phased_plus_reviewers,
phased_with_context_budgets, phased_dual_extractor_drift.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.withLogger(cmd.Context())
			r, err := a.runner(ctx, false)
			if err != nil {
				return err
			}
			res, err := r.InitRun(ctx, req)
			if err != nil {
				return err
			}
			return a.print(res)
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run id (default generated)")
	cmd.Flags().StringVar(&req.ConfigID, "config-id", "", "configuration id (default phased_default)")
	cmd.Flags().StringVar(&req.Mode, "mode", "", "enforce or shadow (default enforce)")
	return cmd
}

func newStartPhaseCmd(a *app) *cobra.Command {
	var runID, phase string
	cmd := &cobra.Command{
		Use:   "start-phase",
		Short: "Record the start of a phase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.withLogger(cmd.Context())
			r, err := a.runner(ctx, true)
			if err != nil {
				return err
			}
			res, err := r.StartPhase(ctx, runID, phase)
			if err != nil {
				return err
			}
			return a.print(res)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().StringVar(&phase, "phase", "", "pipeline phase")
	return cmd
}

func newEndPhaseCmd(a *app) *cobra.Command {
	var runID, phase, status string
	cmd := &cobra.Command{
		Use:   "end-phase",
		Short: "Record the end of a phase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.withLogger(cmd.Context())
			r, err := a.runner(ctx, true)
			if err != nil {
				return err
			}
			res, err := r.EndPhase(ctx, runID, phase, status)
			if err != nil {
				return err
			}
			return a.print(res)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().StringVar(&phase, "phase", "", "pipeline phase")
	cmd.Flags().StringVar(&status, "status", "ok", "ok or error")
	return cmd
}

func newRecordArtifactCmd(a *app) *cobra.Command {
	var runID, phase, ref, action string
	cmd := &cobra.Command{
		Use:   "record-artifact",
		Short: "Record an artifact read or write",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.withLogger(cmd.Context())
			r, err := a.runner(ctx, true)
			if err != nil {
				return err
			}
			res, err := r.RecordArtifact(ctx, runID, phase, ref, action)
			if err != nil {
				return err
			}
			return a.print(res)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().StringVar(&phase, "phase", "", "pipeline phase")
	cmd.Flags().StringVar(&ref, "artifact-ref", "", "workspace-relative artifact path")
	cmd.Flags().StringVar(&action, "action", runner.ActionWrite, "read or write")
	return cmd
}

func newRecordGateCmd(a *app) *cobra.Command {
	var req runner.GateRequest
	cmd := &cobra.Command{
		Use:   "record-gate",
		Short: "Record a gate verdict decided outside the runner",
		Long: `Write a gate file with no criteria and record gate_result. The gate is
printed either way; a fail verdict also exits non-zero.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.withLogger(cmd.Context())
			r, err := a.runner(ctx, true)
			if err != nil {
				return err
			}
			res, err := r.RecordGate(ctx, req)
			if err != nil {
				return err
			}
			if err := a.print(res); err != nil {
				return err
			}
			if res.Gate.Status == gate.StatusFail {
				return errGateFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run id")
	cmd.Flags().StringVar(&req.Phase, "phase", "", "pipeline phase")
	cmd.Flags().StringVar(&req.Status, "status", "", "pass, warn or fail")
	cmd.Flags().StringVar(&req.GateID, "gate-id", "", "gate id (default <phase>-gate)")
	cmd.Flags().StringVar(&req.ArtifactRef, "artifact-ref", "", "artifact the gate judged")
	cmd.Flags().StringVar(&req.GateFile, "gate-file", "", "gate file name under the run's gates directory")
	return cmd
}
