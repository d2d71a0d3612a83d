package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/gate"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
)

// maxGateInput bounds the evaluate-gate request read from stdin.
const maxGateInput = 16 << 20

type gateEnvelope struct {
	Success  bool         `json:"success"`
	Data     *gate.Gate   `json:"data"`
	Metadata gateMetadata `json:"metadata"`
}

type gateMetadata struct {
	ToolVersion     string `json:"tool_version"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

func newEvaluateGateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate-gate",
		Short: "Evaluate an artifact against a schema and criteria",
		Long: `Read {artifact, artifact_ref, schema_ref, phase, criteria} as JSON on stdin
and print the gate verdict. A failing gate is a result, not an error.

Example:
  pipegate evaluate-gate < plan-gate-request.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.withLogger(cmd.Context())
			started := time.Now()

			data, err := io.ReadAll(io.LimitReader(a.stdin, maxGateInput+1))
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			if len(data) > maxGateInput {
				return errcode.BadInputf("input exceeds %d bytes", maxGateInput)
			}
			var in gate.Input
			if err := json.Unmarshal(data, &in); err != nil {
				return errcode.Wrap(errcode.BadInput, "invalid JSON input", err)
			}

			engine := gate.NewEngine(a.validator())
			g, err := engine.Evaluate(ctx, in)
			if err != nil {
				return err
			}
			logging.FromContext(ctx).Info(ctx, "gate evaluated",
				zap.String("phase", g.Phase),
				zap.String("status", string(g.Status)),
			)
			return a.print(gateEnvelope{
				Success: true,
				Data:    g,
				Metadata: gateMetadata{
					ToolVersion:     version,
					ExecutionTimeMS: time.Since(started).Milliseconds(),
				},
			})
		},
	}
}
