// Package main implements the pipegate CLI, the command surface of the
// phase-gated pipeline runner.
//
// Every command prints a JSON document on stdout. Errors print
// "CODE: message" on stderr and exit with status 1. run-stage and
// record-gate print their result and also exit with status 1 when the
// recorded gate fails.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
)

// version is set at build time.
var version = "dev"

// errGateFailed signals a failed primary gate after the result was printed.
var errGateFailed = errors.New("gate failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI with args and returns the process exit status.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.close(ctx)

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errGateFailed):
		return 1
	default:
		fmt.Fprintf(stderr, "%s: %v\n", errcode.Code(err), err)
		return 1
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pipegate",
		Short: "Phase-gated pipeline runner",
		Long: `pipegate drives a multi-phase delivery pipeline through deterministic
quality gates and records every step in an append-only trace.

Examples:
  # Start a run with the default configuration
  pipegate init-run --config-id phased_default

  # Run a phase through its gates
  pipegate run-stage --run-id run-1 --phase plan --taskset tasks.yaml --task-id t1

  # Summarize the trace as markdown
  pipegate summarize-run --run-id run-1 --format markdown`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errcode.Wrap(errcode.BadInput, "", err)
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.workspace, "workspace", "", "workspace root (default $WORKSPACE_ROOT or the current directory)")
	flags.StringVar(&a.configPath, "config", "", "config file (default <workspace>/pipegate.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: json or console")

	root.AddCommand(
		newInitRunCmd(a),
		newStartPhaseCmd(a),
		newEndPhaseCmd(a),
		newRecordArtifactCmd(a),
		newRecordGateCmd(a),
		newSummarizeRunCmd(a),
		newRunStageCmd(a),
		newEvaluateGateCmd(a),
		newWatchRunCmd(a),
	)
	return root
}
