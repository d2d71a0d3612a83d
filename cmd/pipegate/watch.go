package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pipegate/internal/monitor"
	"github.com/fyrsmithlabs/pipegate/internal/trace"
)

func newWatchRunCmd(a *app) *cobra.Command {
	var (
		runID string
		once  bool
		tui   bool
	)
	cmd := &cobra.Command{
		Use:   "watch-run",
		Short: "Stream a run's trace events as JSON lines",
		Long: `Print every event of a run's trace, one JSON object per line, and keep
following the trace as events are appended until interrupted. With --once,
print the events recorded so far and exit. With --tui, show a live dashboard
instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.withLogger(cmd.Context())
			log, err := trace.Open(a.ws, runID)
			if err != nil {
				return err
			}
			if tui {
				return watchDashboard(ctx, runID, log.Path(), a.stdin, a.stdout)
			}
			enc := json.NewEncoder(a.stdout)
			if once {
				events, err := log.Read()
				if err != nil {
					return err
				}
				for _, e := range events {
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
				return nil
			}
			return trace.Follow(ctx, log.Path(), func(e trace.Event) error {
				return enc.Encode(e)
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&once, "once", false, "print the current events and exit")
	cmd.Flags().BoolVar(&tui, "tui", false, "show a live dashboard")
	cmd.MarkFlagsMutuallyExclusive("once", "tui")
	return cmd
}

// watchDashboard runs the dashboard until the user quits or ctx is done.
func watchDashboard(ctx context.Context, runID, path string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(monitor.NewModel(runID),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	followed := make(chan error, 1)
	go func() {
		err := trace.Follow(ctx, path, func(e trace.Event) error {
			p.Send(monitor.EventMsg(e))
			return nil
		})
		if err != nil {
			p.Send(monitor.ErrMsg{Err: err})
		}
		followed <- err
	}()

	_, err := p.Run()
	cancel()
	followErr := <-followed
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		return err
	}
	return followErr
}
