package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// followInterval — период опроса лога в runs logs --follow.
const followInterval = time.Second

// NewRunsCmd создаёт группу команд для runs на сервере.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs executed by the server",
	}

	cmd.AddCommand(
		newRunsListCmd(clientFn, outputFn),
		newRunsGetCmd(clientFn, outputFn),
		newRunsLogsCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := clientFn().ListRuns(cmd.Context(), opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.WorkflowID, r.Status, mode(r.Simulation), r.CreatedAt}
			}
			outputFn().Print([]string{"ID", "WORKFLOW_ID", "STATUS", "MODE", "CREATED"}, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.WorkflowID, "workflow", "", "Filter by workflow ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (QUEUED, RUNNING, SUCCEEDED, PARTIAL, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunsGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a run with per-node results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			outputFn().Result(run)
			return nil
		},
	}
}

func newRunsLogsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs ID",
		Short: "Print the server log of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return streamLogs(cmd.Context(), clientFn(), outputFn(), args[0], follow, followInterval)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling until the run finishes")
	return cmd
}

// streamLogs печатает лог run. С follow опрашивает API, пока run не завершится.
func streamLogs(ctx context.Context, client *Client, out *Output, runID string, follow bool, every time.Duration) error {
	var from int64
	for {
		page, err := client.RunLogs(ctx, runID, from)
		if err != nil {
			return err
		}

		if out.JSONMode() {
			for _, e := range page.Entries {
				out.JSON(e)
			}
		} else {
			for _, e := range page.Entries {
				out.LogEntry(e)
			}
		}
		from = page.Next

		if !follow || page.Done {
			if follow {
				out.Success("Run finished: " + page.Status)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(every):
		}
	}
}
