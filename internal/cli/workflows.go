package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Flowline/internal/domain"
)

// NewWorkflowsCmd создаёт группу команд для сохранённых workflows.
func NewWorkflowsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"workflow", "wf"},
		Short:   "Manage stored workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowGetCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
		newWorkflowExecuteCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			wfs, err := clientFn().ListWorkflows(cmd.Context(), userID)
			if err != nil {
				return err
			}

			rows := make([][]string, len(wfs))
			for i, wf := range wfs {
				rows[i] = []string{wf.ID, wf.Name, strconv.Itoa(wf.Nodes), wf.UserID, wf.UpdatedAt}
			}
			outputFn().Print([]string{"ID", "NAME", "NODES", "USER", "UPDATED"}, rows, wfs)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Filter by owner")
	return cmd
}

func newWorkflowGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a workflow and its nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := clientFn().GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.JSONMode() {
				out.JSON(wf)
				return nil
			}
			out.Success(fmt.Sprintf("%s (%s)", wf.Name, wf.ID))
			out.Table([]string{"NODE", "TYPE", "NAME", "DEPENDS_ON"}, workflowNodeRows(wf))
			return nil
		},
	}
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "create FILE",
		Short: "Store a workflow from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := readWorkflow(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if userID != "" {
				wf.UserID = userID
			}

			created, err := clientFn().CreateWorkflow(cmd.Context(), wf)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Workflow created: %s", created.ID))
			out.Print(
				[]string{"ID", "NAME", "NODES", "USER"},
				[][]string{{created.ID.String(), created.Name, strconv.Itoa(len(created.Nodes)), created.UserID}},
				created,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Owner (overrides userId in the file)")
	return cmd
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteWorkflow(cmd.Context(), args[0]); err != nil {
				return err
			}
			outputFn().Success("Workflow deleted")
			return nil
		},
	}
}

func newWorkflowExecuteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		live   bool
		userID string
		data   []string
	)

	cmd := &cobra.Command{
		Use:   "execute ID",
		Short: "Queue a run of a stored workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := parseData(data)
			if err != nil {
				return err
			}

			resp, err := clientFn().EnqueueWorkflow(cmd.Context(), args[0], EnqueueRequest{
				UserID:      userID,
				Simulation:  !live,
				InitialData: initial,
			})
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Run queued: %s (follow with 'flowline runs logs %s --follow')", resp.RunID, resp.RunID))
			out.Print(
				[]string{"RUN_ID", "WORKFLOW_ID", "STATUS"},
				[][]string{{resp.RunID, resp.WorkflowID, resp.Status}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Perform external side effects (default is simulation)")
	cmd.Flags().StringVar(&userID, "user", "", "User ID for credential lookup")
	cmd.Flags().StringArrayVar(&data, "data", nil, "Activation data for a node: NODE_ID=JSON (repeatable)")
	return cmd
}

func workflowNodeRows(wf *domain.Workflow) [][]string {
	deps := make(map[string][]string)
	for _, c := range wf.Connections {
		deps[c.TargetNodeID] = append(deps[c.TargetNodeID], c.SourceNodeID)
	}

	rows := make([][]string, len(wf.Nodes))
	for i, n := range wf.Nodes {
		rows[i] = []string{n.ID, string(n.Type), n.Name, strings.Join(deps[n.ID], ",")}
	}
	return rows
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}
