package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowline/internal/domain"
)

// NewSchedulesCmd создаёт группу команд для cron-расписаний.
func NewSchedulesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedules",
		Aliases: []string{"schedule"},
		Short:   "Manage cron schedules of scheduleTrigger nodes",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleCreateCmd(clientFn, outputFn),
		newScheduleDeleteCmd(clientFn, outputFn),
		newScheduleToggleCmd(clientFn, outputFn, true),
		newScheduleToggleCmd(clientFn, outputFn, false),
	)

	return cmd
}

var scheduleHeaders = []string{"ID", "WORKFLOW_ID", "NODE", "CRON", "TIMEZONE", "ENABLED", "NEXT_DUE"}

func scheduleRow(s *domain.Schedule) []string {
	return []string{
		s.ID.String(), s.WorkflowID.String(), s.NodeID, s.CronExpr, s.Timezone,
		strconv.FormatBool(s.Enabled), formatTime(s.NextDueAt),
	}
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var workflowID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := clientFn().ListSchedules(cmd.Context(), workflowID)
			if err != nil {
				return err
			}

			rows := make([][]string, len(schedules))
			for i := range schedules {
				rows[i] = scheduleRow(&schedules[i])
			}
			outputFn().Print(scheduleHeaders, rows, schedules)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow", "", "Filter by workflow ID")
	return cmd
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateScheduleRequest
	var disabled, live bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a schedule for a scheduleTrigger node",
		Example: `  flowline schedules create --workflow 7f0c... --node cron --cron "0 9 * * 1-5" --tz Europe/Moscow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("disabled") {
				enabled := !disabled
				req.Enabled = &enabled
			}
			req.Simulation = !live

			schedule, err := clientFn().CreateSchedule(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Schedule created: %s", schedule.ID))
			out.Print(scheduleHeaders, [][]string{scheduleRow(schedule)}, schedule)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.WorkflowID, "workflow", "", "Workflow ID (required)")
	cmd.Flags().StringVar(&req.NodeID, "node", "", "ID of the scheduleTrigger node (required)")
	cmd.Flags().StringVar(&req.CronExpr, "cron", "", "Cron expression, 5 fields or @descriptor (required)")
	cmd.Flags().StringVar(&req.Timezone, "tz", "", "IANA timezone (default UTC)")
	cmd.Flags().StringVar(&req.UserID, "user", "", "User ID for credential lookup (default: workflow owner)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the schedule disabled")
	cmd.Flags().BoolVar(&live, "live", false, "Fire live runs (default is simulation)")
	cmd.MarkFlagRequired("workflow")
	cmd.MarkFlagRequired("node")
	cmd.MarkFlagRequired("cron")

	return cmd
}

func newScheduleDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteSchedule(cmd.Context(), args[0]); err != nil {
				return err
			}
			outputFn().Success("Schedule deleted")
			return nil
		},
	}
}

func newScheduleToggleCmd(clientFn func() *Client, outputFn func() *Output, enable bool) *cobra.Command {
	use, short, done := "disable ID", "Disable a schedule", "Schedule disabled"
	if enable {
		use, short, done = "enable ID", "Enable a schedule", "Schedule enabled"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := clientFn().SetScheduleEnabled(cmd.Context(), args[0], enable)
			if err != nil {
				return err
			}
			out := outputFn()
			out.Success(done)
			out.Print(scheduleHeaders, [][]string{scheduleRow(schedule)}, schedule)
			return nil
		},
	}
}
