package cmd

import (
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/tasks"
)

var tasksListPrefix string

var tasksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List background tasks and the result of their last run",
	Example: `  warrant tasks list
  warrant tasks list --prefix jwks-refresh:`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Retrieving tasks...")
		list, correlation, err := cli.ListTasks(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to list tasks")
		}

		t := newTable()
		t.AppendHeader(table.Row{"Name", "Every", "State", "Runs", "Last Run", "Next Run", "Last Result"})
		for _, task := range list {
			if !strings.HasPrefix(task.Name, tasksListPrefix) {
				continue
			}
			t.AppendRow(table.Row{
				bold(task.Name),
				everyText(task.Interval),
				taskState(task),
				runsText(task),
				agoText(task.LastRun),
				untilText(task.NextRun),
				lastResult(task),
			})
		}
		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	tasksListCmd.Flags().StringVar(&tasksListPrefix, "prefix", "", "only list tasks whose name starts with this prefix")
	tasksCmd.AddCommand(tasksListCmd)
}

func taskState(task tasks.TaskStatus) string {
	if task.Running {
		return color.BlueString("running")
	}
	return "idle"
}

func everyText(interval time.Duration) string {
	if interval <= 0 {
		return faint("on demand")
	}
	return interval.String()
}

func runsText(task tasks.TaskStatus) string {
	if task.Failures == 0 {
		return faint(task.Runs)
	}
	return color.RedString("%d (%d failed)", task.Runs, task.Failures)
}

func agoText(at time.Time) string {
	if at.IsZero() {
		return "never"
	}
	return time.Since(at).Round(time.Second).String() + " ago"
}

func untilText(at time.Time) string {
	if at.IsZero() {
		return "n/a"
	}
	return "in " + time.Until(at).Round(time.Second).String()
}

func lastResult(task tasks.TaskStatus) string {
	switch {
	case task.LastResult == "":
		return ""
	case task.Succeeded():
		return greenCheck + " took " + task.LastDuration.Round(time.Millisecond).String()
	}
	return redCross + " " + truncate(task.LastResult, 60)
}
