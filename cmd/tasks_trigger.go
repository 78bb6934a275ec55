package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/tasks"
	"github.com/darmiel/warrant/pkg/client"
)

var (
	tasksTriggerWait    bool
	tasksTriggerTimeout time.Duration
)

var errRunPending = errors.New("run has not finished yet")

var tasksTriggerCmd = &cobra.Command{
	Use:   "trigger NAME",
	Short: "Start a run of a background task",
	Example: `  warrant tasks trigger policy-reload --wait
  warrant tasks trigger jwks-refresh:https://token.actions.githubusercontent.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		var before tasks.TaskStatus
		if tasksTriggerWait {
			if before, err = taskStatus(cmd.Context(), cli, name); err != nil {
				return err
			}
		}

		log.Debug().Msgf("Triggering task '%s'...", name)
		if correlation, err := cli.TriggerTask(cmd.Context(), name); err != nil {
			return logError(err, correlation, "failed to trigger task")
		}
		if !tasksTriggerWait {
			logSuccess("triggered task '%s'", bold(name))
			log.Info().Msgf("Run '%s' to see progress.", color.CyanString("warrant tasks logs "+name))
			return nil
		}

		log.Info().Msgf("Waiting up to %s for '%s' to finish...", tasksTriggerTimeout, name)
		after, err := waitForRun(cmd.Context(), cli, name, before.Runs)
		if err != nil {
			return err
		}
		if !after.Succeeded() {
			log.Error().Msgf("%s task '%s' %s", redCross, name, after.LastResult)
			log.Info().Msgf("Run '%s' for details.", color.CyanString("warrant tasks logs "+name))
			return BeQuietError{}
		}
		logSuccess("task '%s' finished in %s", bold(name), after.LastDuration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	tasksTriggerCmd.Flags().BoolVarP(&tasksTriggerWait, "wait", "w", false, "wait for the run to finish and report its result")
	tasksTriggerCmd.Flags().DurationVar(&tasksTriggerTimeout, "timeout", 2*time.Minute, "how long to wait with --wait")
	tasksCmd.AddCommand(tasksTriggerCmd)
}

// waitForRun polls the task list until the task finished more runs than it had before.
func waitForRun(ctx context.Context, cli *client.Client, name string, runsBefore int) (tasks.TaskStatus, error) {
	var status tasks.TaskStatus
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			if status, err = taskStatus(ctx, cli, name); err != nil {
				return err
			}
			if status.Running || status.Runs <= runsBefore {
				return errRunPending
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errRunPending)
		},
		Delay:       500 * time.Millisecond,
		MaxDuration: tasksTriggerTimeout,
		Clock:       clock.WallClock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		if retry.IsDurationExceeded(err) {
			return status, fmt.Errorf("task '%s' did not finish within %s", name, tasksTriggerTimeout)
		}
		if retry.IsRetryStopped(err) {
			return status, ctx.Err()
		}
		return status, err
	}
	return status, nil
}

func taskStatus(ctx context.Context, cli *client.Client, name string) (tasks.TaskStatus, error) {
	list, correlation, err := cli.ListTasks(ctx)
	if err != nil {
		return tasks.TaskStatus{}, logError(err, correlation, "failed to list tasks")
	}
	for _, task := range list {
		if task.Name == name {
			return task, nil
		}
	}
	return tasks.TaskStatus{}, fmt.Errorf("no task named '%s' on the server", name)
}
