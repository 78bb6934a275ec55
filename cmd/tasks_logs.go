package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/tasks"
)

var (
	tasksLogsLevel string
	tasksLogsTail  int
)

var tasksLogsCmd = &cobra.Command{
	Use:   "logs NAME",
	Short: "Show the output of the last run of a background task",
	Example: `  warrant tasks logs policy-reload
  warrant tasks logs jwks-refresh:https://issuer.example.com --level warn`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		minLevel := tasks.LogLevel(tasksLogsLevel)
		switch minLevel {
		case tasks.LevelDebug, tasks.LevelInfo, tasks.LevelWarn, tasks.LevelError:
		default:
			return fmt.Errorf("unknown level '%s', use debug, info, warn or error", tasksLogsLevel)
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msgf("Retrieving logs for task '%s'...", name)
		entries, correlation, err := cli.GetTaskLogs(cmd.Context(), name)
		if err != nil {
			return logError(err, correlation, "failed to retrieve task logs")
		}

		shown := make([]tasks.LogEntry, 0, len(entries))
		for _, entry := range entries {
			if entry.Level.AtLeast(minLevel) {
				shown = append(shown, entry)
			}
		}
		if tasksLogsTail > 0 && len(shown) > tasksLogsTail {
			shown = shown[len(shown)-tasksLogsTail:]
		}
		if len(shown) == 0 {
			log.Info().Msgf("No %s+ output from the last run of '%s'.", minLevel, name)
			return nil
		}

		for _, entry := range shown {
			fmt.Printf("%s %s %s\n", faint(entry.Time.Format("15:04:05.000")), levelTag(entry.Level), entry.Message)
		}
		return nil
	},
}

func init() {
	tasksLogsCmd.Flags().StringVarP(&tasksLogsLevel, "level", "l", string(tasks.LevelDebug), "only show entries at or above this level")
	tasksLogsCmd.Flags().IntVarP(&tasksLogsTail, "tail", "n", 0, "only show the last n entries")
	tasksCmd.AddCommand(tasksLogsCmd)
}

func levelTag(level tasks.LogLevel) string {
	switch level {
	case tasks.LevelDebug:
		return faint("DBG")
	case tasks.LevelInfo:
		return color.GreenString("INF")
	case tasks.LevelWarn:
		return color.YellowString("WRN")
	case tasks.LevelError:
		return color.RedString("ERR")
	}
	return string(level)
}
