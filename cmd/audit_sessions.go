package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var auditSessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"tokens"},
	Short:   "List currently active sessions",
	Long: `Retrieves all credentials issued by the server which did not expire yet.
Only metadata is shown, credentials themselves are never stored.

This command requires an authenticated session (via 'warrant login') with admin privileges.`,
	Example: `  warrant audit sessions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Fetching active sessions...")
		sessions, correlation, err := cli.ListSessions(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to list sessions")
		}

		if len(sessions) == 0 {
			log.Info().Msg("No active sessions found")
			return nil
		}
		log.Debug().Msgf("Retrieved %d active session(s)", len(sessions))

		t := newTable()
		t.AppendHeader(table.Row{
			"Session", "Issued", "Expires", "Subject", "Role", "Permissions",
		})

		for _, s := range sessions {
			timeLeft := time.Until(s.ExpiresAt).Round(time.Second)
			t.AppendRow(table.Row{
				s.SessionID,
				s.IssuedAt.Local().Format(time.RFC3339),
				fmt.Sprintf("%s (%s)", s.ExpiresAt.Local().Format("15:04"), faint(timeLeft.String())),
				bold(truncate(s.Subject, 64)),
				fmt.Sprintf("%s@%d", s.RoleID, s.RoleVersion),
				s.Permissions,
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditSessionsCmd)
}
