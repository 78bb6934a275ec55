package cmd

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rolesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the roles published on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		list, correlation, err := cli.ListRoles(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to list roles")
		}
		log.Info().Msgf("Policy revision %s", bold(list.Revision))

		t := newTable()
		t.AppendHeader(table.Row{"Role", "Version", "Trust", "Permissions", "Max Session", "Description"})
		for _, role := range list.Roles {
			maxSession := faint("(global)")
			if role.MaxSessionDuration > 0 {
				maxSession = role.MaxSessionDuration.Round(time.Second).String()
			}
			t.AppendRow(table.Row{
				bold(role.ID),
				role.Version,
				len(role.TrustPolicy.Statements),
				len(role.PermissionPolicy.Statements),
				maxSession,
				truncate(role.Description, 48),
			})
		}
		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	rolesCmd.AddCommand(rolesListCmd)
}
