package cmd

import (
	"github.com/spf13/cobra"
)

var rolesCmd = &cobra.Command{
	Use:     "roles",
	Aliases: []string{"role"},
	Short:   "Manage and check roles",
	Long: `List and publish the roles of a server, or lint role documents locally
before they are published.`,
}

func init() {
	rootCmd.AddCommand(rolesCmd)
}
