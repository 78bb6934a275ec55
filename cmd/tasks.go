package cmd

import (
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and trigger background tasks",
	Long: `The server refreshes signing keys (jwks-refresh:<issuer>) and reloads roles
(policy-reload) in the background. Requires an admin session (warrant login).`,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
