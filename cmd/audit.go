package cmd

import "github.com/spf13/cobra"

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and verify audit events",
	Long: `Every exchange, authorization, revocation and role publication leaves an
audit event. "log", "sessions" and "inspect ID" query a running server and need
an admin session (warrant login). "verify" and "inspect --file" read a local
audit file and work offline.`,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
