package cmd

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke SESSION-ID",
	Short: "Revoke an issued credential",
	Long: `Denies a session immediately. The credential is rejected by authorize until it
would have expired. Requires an admin session (warrant login).`,
	Example: `  # Find the session and revoke it
  warrant audit sessions
  warrant revoke 7f9c2b1e-8d4a-4c7b-9e0f-1a2b3c4d5e6f`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		resp, correlation, err := cli.Revoke(cmd.Context(), args[0])
		if err != nil {
			return logError(err, correlation, "failed to revoke session")
		}

		log.Info().Msgf("%s session %s revoked until %s",
			greenCheck, bold(resp.SessionID), resp.Until.Local().Format(time.RFC1123))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revokeCmd)
}
