package cmd

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/api/middleware"
	"github.com/darmiel/warrant/internal/cliconfig"
	"github.com/darmiel/warrant/pkg/client"
)

var loginCmd = &cobra.Command{
	Use:   "login ADMIN-TOKEN",
	Short: "Store an admin token for a warrant server",
	Long: `Checks an admin token against the server and saves it locally, so admin
commands (audit, roles, tasks, revoke, why) are authenticated.
Use - to read the token from stdin.`,
	Example: `  warrant --server https://warrant.example.com login "$(warrant admin-token)"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := readInput(args[0])
		if err != nil {
			return fmt.Errorf("reading token from stdin: %w", err)
		}
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}

		server, err := f.GetRemoteAddr()
		if err != nil {
			return err
		}

		// the server checks the signature, we only need the metadata
		var claims middleware.AdminClaims
		if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
			return fmt.Errorf("parsing admin token: %w", err)
		}

		log.Info().Msgf("Checking token against server %q...", server)
		cli := client.New(server, client.WithAuthToken(token))
		if _, correlation, err := cli.ListRoles(cmd.Context()); err != nil {
			return logError(err, correlation, "server rejected the admin token")
		}

		cfg, err := cliconfig.LoadOrEmpty()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cred := &cliconfig.Credential{
			Token:   token,
			Subject: claims.Subject,
		}
		if claims.ExpiresAt != nil {
			cred.ExpiresAt = claims.ExpiresAt.Time
		}
		host, err := cfg.SetCredential(server, cred)
		if err != nil {
			return err
		}
		if err := cliconfig.Save(cfg); err != nil {
			return logError(err, "", "login succeeded but could not save credentials")
		}

		logSuccess("saved credentials of %s for %s", bold(claims.Subject), bold(host))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved admin token of a warrant server",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := f.GetRemoteAddr()
		if err != nil {
			return err
		}
		cfg, err := cliconfig.LoadOrEmpty()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		removed, err := cfg.RemoveCredential(server)
		if err != nil {
			return err
		}
		if !removed {
			log.Info().Msgf("No credentials saved for %s", server)
			return nil
		}
		if err := cliconfig.Save(cfg); err != nil {
			return err
		}
		logSuccess("removed credentials for %s", bold(server))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
