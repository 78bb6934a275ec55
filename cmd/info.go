package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/buildinfo"
	"github.com/darmiel/warrant/pkg/client"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show version information",
	Long: `Shows the version of this binary. With --server, also shows the version and
readiness of the server and warns if both versions differ.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		local := buildinfo.GetBuildInfo()
		printInfo("Client", &local)
		if f.RemoteAddr == "" {
			return nil
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		remote, correlation, err := cli.Info(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to get info from server")
		}
		printInfo("Server "+f.RemoteAddr, remote)
		if remote.Version != local.Version {
			log.Warn().Msgf("client %s and server %s differ, request formats may not match", local.Version, remote.Version)
		}

		ready, correlation, err := cli.Ready(cmd.Context())
		var apiErr client.APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable:
			fmt.Printf("  %s:      %s\n", faint("Ready"), color.YellowString("no, no roles loaded yet"))
		case err != nil:
			return logError(err, correlation, "failed to get readiness from server")
		default:
			fmt.Printf("  %s:      %s\n", faint("Ready"), color.GreenString("yes"))
			fmt.Printf("  %s:   revision %d, %d roles, %d issuers (loaded %s)\n",
				faint("Policy"), ready.PolicyRevision, ready.Roles, ready.Issuers, agoText(ready.PolicyLoadedAt))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printInfo(title string, info *buildinfo.Info) {
	fmt.Println(bold("\n── " + title + " ──"))
	fmt.Printf("  %s:    %s\n", faint("Version"), info.Version)
	fmt.Printf("  %s:     %s\n", faint("Commit"), info.CommitHash)
	if info.GoVersion != "" {
		fmt.Printf("  %s:         %s\n", faint("Go"), info.GoVersion)
	}
}
