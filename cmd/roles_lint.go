package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/logging"
	"github.com/darmiel/warrant/internal/source"
	"github.com/darmiel/warrant/internal/validation"
)

var rolesLintCmd = &cobra.Command{
	Use:   "lint [PATH]",
	Short: "Check roles for mistakes and risky patterns",
	Long: `Validates role documents below PATH and reports findings such as trust
statements without an audience binding or issuers which are not trusted.
Issuers are taken from the server configuration (--config) if it exists.
Without PATH, the roles published on the server are linted.`,
	Example: `  warrant roles lint ./roles
  warrant roles lint --server https://warrant.example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			findings []validation.Finding
			err      error
		)
		if len(args) == 1 {
			findings, err = lintLocal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
		} else {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			var correlation string
			findings, correlation, err = cli.LintRoles(cmd.Context())
			if err != nil {
				return logError(err, correlation, "failed to lint roles")
			}
		}

		if len(findings) == 0 {
			logSuccess("no findings")
			return nil
		}
		hasError := false
		for _, finding := range findings {
			severity := color.YellowString(string(finding.Severity))
			if finding.Severity == validation.SeverityError {
				severity = color.RedString(string(finding.Severity))
				hasError = true
			}
			fmt.Printf("%s %s %s: %s\n", severity, bold(finding.RoleID), faint(finding.Location), finding.Message)
		}
		if hasError {
			return BeQuietError{}
		}
		return nil
	},
}

func lintLocal(ctx context.Context, path string) ([]validation.Finding, error) {
	roles, err := source.DirFetcher{Path: path}.Fetch(ctx, logging.NewZLogger(log.Logger))
	if err != nil {
		return nil, err
	}
	if roles, err = validation.ValidateRoles(roles); err != nil {
		return nil, err
	}

	var known map[string]struct{}
	if cfg, err := f.LoadConfig(); err == nil {
		known = make(map[string]struct{}, len(cfg.Issuers))
		for _, iss := range cfg.Issuers {
			known[iss.IssuerURI] = struct{}{}
		}
	} else {
		log.Debug().Err(err).Msg("no server configuration, skipping issuer checks")
	}

	var findings []validation.Finding
	for i := range roles {
		findings = append(findings, validation.Lint(&roles[i], known)...)
	}
	log.Info().Msgf("Checked %d roles", len(roles))
	return findings, nil
}

func init() {
	rolesCmd.AddCommand(rolesLintCmd)
}
