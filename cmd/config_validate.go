package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/source"
)

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Loads the server configuration (--config) and checks it, including the
signing key, the guardrail policy and the role documents it points to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			log.Error().Err(err).Msgf("%s configuration is invalid", redCross)
			return BeQuietError{}
		}
		if _, err := cfg.Broker.SigningSecret(); err != nil {
			log.Error().Err(err).Msgf("%s signing key is invalid", redCross)
			return BeQuietError{}
		}
		if cfg.Policy.Guardrail != "" {
			if _, err := source.LoadPermissionPolicy(cfg.Policy.Guardrail); err != nil {
				log.Error().Err(err).Msgf("%s guardrail is invalid", redCross)
				return BeQuietError{}
			}
		}
		findings, err := lintLocal(cmd.Context(), cfg.Policy.Path)
		if err != nil {
			log.Error().Err(err).Msgf("%s roles are invalid", redCross)
			return BeQuietError{}
		}
		for _, finding := range findings {
			log.Warn().Msg(finding.String())
		}

		logSuccess("configuration is valid (%s issuers, %s)",
			bold(len(cfg.Issuers)), fmt.Sprintf("%d findings", len(findings)))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
