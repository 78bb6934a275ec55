package cmd

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Check the server configuration",
	Long: `Works on the server configuration file given with --config (default
warrant.yaml). Nothing here talks to a running server.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with defaults applied",
	Long:  `Prints the configuration the server would run with. Inline keys are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.Broker.SigningKey != "" {
			cfg.Broker.SigningKey = redacted
		}
		if cfg.Broker.AdminKey != "" {
			cfg.Broker.AdminKey = redacted
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
