package cmd

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var rolesShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print the current version of a role",
	Long: `Prints the published role as a YAML document, which can be edited and
published again with 'warrant roles publish'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		role, correlation, err := cli.GetRole(cmd.Context(), args[0])
		if err != nil {
			return logError(err, correlation, "failed to get role")
		}

		out, err := yaml.Marshal(role)
		if err != nil {
			return fmt.Errorf("encoding role: %w", err)
		}
		fmt.Printf("# version %d\n%s", role.Version, out)
		return nil
	},
}

func init() {
	rolesCmd.AddCommand(rolesShowCmd)
}
