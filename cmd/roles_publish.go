package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/source"
)

var rolesPublishID string

var rolesPublishCmd = &cobra.Command{
	Use:   "publish FILE",
	Short: "Publish a role document as a new version",
	Long: `Uploads a single role document to the server. If the role changed, it is
published as a new version; exchanges in flight keep the version they started with.
The role id is taken from --id, the document, or the file name.`,
	Example: `  warrant roles publish roles/deploy.yaml`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading role document: %w", err)
		}
		id := rolesPublishID
		if id == "" {
			roles, err := source.ParseRoles(doc)
			if err != nil {
				return err
			}
			if len(roles) != 1 {
				return fmt.Errorf("expected a single role in '%s', got %d", args[0], len(roles))
			}
			id = roles[0].ID
		}
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		role, correlation, err := cli.PublishRole(cmd.Context(), id, doc)
		if err != nil {
			return logError(err, correlation, "failed to publish role")
		}
		logSuccess("published role %s version %d", bold(role.ID), role.Version)
		return nil
	},
}

func init() {
	rolesCmd.AddCommand(rolesPublishCmd)

	rolesPublishCmd.Flags().StringVar(&rolesPublishID, "id", "", "Role id (defaults to the file name)")
}
