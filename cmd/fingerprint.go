package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/audit"
)

var fingerprintRaw bool

var fingerprintCmd = &cobra.Command{
	Use:     "fingerprint CREDENTIAL",
	Aliases: []string{"fp"},
	Short:   `Calculate the fingerprint of a credential`,
	Long: `Calculates the fingerprint of an issued credential (SHA256, base64).
This is the value stored in the audit log in the 'credentialFingerprint' field,
so a leaked credential can be traced to its exchange.`,
	Example: `  warrant fingerprint eyJhbGciOi...

  # Read the credential from stdin
  warrant exchange -r deploy -t - --raw < token | warrant fingerprint -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := readInput(args[0])
		if err != nil {
			return fmt.Errorf("failed to read credential from stdin: %w", err)
		}
		if token == "" {
			return fmt.Errorf("credential cannot be empty")
		}

		fp := audit.Fingerprint(token)
		if fingerprintRaw {
			fmt.Println(fp)
		} else {
			fmt.Println("Fingerprint:", fp)
			fmt.Println(faint(fmt.Sprintf("Find its exchange with: warrant audit log --filter 'fingerprint == %q'", fp)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().BoolVarP(&fingerprintRaw, "raw", "r", false,
		"Output only the fingerprint value without additional text")
}
