package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/audit"
)

var auditVerifyFilter string

var auditVerifyCmd = &cobra.Command{
	Use:   "verify FILE",
	Short: "Verify the hash chain of a local audit file",
	Long: `Checks that the sequence numbers and hashes of every event in an audit file
are intact. A removed, reordered or modified event breaks the chain.
With --filter, matching events are printed after a successful verification.`,
	Example: `  warrant audit verify /var/lib/warrant/audit.jsonl
  warrant audit verify audit.jsonl --filter 'reason == "TrustPolicyDenied"'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening audit file: %w", err)
		}
		defer func(file *os.File) {
			_ = file.Close()
		}(file)

		n, err := audit.VerifyChain(file)
		if err != nil {
			var chainErr *audit.ChainError
			if errors.As(err, &chainErr) {
				log.Error().Msgf("%s %s", redCross, chainErr)
				log.Error().Msgf("%d events before line %d are intact", n, chainErr.Line)
				return BeQuietError{}
			}
			return err
		}
		logSuccess("verified %s events", bold(n))

		if auditVerifyFilter == "" {
			return nil
		}
		filter, err := audit.CompileFilter(auditVerifyFilter)
		if err != nil {
			return err
		}
		events, err := readLocalEvents(args[0], filter)
		if err != nil {
			return err
		}
		printEventTable(events)
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)

	auditVerifyCmd.Flags().StringVar(&auditVerifyFilter, "filter", "", "Print events matching this expression")
}
