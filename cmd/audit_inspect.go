package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/audit"
	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/pkg/client"
)

var auditInspectFile string

var auditInspectCmd = &cobra.Command{
	Use:   "inspect CORRELATION-ID",
	Short: "Show full details of the audit events of a request",
	Long: `Shows every field of the audit events recorded for a correlation id.
Events are retrieved from the server, or read from a local audit file with --file.`,
	Example: `  warrant audit inspect cv2kq3l8b6ne0ahm5c2g
  warrant audit inspect cv2kq3l8b6ne0ahm5c2g --file /var/lib/warrant/audit.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		correlationID := args[0]
		if correlationID == "" {
			return fmt.Errorf("correlation ID cannot be empty")
		}

		var (
			events []core.AuditEvent
			err    error
		)
		if auditInspectFile != "" {
			events, err = readLocalEvents(auditInspectFile, func(e core.AuditEvent) bool {
				return e.CorrelationID == correlationID
			})
			if err != nil {
				return err
			}
		} else {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			log.Debug().Msgf("Retrieving entries with correlation ID '%s'...", correlationID)
			var correlation string
			events, correlation, err = cli.ListAudits(cmd.Context(), client.ListAuditsOpts{
				Limit:         10,
				CorrelationID: correlationID,
			})
			if err != nil {
				return logError(err, correlation, "failed to retrieve audit log entries")
			}
		}

		if len(events) == 0 {
			log.Warn().Str("correlation_id", correlationID).Msg("no audit log entries found")
			return nil
		}
		for _, e := range events {
			printEvent(e)
		}
		return nil
	},
}

func readLocalEvents(path string, filter func(core.AuditEvent) bool) ([]core.AuditEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audit file: %w", err)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)
	return audit.ReadEvents(file, filter)
}

func printEvent(e core.AuditEvent) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	printKV := func(key string, val any) {
		fmt.Printf("  %-26s %v\n", faint(key)+":", val)
	}
	orNone := func(s string) any {
		if s == "" {
			return faint("(none)")
		}
		return s
	}

	status := green(string(e.Outcome))
	if e.Outcome != core.OutcomeGranted {
		status = red(string(e.Outcome))
	}

	fmt.Println(bold(fmt.Sprintf("\n── Audit Entry #%d ──", e.Seq)))
	printKV("Correlation ID", e.CorrelationID)
	printKV("Time", e.Timestamp.Local().Format(time.RFC1123))
	printKV("Action", e.Action)
	printKV("Decision", status)
	printKV("Reason", e.ReasonCode)
	printKV("State", orNone(string(e.State)))

	fmt.Println(bold("\n── Identity ──"))
	printKV("Subject", orNone(e.Subject))
	printKV("Issuer", orNone(e.Issuer))

	fmt.Println(bold("\n── Role ──"))
	printKV("Role", orNone(e.RoleID))
	if e.RoleVersion > 0 {
		printKV("Version", e.RoleVersion)
	}
	if e.MatchedStatement >= 0 {
		printKV("Matched Statement", e.MatchedStatement)
	} else {
		printKV("Matched Statement", faint("(none)"))
	}
	if e.Detail != "" {
		printKV("Detail", red(e.Detail))
	}

	fmt.Println(bold("\n── Credential ──"))
	printKV("Session", orNone(e.SessionID))
	printKV("Fingerprint", orNone(e.CredentialFingerprint))
	printKV("Permissions", e.PermissionCount)
	printKV("Digest", orNone(e.PermissionDigest))
	if !e.ExpiresAt.IsZero() {
		printKV("Expires", e.ExpiresAt.Local().Format(time.RFC1123))
	}

	fmt.Println(bold("\n── Chain ──"))
	printKV("Hash", orNone(e.Hash))
	printKV("Previous", orNone(e.PrevHash))
	fmt.Println()
}

func init() {
	auditCmd.AddCommand(auditInspectCmd)

	auditInspectCmd.Flags().StringVar(&auditInspectFile, "file", "", "Read events from a local audit file instead of the server")
}
