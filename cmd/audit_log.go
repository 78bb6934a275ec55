package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/pkg/client"
)

var auditLogOpts client.ListAuditsOpts

var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Retrieve and display audit log entries",
	Long: `Lists the latest audit events of the server. Events can be narrowed by
subject, session or correlation id, or by a filter expression over the fields
action, outcome, reason, state, correlationId, role, roleVersion, subject,
issuer, sessionId, fingerprint, permissionCount, timestamp and seq.`,
	Example: `  # Show the last 50 denials
  warrant audit log -n 50 --filter 'outcome == "denied"'

  # Everything a workload did
  warrant audit log --subject workload:ns-a:svc-a`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Fetching audit log...")
		events, correlation, err := cli.ListAudits(cmd.Context(), auditLogOpts)
		if err != nil {
			return logError(err, correlation, "failed to retrieve audit log")
		}
		log.Debug().Msgf("Retrieved %d audit entries", len(events))

		printEventTable(events)
		return nil
	},
}

func printEventTable(events []core.AuditEvent) {
	t := newTable()
	t.AppendHeader(table.Row{
		"Seq", "Time", "Action", "Subject", "Role", "Outcome", "Reason", "Correlation",
	})

	for _, e := range events {
		outcome := color.GreenString(string(e.Outcome))
		if e.Outcome != core.OutcomeGranted {
			outcome = color.RedString(string(e.Outcome))
		}

		role := e.RoleID
		if role != "" && e.RoleVersion > 0 {
			role = fmt.Sprintf("%s@%d", role, e.RoleVersion)
		}

		t.AppendRow(table.Row{
			e.Seq,
			e.Timestamp.Local().Format(time.RFC3339),
			e.Action,
			truncate(e.Subject, 35),
			role,
			outcome,
			e.ReasonCode,
			faint(e.CorrelationID),
		})
	}

	applyTableFormat(t)
	t.Render()
}

func init() {
	auditCmd.AddCommand(auditLogCmd)

	auditLogCmd.Flags().UintVarP(&auditLogOpts.Limit, "limit", "n", 25, "Number of audit entries to retrieve")
	auditLogCmd.Flags().StringVar(&auditLogOpts.Subject, "subject", "", "Only show events of this subject")
	auditLogCmd.Flags().StringVar(&auditLogOpts.SessionID, "session", "", "Only show events of this session")
	auditLogCmd.Flags().StringVar(&auditLogOpts.CorrelationID, "correlation", "", "Only show events with this correlation id")
	auditLogCmd.Flags().StringVar(&auditLogOpts.Filter, "filter", "", "Filter expression evaluated on the server")
}
