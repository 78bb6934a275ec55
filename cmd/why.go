package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/service"
)

var (
	whyFlags     requestFlags
	whyStatement int
)

var whyCmd = &cobra.Command{
	Use:   "why",
	Short: "Explain why a token may (or may not) assume a role",
	Long: `Simulates an exchange against the server and returns a detailed trace of the
trust policy evaluation. Nothing is issued.
Useful for debugging why a specific token is being denied.

Note: This command requires a warrant server to be running and reachable.
Also note that you need to be authenticated as admin to use this command.`,
	Example: `  # Why is my token denied?
  warrant why --role deploy --token <token>

  # Only show the second trust statement
  warrant why --role deploy --token <token> --statement 1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := whyFlags.readToken()
		if err != nil {
			return err
		}
		sessionPolicy, err := whyFlags.readSessionPolicy()
		if err != nil {
			return err
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		trace, correlation, err := cli.Explain(cmd.Context(), service.ExplainRequest{
			Token:          token,
			RoleID:         whyFlags.role,
			RequestContext: whyFlags.context,
			SessionPolicy:  sessionPolicy,
		})
		if err != nil {
			return logError(err, correlation, "failed to explain exchange")
		}

		printTrace(trace)
		return nil
	},
}

func printTrace(trace *core.EvaluationTrace) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	subject, issuer := "(unverified)", "-"
	if trace.Claims != nil {
		subject, issuer = trace.Claims.Subject, trace.Claims.Issuer
	}
	fmt.Printf("\n%s of role %s (version %d) for %s (issuer: %s)\n",
		bold("Evaluation Trace"),
		bold(trace.RoleID),
		trace.RoleVersion,
		bold(subject),
		issuer)

	fmt.Println(faint("---------------------------------------------------"))

	if trace.Trust != nil {
		for _, stmt := range trace.Trust.Statements {
			if whyStatement >= 0 && stmt.Index != whyStatement {
				continue
			}

			icon := red("✖")
			if stmt.Matched {
				icon = green("✔")
			}

			name := fmt.Sprintf("#%d", stmt.Index)
			if stmt.Sid != "" {
				name += " " + stmt.Sid
			}
			fmt.Printf("%s Statement %s (%s)\n", icon, bold(name), stmt.Effect)
			for _, cond := range stmt.ConditionResults {
				printCondition(cond, 1)
			}
			fmt.Println()
		}
	}

	if len(trace.Permissions) > 0 {
		fmt.Println(bold("Effective permissions:"))
		for _, p := range trace.Permissions {
			fmt.Printf("  %s on %s\n", p.Action, p.Resource)
		}
		fmt.Println()
	}

	fmt.Println("---------------------------------------------------")
	switch {
	case trace.FinalDecision:
		fmt.Printf("Decision: %s via statement #%d\n", bold(green("allowed")), trace.Trust.MatchedStatement)
	case trace.ErrorKind != "":
		fmt.Printf("Decision: %s (%s: %s)\n", bold(red("denied")), trace.ErrorKind, trace.ErrorKind.Message())
	default:
		fmt.Printf("Decision: %s\n", bold(red("denied")))
	}
	fmt.Println()
}

func printCondition(cond core.ConditionResult, depth int) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	indent := strings.Repeat("  ", depth)
	icon := red("✖")
	if cond.Matched {
		icon = green("✔")
	}

	if cond.Label != "" {
		fmt.Printf("  %s%s %s\n", indent, icon, cyan("["+cond.Label+"]"))
		for _, child := range cond.Children {
			printCondition(child, depth+1)
		}
		return
	}

	fmt.Printf("  %s%s %s\n", indent, icon, cond.Expression)
	if cond.Reason != "" {
		reason := cond.Reason
		if cond.Matched {
			reason = faint(reason)
		} else {
			reason = yellow(reason)
		}
		fmt.Printf("  %s    ↳ %s\n", indent, reason)
	}
}

func init() {
	rootCmd.AddCommand(whyCmd)

	whyFlags.bind(whyCmd.Flags())
	whyCmd.Flags().IntVarP(&whyStatement, "statement", "s", -1, "Filter output to a specific trust statement index (optional)")

	_ = whyCmd.MarkFlagRequired("role")
}
