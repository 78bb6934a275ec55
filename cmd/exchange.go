package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/service"
	"github.com/darmiel/warrant/internal/source"
)

// requestFlags are shared by exchange and why.
type requestFlags struct {
	role          string
	token         string
	tokenFile     string
	context       map[string]string
	sessionPolicy string
}

func (r *requestFlags) bind(flags *pflag.FlagSet) {
	flags.StringVarP(&r.role, "role", "r", "", "Role to assume")
	flags.StringVarP(&r.token, "token", "t", "", "Identity token (use - to read from stdin)")
	flags.StringVar(&r.tokenFile, "token-file", "", "Read the identity token from a file")
	flags.StringToStringVar(&r.context, "context", nil, "Request context as key=value pairs")
	flags.StringVar(&r.sessionPolicy, "session-policy", "", "Permission policy file narrowing the credential")
}

func (r *requestFlags) readToken() (string, error) {
	if r.tokenFile != "" {
		data, err := os.ReadFile(r.tokenFile)
		if err != nil {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	token, err := readInput(r.token)
	if err != nil {
		return "", fmt.Errorf("reading token from stdin: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("token cannot be empty (use --token or --token-file)")
	}
	return token, nil
}

func (r *requestFlags) readSessionPolicy() (*core.PermissionPolicy, error) {
	if r.sessionPolicy == "" {
		return nil, nil
	}
	return source.LoadPermissionPolicy(r.sessionPolicy)
}

var (
	exchangeFlags    requestFlags
	exchangeDuration time.Duration
	exchangeRaw      bool
)

var exchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Exchange an identity token for a credential",
	Long: `Presents an identity token to the server and assumes a role.
The issued credential is printed as JSON, or only the token with --raw.`,
	Example: `  # Exchange a projected service account token
  warrant exchange --role deploy --token-file /var/run/secrets/tokens/warrant

  # Request a shorter credential, narrowed by a session policy
  warrant exchange -r deploy -t - --duration 5m --session-policy readonly.yaml < token`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := exchangeFlags.readToken()
		if err != nil {
			return err
		}
		sessionPolicy, err := exchangeFlags.readSessionPolicy()
		if err != nil {
			return err
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msgf("Assuming role '%s'...", exchangeFlags.role)
		resp, correlation, err := cli.Exchange(cmd.Context(), service.ExchangeRequest{
			Token:                    token,
			RoleID:                   exchangeFlags.role,
			RequestedDurationSeconds: int64(exchangeDuration / time.Second),
			RequestContext:           exchangeFlags.context,
			SessionPolicy:            sessionPolicy,
		})
		if err != nil {
			return logError(err, correlation, "failed to exchange token")
		}

		if exchangeRaw {
			fmt.Println(resp.Credential.Token)
			return nil
		}

		log.Info().Msgf("%s assumed role %s (version %d), %d permissions, expires %s",
			greenCheck,
			bold(resp.Credential.RoleID),
			resp.Credential.RoleVersion,
			len(resp.Credential.Permissions),
			resp.ExpiresAt.Local().Format(time.RFC1123))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Credential)
	},
}

func init() {
	rootCmd.AddCommand(exchangeCmd)

	exchangeFlags.bind(exchangeCmd.Flags())
	exchangeCmd.Flags().DurationVar(&exchangeDuration, "duration", 0, "Requested credential lifetime (capped by the role)")
	exchangeCmd.Flags().BoolVar(&exchangeRaw, "raw", false, "Output only the credential token")

	_ = exchangeCmd.MarkFlagRequired("role")
}
