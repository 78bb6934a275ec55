package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/darmiel/warrant/internal/buildinfo"
	"github.com/darmiel/warrant/internal/logging"
)

var (
	userConfig string
	f          = NewFactory()
)

// viper keys, also settable as WARRANT_<KEY> with dots replaced by underscores
const (
	LogLevelKey   = "log.level"
	LogFormatKey  = "log.format"
	LogNoColorKey = "log.no_color"

	WarrantAddrKey  = "addr"
	ServerConfigKey = "config"
)

const (
	groupBroker  = "broker"
	groupAdmin   = "admin"
	groupOffline = "offline"
)

// commandGroups sorts the top level commands in the help output.
var commandGroups = map[string]string{
	"serve":       groupBroker,
	"exchange":    groupBroker,
	"info":        groupBroker,
	"why":         groupAdmin,
	"audit":       groupAdmin,
	"roles":       groupAdmin,
	"revoke":      groupAdmin,
	"tasks":       groupAdmin,
	"login":       groupAdmin,
	"logout":      groupAdmin,
	"admin-token": groupOffline,
	"config":      groupOffline,
	"fingerprint": groupOffline,
}

var rootCmd = &cobra.Command{
	Use:   "warrant",
	Short: fmt.Sprintf("Warrant credential broker (version: %s)", buildinfo.Version),
	Long: `Warrant is a federated credential broker.
Workloads present an identity token from a trusted issuer and assume a role.
If the role's trust policy admits the identity, warrant issues a short-lived,
signed credential scoped to the role's permissions.`,
	Version:       buildinfo.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		used, err := readUserConfig()
		// logging is configured first so config errors are printed in the requested format
		logging.Init(logging.Options{
			Level:   viper.GetString(LogLevelKey),
			Format:  viper.GetString(LogFormatKey),
			NoColor: viper.GetBool(LogNoColorKey),
		})
		if err != nil {
			return fmt.Errorf("reading user config: %w", err)
		}
		if used != "" {
			log.Debug().Msgf("using user config %s", used)
		}
		f.RemoteAddr = viper.GetString(WarrantAddrKey)
		f.ConfigPath = viper.GetString(ServerConfigKey)
		return nil
	},
}

func Execute() {
	for _, c := range rootCmd.Commands() {
		if group, ok := commandGroups[c.Name()]; ok {
			c.GroupID = group
		}
	}
	if err := rootCmd.Execute(); err != nil {
		if !errors.As(err, new(BeQuietError)) {
			log.Error().Err(err).Msg("execution failed")
		}
		os.Exit(1)
	}
}

func init() {
	logging.InitDefault()

	rootCmd.AddGroup(
		&cobra.Group{ID: groupBroker, Title: "Credentials:"},
		&cobra.Group{ID: groupAdmin, Title: "Administration (needs --server and an admin session):"},
		&cobra.Group{ID: groupOffline, Title: "Local tools:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&userConfig, "user-config", "",
		"file with default flag values (default is .warrant.yaml in the working directory, $HOME or the user config dir)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("server", "", "address of a running warrant server")
	flags.StringP("config", "c", "warrant.yaml", "server configuration file")

	for key, flag := range map[string]string{
		LogLevelKey:     "log-level",
		LogFormatKey:    "log-format",
		LogNoColorKey:   "no-color",
		WarrantAddrKey:  "server",
		ServerConfigKey: "config",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	viper.SetEnvPrefix("WARRANT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// readUserConfig loads default flag values. A missing file is not an error
// unless it was named with --user-config.
func readUserConfig() (string, error) {
	if userConfig != "" {
		viper.SetConfigFile(userConfig)
	} else {
		viper.SetConfigName(".warrant")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(dir, "warrant"))
		}
	}

	err := viper.ReadInConfig()
	if errors.As(err, new(viper.ConfigFileNotFoundError)) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return viper.ConfigFileUsed(), nil
}
