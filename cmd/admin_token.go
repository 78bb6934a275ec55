package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/warrant/internal/api/middleware"
)

var (
	adminTokenKeyFile string
	adminTokenSubject string
	adminTokenTTL     time.Duration
)

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Sign an admin token for the admin API",
	Long: `Signs a short-lived admin token with the server's admin key. The key is read
from --key-file, or from broker.admin_key of the server configuration (--config).
Use 'warrant login' to store the token for later commands.`,
	Example: `  warrant admin-token --subject alice --ttl 1h | warrant login -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := adminKey()
		if err != nil {
			return err
		}
		if adminTokenSubject == "" {
			return fmt.Errorf("subject cannot be empty")
		}

		now := time.Now()
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.AdminClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   adminTokenSubject,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
			},
			Roles: []string{middleware.AdminRole},
		}).SignedString(key)
		if err != nil {
			return fmt.Errorf("signing admin token: %w", err)
		}
		log.Debug().Msgf("Signed admin token for '%s' valid for %s", adminTokenSubject, adminTokenTTL)

		fmt.Println(raw)
		return nil
	},
}

func adminKey() ([]byte, error) {
	if adminTokenKeyFile != "" {
		data, err := os.ReadFile(adminTokenKeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading admin key file: %w", err)
		}
		return []byte(strings.TrimSpace(string(data))), nil
	}
	cfg, err := f.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Broker.AdminKey == "" {
		return nil, fmt.Errorf("broker.admin_key is not configured")
	}
	return []byte(cfg.Broker.AdminKey), nil
}

func init() {
	rootCmd.AddCommand(adminTokenCmd)

	adminTokenCmd.Flags().StringVar(&adminTokenKeyFile, "key-file", "", "File containing the admin key")
	adminTokenCmd.Flags().StringVar(&adminTokenSubject, "subject", "admin", "Subject of the admin token, shown in logs")
	adminTokenCmd.Flags().DurationVar(&adminTokenTTL, "ttl", time.Hour, "Lifetime of the admin token")
}
