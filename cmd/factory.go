package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/warrant/internal/cliconfig"
	"github.com/darmiel/warrant/internal/config"
	"github.com/darmiel/warrant/pkg/client"
)

type Factory struct {
	// RemoteAddr is the address of the warrant server to connect to.
	RemoteAddr string

	// ConfigPath is the server configuration used by local commands.
	ConfigPath string
}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) GetRemoteAddr() (string, error) {
	if f.RemoteAddr == "" {
		return "", fmt.Errorf("server address not configured (use --server or set WARRANT_ADDR)")
	}
	return f.RemoteAddr, nil
}

// GetClient returns a client for remote operations. Admin commands need a saved
// admin token (warrant login) or WARRANT_TOKEN.
func (f *Factory) GetClient() (*client.Client, error) {
	server, err := f.GetRemoteAddr()
	if err != nil {
		return nil, err
	}

	var token string
	if cfg, err := cliconfig.Load(); err == nil {
		cred, err := cfg.GetCredential(server)
		switch {
		case err == nil: // token prio 1: saved credential
			token = cred.Token
		case errors.Is(err, cliconfig.ErrCredentialExpired):
			log.Warn().Msgf("saved credentials for %s expired", server)
		case !errors.Is(err, cliconfig.ErrCredentialNotFound):
			return nil, err
		}
	}

	if envToken := os.Getenv("WARRANT_TOKEN"); envToken != "" { // token prio 2: env var
		token = envToken
	}

	return client.New(server, client.WithAuthToken(token)), nil
}

func (f *Factory) LoadConfig() (*config.Config, error) {
	if f.ConfigPath == "" {
		return nil, fmt.Errorf("config file not specified (use --config)")
	}
	return config.Load(f.ConfigPath)
}
