package cliconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExpired  = errors.New("credential expired, run 'warrant login' again")
)

// Credential is an admin token saved for one server.
type Credential struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// CLIConfig holds the credentials of the CLI, keyed by server host.
type CLIConfig struct {
	Credentials map[string]*Credential `json:"credentials"`
}

func GetConfigPath() (string, error) {
	if dir := os.Getenv("WARRANT_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(home, ".warrant", "config.json"), nil
}

// Load reads the CLI configuration. A missing file yields an error wrapping os.ErrNotExist.
func Load() (*CLIConfig, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file '%s': %w", path, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var cfg CLIConfig
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config file '%s': %w", path, err)
	}
	return &cfg, nil
}

// LoadOrEmpty is Load, but returns an empty configuration if none was saved yet.
func LoadOrEmpty() (*CLIConfig, error) {
	cfg, err := Load()
	if errors.Is(err, os.ErrNotExist) {
		return &CLIConfig{Credentials: make(map[string]*Credential)}, nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.Credentials == nil {
		cfg.Credentials = make(map[string]*Credential)
	}
	return cfg, nil
}

// Save writes the configuration readable only by the current user.
func Save(cfg *CLIConfig) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory '%s': %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file '%s' for writing: %w", path, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config to file '%s': %w", path, err)
	}
	return nil
}

func hostOf(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parsing server URL '%s': %w", server, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server URL '%s' has no host", server)
	}
	return u.Host, nil
}

// GetCredential returns the credential saved for the server. Expired
// credentials are reported as ErrCredentialExpired.
func (c *CLIConfig) GetCredential(server string) (*Credential, error) {
	host, err := hostOf(server)
	if err != nil {
		return nil, err
	}
	cred, ok := c.Credentials[host]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	if !cred.ExpiresAt.IsZero() && time.Now().After(cred.ExpiresAt) {
		return nil, ErrCredentialExpired
	}
	return cred, nil
}

// SetCredential saves a credential for the server and returns the host it is keyed by.
func (c *CLIConfig) SetCredential(server string, cred *Credential) (string, error) {
	host, err := hostOf(server)
	if err != nil {
		return "", err
	}
	if c.Credentials == nil {
		c.Credentials = make(map[string]*Credential)
	}
	c.Credentials[host] = cred
	return host, nil
}

// RemoveCredential deletes the credential of the server. It reports whether one existed.
func (c *CLIConfig) RemoveCredential(server string) (bool, error) {
	host, err := hostOf(server)
	if err != nil {
		return false, err
	}
	_, ok := c.Credentials[host]
	delete(c.Credentials, host)
	return ok, nil
}
