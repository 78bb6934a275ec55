package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const minSigningKeyLength = 32

type Config struct {
	Issuers []IssuerConfig `yaml:"issuers"`
	Broker  BrokerConfig   `yaml:"broker"`
	JWKS    JWKSConfig     `yaml:"jwks"`
	Audit   AuditConfig    `yaml:"audit"`
	Policy  PolicyConfig   `yaml:"policy"`
	Catalog CatalogConfig  `yaml:"catalog"`
}

// IssuerConfig holds configuration for a trusted identity issuer.
type IssuerConfig struct {
	// IssuerURI must equal the token's iss claim byte-for-byte.
	IssuerURI string `yaml:"issuer_uri"`

	// Audience is the audience expected if the exchange request does not name one.
	Audience string `yaml:"audience"`

	// JWKSEndpoint is the URL of the issuer's key set.
	// If empty, it is discovered through the openid configuration of the issuer.
	JWKSEndpoint string `yaml:"jwks_endpoint"`

	// JWKSFile serves the key set from a local file instead.
	JWKSFile string `yaml:"jwks_file"`

	AllowedAlgorithms []string `yaml:"allowed_algorithms"`
}

type BrokerConfig struct {
	// CredentialIssuer is the iss of minted credentials.
	CredentialIssuer string `yaml:"credential_issuer"`

	// MaxSessionDuration is the global ceiling for credential lifetimes.
	MaxSessionDuration time.Duration `yaml:"max_session_duration"`

	// ExchangeTimeout bounds a single exchange including key fetches.
	ExchangeTimeout time.Duration `yaml:"exchange_timeout"`

	// Leeway tolerates clock skew when checking exp and nbf of identity tokens.
	Leeway time.Duration `yaml:"leeway"`

	AllowedAlgorithms []string `yaml:"allowed_algorithms"`

	// SigningKey signs minted credentials (HS256). SigningKeyFile takes precedence.
	SigningKey     string `yaml:"signing_key"`
	SigningKeyFile string `yaml:"signing_key_file"`

	// AdminKey signs admin tokens for the admin API. Empty disables the admin API.
	AdminKey string `yaml:"admin_key"`
}

type JWKSConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	MissInterval    time.Duration `yaml:"miss_interval"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// AuditConfig selects the audit sink. Remaining fields are sink specific.
type AuditConfig struct {
	Type   string         `yaml:"type"` // e.g., "file", "memory"
	Config map[string]any `yaml:",inline"`
}

type PolicyConfig struct {
	// Path is a role document or a directory of role documents.
	Path string `yaml:"path"`

	// Watch reloads the roles when files below Path change.
	Watch bool `yaml:"watch"`

	// Interval reloads the roles periodically. Zero disables periodic reloads.
	Interval time.Duration `yaml:"interval"`

	// Guardrail is an optional permission policy intersected with every role.
	Guardrail string `yaml:"guardrail"`
}

// CatalogConfig is the closed set of concrete actions and resources wildcards expand against.
type CatalogConfig struct {
	Actions   []string `yaml:"actions"`
	Resources []string `yaml:"resources"`
}

// Load reads and parses the configuration file at the given path.
// It returns a Config struct or an error if loading/parsing/validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if len(c.Issuers) == 0 {
		return fmt.Errorf("no trusted issuers configured")
	}
	for idx, i := range c.Issuers {
		if i.IssuerURI == "" {
			return fmt.Errorf("issuer at index %d has empty issuer_uri", idx)
		}
		if i.Audience == "" {
			return fmt.Errorf("issuer '%s' has empty audience", i.IssuerURI)
		}
		if i.JWKSEndpoint != "" && i.JWKSFile != "" {
			return fmt.Errorf("issuer '%s' sets both jwks_endpoint and jwks_file", i.IssuerURI)
		}
		if err := checkAlgorithms(i.AllowedAlgorithms); err != nil {
			return fmt.Errorf("issuer '%s': %w", i.IssuerURI, err)
		}
	}

	if err := checkAlgorithms(c.Broker.AllowedAlgorithms); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	if c.Broker.CredentialIssuer == "" {
		c.Broker.CredentialIssuer = "warrant"
	}
	if c.Broker.MaxSessionDuration == 0 {
		c.Broker.MaxSessionDuration = time.Hour
	}
	if c.Broker.MaxSessionDuration < 0 {
		return fmt.Errorf("broker.max_session_duration must be positive")
	}
	if c.Broker.ExchangeTimeout == 0 {
		c.Broker.ExchangeTimeout = 10 * time.Second
	}
	if c.Broker.Leeway < 0 {
		return fmt.Errorf("broker.leeway must not be negative")
	}
	if c.Broker.SigningKey == "" && c.Broker.SigningKeyFile == "" {
		return fmt.Errorf("broker.signing_key or broker.signing_key_file is required")
	}

	if c.JWKS.TTL == 0 {
		c.JWKS.TTL = time.Hour
	}
	if c.JWKS.MissInterval == 0 {
		c.JWKS.MissInterval = 30 * time.Second
	}
	if c.JWKS.FetchTimeout == 0 {
		c.JWKS.FetchTimeout = 5 * time.Second
	}
	if c.JWKS.RefreshInterval == 0 {
		c.JWKS.RefreshInterval = c.JWKS.TTL * 3 / 4
	}
	if c.JWKS.TTL < 0 || c.JWKS.RefreshInterval < 0 {
		return fmt.Errorf("jwks.ttl and jwks.refresh_interval must be positive")
	}
	// keys must be refreshed before they go stale
	if c.JWKS.RefreshInterval >= c.JWKS.TTL {
		return fmt.Errorf("jwks.refresh_interval (%s) must be shorter than jwks.ttl (%s)",
			c.JWKS.RefreshInterval, c.JWKS.TTL)
	}

	switch c.Audit.Type {
	case "":
		c.Audit.Type = "memory"
	case "file", "memory":
	default:
		return fmt.Errorf("unknown audit type '%s'", c.Audit.Type)
	}

	if c.Policy.Path == "" {
		return fmt.Errorf("policy.path is required")
	}
	if len(c.Catalog.Actions) == 0 || len(c.Catalog.Resources) == 0 {
		return fmt.Errorf("catalog needs at least one action and one resource")
	}
	for _, v := range append(append([]string{}, c.Catalog.Actions...), c.Catalog.Resources...) {
		if strings.Contains(v, "*") {
			return fmt.Errorf("catalog entry '%s' must be concrete", v)
		}
	}
	return nil
}

// SigningSecret returns the key minted credentials are signed with.
func (b BrokerConfig) SigningSecret() ([]byte, error) {
	secret := []byte(b.SigningKey)
	if b.SigningKeyFile != "" {
		data, err := os.ReadFile(b.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading signing key file: %w", err)
		}
		secret = []byte(strings.TrimSpace(string(data)))
	}
	if len(secret) < minSigningKeyLength {
		return nil, fmt.Errorf("signing key must be at least %d bytes", minSigningKeyLength)
	}
	return secret, nil
}

func checkAlgorithms(algs []string) error {
	for _, alg := range algs {
		switch {
		case alg == "" || strings.EqualFold(alg, "none"):
			return fmt.Errorf("algorithm '%s' is not allowed", alg)
		case strings.HasPrefix(alg, "HS"):
			return fmt.Errorf("symmetric algorithm '%s' is not allowed for identity tokens", alg)
		}
	}
	return nil
}
