package issuers

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/darmiel/warrant/internal/config"
	"github.com/darmiel/warrant/internal/jwks"
)

// TrustedIssuer is an operator-configured identity issuer.
type TrustedIssuer struct {
	IssuerURI string
	Audience  string

	// AllowedAlgorithms narrows the verifier's global allow-list for this issuer.
	AllowedAlgorithms []string
}

// Registry is the static list of trusted issuers, keyed by their exact issuer URI.
type Registry struct {
	issuers map[string]TrustedIssuer
}

func NewRegistry(list ...TrustedIssuer) *Registry {
	r := &Registry{issuers: make(map[string]TrustedIssuer, len(list))}
	for _, iss := range list {
		r.issuers[iss.IssuerURI] = iss
	}
	return r
}

func (r *Registry) Get(issuerURI string) (TrustedIssuer, bool) {
	iss, ok := r.issuers[issuerURI]
	return iss, ok
}

func (r *Registry) List() []TrustedIssuer {
	out := make([]TrustedIssuer, 0, len(r.issuers))
	for _, iss := range r.issuers {
		out = append(out, iss)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuerURI < out[j].IssuerURI
	})
	return out
}

// BuildRegistry creates the trusted issuer registry and the key source of every issuer.
func BuildRegistry(cfgs []config.IssuerConfig, client *http.Client) (*Registry, map[string]jwks.Source, error) {
	list := make([]TrustedIssuer, 0, len(cfgs))
	sources := make(map[string]jwks.Source, len(cfgs))

	for _, cfg := range cfgs {
		if _, exists := sources[cfg.IssuerURI]; exists {
			return nil, nil, fmt.Errorf("issuer '%s' configured twice", cfg.IssuerURI)
		}
		switch {
		case cfg.JWKSFile != "":
			sources[cfg.IssuerURI] = jwks.FileSource{Path: cfg.JWKSFile}
		default:
			// an empty endpoint is discovered through the issuer's openid configuration
			sources[cfg.IssuerURI] = jwks.NewHTTPSource(cfg.IssuerURI, cfg.JWKSEndpoint, client)
		}
		list = append(list, TrustedIssuer{
			IssuerURI:         cfg.IssuerURI,
			Audience:          cfg.Audience,
			AllowedAlgorithms: cfg.AllowedAlgorithms,
		})
	}

	return NewRegistry(list...), sources, nil
}
