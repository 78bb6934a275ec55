package issuers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/jwks"
)

// DefaultAlgorithms are the asymmetric algorithms accepted if nothing else is configured.
var DefaultAlgorithms = []string{"RS256", "RS384", "RS512", "PS256", "ES256", "ES384", "EdDSA"}

var errAlgorithmMismatch = errors.New("key algorithm does not match token algorithm")

type VerifierOptions struct {
	// Algorithms is the global allow-list. "none" and HMAC algorithms are never accepted.
	Algorithms []string

	// Leeway tolerates clock skew for exp and nbf.
	Leeway time.Duration
}

// Verifier checks identity tokens of trusted issuers.
type Verifier struct {
	registry   *Registry
	keys       core.KeyProvider
	algorithms []string
	leeway     time.Duration
}

func NewVerifier(registry *Registry, keys core.KeyProvider, opts VerifierOptions) *Verifier {
	algs := opts.Algorithms
	if len(algs) == 0 {
		algs = DefaultAlgorithms
	}
	return &Verifier{
		registry:   registry,
		keys:       keys,
		algorithms: algs,
		leeway:     opts.Leeway,
	}
}

// Verify checks, in order: well-formedness and algorithm, signature, expiry and
// not-before, audience and issuer. The first failing check decides the error kind.
// If expectedAudience is empty the issuer's configured audience is used.
func (v *Verifier) Verify(ctx context.Context, raw, expectedAudience string, now time.Time) (*core.VerifiedClaims, error) {
	// 1. well-formed, algorithm allowed
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		if unverified != nil && errors.Is(err, jwt.ErrTokenUnverifiable) {
			// parsable, but alg is unknown or missing
			return nil, core.NewError(core.KindInvalidSignature, err)
		}
		return nil, core.NewError(core.KindMalformedRequest, fmt.Errorf("parsing token: %w", err))
	}
	alg := unverified.Method.Alg()
	if !v.algorithmAllowed(alg, nil) {
		return nil, core.NewError(core.KindInvalidSignature, fmt.Errorf("algorithm '%s' is not allowed", alg))
	}

	issuer, err := unverified.Claims.GetIssuer()
	if err != nil {
		return nil, core.NewError(core.KindMalformedRequest, fmt.Errorf("reading 'iss': %w", err))
	}
	trusted, ok := v.registry.Get(issuer)
	if !ok {
		return nil, core.NewError(core.KindIssuerUntrusted, fmt.Errorf("issuer '%s' is not trusted", issuer))
	}
	if !v.algorithmAllowed(alg, trusted.AllowedAlgorithms) {
		return nil, core.NewError(core.KindInvalidSignature,
			fmt.Errorf("algorithm '%s' is not allowed for issuer '%s'", alg, issuer))
	}

	// 2. signature
	kid, _ := unverified.Header["kid"].(string)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithoutClaimsValidation(), // checked below, in order
	)
	token, err := parser.Parse(raw, func(t *jwt.Token) (any, error) {
		key, err := v.keys.GetKey(ctx, issuer, kid)
		if err != nil {
			return nil, err
		}
		if key.Algorithm != "" && key.Algorithm != t.Method.Alg() {
			return nil, fmt.Errorf("%w: key '%s' is for '%s'", errAlgorithmMismatch, kid, key.Algorithm)
		}
		return key.Key, nil
	})
	switch {
	case err == nil && token.Valid:
	case errors.Is(err, jwks.ErrUnavailable):
		return nil, core.NewError(core.KindJWKSUnavailable, err)
	case errors.Is(err, jwks.ErrIssuerUnknown):
		return nil, core.NewError(core.KindIssuerUntrusted, err)
	default:
		if err == nil {
			err = errors.New("token is not valid")
		}
		return nil, core.NewError(core.KindInvalidSignature, err)
	}

	claims := token.Claims.(jwt.MapClaims)

	// 3. exp / nbf
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, core.NewError(core.KindMalformedRequest, fmt.Errorf("reading 'exp': %w", err))
	}
	if exp == nil {
		return nil, core.NewError(core.KindExpiredToken, errors.New("token has no expiry"))
	}
	if !now.Add(-v.leeway).Before(exp.Time) {
		return nil, core.NewError(core.KindExpiredToken, fmt.Errorf("token expired at %s", exp.Time.Format(time.RFC3339)))
	}
	nbf, err := claims.GetNotBefore()
	if err != nil {
		return nil, core.NewError(core.KindMalformedRequest, fmt.Errorf("reading 'nbf': %w", err))
	}
	if nbf != nil && nbf.Time.After(now.Add(v.leeway)) {
		return nil, core.NewError(core.KindTokenNotYetValid, fmt.Errorf("token not valid before %s", nbf.Time.Format(time.RFC3339)))
	}

	// 4. audience, exact membership only
	if expectedAudience == "" {
		expectedAudience = trusted.Audience
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return nil, core.NewError(core.KindMalformedRequest, fmt.Errorf("reading 'aud': %w", err))
	}
	if expectedAudience == "" || !slices.Contains([]string(aud), expectedAudience) {
		return nil, core.NewError(core.KindAudienceMismatch,
			fmt.Errorf("audience %v does not contain '%s'", []string(aud), expectedAudience))
	}

	// 5. issuer
	if issuer != trusted.IssuerURI {
		return nil, core.NewError(core.KindIssuerUntrusted, fmt.Errorf("issuer '%s' is not trusted", issuer))
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, core.NewError(core.KindMalformedRequest, fmt.Errorf("reading 'sub': %w", err))
	}
	verified := &core.VerifiedClaims{
		Issuer:    issuer,
		Subject:   sub,
		Audience:  aud,
		ExpiresAt: exp.Time,
		KeyID:     kid,
		Algorithm: alg,
		Raw:       claims,
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		verified.IssuedAt = iat.Time
	}
	if nbf != nil {
		verified.NotBefore = nbf.Time
	}
	return verified, nil
}

func (v *Verifier) algorithmAllowed(alg string, narrowed []string) bool {
	if alg == "" || alg == "none" {
		return false
	}
	if _, isHMAC := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC); isHMAC {
		return false
	}
	if !slices.Contains(v.algorithms, alg) {
		return false
	}
	return len(narrowed) == 0 || slices.Contains(narrowed, alg)
}
