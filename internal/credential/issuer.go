package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/darmiel/warrant/internal/core"
)

var (
	ErrRevoked = errors.New("credential has been revoked")
	ErrInvalid = errors.New("credential is invalid")
)

// RevocationList reports whether a session has been revoked.
type RevocationList interface {
	IsRevoked(sessionID string) bool
}

type Options struct {
	// Issuer is the iss claim of minted credentials.
	Issuer string

	SigningKey []byte

	// MaxSessionDuration is the global ceiling for any credential.
	MaxSessionDuration time.Duration

	Revocations RevocationList
}

// Claims are carried by a credential token. They bind every field of the
// issued credential under the broker's signature.
type Claims struct {
	jwt.RegisteredClaims

	SourceIssuer     string             `json:"src_iss"`
	Role             string             `json:"role"`
	RoleVersion      int                `json:"ver"`
	Permissions      core.PermissionSet `json:"perms"`
	PermissionDigest string             `json:"pdig"`
}

// Request is everything needed to mint one credential.
type Request struct {
	Role        *core.Role
	Permissions core.PermissionSet
	Identity    *core.VerifiedClaims

	// RequestedDuration narrows the lifetime further. Zero means no preference.
	RequestedDuration time.Duration

	Now time.Time
}

type Issuer struct {
	opts Options
}

func NewIssuer(opts Options) (*Issuer, error) {
	if len(opts.SigningKey) == 0 {
		return nil, fmt.Errorf("credential signing key is empty")
	}
	if opts.MaxSessionDuration <= 0 {
		return nil, fmt.Errorf("credential ceiling must be positive")
	}
	if opts.Issuer == "" {
		opts.Issuer = "warrant"
	}
	return &Issuer{opts: opts}, nil
}

// MaxSessionDuration is the global ceiling. No credential outlives it.
func (i *Issuer) MaxSessionDuration() time.Duration {
	return i.opts.MaxSessionDuration
}

// TTL is the lifetime of a credential: the smallest of the role's maximum
// session duration, the remaining lifetime of the identity token, the global
// ceiling and the requested duration if one was given.
func (i *Issuer) TTL(role *core.Role, tokenExpiry, now time.Time, requested time.Duration) time.Duration {
	ttl := i.opts.MaxSessionDuration
	if role.MaxSessionDuration < ttl {
		ttl = role.MaxSessionDuration
	}
	if remaining := tokenExpiry.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if requested > 0 && requested < ttl {
		ttl = requested
	}
	return ttl
}

func (i *Issuer) Issue(req Request) (*core.IssuedCredential, error) {
	if req.RequestedDuration < 0 {
		return nil, core.NewError(core.KindMalformedRequest, fmt.Errorf("requested duration %s is negative", req.RequestedDuration))
	}

	ttl := i.TTL(req.Role, req.Identity.ExpiresAt, req.Now, req.RequestedDuration)
	// the token carries whole seconds, never round up past any bound
	expiresAt := req.Now.Add(ttl).Truncate(time.Second)
	if !expiresAt.After(req.Now) {
		return nil, core.NewError(core.KindExpiredToken, fmt.Errorf("no lifetime left (ttl %s)", ttl))
	}

	sessionID, err := uuid.NewRandom()
	if err != nil {
		return nil, core.NewError(core.KindInternalFault, fmt.Errorf("generating session id: %w", err))
	}

	perms := req.Permissions
	if perms == nil {
		perms = core.PermissionSet{}
	}
	digest := perms.Digest()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.opts.Issuer,
			Subject:   req.Identity.Subject,
			Audience:  jwt.ClaimStrings{i.opts.Issuer},
			ID:        sessionID.String(),
			IssuedAt:  jwt.NewNumericDate(req.Now),
			NotBefore: jwt.NewNumericDate(req.Now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SourceIssuer:     req.Identity.Issuer,
		Role:             req.Role.ID,
		RoleVersion:      req.Role.Version,
		Permissions:      perms,
		PermissionDigest: digest,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.opts.SigningKey)
	if err != nil {
		return nil, core.NewError(core.KindInternalFault, fmt.Errorf("signing credential: %w", err))
	}

	return &core.IssuedCredential{
		Token:            signed,
		SessionID:        claims.ID,
		RoleID:           req.Role.ID,
		RoleVersion:      req.Role.Version,
		Subject:          req.Identity.Subject,
		SourceIssuer:     req.Identity.Issuer,
		Permissions:      perms,
		PermissionDigest: digest,
		IssuedAt:         req.Now,
		ExpiresAt:        expiresAt,
	}, nil
}

// Verify checks a credential presented back to the broker: signature, expiry,
// permission digest and the revocation list.
func (i *Issuer) Verify(raw string, now time.Time) (*Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.opts.Issuer),
		jwt.WithAudience(i.opts.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.opts.SigningKey, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, core.NewError(core.KindExpiredToken, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, core.NewError(core.KindMalformedRequest, err)
	default:
		return nil, core.NewError(core.KindInvalidSignature, fmt.Errorf("%w: %w", ErrInvalid, err))
	}

	claims.Permissions = core.NewPermissionSet(claims.Permissions...)
	if claims.PermissionDigest != claims.Permissions.Digest() {
		return nil, core.NewError(core.KindInvalidSignature, fmt.Errorf("%w: permission digest mismatch", ErrInvalid))
	}
	if i.opts.Revocations != nil && i.opts.Revocations.IsRevoked(claims.ID) {
		return nil, core.NewError(core.KindInvalidSignature, fmt.Errorf("%w: session '%s'", ErrRevoked, claims.ID))
	}
	return &claims, nil
}

// Authorize checks that a valid credential grants action on resource.
func (i *Issuer) Authorize(raw, action, resource string, now time.Time) (*Claims, error) {
	claims, err := i.Verify(raw, now)
	if err != nil {
		return nil, err
	}
	if !claims.Permissions.Contains(core.Permission{Action: action, Resource: resource}) {
		return claims, core.NewError(core.KindPermissionDenied,
			fmt.Errorf("'%s' on '%s' is not granted to session '%s'", action, resource, claims.ID))
	}
	return claims, nil
}
