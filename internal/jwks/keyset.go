package jwks

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/darmiel/warrant/internal/core"
)

// KeySet is an immutable snapshot of an issuer's signing keys.
type KeySet struct {
	Keys      map[string]core.PublicKey
	FetchedAt time.Time
	TTL       time.Duration
}

// Stale reports whether the set has outlived its TTL.
func (s *KeySet) Stale(now time.Time) bool {
	return !now.Before(s.FetchedAt.Add(s.TTL))
}

// ParseKeySet parses a JWK set document. Symmetric keys and keys meant for
// encryption are skipped; private keys are reduced to their public part.
func ParseKeySet(data []byte) (map[string]core.PublicKey, error) {
	set, err := jwk.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing jwk set: %w", err)
	}

	keys := make(map[string]core.PublicKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		k, ok := set.Key(i)
		if !ok {
			continue
		}
		if k.KeyType() == jwa.OctetSeq {
			continue
		}
		if use := k.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
			continue
		}

		pub, err := k.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("key '%s': %w", k.KeyID(), err)
		}
		var raw any
		if err := pub.Raw(&raw); err != nil {
			return nil, fmt.Errorf("key '%s': %w", k.KeyID(), err)
		}
		switch raw.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		default:
			return nil, fmt.Errorf("key '%s': unsupported key type %T", k.KeyID(), raw)
		}

		alg := ""
		if k.Algorithm() != nil {
			alg = k.Algorithm().String()
		}
		keys[k.KeyID()] = core.PublicKey{
			KeyID:     k.KeyID(),
			Algorithm: alg,
			Key:       raw,
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwk set contains no usable signing keys")
	}
	return keys, nil
}
