package core

import (
	"context"
	"crypto"
)

// PublicKey is a verification key with the algorithm it was published for.
type PublicKey struct {
	KeyID     string
	Algorithm string
	Key       crypto.PublicKey
}

// KeyProvider looks up signing keys of trusted issuers.
type KeyProvider interface {
	GetKey(ctx context.Context, issuer, keyID string) (*PublicKey, error)
}
