package audit

import (
	"crypto/sha256"
	"encoding/hex"
)

const fingerprintPrefix = "sha256:"

// Fingerprint identifies a credential in the audit log without revealing it.
// Only the first 16 bytes of the digest are kept, which is enough to tell
// credentials apart and short enough to paste into a filter.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fingerprintPrefix + hex.EncodeToString(sum[:16])
}
