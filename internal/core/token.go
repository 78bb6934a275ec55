package core

import "time"

// VerifiedClaims is the result of a successful token verification.
// It only lives for the duration of one exchange and is never persisted.
type VerifiedClaims struct {
	Issuer    string    `json:"iss"`
	Subject   string    `json:"sub"`
	Audience  []string  `json:"aud"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp"`
	NotBefore time.Time `json:"nbf,omitempty"`
	KeyID     string    `json:"kid,omitempty"`
	Algorithm string    `json:"alg"`

	// Raw contains every claim of the token, used for condition lookups.
	Raw map[string]any `json:"claims"`
}

// IssuedCredential is the result of a successful exchange.
// Token is a signed, self-describing bearer token carrying all other fields.
type IssuedCredential struct {
	Token string `json:"token"`

	SessionID   string `json:"sessionId"`
	RoleID      string `json:"roleIdentifier"`
	RoleVersion int    `json:"roleVersion"`

	// Subject and SourceIssuer identify the workload that assumed the role.
	Subject      string `json:"subject"`
	SourceIssuer string `json:"sourceIssuer"`

	Permissions      PermissionSet `json:"permissions"`
	PermissionDigest string        `json:"permissionDigest"`

	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
