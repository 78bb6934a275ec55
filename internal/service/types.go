package service

import (
	"time"

	"github.com/darmiel/warrant/internal/core"
)

type ExchangeRequest struct {
	// Token is the raw workload identity token.
	Token string `json:"token"`

	// RoleID is the role the workload wants to assume.
	RoleID string `json:"roleIdentifier"`

	// RequestedDurationSeconds narrows the credential lifetime. Zero means no preference.
	RequestedDurationSeconds int64 `json:"requestedDurationSeconds,omitempty"`

	// RequestContext is matched by permission statement conditions whose key
	// equals the context key, e.g. {equals: {transport: tls}}.
	RequestContext map[string]string `json:"requestContext,omitempty"`

	// SessionPolicy can only narrow the permissions of the role.
	SessionPolicy *core.PermissionPolicy `json:"sessionPolicy,omitempty"`
}

type ExchangeResponse struct {
	Credential *core.IssuedCredential `json:"credential"`
	ExpiresAt  time.Time              `json:"expiresAt"`
}

type ExplainRequest struct {
	Token          string                 `json:"token"`
	RoleID         string                 `json:"roleIdentifier"`
	RequestContext map[string]string      `json:"requestContext,omitempty"`
	SessionPolicy  *core.PermissionPolicy `json:"sessionPolicy,omitempty"`
}

type AuthorizeRequest struct {
	// Credential is a credential previously issued by this broker.
	Credential string `json:"credential"`
	Action     string `json:"action"`
	Resource   string `json:"resource"`
}

type AuthorizeResponse struct {
	Allowed   bool   `json:"allowed"`
	SessionID string `json:"sessionId"`
	RoleID    string `json:"roleIdentifier"`
}

type RevokeRequest struct {
	SessionID string `json:"sessionId"`
}

type RevokeResponse struct {
	SessionID string    `json:"sessionId"`
	Until     time.Time `json:"until"`
}
