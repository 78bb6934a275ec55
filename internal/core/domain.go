package core

import (
	"fmt"
	"time"
)

// Effect of a policy statement.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

func (e Effect) IsValid() bool {
	return e == EffectAllow || e == EffectDeny
}

// FederatedPrincipal names the trusted issuer a trust statement applies to.
// Federated must equal the token's 'iss' claim exactly.
type FederatedPrincipal struct {
	Federated string `yaml:"federated" json:"federated"`
}

// TrustStatement decides who may assume a role.
type TrustStatement struct {
	Sid        string             `yaml:"sid" json:"sid,omitempty"`
	Effect     Effect             `yaml:"effect" json:"effect"`
	Principal  FederatedPrincipal `yaml:"principal" json:"principal"`
	Conditions ConditionSet       `yaml:"condition" json:"condition,omitempty"`
}

// TrustPolicy is an ordered list of trust statements.
type TrustPolicy struct {
	Version    string           `yaml:"version" json:"version"`
	Statements []TrustStatement `yaml:"statement" json:"statement"`
}

// PermissionStatement grants or denies actions on resources.
// Actions and resources may end in a single '*' which is expanded against the catalog.
type PermissionStatement struct {
	Sid        string       `yaml:"sid" json:"sid,omitempty"`
	Effect     Effect       `yaml:"effect" json:"effect"`
	Actions    StringList   `yaml:"action" json:"action"`
	Resources  StringList   `yaml:"resource" json:"resource"`
	Conditions ConditionSet `yaml:"condition" json:"condition,omitempty"`
}

// PermissionPolicy is used for role permission policies, permission boundaries,
// session policies and the global guardrail alike.
type PermissionPolicy struct {
	Version    string                `yaml:"version" json:"version"`
	Statements []PermissionStatement `yaml:"statement" json:"statement"`
}

// Role binds a trust policy to the permissions granted when it is assumed.
// A Role is immutable once published; updates create a new version.
type Role struct {
	// ID is the role identifier requested by callers.
	ID string `yaml:"id" json:"id"`

	// Description explains the intent of the role.
	Description string `yaml:"description" json:"description,omitempty"`

	// Version is assigned by the policy store on publish.
	Version int `yaml:"-" json:"version"`

	TrustPolicy      TrustPolicy       `yaml:"trust_policy" json:"trustPolicy"`
	PermissionPolicy PermissionPolicy  `yaml:"permission_policy" json:"permissionPolicy"`
	Boundary         *PermissionPolicy `yaml:"permission_boundary" json:"permissionBoundary,omitempty"`

	// MaxSessionDuration caps the lifetime of credentials issued for this role.
	MaxSessionDuration time.Duration `yaml:"max_session_duration" json:"maxSessionDuration"`
}

func (r Role) String() string {
	return fmt.Sprintf("%s@v%d", r.ID, r.Version)
}
