package validation

import (
	"fmt"
	"strings"

	"github.com/darmiel/warrant/internal/core"
)

// ValidateRoles checks a set of role documents before they are published.
// Roles are returned in input order.
func ValidateRoles(roles []core.Role) ([]core.Role, error) {
	seenIDs := make(map[string]struct{})
	validRoles := make([]core.Role, 0, len(roles))

	for i, role := range roles {
		if role.ID == "" {
			return nil, fmt.Errorf("role #%d missing id", i)
		}
		if _, exists := seenIDs[role.ID]; exists {
			return nil, fmt.Errorf("role id '%s' is not unique", role.ID)
		}
		seenIDs[role.ID] = struct{}{}

		if err := ValidateRole(&role); err != nil {
			return nil, err
		}
		validRoles = append(validRoles, role)
	}

	return validRoles, nil
}

// ValidateRole checks a single role document.
func ValidateRole(role *core.Role) error {
	if role.ID == "" {
		return fmt.Errorf("role missing id")
	}
	if strings.ContainsAny(role.ID, " /\t\n") {
		return fmt.Errorf("role id '%s' must not contain whitespace or '/'", role.ID)
	}
	if role.MaxSessionDuration <= 0 {
		return fmt.Errorf("role '%s' needs a positive max_session_duration", role.ID)
	}

	if len(role.TrustPolicy.Statements) == 0 {
		return fmt.Errorf("role '%s' has an empty trust policy", role.ID)
	}
	for idx, stmt := range role.TrustPolicy.Statements {
		if !stmt.Effect.IsValid() {
			return fmt.Errorf("role '%s' trust statement #%d has invalid effect '%s'", role.ID, idx, stmt.Effect)
		}
		if stmt.Principal.Federated == "" {
			return fmt.Errorf("role '%s' trust statement #%d missing principal.federated", role.ID, idx)
		}
		if err := stmt.Conditions.Validate(); err != nil {
			return fmt.Errorf("validating condition of role '%s' trust statement #%d: %w", role.ID, idx, err)
		}
	}

	if err := validatePermissionPolicy(role.PermissionPolicy); err != nil {
		return fmt.Errorf("role '%s' permission policy: %w", role.ID, err)
	}
	if role.Boundary != nil {
		if err := validatePermissionPolicy(*role.Boundary); err != nil {
			return fmt.Errorf("role '%s' permission boundary: %w", role.ID, err)
		}
	}
	return nil
}

// ValidatePermissionPolicy checks a standalone permission document, e.g. a session policy.
func ValidatePermissionPolicy(policy core.PermissionPolicy) error {
	return validatePermissionPolicy(policy)
}

func validatePermissionPolicy(policy core.PermissionPolicy) error {
	for idx, stmt := range policy.Statements {
		if !stmt.Effect.IsValid() {
			return fmt.Errorf("statement #%d has invalid effect '%s'", idx, stmt.Effect)
		}
		if len(stmt.Actions) == 0 {
			return fmt.Errorf("statement #%d has no actions", idx)
		}
		if len(stmt.Resources) == 0 {
			return fmt.Errorf("statement #%d has no resources", idx)
		}
		for _, p := range append(append([]string{}, stmt.Actions...), stmt.Resources...) {
			if err := core.ValidatePattern(p); err != nil {
				return fmt.Errorf("statement #%d: %w", idx, err)
			}
		}
		if err := stmt.Conditions.Validate(); err != nil {
			return fmt.Errorf("statement #%d condition: %w", idx, err)
		}
	}
	return nil
}
