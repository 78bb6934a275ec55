package engine

import (
	"github.com/darmiel/warrant/internal/core"
)

// Resolve computes the effective permissions of a policy, optionally narrowed by a boundary.
// It has no side effects; identical inputs always produce identical sets.
func (c *Catalog) Resolve(
	policy core.PermissionPolicy,
	boundary *core.PermissionPolicy,
	requestContext map[string]string,
) core.PermissionSet {
	attributes := contextAttributes(requestContext)

	allowed := c.evaluate(policy, attributes)
	if boundary == nil {
		return allowed
	}
	return allowed.Intersect(c.evaluate(*boundary, attributes))
}

// evaluate returns the pairs allowed by a single policy. A matching deny statement
// removes a pair even if another statement of the same policy allows it.
func (c *Catalog) evaluate(policy core.PermissionPolicy, attributes map[string]any) core.PermissionSet {
	var allow, deny []core.Permission
	for _, stmt := range policy.Statements {
		if !stmt.Effect.IsValid() {
			continue
		}
		if !evaluateConditions(stmt.Conditions, attributes).Matched {
			continue
		}
		pairs := c.pairs(stmt.Actions, stmt.Resources)
		if stmt.Effect == core.EffectDeny {
			deny = append(deny, pairs...)
		} else {
			allow = append(allow, pairs...)
		}
	}
	return core.NewPermissionSet(allow...).Subtract(core.NewPermissionSet(deny...))
}

func (c *Catalog) pairs(actions, resources []string) []core.Permission {
	as := expand(actions, c.actions)
	rs := expand(resources, c.resources)

	out := make([]core.Permission, 0, len(as)*len(rs))
	for _, a := range as {
		for _, r := range rs {
			out = append(out, core.Permission{Action: a, Resource: r})
		}
	}
	return out
}
