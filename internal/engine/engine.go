package engine

import (
	"github.com/darmiel/warrant/internal/core"
)

// Engine evaluates roles against the catalog and the optional global guardrail.
type Engine struct {
	catalog   *Catalog
	guardrail *core.PermissionPolicy
}

// New creates a new Engine. guardrail may be nil.
func New(catalog *Catalog, guardrail *core.PermissionPolicy) *Engine {
	if catalog == nil {
		catalog = NewCatalog(nil, nil)
	}
	return &Engine{
		catalog:   catalog,
		guardrail: guardrail,
	}
}

func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Effective returns the permissions a credential for the role may carry.
// The role's policy is narrowed by its boundary, the guardrail and the caller's
// session policy, each of which is intersected and can therefore only remove pairs.
func (e *Engine) Effective(
	role *core.Role,
	session *core.PermissionPolicy,
	requestContext map[string]string,
) core.PermissionSet {
	set := e.catalog.Resolve(role.PermissionPolicy, role.Boundary, requestContext)
	if e.guardrail != nil {
		set = set.Intersect(e.catalog.Resolve(*e.guardrail, nil, requestContext))
	}
	if session != nil {
		set = set.Intersect(e.catalog.Resolve(*session, nil, requestContext))
	}
	return set
}
