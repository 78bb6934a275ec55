package validation

import (
	"fmt"
	"sort"

	"github.com/darmiel/warrant/internal/core"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is a configuration smell. Findings never block a publish.
type Finding struct {
	RoleID   string   `json:"roleIdentifier"`
	Location string   `json:"location"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s %s: %s", f.Severity, f.RoleID, f.Location, f.Message)
}

// subjectClaims bind a token to one workload. A pattern on them usually admits more than intended.
var subjectClaims = map[string]struct{}{
	"sub": {},
}

// Lint reports smells in a role. If knownIssuers is non-nil, trust statements
// naming an issuer outside of it are reported as well.
func Lint(role *core.Role, knownIssuers map[string]struct{}) []Finding {
	var findings []Finding
	add := func(sev Severity, loc, format string, args ...any) {
		findings = append(findings, Finding{
			RoleID:   role.ID,
			Location: loc,
			Severity: sev,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	for idx, stmt := range role.TrustPolicy.Statements {
		loc := fmt.Sprintf("trust_policy.statement[%d]", idx)

		if knownIssuers != nil {
			if _, ok := knownIssuers[stmt.Principal.Federated]; !ok {
				add(SeverityError, loc, "issuer '%s' is not trusted, statement can never match", stmt.Principal.Federated)
			}
		}

		bound := false
		for _, cond := range stmt.Conditions {
			if cond.Key == "aud" || cond.Key == "sub" {
				bound = true
			}
			if cond.Operator != core.OpPattern {
				continue
			}
			if _, ok := subjectClaims[cond.Key]; ok {
				add(SeverityWarning, loc, "pattern on subject claim '%s' admits every matching workload", cond.Key)
			}
			for _, v := range cond.Values {
				if v == "*" {
					add(SeverityWarning, loc, "bare '*' pattern on '%s' only checks that the claim exists", cond.Key)
				}
			}
		}
		if stmt.Effect == core.EffectAllow && !bound {
			add(SeverityWarning, loc, "allow statement binds neither 'aud' nor 'sub'")
		}
	}

	lintPermissions(role.PermissionPolicy, "permission_policy", add)
	if role.Boundary != nil {
		lintPermissions(*role.Boundary, "permission_boundary", add)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Location < findings[j].Location
	})
	return findings
}

func lintPermissions(policy core.PermissionPolicy, prefix string, add func(Severity, string, string, ...any)) {
	for idx, stmt := range policy.Statements {
		if stmt.Effect != core.EffectAllow {
			continue
		}
		if contains(stmt.Actions, "*") && contains(stmt.Resources, "*") {
			add(SeverityWarning, fmt.Sprintf("%s.statement[%d]", prefix, idx),
				"allows every action on every resource")
		}
	}
}

func contains(list core.StringList, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
