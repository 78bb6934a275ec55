package audit

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/darmiel/warrant/internal/core"
)

// env exposes an audit event to filter expressions, e.g.
//
//	outcome == "denied" && reason in ["TrustPolicyDenied", "AudienceMismatch"]
func env(e core.AuditEvent) map[string]any {
	return map[string]any{
		"action":          e.Action,
		"outcome":         string(e.Outcome),
		"reason":          e.ReasonCode,
		"state":           string(e.State),
		"correlationId":   e.CorrelationID,
		"role":            e.RoleID,
		"roleVersion":     e.RoleVersion,
		"subject":         e.Subject,
		"issuer":          e.Issuer,
		"sessionId":       e.SessionID,
		"fingerprint":     e.CredentialFingerprint,
		"permissionCount": e.PermissionCount,
		"timestamp":       e.Timestamp,
		"seq":             int(e.Seq),
	}
}

// CompileFilter compiles a boolean expression over audit events.
func CompileFilter(expression string) (func(core.AuditEvent) bool, error) {
	program, err := expr.Compile(expression, expr.Env(env(core.AuditEvent{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling filter: %w", err)
	}
	return func(e core.AuditEvent) bool {
		return matches(program, e)
	}, nil
}

func matches(program *vm.Program, e core.AuditEvent) bool {
	out, err := expr.Run(program, env(e))
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}
