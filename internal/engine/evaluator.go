package engine

import (
	"fmt"
	"strings"

	"github.com/darmiel/warrant/internal/core"
)

// MatchTrust evaluates every statement of a trust policy against verified claims.
// An explicit deny wins over any allow; if no statement matches the identity is denied.
func MatchTrust(policy core.TrustPolicy, claims *core.VerifiedClaims) core.TrustDecision {
	decision := core.TrustDecision{
		MatchedStatement: -1,
		Statements:       make([]core.StatementResult, 0, len(policy.Statements)),
	}
	if claims == nil {
		return decision
	}

	firstAllow, firstDeny := -1, -1
	for i, stmt := range policy.Statements {
		result := checkStatement(i, stmt, claims)
		decision.Statements = append(decision.Statements, result)
		if !result.Matched {
			continue
		}
		switch stmt.Effect {
		case core.EffectDeny:
			if firstDeny < 0 {
				firstDeny = i
			}
		case core.EffectAllow:
			if firstAllow < 0 {
				firstAllow = i
			}
		}
	}

	switch {
	case firstDeny >= 0:
		decision.MatchedStatement = firstDeny
	case firstAllow >= 0:
		decision.Allowed = true
		decision.MatchedStatement = firstAllow
	}
	return decision
}

// checkStatement evaluates a single trust statement against the claims.
func checkStatement(index int, stmt core.TrustStatement, claims *core.VerifiedClaims) core.StatementResult {
	result := core.StatementResult{
		Index:            index,
		Sid:              stmt.Sid,
		Effect:           stmt.Effect,
		Matched:          true, // fail on any mismatch
		ConditionResults: []core.ConditionResult{},
	}

	addResult := func(expression string, passed bool, reason string) {
		result.ConditionResults = append(result.ConditionResults, core.ConditionResult{
			Expression: expression,
			Matched:    passed,
			Reason:     reason,
		})
		if !passed {
			result.Matched = false
		}
	}

	if !stmt.Effect.IsValid() {
		addResult(fmt.Sprintf("effect '%s'", stmt.Effect), false, "unknown effect")
	}

	principalExpr := fmt.Sprintf("iss %s %s", core.OpEquals, stmt.Principal.Federated)
	if stmt.Principal.Federated == "" || stmt.Principal.Federated != claims.Issuer {
		addResult(
			principalExpr,
			false,
			fmt.Sprintf("issuer mismatch: expected '%s', got '%s'", stmt.Principal.Federated, claims.Issuer),
		)
	} else {
		addResult(principalExpr, true, "")
	}

	cr := evaluateConditions(stmt.Conditions, claims.Raw)
	if !cr.Matched {
		result.Matched = false
	}
	flattenConditionResult(&result.ConditionResults, cr, 0)

	return result
}

func flattenConditionResult(out *[]core.ConditionResult, cr core.ConditionResult, depth int) {
	indent := strings.Repeat("  ", depth)

	if cr.Expression != "" {
		*out = append(*out, core.ConditionResult{
			Expression: indent + cr.Expression,
			Matched:    cr.Matched,
			Reason:     cr.Reason,
		})
		return
	}

	if cr.Label != "" && len(cr.Children) > 1 {
		*out = append(*out, core.ConditionResult{
			Expression: indent + "[" + cr.Label + "]",
			Matched:    cr.Matched,
		})
	}

	for _, child := range cr.Children {
		flattenConditionResult(out, child, depth+1)
	}
}
