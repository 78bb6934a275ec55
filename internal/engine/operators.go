package engine

import (
	"fmt"
	"strings"

	"github.com/darmiel/warrant/internal/core"
)

// lookup finds a claim by its exact key first and falls back to a dotted path,
// so "kubernetes.io.namespace" works both as a flat and as a nested claim.
func lookup(attributes map[string]any, key string) (any, bool) {
	if v, ok := attributes[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}
	var cur any = attributes
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// stringValues flattens a claim value into the strings a condition compares against.
// Lists yield one entry per scalar element; maps yield nothing.
func stringValues(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringValues(item)...)
		}
		return out
	case map[string]any, nil:
		return nil
	case float64:
		// json numbers; avoid "1e+06" for integral values
		if t == float64(int64(t)) {
			return []string{fmt.Sprintf("%d", int64(t))}
		}
		return []string{fmt.Sprint(t)}
	default:
		return []string{fmt.Sprint(t)}
	}
}

func matchPattern(pattern, value string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return pattern == value
}

func compare(op core.Operator, expected []string, actual string) bool {
	switch op {
	case core.OpEquals:
		return len(expected) == 1 && actual == expected[0]
	case core.OpEqualsAnyOf:
		for _, e := range expected {
			if actual == e {
				return true
			}
		}
		return false
	case core.OpPattern:
		for _, e := range expected {
			if matchPattern(e, actual) {
				return true
			}
		}
		return false
	}
	return false
}

// evaluateCondition evaluates a leaf condition. A multi-valued claim satisfies
// the condition if any of its values does; a missing claim never does.
func evaluateCondition(cond core.Condition, attributes map[string]any) core.ConditionResult {
	createResult := func(passed bool, reason string) core.ConditionResult {
		return core.ConditionResult{
			Matched:    passed,
			Expression: cond.String(),
			Reason:     reason,
		}
	}

	val, exists := lookup(attributes, cond.Key)
	if !exists {
		return createResult(false, fmt.Sprintf("attribute '%s' missing", cond.Key))
	}
	actual := stringValues(val)
	if len(actual) == 0 {
		return createResult(false, fmt.Sprintf("attribute '%s' has no comparable value", cond.Key))
	}

	if !cond.Operator.IsValid() {
		return createResult(false, fmt.Sprintf("unknown operator '%s' in condition", cond.Operator))
	}

	for _, a := range actual {
		if compare(cond.Operator, cond.Values, a) {
			return createResult(true, fmt.Sprintf("value '%s' accepted", a))
		}
	}

	if len(actual) == 1 {
		return createResult(false, fmt.Sprintf("value '%s' rejected", actual[0]))
	}
	return createResult(false, fmt.Sprintf("none of %v accepted", actual))
}

// evaluateConditions ANDs a condition set.
func evaluateConditions(set core.ConditionSet, attributes map[string]any) core.ConditionResult {
	res := core.ConditionResult{
		Matched: true,
		Label:   "AND",
	}
	for _, cond := range set {
		cr := evaluateCondition(cond, attributes)
		res.Children = append(res.Children, cr)
		if !cr.Matched {
			res.Matched = false
		}
	}
	return res
}

func contextAttributes(requestContext map[string]string) map[string]any {
	out := make(map[string]any, len(requestContext))
	for k, v := range requestContext {
		out[k] = v
	}
	return out
}
