package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type ConditionResult struct {
	Matched bool `json:"matched"`

	// For leaves
	Expression string `json:"expression"` // e.g. "sub equals workload:ns-a:svc-a"
	Reason     string `json:"reason,omitempty"`

	// For branching
	Label    string            `json:"label,omitempty"` // e.g. "AND"
	Children []ConditionResult `json:"children,omitempty"`
}

// Operator defines how to compare values.
type Operator string

const (
	// OpEquals requires the value to be byte-for-byte identical to the single expected value.
	OpEquals Operator = "equals"
	// OpEqualsAnyOf requires the value to be identical to one member of the expected set.
	OpEqualsAnyOf Operator = "equals-any-of"
	// OpPattern matches a glob with at most one '*', which must be the last character.
	// e.g. "repo:acme/*" matches "repo:acme/api"
	OpPattern Operator = "pattern"
)

func (op Operator) IsValid() bool {
	switch op {
	case OpEquals, OpEqualsAnyOf, OpPattern:
		return true
	default:
		return false
	}
}

// Condition is a single check of a claim (or request context key) against expected values.
type Condition struct {
	Key      string   `yaml:"key" json:"key"`
	Operator Operator `yaml:"operator" json:"operator"`
	Values   []string `yaml:"values" json:"values"`
}

func (c Condition) String() string {
	if len(c.Values) == 1 {
		return fmt.Sprintf("%s %s %s", c.Key, c.Operator, c.Values[0])
	}
	return fmt.Sprintf("%s %s [%s]", c.Key, c.Operator, strings.Join(c.Values, ", "))
}

func (c Condition) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("condition is missing a key")
	}
	if !c.Operator.IsValid() {
		return fmt.Errorf("invalid operator '%s' for key '%s'", c.Operator, c.Key)
	}
	if len(c.Values) == 0 {
		return fmt.Errorf("condition '%s %s' has no expected values", c.Key, c.Operator)
	}
	switch c.Operator {
	case OpEquals:
		if len(c.Values) != 1 {
			return fmt.Errorf("operator '%s' on key '%s' takes exactly one value, got %d (use '%s')",
				OpEquals, c.Key, len(c.Values), OpEqualsAnyOf)
		}
	case OpPattern:
		for _, v := range c.Values {
			if err := ValidatePattern(v); err != nil {
				return fmt.Errorf("key '%s': %w", c.Key, err)
			}
		}
	}
	return nil
}

// ValidatePattern checks that a glob only uses a single trailing wildcard.
func ValidatePattern(p string) error {
	idx := strings.Index(p, "*")
	if idx >= 0 && idx != len(p)-1 {
		return fmt.Errorf("pattern '%s' may only contain a single trailing '*'", p)
	}
	return nil
}

// ConditionSet is a list of conditions which must all hold.
//
// Three document shapes are accepted:
//
//	condition:                       # operator -> key -> value(s)
//	  equals: { sub: "workload:a" }
//
//	condition:                       # flat form with one operator
//	  operator: equals
//	  sub: "workload:a"
//
//	condition:                       # explicit list
//	  - { key: sub, operator: equals, values: ["workload:a"] }
type ConditionSet []Condition

func (s *ConditionSet) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := parseConditionSet(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s *ConditionSet) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := parseConditionSet(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s ConditionSet) Validate() error {
	for _, c := range s {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func parseConditionSet(raw any) (ConditionSet, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		return parseExplicitConditions(v)
	}

	m, ok := asStringMap(raw)
	if !ok {
		return nil, fmt.Errorf("condition must be a map or a list, got %T", raw)
	}

	// flat form: { operator: equals, sub: "x", aud: "y" }
	if opRaw, ok := m["operator"]; ok {
		op, ok := opRaw.(string)
		if !ok {
			return nil, fmt.Errorf("condition operator must be a string, got %T", opRaw)
		}
		var out ConditionSet
		for _, key := range sortedKeys(m) {
			if key == "operator" {
				continue
			}
			values, err := toStringList(m[key])
			if err != nil {
				return nil, fmt.Errorf("condition key '%s': %w", key, err)
			}
			out = append(out, Condition{Key: key, Operator: Operator(op), Values: values})
		}
		return out, nil
	}

	// nested form: { equals: { sub: "x" }, pattern: { ref: "refs/heads/*" } }
	var out ConditionSet
	for _, op := range sortedKeys(m) {
		keys, ok := asStringMap(m[op])
		if !ok {
			return nil, fmt.Errorf("condition operator '%s' must map keys to values, got %T", op, m[op])
		}
		for _, key := range sortedKeys(keys) {
			values, err := toStringList(keys[key])
			if err != nil {
				return nil, fmt.Errorf("condition key '%s': %w", key, err)
			}
			out = append(out, Condition{Key: key, Operator: Operator(op), Values: values})
		}
	}
	return out, nil
}

func parseExplicitConditions(items []any) (ConditionSet, error) {
	out := make(ConditionSet, 0, len(items))
	for i, item := range items {
		m, ok := asStringMap(item)
		if !ok {
			return nil, fmt.Errorf("condition #%d must be a map, got %T", i, item)
		}
		c := Condition{}
		c.Key, _ = m["key"].(string)
		op, _ := m["operator"].(string)
		c.Operator = Operator(op)
		if c.Operator == "" {
			c.Operator = OpEquals // implicit equality
		}
		valuesRaw, ok := m["values"]
		if !ok {
			valuesRaw = m["value"]
		}
		values, err := toStringList(valuesRaw)
		if err != nil {
			return nil, fmt.Errorf("condition #%d: %w", i, err)
		}
		c.Values = values
		out = append(out, c)
	}
	return out, nil
}

// StringList accepts either a single string or a list of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	values, err := toStringList(raw)
	if err != nil {
		return err
	}
	*l = values
	return nil
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	values, err := toStringList(raw)
	if err != nil {
		return err
	}
	*l = values
	return nil
}

func toStringList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return v, nil
	default:
		s, err := scalarString(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(t), nil
	default:
		return "", fmt.Errorf("expected a scalar value, got %T", v)
	}
}

func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
