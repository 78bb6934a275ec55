package engine

import (
	"testing"

	"github.com/darmiel/warrant/internal/core"
)

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		name       string
		condition  core.Condition
		attributes map[string]any
		want       bool
	}{
		// --- equals ---
		{
			name:       "equals - exact subject",
			condition:  core.Condition{Key: "sub", Operator: core.OpEquals, Values: []string{"workload:ns-a:svc-a"}},
			attributes: map[string]any{"sub": "workload:ns-a:svc-a"},
			want:       true,
		},
		{
			name:       "equals - one character off",
			condition:  core.Condition{Key: "sub", Operator: core.OpEquals, Values: []string{"workload:ns-a:svc-a"}},
			attributes: map[string]any{"sub": "workload:ns-a:svc-b"},
			want:       false,
		},
		{
			name:       "equals - no case folding",
			condition:  core.Condition{Key: "sub", Operator: core.OpEquals, Values: []string{"Workload"}},
			attributes: map[string]any{"sub": "workload"},
			want:       false,
		},
		{
			name:       "equals - wildcard is literal",
			condition:  core.Condition{Key: "sub", Operator: core.OpEquals, Values: []string{"workload:*"}},
			attributes: map[string]any{"sub": "workload:ns-a"},
			want:       false,
		},
		{
			name:       "equals - missing claim",
			condition:  core.Condition{Key: "sub", Operator: core.OpEquals, Values: []string{"a"}},
			attributes: map[string]any{"other": "a"},
			want:       false,
		},
		{
			name:       "equals - audience list contains value",
			condition:  core.Condition{Key: "aud", Operator: core.OpEquals, Values: []string{"sts.example.com"}},
			attributes: map[string]any{"aud": []any{"other", "sts.example.com"}},
			want:       true,
		},
		{
			name:       "equals - numeric claim",
			condition:  core.Condition{Key: "run", Operator: core.OpEquals, Values: []string{"42"}},
			attributes: map[string]any{"run": float64(42)},
			want:       true,
		},

		// --- equals-any-of ---
		{
			name:       "equals-any-of - member",
			condition:  core.Condition{Key: "env", Operator: core.OpEqualsAnyOf, Values: []string{"prod", "staging"}},
			attributes: map[string]any{"env": "staging"},
			want:       true,
		},
		{
			name:       "equals-any-of - non member",
			condition:  core.Condition{Key: "env", Operator: core.OpEqualsAnyOf, Values: []string{"prod", "staging"}},
			attributes: map[string]any{"env": "prod2"},
			want:       false,
		},

		// --- pattern ---
		{
			name:       "pattern - prefix",
			condition:  core.Condition{Key: "ref", Operator: core.OpPattern, Values: []string{"refs/heads/*"}},
			attributes: map[string]any{"ref": "refs/heads/main"},
			want:       true,
		},
		{
			name:       "pattern - other prefix",
			condition:  core.Condition{Key: "ref", Operator: core.OpPattern, Values: []string{"refs/heads/*"}},
			attributes: map[string]any{"ref": "refs/tags/v1"},
			want:       false,
		},
		{
			name:       "pattern - without wildcard is exact",
			condition:  core.Condition{Key: "ref", Operator: core.OpPattern, Values: []string{"refs/heads/main"}},
			attributes: map[string]any{"ref": "refs/heads/main-2"},
			want:       false,
		},

		// --- lookup ---
		{
			name:       "dotted path",
			condition:  core.Condition{Key: "kubernetes.io.namespace", Operator: core.OpEquals, Values: []string{"ns-a"}},
			attributes: map[string]any{"kubernetes.io": map[string]any{"namespace": "ns-a"}},
			want:       true,
		},
		{
			name:       "exact key wins over path",
			condition:  core.Condition{Key: "a.b", Operator: core.OpEquals, Values: []string{"flat"}},
			attributes: map[string]any{"a.b": "flat", "a": map[string]any{"b": "nested"}},
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluateCondition(tt.condition, tt.attributes)
			if got.Matched != tt.want {
				t.Errorf("evaluateCondition() matched = %v, want %v. Reason: %s", got.Matched, tt.want, got.Reason)
			}
		})
	}
}

func TestMatchTrust(t *testing.T) {
	const issuer = "https://issuer.example.com"

	claims := &core.VerifiedClaims{
		Issuer:  issuer,
		Subject: "workload:ns-a:svc-a",
		Raw: map[string]any{
			"iss": issuer,
			"sub": "workload:ns-a:svc-a",
			"aud": "sts.example.com",
		},
	}

	allowSub := func(sub string) core.TrustStatement {
		return core.TrustStatement{
			Effect:    core.EffectAllow,
			Principal: core.FederatedPrincipal{Federated: issuer},
			Conditions: core.ConditionSet{
				{Key: "sub", Operator: core.OpEquals, Values: []string{sub}},
				{Key: "aud", Operator: core.OpEquals, Values: []string{"sts.example.com"}},
			},
		}
	}

	tests := []struct {
		name        string
		policy      core.TrustPolicy
		wantAllowed bool
		wantIndex   int
	}{
		{
			name:        "exact subject allowed",
			policy:      core.TrustPolicy{Statements: []core.TrustStatement{allowSub("workload:ns-a:svc-a")}},
			wantAllowed: true,
			wantIndex:   0,
		},
		{
			name:        "other namespace denied",
			policy:      core.TrustPolicy{Statements: []core.TrustStatement{allowSub("workload:ns-b:svc-a")}},
			wantAllowed: false,
			wantIndex:   -1,
		},
		{
			name: "second statement matches",
			policy: core.TrustPolicy{Statements: []core.TrustStatement{
				allowSub("workload:ns-b:svc-a"),
				allowSub("workload:ns-a:svc-a"),
			}},
			wantAllowed: true,
			wantIndex:   1,
		},
		{
			name: "explicit deny wins",
			policy: core.TrustPolicy{Statements: []core.TrustStatement{
				allowSub("workload:ns-a:svc-a"),
				{
					Effect:    core.EffectDeny,
					Principal: core.FederatedPrincipal{Federated: issuer},
					Conditions: core.ConditionSet{
						{Key: "sub", Operator: core.OpPattern, Values: []string{"workload:ns-a:*"}},
					},
				},
			}},
			wantAllowed: false,
			wantIndex:   1,
		},
		{
			name: "issuer must match principal",
			policy: core.TrustPolicy{Statements: []core.TrustStatement{{
				Effect:    core.EffectAllow,
				Principal: core.FederatedPrincipal{Federated: "https://other.example.com"},
			}}},
			wantAllowed: false,
			wantIndex:   -1,
		},
		{
			name:        "empty policy denies",
			policy:      core.TrustPolicy{},
			wantAllowed: false,
			wantIndex:   -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchTrust(tt.policy, claims)
			if got.Allowed != tt.wantAllowed {
				t.Errorf("MatchTrust() allowed = %v, want %v", got.Allowed, tt.wantAllowed)
			}
			if got.MatchedStatement != tt.wantIndex {
				t.Errorf("MatchTrust() matched statement = %d, want %d", got.MatchedStatement, tt.wantIndex)
			}
			if len(got.Statements) != len(tt.policy.Statements) {
				t.Errorf("MatchTrust() traced %d statements, want %d", len(got.Statements), len(tt.policy.Statements))
			}
		})
	}
}
