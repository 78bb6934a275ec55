package core

// StatementResult captures why a specific trust statement matched or failed.
type StatementResult struct {
	Index            int               `json:"index"`
	Sid              string            `json:"sid,omitempty"`
	Effect           Effect            `json:"effect"`
	Matched          bool              `json:"matched"`
	ConditionResults []ConditionResult `json:"conditionResults,omitempty"`
}

// TrustDecision is the result of matching claims against a trust policy.
type TrustDecision struct {
	Allowed bool `json:"allowed"`

	// MatchedStatement is the index of the deciding statement, or -1 if nothing matched.
	MatchedStatement int `json:"matchedStatement"`

	Statements []StatementResult `json:"statements"`
}

// EvaluationTrace is a dry run of an exchange, returned by explain.
type EvaluationTrace struct {
	CorrelationID string `json:"correlationId"`

	RoleID      string `json:"roleIdentifier"`
	RoleVersion int    `json:"roleVersion"`

	Claims *VerifiedClaims `json:"claims,omitempty"`

	Trust *TrustDecision `json:"trust,omitempty"`

	// Permissions is only computed if the trust policy allowed the identity.
	Permissions PermissionSet `json:"permissions,omitempty"`

	// ErrorKind is set if the dry run stopped early.
	ErrorKind ErrorKind `json:"errorKind,omitempty"`

	FinalDecision bool `json:"finalDecision"`
}
