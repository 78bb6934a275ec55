package core

import (
	"context"
	"time"
)

type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
)

// Audit actions.
const (
	ActionExchange  = "credential.exchange"
	ActionRevoke    = "credential.revoke"
	ActionAuthorize = "credential.authorize"
	ActionPublish   = "role.publish"
)

// ReasonGranted is the reason code of successful events.
const ReasonGranted = "Granted"

// ExchangeState is a state of a single exchange.
//
//	Received -> Verifying -> (VerificationFailed | TrustMatching)
//	         -> (TrustDenied | Resolving) -> Issuing -> Issued
type ExchangeState string

const (
	StateReceived           ExchangeState = "Received"
	StateVerifying          ExchangeState = "Verifying"
	StateVerificationFailed ExchangeState = "VerificationFailed"
	StateTrustMatching      ExchangeState = "TrustMatching"
	StateTrustDenied        ExchangeState = "TrustDenied"
	StateResolving          ExchangeState = "Resolving"
	StateIssuing            ExchangeState = "Issuing"
	StateIssued             ExchangeState = "Issued"
	StateFailed             ExchangeState = "Failed"
)

// AuditEvent is an append-only record of a decision.
type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	Outcome       Outcome   `json:"outcome"`
	ReasonCode    string    `json:"reasonCode"`
	CorrelationID string    `json:"correlationId"`

	// State is the terminal state the exchange reached.
	State ExchangeState `json:"state,omitempty"`

	RoleID      string `json:"roleIdentifier,omitempty"`
	RoleVersion int    `json:"roleVersion,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Issuer      string `json:"issuer,omitempty"`

	// MatchedStatement is the index of the trust statement which decided the outcome, or -1.
	MatchedStatement int `json:"matchedStatement"`

	SessionID             string    `json:"sessionId,omitempty"`
	CredentialFingerprint string    `json:"credentialFingerprint,omitempty"`
	PermissionCount       int       `json:"permissionCount"`
	PermissionDigest      string    `json:"permissionDigest,omitempty"`
	ExpiresAt             time.Time `json:"expiresAt,omitempty"`

	// Detail holds internal error details. It is never returned to callers.
	Detail string `json:"detail,omitempty"`

	// Hash chain, assigned by the sink.
	Seq      uint64 `json:"seq"`
	PrevHash string `json:"prevHash"`
	Hash     string `json:"hash"`
}

// Auditor records audit events. Record must return an error if the event
// could not be durably written; callers fail closed on that error.
type Auditor interface {
	Record(ctx context.Context, event AuditEvent) error
	GetRecent(limit int) ([]AuditEvent, error)
	Find(filter func(event AuditEvent) bool, limit int) ([]AuditEvent, error)
	Close() error
}
