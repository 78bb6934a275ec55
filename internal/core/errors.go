package core

import (
	"errors"
	"net/http"
)

// ErrorKind classifies every failure an exchange can surface to a caller.
type ErrorKind string

const (
	KindMalformedRequest     ErrorKind = "MalformedRequest"
	KindInvalidSignature     ErrorKind = "InvalidSignature"
	KindExpiredToken         ErrorKind = "ExpiredToken"
	KindTokenNotYetValid     ErrorKind = "TokenNotYetValid"
	KindAudienceMismatch     ErrorKind = "AudienceMismatch"
	KindIssuerUntrusted      ErrorKind = "IssuerUntrusted"
	KindTrustPolicyDenied    ErrorKind = "TrustPolicyDenied"
	KindPermissionDenied     ErrorKind = "PermissionDenied"
	KindRoleNotFound         ErrorKind = "RoleNotFound"
	KindJWKSUnavailable      ErrorKind = "JWKSUnavailable"
	KindAuditSinkUnavailable ErrorKind = "AuditSinkUnavailable"
	KindInternalFault        ErrorKind = "InternalFault"
)

var kindInfo = map[ErrorKind]struct {
	status  int
	message string
}{
	KindMalformedRequest:     {http.StatusBadRequest, "the request is malformed"},
	KindInvalidSignature:     {http.StatusUnauthorized, "the token signature could not be verified"},
	KindExpiredToken:         {http.StatusUnauthorized, "the token has expired"},
	KindTokenNotYetValid:     {http.StatusUnauthorized, "the token is not valid yet"},
	KindAudienceMismatch:     {http.StatusUnauthorized, "the token was not issued for this audience"},
	KindIssuerUntrusted:      {http.StatusUnauthorized, "the token issuer is not trusted"},
	KindTrustPolicyDenied:    {http.StatusForbidden, "the role's trust policy does not allow this identity"},
	KindPermissionDenied:     {http.StatusForbidden, "the requested permission is not granted"},
	KindRoleNotFound:         {http.StatusForbidden, "the role does not exist"},
	KindJWKSUnavailable:      {http.StatusInternalServerError, "the issuer's signing keys are unavailable"},
	KindAuditSinkUnavailable: {http.StatusInternalServerError, "the audit log is unavailable"},
	KindInternalFault:        {http.StatusInternalServerError, "internal error"},
}

// Status returns the HTTP status code for the kind.
func (k ErrorKind) Status() int {
	if info, ok := kindInfo[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Message returns the fixed, caller-safe message for the kind.
func (k ErrorKind) Message() string {
	if info, ok := kindInfo[k]; ok {
		return info.message
	}
	return kindInfo[KindInternalFault].message
}

// Error is a classified error. Wrapped is for logs and audit detail only
// and must never be shown to callers.
type Error struct {
	Kind    ErrorKind
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Wrapped.Error()
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Wrapped: err}
}

// KindOf returns the kind of a classified error, or InternalFault.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalFault
}
