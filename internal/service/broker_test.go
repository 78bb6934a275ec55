package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/juju/clock/testclock"

	"github.com/darmiel/warrant/internal/audit"
	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/credential"
	"github.com/darmiel/warrant/internal/engine"
	"github.com/darmiel/warrant/internal/issuers"
	"github.com/darmiel/warrant/internal/jwks"
	"github.com/darmiel/warrant/internal/policy"
	"github.com/darmiel/warrant/internal/store"
)

const (
	issuerURI = "https://cluster.example.com"
	audience  = "sts.example.com"
	kid       = "k1"
	subject   = "workload:ns-a:svc-a"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type keyFunc func(ctx context.Context, issuer, keyID string) (*core.PublicKey, error)

func (f keyFunc) GetKey(ctx context.Context, issuer, keyID string) (*core.PublicKey, error) {
	return f(ctx, issuer, keyID)
}

type brokenAuditor struct {
	audit.InMemoryAuditor
}

func (*brokenAuditor) Record(context.Context, core.AuditEvent) error {
	return errors.New("disk full")
}

type harness struct {
	priv    *rsa.PrivateKey
	clock   *testclock.Clock
	roles   *policy.Store
	auditor *audit.InMemoryAuditor
	broker  *Broker
}

type harnessOption func(*Components, *Options)

func withKeys(keys core.KeyProvider, registry *issuers.Registry) harnessOption {
	return func(c *Components, _ *Options) {
		c.Verifier = issuers.NewVerifier(registry, keys, issuers.VerifierOptions{})
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		priv:    priv,
		clock:   testclock.NewClock(testNow),
		auditor: audit.NewInMemoryAuditor(),
	}
	h.roles = policy.NewStore(h.clock)

	registry := issuers.NewRegistry(issuers.TrustedIssuer{IssuerURI: issuerURI, Audience: audience})
	keys := keyFunc(func(_ context.Context, issuer, keyID string) (*core.PublicKey, error) {
		if issuer != issuerURI {
			return nil, jwks.ErrIssuerUnknown
		}
		if keyID != kid {
			return nil, jwks.ErrKeyNotFound
		}
		return &core.PublicKey{KeyID: kid, Algorithm: "RS256", Key: &priv.PublicKey}, nil
	})
	revocations := store.NewRevocations(h.clock)
	creds, err := credential.NewIssuer(credential.Options{
		Issuer:             "warrant-test",
		SigningKey:         []byte(strings.Repeat("s", 32)),
		MaxSessionDuration: time.Hour,
		Revocations:        revocations,
	})
	if err != nil {
		t.Fatal(err)
	}

	components := Components{
		Issuers:  registry,
		Verifier: issuers.NewVerifier(registry, keys, issuers.VerifierOptions{}),
		Roles:    h.roles,
		Engine: engine.New(engine.NewCatalog(
			[]string{"s3:Get", "s3:Put"},
			[]string{"bucket/a", "bucket/b"},
		), nil),
		Credentials: creds,
		Auditor:     h.auditor,
		Revocations: revocations,
	}
	options := Options{Clock: h.clock, ExchangeTimeout: time.Second}
	for _, opt := range opts {
		opt(&components, &options)
	}

	h.broker, err = NewBroker(components, options)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) token(t *testing.T, sub string, exp time.Duration) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": issuerURI,
		"sub": sub,
		"aud": audience,
		"iat": testNow.Add(-time.Minute).Unix(),
		"exp": testNow.Add(exp).Unix(),
	})
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(h.priv)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func (h *harness) publish(t *testing.T, id, sub string, perms core.PermissionPolicy, boundary *core.PermissionPolicy) {
	t.Helper()
	_, err := h.roles.Put(core.Role{
		ID: id,
		TrustPolicy: core.TrustPolicy{Statements: []core.TrustStatement{{
			Effect:    core.EffectAllow,
			Principal: core.FederatedPrincipal{Federated: issuerURI},
			Conditions: core.ConditionSet{
				{Key: "sub", Operator: core.OpEquals, Values: []string{sub}},
				{Key: "aud", Operator: core.OpEquals, Values: []string{audience}},
			},
		}}},
		PermissionPolicy:   perms,
		Boundary:           boundary,
		MaxSessionDuration: 30 * time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (h *harness) events(t *testing.T) []core.AuditEvent {
	t.Helper()
	events, err := h.auditor.GetRecent(100)
	if err != nil {
		t.Fatal(err)
	}
	return events
}

func allow(action, resource string) core.PermissionStatement {
	return core.PermissionStatement{
		Effect:    core.EffectAllow,
		Actions:   core.StringList{action},
		Resources: core.StringList{resource},
	}
}

func permissions(stmts ...core.PermissionStatement) core.PermissionPolicy {
	return core.PermissionPolicy{Version: "2012-10-17", Statements: stmts}
}

func TestExchange_Granted(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "reader", subject, permissions(allow("s3:Get", "bucket/*")), nil)

	resp, err := h.broker.Exchange(context.Background(), ExchangeRequest{
		Token:  h.token(t, subject, 10*time.Minute),
		RoleID: "reader",
	})
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	// token lifetime is the tightest bound
	if want := testNow.Add(10 * time.Minute); !resp.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", resp.ExpiresAt, want)
	}
	want := core.PermissionSet{{Action: "s3:Get", Resource: "bucket/a"}, {Action: "s3:Get", Resource: "bucket/b"}}
	if diff := cmp.Diff(want, resp.Credential.Permissions); diff != "" {
		t.Errorf("permissions mismatch (-want +got):\n%s", diff)
	}

	events := h.events(t)
	if len(events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(events))
	}
	ev := events[0]
	if ev.Outcome != core.OutcomeGranted || ev.ReasonCode != core.ReasonGranted || ev.State != core.StateIssued {
		t.Errorf("event = %+v", ev)
	}
	if ev.SessionID != resp.Credential.SessionID || ev.MatchedStatement != 0 || ev.PermissionCount != 2 {
		t.Errorf("event = %+v", ev)
	}
	if ev.CredentialFingerprint == "" || strings.Contains(ev.CredentialFingerprint, resp.Credential.Token) {
		t.Errorf("fingerprint = %q", ev.CredentialFingerprint)
	}
	if ev.CorrelationID == "" {
		t.Errorf("event has no correlation id")
	}

	if _, ok := h.broker.Sessions.Get(context.Background(), resp.Credential.SessionID); !ok {
		t.Errorf("session was not remembered")
	}
}

func TestExchange_Denials(t *testing.T) {
	tests := []struct {
		name      string
		req       func(t *testing.T, h *harness) ExchangeRequest
		wantKind  core.ErrorKind
		wantState core.ExchangeState
		wantRole  string
	}{
		{
			name: "other namespace",
			req: func(t *testing.T, h *harness) ExchangeRequest {
				return ExchangeRequest{Token: h.token(t, "workload:ns-b:svc-a", 10*time.Minute), RoleID: "reader"}
			},
			wantKind:  core.KindTrustPolicyDenied,
			wantState: core.StateTrustDenied,
			wantRole:  "reader",
		},
		{
			name: "one character off",
			req: func(t *testing.T, h *harness) ExchangeRequest {
				return ExchangeRequest{Token: h.token(t, subject+"x", 10*time.Minute), RoleID: "reader"}
			},
			wantKind:  core.KindTrustPolicyDenied,
			wantState: core.StateTrustDenied,
			wantRole:  "reader",
		},
		{
			name: "alg none",
			req: func(t *testing.T, h *harness) ExchangeRequest {
				tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
					"iss": issuerURI, "sub": subject, "aud": audience, "exp": testNow.Add(time.Hour).Unix(),
				})
				raw, _ := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
				return ExchangeRequest{Token: raw, RoleID: "reader"}
			},
			wantKind:  core.KindInvalidSignature,
			wantState: core.StateVerificationFailed,
		},
		{
			name: "expired token",
			req: func(t *testing.T, h *harness) ExchangeRequest {
				return ExchangeRequest{Token: h.token(t, subject, -time.Second), RoleID: "reader"}
			},
			wantKind:  core.KindExpiredToken,
			wantState: core.StateVerificationFailed,
		},
		{
			name: "unknown role",
			req: func(t *testing.T, h *harness) ExchangeRequest {
				return ExchangeRequest{Token: h.token(t, subject, 10*time.Minute), RoleID: "admin"}
			},
			wantKind:  core.KindRoleNotFound,
			wantState: core.StateFailed,
			wantRole:  "admin",
		},
		{
			name: "missing role",
			req: func(t *testing.T, h *harness) ExchangeRequest {
				return ExchangeRequest{Token: h.token(t, subject, 10*time.Minute)}
			},
			wantKind:  core.KindMalformedRequest,
			wantState: core.StateFailed,
		},
		{
			name: "negative duration",
			req: func(t *testing.T, h *harness) ExchangeRequest {
				return ExchangeRequest{Token: h.token(t, subject, 10*time.Minute), RoleID: "reader", RequestedDurationSeconds: -1}
			},
			wantKind:  core.KindMalformedRequest,
			wantState: core.StateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.publish(t, "reader", subject, permissions(allow("s3:Get", "bucket/*")), nil)

			resp, err := h.broker.Exchange(context.Background(), tt.req(t, h))
			if resp != nil {
				t.Errorf("Exchange() returned a credential on denial")
			}
			if got := core.KindOf(err); got != tt.wantKind {
				t.Fatalf("Exchange() kind = %s, want %s (err: %v)", got, tt.wantKind, err)
			}

			events := h.events(t)
			if len(events) != 1 {
				t.Fatalf("got %d audit events, want 1", len(events))
			}
			ev := events[0]
			if ev.Outcome != core.OutcomeDenied || ev.ReasonCode != string(tt.wantKind) || ev.State != tt.wantState {
				t.Errorf("event = %+v", ev)
			}
			if ev.RoleID != tt.wantRole || ev.MatchedStatement != -1 || ev.SessionID != "" {
				t.Errorf("event = %+v", ev)
			}
		})
	}
}

func TestExchange_BoundaryEmptiesPermissions(t *testing.T) {
	h := newHarness(t)
	boundary := permissions(allow("s3:Get", "bucket/*"))
	h.publish(t, "writer", subject, permissions(allow("s3:Put", "bucket/*")), &boundary)

	resp, err := h.broker.Exchange(context.Background(), ExchangeRequest{
		Token:  h.token(t, subject, time.Hour),
		RoleID: "writer",
	})
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if len(resp.Credential.Permissions) != 0 {
		t.Errorf("permissions = %v, want none", resp.Credential.Permissions)
	}
	if want := testNow.Add(30 * time.Minute); !resp.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want role bound %v", resp.ExpiresAt, want)
	}

	_, err = h.broker.Authorize(context.Background(), AuthorizeRequest{
		Credential: resp.Credential.Token,
		Action:     "s3:Put",
		Resource:   "bucket/a",
	})
	if got := core.KindOf(err); got != core.KindPermissionDenied {
		t.Errorf("Authorize() kind = %s, want PermissionDenied", got)
	}
}

func TestExchange_RequestedDuration(t *testing.T) {
	tests := []struct {
		name      string
		requested int64
		want      time.Duration
	}{
		{"narrows", 120, 2 * time.Minute},
		{"above role maximum", 7200, 30 * time.Minute},
		{"wraps to negative", 10_000_000_000, 30 * time.Minute},
		{"wraps to under a second", 18_446_744_074, 30 * time.Minute},
		{"int64 max", math.MaxInt64, 30 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.publish(t, "reader", subject, permissions(allow("s3:Get", "bucket/*")), nil)

			resp, err := h.broker.Exchange(context.Background(), ExchangeRequest{
				Token:                    h.token(t, subject, time.Hour),
				RoleID:                   "reader",
				RequestedDurationSeconds: tt.requested,
			})
			if err != nil {
				t.Fatalf("Exchange() error = %v", err)
			}
			if want := testNow.Add(tt.want); !resp.ExpiresAt.Equal(want) {
				t.Errorf("ExpiresAt = %v, want %v", resp.ExpiresAt, want)
			}
		})
	}
}

func TestExchange_SessionPolicyNarrows(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "reader", subject, permissions(allow("s3:Get", "bucket/*")), nil)

	session := permissions(allow("s3:Get", "bucket/a"))
	resp, err := h.broker.Exchange(context.Background(), ExchangeRequest{
		Token:         h.token(t, subject, time.Hour),
		RoleID:        "reader",
		SessionPolicy: &session,
	})
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	want := core.PermissionSet{{Action: "s3:Get", Resource: "bucket/a"}}
	if diff := cmp.Diff(want, resp.Credential.Permissions); diff != "" {
		t.Errorf("permissions mismatch (-want +got):\n%s", diff)
	}
}

func TestExchange_KeysUnavailable(t *testing.T) {
	registry := issuers.NewRegistry(issuers.TrustedIssuer{IssuerURI: issuerURI, Audience: audience})
	down := keyFunc(func(context.Context, string, string) (*core.PublicKey, error) {
		return nil, jwks.ErrUnavailable
	})
	h := newHarness(t, withKeys(down, registry))
	h.publish(t, "reader", subject, permissions(allow("s3:Get", "bucket/*")), nil)

	_, err := h.broker.Exchange(context.Background(), ExchangeRequest{
		Token:  h.token(t, subject, time.Hour),
		RoleID: "reader",
	})
	if got := core.KindOf(err); got != core.KindJWKSUnavailable {
		t.Fatalf("Exchange() kind = %s, want JWKSUnavailable", got)
	}

	events := h.events(t)
	if len(events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(events))
	}
	if ev := events[0]; ev.ReasonCode != string(core.KindJWKSUnavailable) || ev.RoleID != "" || ev.MatchedStatement != -1 {
		t.Errorf("event claims a role match: %+v", ev)
	}
}

func TestExchange_TimeoutDuringKeyFetch(t *testing.T) {
	registry := issuers.NewRegistry(issuers.TrustedIssuer{IssuerURI: issuerURI, Audience: audience})
	hanging := keyFunc(func(ctx context.Context, _, _ string) (*core.PublicKey, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := newHarness(t, withKeys(hanging, registry), func(_ *Components, o *Options) {
		o.ExchangeTimeout = 20 * time.Millisecond
	})
	h.publish(t, "reader", subject, permissions(allow("s3:Get", "bucket/*")), nil)

	_, err := h.broker.Exchange(context.Background(), ExchangeRequest{
		Token:  h.token(t, subject, time.Hour),
		RoleID: "reader",
	})
	if got := core.KindOf(err); got != core.KindJWKSUnavailable {
		t.Fatalf("Exchange() kind = %s, want JWKSUnavailable", got)
	}
	if events := h.events(t); len(events) != 1 || events[0].Outcome != core.OutcomeDenied {
		t.Errorf("events = %+v", events)
	}
}

func TestExchange_AuditUnavailable(t *testing.T) {
	h := newHarness(t, func(c *Components, _ *Options) {
		c.Auditor = &brokenAuditor{}
	})
	h.publish(t, "reader", subject, permissions(allow("s3:Get", "bucket/*")), nil)

	resp, err := h.broker.Exchange(context.Background(), ExchangeRequest{
		Token:  h.token(t, subject, time.Hour),
		RoleID: "reader",
	})
	if resp != nil {
		t.Fatalf("Exchange() returned a credential without an audit record")
	}
	if got := core.KindOf(err); got != core.KindAuditSinkUnavailable {
		t.Errorf("Exchange() kind = %s, want AuditSinkUnavailable", got)
	}

	active, _ := h.broker.ActiveSessions(context.Background())
	if len(active) != 0 {
		t.Errorf("unaudited session was remembered: %+v", active)
	}
}

func TestRevoke(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "reader", subject, permissions(allow("s3:Get", "bucket/*")), nil)
	ctx := context.Background()

	resp, err := h.broker.Exchange(ctx, ExchangeRequest{Token: h.token(t, subject, time.Hour), RoleID: "reader"})
	if err != nil {
		t.Fatal(err)
	}
	authz := AuthorizeRequest{Credential: resp.Credential.Token, Action: "s3:Get", Resource: "bucket/a"}
	if _, err := h.broker.Authorize(ctx, authz); err != nil {
		t.Fatalf("Authorize() before revoke error = %v", err)
	}

	revoked, err := h.broker.Revoke(ctx, RevokeRequest{SessionID: resp.Credential.SessionID})
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if !revoked.Until.Equal(resp.ExpiresAt) {
		t.Errorf("revoked until %v, want credential expiry %v", revoked.Until, resp.ExpiresAt)
	}

	if _, err := h.broker.Authorize(ctx, authz); !errors.Is(err, credential.ErrRevoked) {
		t.Errorf("Authorize() after revoke error = %v, want ErrRevoked", err)
	}

	var actions []string
	for _, ev := range h.events(t) {
		actions = append(actions, ev.Action)
	}
	want := []string{core.ActionExchange, core.ActionAuthorize, core.ActionRevoke, core.ActionAuthorize}
	if diff := cmp.Diff(want, actions); diff != "" {
		t.Errorf("audit actions mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	role := core.Role{
		ID: "reader",
		TrustPolicy: core.TrustPolicy{Statements: []core.TrustStatement{{
			Effect:    core.EffectAllow,
			Principal: core.FederatedPrincipal{Federated: issuerURI},
		}}},
		MaxSessionDuration: time.Minute,
	}
	first, err := h.broker.PublishRole(ctx, role)
	if err != nil {
		t.Fatalf("PublishRole() error = %v", err)
	}
	role.Description = "read only"
	second, err := h.broker.PublishRole(ctx, role)
	if err != nil {
		t.Fatal(err)
	}
	if first.Version != 1 || second.Version != 2 {
		t.Errorf("versions = %d, %d; want 1, 2", first.Version, second.Version)
	}

	if _, err := h.broker.PublishRole(ctx, core.Role{ID: "broken"}); core.KindOf(err) != core.KindMalformedRequest {
		t.Errorf("PublishRole() of invalid role error = %v", err)
	}
	if events := h.events(t); len(events) != 2 || events[1].RoleVersion != 2 {
		t.Errorf("events = %+v", events)
	}
}

func TestExplain(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "reader", subject, permissions(allow("s3:Get", "bucket/*")), nil)
	ctx := context.Background()

	trace, err := h.broker.Explain(ctx, ExplainRequest{Token: h.token(t, "workload:ns-b:svc-a", time.Hour), RoleID: "reader"})
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if trace.FinalDecision || trace.ErrorKind != core.KindTrustPolicyDenied || trace.Trust == nil || len(trace.Trust.Statements) != 1 {
		t.Errorf("trace = %+v", trace)
	}

	trace, err = h.broker.Explain(ctx, ExplainRequest{Token: h.token(t, subject, time.Hour), RoleID: "reader"})
	if err != nil {
		t.Fatal(err)
	}
	if !trace.FinalDecision || len(trace.Permissions) != 2 || trace.RoleVersion != 1 {
		t.Errorf("trace = %+v", trace)
	}

	if events := h.events(t); len(events) != 0 {
		t.Errorf("explain was audited: %+v", events)
	}
}
