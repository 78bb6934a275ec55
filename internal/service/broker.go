package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/juju/clock"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/darmiel/warrant/internal/audit"
	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/credential"
	"github.com/darmiel/warrant/internal/engine"
	"github.com/darmiel/warrant/internal/issuers"
	"github.com/darmiel/warrant/internal/metrics"
	"github.com/darmiel/warrant/internal/policy"
	"github.com/darmiel/warrant/internal/store"
	"github.com/darmiel/warrant/internal/validation"
)

var tracer = otel.Tracer("github.com/darmiel/warrant/internal/service")

// Components are the parts an exchange is orchestrated over.
type Components struct {
	Issuers     *issuers.Registry
	Verifier    *issuers.Verifier
	Roles       *policy.Store
	Engine      *engine.Engine
	Credentials *credential.Issuer
	Auditor     core.Auditor
	Sessions    *store.InMemorySessionStore
	Revocations *store.Revocations
}

type Options struct {
	// ExchangeTimeout covers key lookup and evaluation of a single exchange.
	ExchangeTimeout time.Duration

	Clock   clock.Clock
	Metrics *metrics.Collector
}

// Broker exchanges verified workload identity tokens for short-lived credentials.
type Broker struct {
	Components
	opts Options
}

func NewBroker(c Components, opts Options) (*Broker, error) {
	if c.Verifier == nil || c.Roles == nil || c.Engine == nil || c.Credentials == nil {
		return nil, errors.New("broker is missing a component")
	}
	if c.Auditor == nil {
		return nil, errors.New("broker requires an auditor")
	}
	if opts.ExchangeTimeout <= 0 {
		opts.ExchangeTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if c.Issuers == nil {
		c.Issuers = issuers.NewRegistry()
	}
	if c.Sessions == nil {
		c.Sessions = store.NewInMemorySessionStore(opts.Clock)
	}
	if c.Revocations == nil {
		c.Revocations = store.NewRevocations(opts.Clock)
	}
	return &Broker{Components: c, opts: opts}, nil
}

// KnownIssuers returns the set of configured issuer URIs.
func (b *Broker) KnownIssuers() map[string]struct{} {
	out := make(map[string]struct{})
	for _, iss := range b.Issuers.List() {
		out[iss.IssuerURI] = struct{}{}
	}
	return out
}

// exchange tracks the progress of one request for its audit event.
type exchange struct {
	state      core.ExchangeState
	event      core.AuditEvent
	credential *core.IssuedCredential
	started    time.Time
}

func (x *exchange) enter(state core.ExchangeState) {
	x.state = state
}

// Exchange runs the full pipeline: verify the token, match the role's trust
// policy, resolve the effective permissions and issue a credential. Every
// call records exactly one audit event. If that event cannot be recorded no
// credential is returned.
func (b *Broker) Exchange(ctx context.Context, req ExchangeRequest) (resp *ExchangeResponse, err error) {
	ctx, span := tracer.Start(ctx, "broker.Exchange", trace.WithAttributes(
		attribute.String("role", req.RoleID),
	))
	defer span.End()

	correlationID := core.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = xid.New().String()
		ctx = core.WithCorrelationID(ctx, correlationID)
	}

	x := &exchange{
		state:   core.StateReceived,
		started: b.opts.Clock.Now(),
		event: core.AuditEvent{
			Action:           core.ActionExchange,
			CorrelationID:    correlationID,
			MatchedStatement: -1,
		},
	}
	defer func() {
		resp, err = b.finish(ctx, span, x, resp, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, b.opts.ExchangeTimeout)
	defer cancel()

	if err := validateExchange(req); err != nil {
		return nil, err
	}

	x.enter(core.StateVerifying)
	now := b.opts.Clock.Now()
	// the audience is always the one configured for the issuer
	claims, err := b.Verifier.Verify(ctx, req.Token, "", now)
	if err != nil {
		if ctx.Err() != nil && core.KindOf(err) != core.KindJWKSUnavailable {
			return nil, core.NewError(core.KindJWKSUnavailable, fmt.Errorf("exchange timed out during verification: %w", err))
		}
		return nil, err
	}
	x.event.Subject = claims.Subject
	x.event.Issuer = claims.Issuer
	log.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("sub", claims.Subject).Str("role", req.RoleID)
	})

	x.enter(core.StateTrustMatching)
	x.event.RoleID = req.RoleID
	role, err := b.Roles.GetRole(req.RoleID)
	if err != nil {
		return nil, core.NewError(core.KindRoleNotFound, err)
	}
	x.event.RoleVersion = role.Version

	decision := engine.MatchTrust(role.TrustPolicy, claims)
	x.event.MatchedStatement = decision.MatchedStatement
	if !decision.Allowed {
		return nil, core.NewError(core.KindTrustPolicyDenied, denialDetail(decision))
	}

	x.enter(core.StateResolving)
	perms := b.Engine.Effective(role, req.SessionPolicy, req.RequestContext)
	if ctx.Err() != nil {
		return nil, core.NewError(core.KindInternalFault, fmt.Errorf("exchange timed out during evaluation: %w", ctx.Err()))
	}

	x.enter(core.StateIssuing)
	cred, err := b.Credentials.Issue(credential.Request{
		Role:              role,
		Permissions:       perms,
		Identity:          claims,
		RequestedDuration: requestedDuration(req.RequestedDurationSeconds),
		Now:               now,
	})
	if err != nil {
		return nil, err
	}
	x.credential = cred

	return &ExchangeResponse{
		Credential: cred,
		ExpiresAt:  cred.ExpiresAt,
	}, nil
}

// finish records the audit event of an exchange and decides what the caller
// gets to see.
func (b *Broker) finish(
	ctx context.Context,
	span trace.Span,
	x *exchange,
	resp *ExchangeResponse,
	err error,
) (*ExchangeResponse, error) {
	logger := log.Ctx(ctx)
	event := x.event
	event.Timestamp = b.opts.Clock.Now()

	if err == nil {
		event.Outcome = core.OutcomeGranted
		event.ReasonCode = core.ReasonGranted
		event.State = core.StateIssued
		event.SessionID = x.credential.SessionID
		event.CredentialFingerprint = audit.Fingerprint(x.credential.Token)
		event.PermissionCount = len(x.credential.Permissions)
		event.PermissionDigest = x.credential.PermissionDigest
		event.ExpiresAt = x.credential.ExpiresAt
	} else {
		kind := core.KindOf(err)
		event.Outcome = core.OutcomeDenied
		event.ReasonCode = string(kind)
		event.Detail = err.Error()
		switch {
		case x.state == core.StateVerifying:
			event.State = core.StateVerificationFailed
		case x.state == core.StateTrustMatching && kind == core.KindTrustPolicyDenied:
			event.State = core.StateTrustDenied
		default:
			event.State = core.StateFailed
		}
	}

	// the event must be written even if the caller already gave up
	if auditErr := b.Auditor.Record(context.WithoutCancel(ctx), event); auditErr != nil {
		b.opts.Metrics.AuditFailed()
		logger.Error().Err(auditErr).
			Str("reason", event.ReasonCode).
			Msg("failed to record exchange, refusing to hand out credential")
		if x.credential != nil {
			// never returned, but make sure it cannot be replayed if it leaks
			b.Revocations.Revoke(x.credential.SessionID, x.credential.ExpiresAt)
		}
		resp = nil
		err = core.NewError(core.KindAuditSinkUnavailable, fmt.Errorf("recording exchange: %w", auditErr))
		event.Outcome = core.OutcomeDenied
		event.ReasonCode = string(core.KindAuditSinkUnavailable)
	}

	b.opts.Metrics.ObserveExchange(string(event.Outcome), event.ReasonCode, b.opts.Clock.Now().Sub(x.started))
	span.SetAttributes(
		attribute.String("outcome", string(event.Outcome)),
		attribute.String("reason", event.ReasonCode),
	)

	if err != nil {
		span.SetStatus(codes.Error, event.ReasonCode)
		logger.Warn().Err(err).
			Str("state", string(event.State)).
			Msg("exchange denied")
		return nil, err
	}

	if saveErr := b.Sessions.Save(ctx, store.Session{
		SessionID:     x.credential.SessionID,
		CorrelationID: event.CorrelationID,
		RoleID:        x.credential.RoleID,
		RoleVersion:   x.credential.RoleVersion,
		Subject:       x.credential.Subject,
		SourceIssuer:  x.credential.SourceIssuer,
		Permissions:   len(x.credential.Permissions),
		IssuedAt:      x.credential.IssuedAt,
		ExpiresAt:     x.credential.ExpiresAt,
	}); saveErr != nil {
		logger.Warn().Err(saveErr).Msg("failed to remember session")
	}

	logger.Info().
		Str("session", x.credential.SessionID).
		Int("permissions", event.PermissionCount).
		Time("expires_at", x.credential.ExpiresAt).
		Msg("credential issued")
	return resp, nil
}

// maxRequestedSeconds is the largest number of seconds a time.Duration holds.
const maxRequestedSeconds = int64(math.MaxInt64 / int64(time.Second))

// requestedDuration converts a requested lifetime. A request beyond what a
// Duration can hold expresses no preference and is bounded like one.
func requestedDuration(secs int64) time.Duration {
	if secs <= 0 || secs > maxRequestedSeconds {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func validateExchange(req ExchangeRequest) error {
	switch {
	case req.Token == "":
		return core.NewError(core.KindMalformedRequest, errors.New("token is empty"))
	case req.RoleID == "":
		return core.NewError(core.KindMalformedRequest, errors.New("role identifier is empty"))
	case req.RequestedDurationSeconds < 0:
		return core.NewError(core.KindMalformedRequest,
			fmt.Errorf("requested duration %ds is negative", req.RequestedDurationSeconds))
	}
	if req.SessionPolicy != nil {
		if err := validation.ValidatePermissionPolicy(*req.SessionPolicy); err != nil {
			return core.NewError(core.KindMalformedRequest, fmt.Errorf("session policy: %w", err))
		}
	}
	return nil
}

func denialDetail(decision core.TrustDecision) error {
	if decision.MatchedStatement >= 0 {
		st := decision.Statements[decision.MatchedStatement]
		return fmt.Errorf("denied by trust statement %d (%s)", st.Index, st.Sid)
	}
	return errors.New("no trust statement matched")
}
