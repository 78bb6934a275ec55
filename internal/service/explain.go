package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/engine"
)

// Explain performs a dry run of an exchange and returns how each trust
// statement was evaluated. Nothing is issued or audited. A failing step is
// reported in the trace instead of as an error.
func (b *Broker) Explain(ctx context.Context, req ExplainRequest) (*core.EvaluationTrace, error) {
	logger := log.Ctx(ctx)

	if err := validateExchange(ExchangeRequest{
		Token:         req.Token,
		RoleID:        req.RoleID,
		SessionPolicy: req.SessionPolicy,
	}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.ExchangeTimeout)
	defer cancel()

	trace := &core.EvaluationTrace{
		CorrelationID: core.CorrelationID(ctx),
		RoleID:        req.RoleID,
	}

	claims, err := b.Verifier.Verify(ctx, req.Token, "", b.opts.Clock.Now())
	if err != nil {
		logger.Debug().Err(err).Msg("explain: token verification failed")
		trace.ErrorKind = core.KindOf(err)
		return trace, nil
	}
	trace.Claims = claims
	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("sub", claims.Subject)
	})

	role, err := b.Roles.GetRole(req.RoleID)
	if err != nil {
		trace.ErrorKind = core.KindRoleNotFound
		return trace, nil
	}
	trace.RoleVersion = role.Version

	decision := engine.MatchTrust(role.TrustPolicy, claims)
	trace.Trust = &decision
	if !decision.Allowed {
		trace.ErrorKind = core.KindTrustPolicyDenied
		return trace, nil
	}

	trace.Permissions = b.Engine.Effective(role, req.SessionPolicy, req.RequestContext)
	trace.FinalDecision = true
	return trace, nil
}
