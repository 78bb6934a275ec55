package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/store"
)

// Authorize checks that a credential issued by this broker grants an action
// on a resource. The decision is audited and fails closed like an exchange.
func (b *Broker) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error) {
	ctx, span := tracer.Start(ctx, "broker.Authorize")
	defer span.End()

	if req.Credential == "" || req.Action == "" || req.Resource == "" {
		return nil, core.NewError(core.KindMalformedRequest, errors.New("credential, action and resource are required"))
	}

	event := core.AuditEvent{
		Timestamp:        b.opts.Clock.Now(),
		Action:           core.ActionAuthorize,
		CorrelationID:    core.CorrelationID(ctx),
		MatchedStatement: -1,
		Detail:           fmt.Sprintf("%s on %s", req.Action, req.Resource),
	}

	claims, authErr := b.Credentials.Authorize(req.Credential, req.Action, req.Resource, event.Timestamp)
	if claims != nil {
		event.SessionID = claims.ID
		event.RoleID = claims.Role
		event.RoleVersion = claims.RoleVersion
		event.Subject = claims.Subject
		event.Issuer = claims.SourceIssuer
		event.PermissionCount = len(claims.Permissions)
		event.PermissionDigest = claims.PermissionDigest
	}
	if authErr != nil {
		event.Outcome = core.OutcomeDenied
		event.ReasonCode = string(core.KindOf(authErr))
	} else {
		event.Outcome = core.OutcomeGranted
		event.ReasonCode = core.ReasonGranted
	}

	if err := b.record(ctx, event); err != nil {
		return nil, err
	}
	if authErr != nil {
		return nil, authErr
	}
	return &AuthorizeResponse{
		Allowed:   true,
		SessionID: claims.ID,
		RoleID:    claims.Role,
	}, nil
}

// Revoke puts a session on the deny-list until the latest moment its
// credential could expire.
func (b *Broker) Revoke(ctx context.Context, req RevokeRequest) (*RevokeResponse, error) {
	if req.SessionID == "" {
		return nil, core.NewError(core.KindMalformedRequest, errors.New("session id is empty"))
	}

	now := b.opts.Clock.Now()
	until := now.Add(b.Credentials.MaxSessionDuration())
	event := core.AuditEvent{
		Timestamp:        now,
		Action:           core.ActionRevoke,
		Outcome:          core.OutcomeGranted,
		ReasonCode:       core.ReasonGranted,
		CorrelationID:    core.CorrelationID(ctx),
		SessionID:        req.SessionID,
		MatchedStatement: -1,
	}
	if session, ok := b.Sessions.Get(ctx, req.SessionID); ok {
		until = session.ExpiresAt
		event.RoleID = session.RoleID
		event.RoleVersion = session.RoleVersion
		event.Subject = session.Subject
		event.Issuer = session.SourceIssuer
	}
	event.ExpiresAt = until

	b.Revocations.Revoke(req.SessionID, until)
	b.opts.Metrics.Revoked()

	if err := b.record(ctx, event); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().
		Str("session", req.SessionID).
		Time("until", until).
		Msg("session revoked")
	return &RevokeResponse{SessionID: req.SessionID, Until: until}, nil
}

// PublishRole publishes a new version of a role. Publishing an unchanged
// definition keeps the current version.
func (b *Broker) PublishRole(ctx context.Context, role core.Role) (*core.Role, error) {
	published, err := b.Roles.Put(role)
	if err != nil {
		return nil, core.NewError(core.KindMalformedRequest, err)
	}
	b.opts.Metrics.PolicyPublished(b.Roles.Snapshot().Revision)

	if err := b.record(ctx, core.AuditEvent{
		Timestamp:        b.opts.Clock.Now(),
		Action:           core.ActionPublish,
		Outcome:          core.OutcomeGranted,
		ReasonCode:       core.ReasonGranted,
		CorrelationID:    core.CorrelationID(ctx),
		RoleID:           published.ID,
		RoleVersion:      published.Version,
		MatchedStatement: -1,
	}); err != nil {
		return nil, err
	}
	return published, nil
}

// ActiveSessions lists the credentials issued by this instance which did not expire yet.
func (b *Broker) ActiveSessions(ctx context.Context) ([]store.Session, error) {
	return b.Sessions.ListActive(ctx)
}

func (b *Broker) record(ctx context.Context, event core.AuditEvent) error {
	if err := b.Auditor.Record(context.WithoutCancel(ctx), event); err != nil {
		b.opts.Metrics.AuditFailed()
		log.Ctx(ctx).Error().Err(err).Str("action", event.Action).Msg("failed to record audit event")
		return core.NewError(core.KindAuditSinkUnavailable, fmt.Errorf("recording %s: %w", event.Action, err))
	}
	return nil
}
