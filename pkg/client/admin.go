package client

import (
	"context"
	"net/http"

	"github.com/darmiel/warrant/internal/api"
	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/service"
	"github.com/darmiel/warrant/internal/store"
	"github.com/darmiel/warrant/internal/validation"
)

type ListAuditsOpts struct {
	Limit uint

	CorrelationID string
	SessionID     string
	Subject       string

	// Filter is an expression evaluated by the server against every event.
	Filter string
}

// ListAudits retrieves the latest audit events from the server.
func (c *Client) ListAudits(ctx context.Context, opts ListAuditsOpts) ([]core.AuditEvent, string, error) {
	ub := c.url().setPath(api.ListAuditsRoute)
	if opts.Limit > 0 {
		ub = ub.addQueryParam("limit", opts.Limit)
	}
	if opts.CorrelationID != "" {
		ub = ub.addQueryParam("correlation_id", opts.CorrelationID)
	}
	if opts.SessionID != "" {
		ub = ub.addQueryParam("session_id", opts.SessionID)
	}
	if opts.Subject != "" {
		ub = ub.addQueryParam("subject", opts.Subject)
	}
	if opts.Filter != "" {
		ub = ub.addQueryParam("filter", opts.Filter)
	}
	var resp []core.AuditEvent
	correlation, err := c.get(ctx, ub.build(), &resp)
	return resp, correlation, err
}

// ListSessions retrieves the credentials issued by the server which did not expire yet.
func (c *Client) ListSessions(ctx context.Context) ([]store.Session, string, error) {
	var resp []store.Session
	correlation, err := c.get(ctx, c.url().
		setPath(api.ListSessionsRoute).
		build(), &resp)
	return resp, correlation, err
}

func (c *Client) Explain(ctx context.Context, req service.ExplainRequest) (*core.EvaluationTrace, string, error) {
	var trace core.EvaluationTrace
	correlation, err := c.post(ctx, c.url().
		setPath(api.ExplainRoute).
		build(), req, &trace)
	return &trace, correlation, err
}

func (c *Client) Revoke(ctx context.Context, sessionID string) (*service.RevokeResponse, string, error) {
	var resp service.RevokeResponse
	correlation, err := c.post(ctx, c.url().
		setPath(api.RevokeRoute).
		build(), service.RevokeRequest{SessionID: sessionID}, &resp)
	return &resp, correlation, err
}

func (c *Client) ListRoles(ctx context.Context) (*api.RoleList, string, error) {
	var resp api.RoleList
	correlation, err := c.get(ctx, c.url().
		setPath(api.ListRolesRoute).
		build(), &resp)
	return &resp, correlation, err
}

func (c *Client) GetRole(ctx context.Context, id string) (*core.Role, string, error) {
	var role core.Role
	correlation, err := c.get(ctx, c.url().
		setPath(api.RoleRoute).
		setPathParam("id", id).
		build(), &role)
	return &role, correlation, err
}

// PublishRole uploads a single role document (YAML or JSON) as a new version.
func (c *Client) PublishRole(ctx context.Context, id string, document []byte) (*core.Role, string, error) {
	var role core.Role
	correlation, err := c.call(ctx, http.MethodPut, c.url().
		setPath(api.RoleRoute).
		setPathParam("id", id).
		build(), requestBody{data: document, contentType: "application/yaml"}, &role)
	if err != nil {
		return nil, correlation, err
	}
	return &role, correlation, nil
}

// LintRoles returns configuration smells of the roles published on the server.
func (c *Client) LintRoles(ctx context.Context) ([]validation.Finding, string, error) {
	var resp []validation.Finding
	correlation, err := c.get(ctx, c.url().
		setPath(api.LintRolesRoute).
		build(), &resp)
	return resp, correlation, err
}
