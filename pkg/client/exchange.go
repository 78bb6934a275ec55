package client

import (
	"context"

	"github.com/darmiel/warrant/internal/api"
	"github.com/darmiel/warrant/internal/service"
)

// Exchange trades a workload identity token for a credential. It needs no admin token.
func (c *Client) Exchange(
	ctx context.Context,
	req service.ExchangeRequest,
) (*service.ExchangeResponse, string, error) {
	var resp service.ExchangeResponse
	correlation, err := c.post(ctx, c.url().
		setPath(api.ExchangeRoute).
		build(), req, &resp)
	if err != nil {
		return nil, correlation, err
	}
	return &resp, correlation, nil
}

// Authorize checks whether a credential grants an action on a resource.
func (c *Client) Authorize(
	ctx context.Context,
	req service.AuthorizeRequest,
) (*service.AuthorizeResponse, string, error) {
	var resp service.AuthorizeResponse
	correlation, err := c.post(ctx, c.url().
		setPath(api.AuthorizeRoute).
		build(), req, &resp)
	if err != nil {
		return nil, correlation, err
	}
	return &resp, correlation, nil
}
