package client

import (
	"context"

	"github.com/darmiel/warrant/internal/api"
	"github.com/darmiel/warrant/internal/buildinfo"
)

func (c *Client) Info(ctx context.Context) (*buildinfo.Info, string, error) {
	var info buildinfo.Info
	correlation, err := c.get(ctx, c.url().
		setPath(api.AboutRoute).
		build(), &info)
	return &info, correlation, err
}

// Ready returns the readiness of the server. A server which has not loaded
// any roles yet answers with an APIError carrying status 503.
func (c *Client) Ready(ctx context.Context) (*api.ReadinessResponse, string, error) {
	var res api.ReadinessResponse
	correlation, err := c.get(ctx, c.url().
		setPath(api.ReadyRoute).
		build(), &res)
	return &res, correlation, err
}
