package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/xid"

	"github.com/darmiel/warrant/internal/api/middleware"
	"github.com/darmiel/warrant/internal/api/presenter"
	"github.com/darmiel/warrant/internal/core"
)

var ErrInvalidSession = errors.New("invalid session token")

// APIError is a failed request. Kind is only set for classified errors.
type APIError struct {
	Status        int
	Kind          core.ErrorKind
	CorrelationID string
	Message       string
}

func (e APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (correlation: %s)", e.Kind, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("api error: '%s' (correlation: %s)", e.Message, e.CorrelationID)
}

// requestBody is an optional payload together with its content type.
type requestBody struct {
	data        []byte
	contentType string
}

func jsonBody(v any) (requestBody, error) {
	if v == nil {
		return requestBody{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return requestBody{}, fmt.Errorf("marshaling payload: %w", err)
	}
	return requestBody{data: data, contentType: "application/json"}, nil
}

func (c *Client) get(ctx context.Context, url string, result any) (string, error) {
	return c.call(ctx, http.MethodGet, url, requestBody{}, result)
}

func (c *Client) post(ctx context.Context, url string, payload, result any) (string, error) {
	body, err := jsonBody(payload)
	if err != nil {
		return "", err
	}
	return c.call(ctx, http.MethodPost, url, body, result)
}

func (c *Client) call(ctx context.Context, method, url string, body requestBody, result any) (string, error) {
	var r io.Reader
	if body.data != nil {
		r = bytes.NewReader(body.data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if body.contentType != "" {
		req.Header.Set("Content-Type", body.contentType)
	}
	return c.do(req, result)
}

func parseErrorResponse(resp *http.Response, correlation string) error {
	var errResp presenter.ErrorResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d and unreadable body: %w", resp.StatusCode, err)
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
		if errResp.Message == "invalid session token" {
			return ErrInvalidSession
		}
		return APIError{
			Status:        resp.StatusCode,
			Kind:          errResp.ErrorKind,
			CorrelationID: errResp.CorrelationID,
			Message:       errResp.Message,
		}
	}
	return APIError{
		Status:        resp.StatusCode,
		CorrelationID: correlation,
		Message:       strings.TrimSpace(string(body)),
	}
}

// do sends the request with a fresh correlation id and decodes a successful
// response into result. The returned correlation id is the one the server
// answered with, or empty if the server could not be reached.
func (c *Client) do(req *http.Request, result any) (string, error) {
	userAgent(req)
	if c.authToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	sent := xid.New().String()
	req.Header.Set(middleware.CorrelationIDHeader, sent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	correlation := resp.Header.Get(middleware.CorrelationIDHeader)
	if correlation == "" {
		correlation = sent
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return correlation, parseErrorResponse(resp, correlation)
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return correlation, fmt.Errorf("decoding response: %w", err)
		}
	}
	return correlation, nil
}
