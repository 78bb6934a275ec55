package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/darmiel/warrant/internal/buildinfo"
)

// Client talks to a warrant server.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

type Option func(*Client)

// WithAuthToken sets the admin token sent with every request.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(server string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(server, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type urlBuilder struct {
	base  string
	path  string
	query url.Values
}

func (c *Client) url() *urlBuilder {
	return &urlBuilder{base: c.baseURL, query: url.Values{}}
}

func (b *urlBuilder) setPath(path string) *urlBuilder {
	b.path = path
	return b
}

// setPathParam fills a '{name}' placeholder of a route.
func (b *urlBuilder) setPathParam(name, value string) *urlBuilder {
	b.path = strings.ReplaceAll(b.path, "{"+name+"}", url.PathEscape(value))
	return b
}

func (b *urlBuilder) addQueryParam(key string, value any) *urlBuilder {
	b.query.Add(key, fmt.Sprint(value))
	return b
}

func (b *urlBuilder) build() string {
	u := b.base + b.path
	if len(b.query) > 0 {
		u += "?" + b.query.Encode()
	}
	return u
}

func userAgent(req *http.Request) {
	req.Header.Set("User-Agent", buildinfo.UserAgent())
}
