package jwks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/darmiel/warrant/internal/buildinfo"
	"github.com/darmiel/warrant/internal/core"
)

const maxDocumentSize = 1 << 20

var tracer = otel.Tracer("github.com/darmiel/warrant/internal/jwks")

// Source fetches the current key set of one issuer.
type Source interface {
	Fetch(ctx context.Context) (map[string]core.PublicKey, error)
}

// transientError marks failures worth one more attempt (timeouts, connection errors, 5xx).
type transientError struct {
	err error
}

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// HTTPSource fetches a JWK set over HTTP. If Endpoint is empty it is discovered
// from the issuer's OpenID configuration on first use.
type HTTPSource struct {
	Issuer   string
	Endpoint string

	Client     *http.Client
	Clock      clock.Clock
	RetryDelay time.Duration

	mu         sync.Mutex
	discovered string
}

func NewHTTPSource(issuer, endpoint string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{
		Issuer:     issuer,
		Endpoint:   endpoint,
		Client:     client,
		Clock:      clock.WallClock,
		RetryDelay: 200 * time.Millisecond,
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) (map[string]core.PublicKey, error) {
	ctx, span := tracer.Start(ctx, "jwks.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("issuer", s.Issuer))

	var keys map[string]core.PublicKey
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			keys, err = s.fetchOnce(ctx)
			return err
		},
		IsFatalError: func(err error) bool {
			var te transientError
			return !errors.As(err, &te)
		},
		NotifyFunc: func(lastError error, attempt int) {
			log.Ctx(ctx).Warn().Err(lastError).
				Str("issuer", s.Issuer).
				Int("attempt", attempt).
				Msg("jwks fetch failed, retrying")
		},
		Attempts: 2,
		Delay:    s.RetryDelay,
		Clock:    s.Clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
			err = retry.LastError(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("keys", len(keys)))
	return keys, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context) (map[string]core.PublicKey, error) {
	endpoint, err := s.endpoint(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode >= 500 {
		return nil, transientError{fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, classifyTransport(err)
	}
	return ParseKeySet(data)
}

// endpoint returns the configured or discovered JWKS URI.
func (s *HTTPSource) endpoint(ctx context.Context) (string, error) {
	if s.Endpoint != "" {
		return s.Endpoint, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discovered != "" {
		return s.discovered, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, s.Client), s.Issuer)
	if err != nil {
		return "", classifyTransport(fmt.Errorf("discovering jwks endpoint: %w", err))
	}
	var meta struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("reading discovery document: %w", err)
	}
	if meta.JWKSURI == "" {
		return "", fmt.Errorf("discovery document of '%s' has no jwks_uri", s.Issuer)
	}
	s.discovered = meta.JWKSURI
	return s.discovered, nil
}

func classifyTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return transientError{err}
	}
	return err
}

// FileSource reads a JWK set from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) (map[string]core.PublicKey, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading jwks file: %w", err)
	}
	return ParseKeySet(data)
}
