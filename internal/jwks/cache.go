package jwks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/logging"
)

var (
	ErrUnavailable   = errors.New("jwks unavailable")
	ErrKeyNotFound   = errors.New("signing key not found")
	ErrIssuerUnknown = errors.New("issuer is not trusted")

	errBackoff = errors.New("refresh is backing off")
)

var _ core.KeyProvider = (*Cache)(nil)

type Options struct {
	// TTL after which a key set is considered stale. Stale keys are still served.
	TTL time.Duration

	// FetchTimeout bounds a single shared fetch, independent of any caller.
	FetchTimeout time.Duration

	// MissInterval is the minimum gap between refreshes caused by unknown key ids
	// or stale sets, so random 'kid's cannot be used to hammer an issuer.
	MissInterval time.Duration

	Clock clock.Clock

	// OnRefresh is called after every fetch attempt.
	OnRefresh func(issuer string, err error)
}

func (o *Options) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = time.Hour
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 5 * time.Second
	}
	if o.MissInterval <= 0 {
		o.MissInterval = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
}

type entry struct {
	issuer  string
	source  Source
	set     atomic.Pointer[KeySet]
	limiter *rate.Limiter
}

// Cache holds the signing keys of all trusted issuers.
// Readers never block on each other; a key set is always replaced as a whole.
type Cache struct {
	opts    Options
	entries map[string]*entry
	group   singleflight.Group
	wg      sync.WaitGroup
}

// New creates a cache for the given issuer -> source mapping. The set of
// issuers is fixed for the lifetime of the cache.
func New(sources map[string]Source, opts Options) *Cache {
	opts.setDefaults()
	c := &Cache{
		opts:    opts,
		entries: make(map[string]*entry, len(sources)),
	}
	for issuer, src := range sources {
		c.entries[issuer] = &entry{
			issuer:  issuer,
			source:  src,
			limiter: rate.NewLimiter(rate.Every(opts.MissInterval), 1),
		}
	}
	return c
}

// Issuers returns the sorted list of issuers the cache knows about.
func (c *Cache) Issuers() []string {
	out := make([]string, 0, len(c.entries))
	for iss := range c.entries {
		out = append(out, iss)
	}
	sort.Strings(out)
	return out
}

// TTL returns the configured key set lifetime.
func (c *Cache) TTL() time.Duration {
	return c.opts.TTL
}

// Snapshot returns the current key set of an issuer, or nil.
func (c *Cache) Snapshot(issuer string) *KeySet {
	e, ok := c.entries[issuer]
	if !ok {
		return nil
	}
	return e.set.Load()
}

// GetKey returns the key with the given id. On a miss the issuer's set is
// fetched (shared with concurrent callers) and the lookup retried once.
func (c *Cache) GetKey(ctx context.Context, issuer, keyID string) (*core.PublicKey, error) {
	e, ok := c.entries[issuer]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrIssuerUnknown, issuer)
	}
	now := c.opts.Clock.Now()

	set := e.set.Load()
	if set != nil {
		if key, ok := set.Keys[keyID]; ok {
			if set.Stale(now) {
				c.refreshAsync(ctx, e)
			}
			return &key, nil
		}
	}

	if err := c.refresh(ctx, e, true); err != nil {
		if !errors.Is(err, errBackoff) {
			return nil, err
		}
		if set == nil {
			return nil, fmt.Errorf("%w: no keys for '%s': %w", ErrUnavailable, issuer, err)
		}
		return nil, fmt.Errorf("%w: kid '%s': %w", ErrKeyNotFound, keyID, err)
	}

	if set = e.set.Load(); set != nil {
		if key, ok := set.Keys[keyID]; ok {
			return &key, nil
		}
	}
	return nil, fmt.Errorf("%w: kid '%s'", ErrKeyNotFound, keyID)
}

// Refresh fetches the issuer's key set now. On failure the previous set is kept.
func (c *Cache) Refresh(ctx context.Context, issuer string) error {
	e, ok := c.entries[issuer]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrIssuerUnknown, issuer)
	}
	return c.refresh(ctx, e, false)
}

// RefreshTask returns a task refreshing the issuer's keys ahead of their expiry.
func (c *Cache) RefreshTask(issuer string) func(ctx context.Context, logger logging.InternalLogger) error {
	return func(ctx context.Context, logger logging.InternalLogger) error {
		logger.Info("refreshing signing keys of '%s'", issuer)
		if err := c.Refresh(ctx, issuer); err != nil {
			if set := c.Snapshot(issuer); set != nil {
				logger.Warn("refresh failed, keeping %d keys fetched at %s", len(set.Keys), set.FetchedAt.Format(time.RFC3339))
			}
			return err
		}
		logger.Info("loaded %d signing keys", len(c.Snapshot(issuer).Keys))
		return nil
	}
}

// Wait blocks until background refreshes have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// refresh joins or starts the shared fetch for the entry and waits for it,
// at most until ctx is done. A limited fetch is only started if the entry's
// limiter allows it; callers joining an in-flight fetch are never limited.
func (c *Cache) refresh(ctx context.Context, e *entry, limited bool) error {
	ch := c.group.DoChan(e.issuer, func() (any, error) {
		if limited && !e.limiter.AllowN(c.opts.Clock.Now(), 1) {
			return nil, errBackoff
		}

		// detached from the first caller, so its cancellation does not fail everyone else
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()

		keys, err := e.source.Fetch(fetchCtx)
		if c.opts.OnRefresh != nil {
			c.opts.OnRefresh(e.issuer, err)
		}
		if err != nil {
			return nil, err
		}
		e.set.Store(&KeySet{
			Keys:      keys,
			FetchedAt: c.opts.Clock.Now(),
			TTL:       c.opts.TTL,
		})
		return nil, nil
	})

	select {
	case res := <-ch:
		if errors.Is(res.Err, errBackoff) {
			return res.Err
		}
		if res.Err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, res.Err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}

func (c *Cache) refreshAsync(ctx context.Context, e *entry) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.refresh(context.WithoutCancel(ctx), e, true)
		if err != nil && !errors.Is(err, errBackoff) {
			log.Ctx(ctx).Warn().Err(err).Str("issuer", e.issuer).Msg("background key refresh failed, serving stale keys")
		}
	}()
}
