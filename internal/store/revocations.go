package store

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/kpango/gache"
)

// Revocations is the deny-list of revoked session ids. An entry lives until the
// credential would have expired anyway.
type Revocations struct {
	clock clock.Clock
	cache gache.Gache
}

func NewRevocations(clk clock.Clock) *Revocations {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Revocations{
		clock: clk,
		cache: gache.New(),
	}
}

// Start removes expired entries every interval until ctx is done.
func (r *Revocations) Start(ctx context.Context, interval time.Duration) {
	r.cache.StartExpired(ctx, interval)
}

// Revoke denies the session until the given time. It reports false if the
// credential is already expired.
func (r *Revocations) Revoke(sessionID string, until time.Time) bool {
	ttl := until.Sub(r.clock.Now())
	if ttl <= 0 {
		return false
	}
	r.cache.SetWithExpire(sessionID, until, ttl)
	return true
}

func (r *Revocations) IsRevoked(sessionID string) bool {
	_, ok := r.cache.Get(sessionID)
	return ok
}

func (r *Revocations) Len() int {
	return r.cache.Len()
}
