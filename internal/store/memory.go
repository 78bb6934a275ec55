package store

import (
	"context"
	"sort"
	"time"

	"github.com/juju/clock"
	"github.com/kpango/gache"
)

// Session is the metadata of an issued credential. The credential itself is never stored.
type Session struct {
	SessionID     string    `json:"sessionId"`
	CorrelationID string    `json:"correlationId"`
	RoleID        string    `json:"roleIdentifier"`
	RoleVersion   int       `json:"roleVersion"`
	Subject       string    `json:"subject"`
	SourceIssuer  string    `json:"sourceIssuer"`
	Permissions   int       `json:"permissionCount"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// InMemorySessionStore keeps the sessions of this broker instance until they expire.
// It is informational only; credentials stay valid without it.
type InMemorySessionStore struct {
	clock clock.Clock
	cache gache.Gache
}

func NewInMemorySessionStore(clk clock.Clock) *InMemorySessionStore {
	if clk == nil {
		clk = clock.WallClock
	}
	return &InMemorySessionStore{
		clock: clk,
		cache: gache.New(),
	}
}

// Start removes expired sessions every interval until ctx is done.
func (s *InMemorySessionStore) Start(ctx context.Context, interval time.Duration) {
	s.cache.StartExpired(ctx, interval)
}

// Save remembers the session until it expires. Already expired sessions are dropped.
func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	ttl := session.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	s.cache.SetWithExpire(session.SessionID, session, ttl)
	return nil
}

func (s *InMemorySessionStore) Get(_ context.Context, sessionID string) (Session, bool) {
	v, ok := s.cache.Get(sessionID)
	if !ok {
		return Session{}, false
	}
	session, ok := v.(Session)
	if !ok || !session.ExpiresAt.After(s.clock.Now()) {
		return Session{}, false
	}
	return session, true
}

// ListActive returns sessions that have not expired yet, newest first.
func (s *InMemorySessionStore) ListActive(ctx context.Context) ([]Session, error) {
	active := make([]Session, 0)
	now := s.clock.Now()

	s.cache.Foreach(ctx, func(_ string, v interface{}, _ int64) bool {
		if session, ok := v.(Session); ok && session.ExpiresAt.After(now) {
			active = append(active, session)
		}
		return true
	})
	sort.Slice(active, func(i, j int) bool {
		return active[i].IssuedAt.After(active[j].IssuedAt)
	})
	return active, nil
}

// Len is the number of sessions held, including expired ones not yet removed.
func (s *InMemorySessionStore) Len() int {
	return s.cache.Len()
}
