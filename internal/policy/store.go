package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/validation"
)

var ErrRoleNotFound = errors.New("role not found")

// Snapshot is an immutable view of all published roles.
type Snapshot struct {
	Revision uint64
	LoadedAt time.Time

	// Withdrawn lists the roles the previous snapshot had and this one lacks.
	Withdrawn []string
	// Overridden lists role documents which were ignored because a role
	// with the same id was published through Put.
	Overridden []string

	roles map[string]*core.Role
}

func (s *Snapshot) Role(id string) (*core.Role, bool) {
	r, ok := s.roles[id]
	return r, ok
}

// Roles returns all roles sorted by id.
func (s *Snapshot) Roles() []*core.Role {
	out := make([]*core.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Store publishes role snapshots. Readers load the current snapshot without locking
// and keep using it for the whole exchange; writers replace it atomically.
type Store struct {
	current atomic.Pointer[Snapshot]
	clock   clock.Clock

	mu sync.Mutex
	// highest version ever published per role id, survives removal of a role
	versions map[string]int
	// roles published through Put, laid over every Replace
	published map[string]core.Role
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	s := &Store{
		clock:     clk,
		versions:  make(map[string]int),
		published: make(map[string]core.Role),
	}
	s.current.Store(&Snapshot{
		LoadedAt: clk.Now(),
		roles:    map[string]*core.Role{},
	})
	return s
}

func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

func (s *Store) GetRole(id string) (*core.Role, error) {
	role, ok := s.current.Load().Role(id)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrRoleNotFound, id)
	}
	return role, nil
}

// Replace publishes a complete set of role documents. Roles published
// through Put take precedence over documents with the same id and survive
// every Replace. Roles whose definition did not change keep their version,
// changed roles get a new one.
func (s *Store) Replace(roles []core.Role) (*Snapshot, error) {
	validRoles, err := validation.ValidateRoles(roles)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]core.Role, 0, len(validRoles)+len(s.published))
	var overridden []string
	for _, role := range validRoles {
		if _, ok := s.published[role.ID]; ok {
			overridden = append(overridden, role.ID)
			continue
		}
		merged = append(merged, role)
	}
	for _, role := range s.published {
		merged = append(merged, role)
	}

	prev := s.current.Load()
	next := make(map[string]*core.Role, len(merged))
	for _, role := range merged {
		role := role
		if old, ok := prev.roles[role.ID]; ok && sameDefinition(old, &role) {
			next[role.ID] = old
			continue
		}
		role.Version = s.nextVersion(role.ID)
		next[role.ID] = &role
	}

	sort.Strings(overridden)
	return s.publish(prev, next, overridden), nil
}

// Put publishes a single role as a new version. Publishing an unchanged
// definition returns the current version. The role is kept across later
// calls to Replace.
func (s *Store) Put(role core.Role) (*core.Role, error) {
	if err := validation.ValidateRole(&role); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	role.Version = 0
	s.published[role.ID] = role

	prev := s.current.Load()
	if old, ok := prev.roles[role.ID]; ok && sameDefinition(old, &role) {
		return old, nil
	}

	next := make(map[string]*core.Role, len(prev.roles)+1)
	for id, r := range prev.roles {
		next[id] = r
	}
	role.Version = s.nextVersion(role.ID)
	next[role.ID] = &role

	s.publish(prev, next, nil)
	return &role, nil
}

// Published reports whether the role was published through Put.
func (s *Store) Published(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.published[id]
	return ok
}

func (s *Store) publish(prev *Snapshot, roles map[string]*core.Role, overridden []string) *Snapshot {
	var withdrawn []string
	for id := range prev.roles {
		if _, ok := roles[id]; !ok {
			withdrawn = append(withdrawn, id)
		}
	}
	sort.Strings(withdrawn)

	snap := &Snapshot{
		Revision:   prev.Revision + 1,
		LoadedAt:   s.clock.Now(),
		Withdrawn:  withdrawn,
		Overridden: overridden,
		roles:      roles,
	}
	s.current.Store(snap)
	return snap
}

func (s *Store) nextVersion(id string) int {
	s.versions[id]++
	return s.versions[id]
}

func sameDefinition(a, b *core.Role) bool {
	ca, cb := *a, *b
	ca.Version, cb.Version = 0, 0
	da, errA := json.Marshal(ca)
	db, errB := json.Marshal(cb)
	return errA == nil && errB == nil && string(da) == string(db)
}
