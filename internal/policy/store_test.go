package policy

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/darmiel/warrant/internal/core"
)

func role(id, sub string) core.Role {
	return core.Role{
		ID:                 id,
		MaxSessionDuration: time.Hour,
		TrustPolicy: core.TrustPolicy{Statements: []core.TrustStatement{{
			Effect:    core.EffectAllow,
			Principal: core.FederatedPrincipal{Federated: "https://issuer.example.com"},
			Conditions: core.ConditionSet{
				{Key: "sub", Operator: core.OpEquals, Values: []string{sub}},
			},
		}}},
		PermissionPolicy: core.PermissionPolicy{Statements: []core.PermissionStatement{{
			Effect:    core.EffectAllow,
			Actions:   core.StringList{"storage:read"},
			Resources: core.StringList{"bucket/a"},
		}}},
	}
}

func TestStore_GetRoleNotFound(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.GetRole("deploy"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("GetRole() error = %v, want ErrRoleNotFound", err)
	}
}

func TestStore_ReplaceVersions(t *testing.T) {
	s := NewStore(nil)

	if _, err := s.Replace([]core.Role{role("deploy", "a"), role("read", "a")}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	first, _ := s.GetRole("deploy")
	if first.Version != 1 {
		t.Fatalf("version = %d, want 1", first.Version)
	}

	// unchanged role keeps its version and identity, changed role gets a new one
	snap, err := s.Replace([]core.Role{role("deploy", "a"), role("read", "b")})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if snap.Revision != 2 {
		t.Errorf("revision = %d, want 2", snap.Revision)
	}
	deploy, _ := s.GetRole("deploy")
	if deploy != first {
		t.Errorf("unchanged role was republished")
	}
	read, _ := s.GetRole("read")
	if read.Version != 2 {
		t.Errorf("read version = %d, want 2", read.Version)
	}

	// removing and re-adding a role never reuses a version
	if _, err := s.Replace([]core.Role{role("deploy", "a")}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Replace([]core.Role{role("deploy", "a"), role("read", "c")}); err != nil {
		t.Fatal(err)
	}
	read, _ = s.GetRole("read")
	if read.Version != 3 {
		t.Errorf("read version after re-add = %d, want 3", read.Version)
	}
}

func TestStore_ReplaceInvalidKeepsSnapshot(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.Replace([]core.Role{role("deploy", "a")}); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()

	bad := role("broken", "a")
	bad.MaxSessionDuration = 0
	if _, err := s.Replace([]core.Role{role("deploy", "b"), bad}); err == nil {
		t.Fatalf("Replace() accepted invalid role")
	}
	if s.Snapshot() != before {
		t.Errorf("invalid replace published a snapshot")
	}
}

func TestStore_PutCreatesNewVersion(t *testing.T) {
	s := NewStore(nil)

	v1, err := s.Put(role("deploy", "a"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	old := s.Snapshot()

	v2, err := s.Put(role("deploy", "b"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if v1.Version != 1 || v2.Version != 2 {
		t.Errorf("versions = %d, %d", v1.Version, v2.Version)
	}

	// a reader holding the old snapshot still sees the old version
	r, _ := old.Role("deploy")
	if r.Version != 1 || r.TrustPolicy.Statements[0].Conditions[0].Values[0] != "a" {
		t.Errorf("old snapshot changed: %+v", r)
	}

	same, err := s.Put(role("deploy", "b"))
	if err != nil {
		t.Fatal(err)
	}
	if same.Version != 2 {
		t.Errorf("unchanged put version = %d, want 2", same.Version)
	}
}

func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.Put(role("deploy", "a")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := s.GetRole("deploy"); err != nil {
					t.Errorf("GetRole() error = %v", err)
					return
				}
			}
		}()
		go func(i int) {
			defer wg.Done()
			sub := "a"
			if i%2 == 0 {
				sub = "b"
			}
			if _, err := s.Put(role("deploy", sub)); err != nil {
				t.Errorf("Put() error = %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestStore_PutSurvivesReplace(t *testing.T) {
	s := NewStore(nil)
	files := []core.Role{role("deploy", "a")}

	if _, err := s.Replace(files); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(role("reader", "a")); err != nil {
		t.Fatal(err)
	}
	overridden, err := s.Put(role("deploy", "b"))
	if err != nil {
		t.Fatal(err)
	}

	snap, err := s.Replace(files)
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if len(snap.Withdrawn) != 0 {
		t.Errorf("withdrawn = %v, want none", snap.Withdrawn)
	}
	if len(snap.Overridden) != 1 || snap.Overridden[0] != "deploy" {
		t.Errorf("overridden = %v, want [deploy]", snap.Overridden)
	}
	if _, err := s.GetRole("reader"); err != nil {
		t.Errorf("published role lost on reload: %v", err)
	}
	deploy, _ := s.GetRole("deploy")
	if deploy != overridden || deploy.Version != 2 {
		t.Errorf("deploy = v%d %v, want the published v2", deploy.Version, deploy.TrustPolicy.Statements[0].Conditions[0].Values)
	}
	if !s.Published("reader") || s.Published("missing") {
		t.Errorf("Published() does not track admin publishes")
	}
}

func TestStore_ReplaceReportsWithdrawn(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.Replace([]core.Role{role("deploy", "a"), role("read", "a")}); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Replace([]core.Role{role("deploy", "a")})
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Withdrawn) != 1 || snap.Withdrawn[0] != "read" {
		t.Errorf("withdrawn = %v, want [read]", snap.Withdrawn)
	}
}
