package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/logging"
	"github.com/darmiel/warrant/internal/policy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var nopLogger = logging.Discard

const deployYAML = `
id: deploy
description: deploys the api
max_session_duration: 30m
trust_policy:
  version: "2012-10-17"
  statement:
    - effect: allow
      principal:
        federated: https://token.actions.example.com
      condition:
        equals:
          aud: warrant
          sub: repo:acme/api:ref:refs/heads/main
permission_policy:
  statement:
    - effect: allow
      action: storage:write
      resource: bucket/releases/*
`

const rolesJSON = `{
  "roles": [
    {
      "id": "read",
      "max_session_duration": "15m",
      "trust_policy": {"statement": [{
        "effect": "allow",
        "principal": {"federated": "https://token.actions.example.com"},
        "condition": {"equals-any-of": {"sub": ["a", "b"]}}
      }]},
      "permission_policy": {"statement": [{
        "effect": "allow", "action": ["storage:read"], "resource": ["bucket/a"]
      }]}
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestParseRoles_Single(t *testing.T) {
	roles, err := ParseRoles([]byte(deployYAML))
	if err != nil {
		t.Fatalf("ParseRoles() error = %v", err)
	}
	if len(roles) != 1 {
		t.Fatalf("ParseRoles() = %d roles, want 1", len(roles))
	}
	r := roles[0]
	if r.ID != "deploy" || r.MaxSessionDuration != 30*time.Minute {
		t.Errorf("role = %s, duration %v", r.ID, r.MaxSessionDuration)
	}
	want := core.ConditionSet{
		{Key: "aud", Operator: core.OpEquals, Values: []string{"warrant"}},
		{Key: "sub", Operator: core.OpEquals, Values: []string{"repo:acme/api:ref:refs/heads/main"}},
	}
	if diff := cmp.Diff(want, r.TrustPolicy.Statements[0].Conditions); diff != "" {
		t.Errorf("conditions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(core.StringList{"bucket/releases/*"}, r.PermissionPolicy.Statements[0].Resources); diff != "" {
		t.Errorf("resources mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRoles_JSONList(t *testing.T) {
	roles, err := ParseRoles([]byte(rolesJSON))
	if err != nil {
		t.Fatalf("ParseRoles() error = %v", err)
	}
	if len(roles) != 1 || roles[0].ID != "read" {
		t.Fatalf("ParseRoles() = %+v", roles)
	}
	cond := roles[0].TrustPolicy.Statements[0].Conditions[0]
	if cond.Operator != core.OpEqualsAnyOf || len(cond.Values) != 2 {
		t.Errorf("condition = %+v", cond)
	}
}

func TestDirFetcher_AndReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "10-deploy.yaml", deployYAML)
	writeFile(t, dir, "20-read.json", rolesJSON)
	writeFile(t, dir, "README.md", "not a role")

	store := policy.NewStore(nil)
	reload := ReloadTask(DirFetcher{Path: dir}, store, nil)
	if err := reload(context.Background(), nopLogger); err != nil {
		t.Fatalf("reload error = %v", err)
	}

	roles := store.Snapshot().Roles()
	if len(roles) != 2 || roles[0].ID != "deploy" || roles[1].ID != "read" {
		t.Fatalf("roles = %v", roles)
	}

	// a broken document keeps the published roles
	writeFile(t, dir, "30-broken.yaml", "id: [unclosed")
	if err := reload(context.Background(), nopLogger); err == nil {
		t.Fatalf("reload accepted broken document")
	}
	if got := len(store.Snapshot().Roles()); got != 2 {
		t.Errorf("roles after failed reload = %d, want 2", got)
	}
}

func TestWatch_CallsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "deploy.yaml", deployYAML)

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, 20*time.Millisecond, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// the watcher registers asynchronously, keep touching the file until it fires
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-changed:
			break loop
		case <-ticker.C:
			writeFile(t, dir, "deploy.yaml", deployYAML)
		case <-deadline:
			t.Fatal("onChange was not called")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
