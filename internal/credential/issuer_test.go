package credential

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/darmiel/warrant/internal/core"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type revoked map[string]bool

func (r revoked) IsRevoked(id string) bool { return r[id] }

func newIssuer(t *testing.T, ceiling time.Duration, rev RevocationList) *Issuer {
	t.Helper()
	iss, err := NewIssuer(Options{
		Issuer:             "warrant-test",
		SigningKey:         []byte(strings.Repeat("k", 32)),
		MaxSessionDuration: ceiling,
		Revocations:        rev,
	})
	if err != nil {
		t.Fatal(err)
	}
	return iss
}

func identity(exp time.Time) *core.VerifiedClaims {
	return &core.VerifiedClaims{
		Issuer:    "https://issuer.example.com",
		Subject:   "workload:ns-a:svc-a",
		ExpiresAt: exp,
	}
}

func TestIssuer_TTL(t *testing.T) {
	iss := newIssuer(t, 2*time.Hour, nil)

	tests := []struct {
		name      string
		roleMax   time.Duration
		tokenLeft time.Duration
		requested time.Duration
		want      time.Duration
	}{
		{"role bound", time.Hour, 3 * time.Hour, 0, time.Hour},
		{"token bound", time.Hour, 10 * time.Minute, 0, 10 * time.Minute},
		{"ceiling bound", 8 * time.Hour, 8 * time.Hour, 0, 2 * time.Hour},
		{"requested narrows", time.Hour, time.Hour, 15 * time.Minute, 15 * time.Minute},
		{"requested cannot widen", time.Hour, time.Hour, 5 * time.Hour, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role := &core.Role{MaxSessionDuration: tt.roleMax}
			if got := iss.TTL(role, now.Add(tt.tokenLeft), now, tt.requested); got != tt.want {
				t.Errorf("TTL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIssuer_IssueAndVerify(t *testing.T) {
	iss := newIssuer(t, time.Hour, nil)
	role := &core.Role{ID: "deploy", Version: 3, MaxSessionDuration: 30 * time.Minute}
	perms := core.NewPermissionSet(
		core.Permission{Action: "storage:write", Resource: "bucket/b"},
		core.Permission{Action: "storage:read", Resource: "bucket/a"},
	)
	tokenExp := now.Add(20*time.Minute + 500*time.Millisecond)

	cred, err := iss.Issue(Request{Role: role, Permissions: perms, Identity: identity(tokenExp), Now: now})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if cred.ExpiresAt.After(tokenExp) || cred.ExpiresAt.After(now.Add(role.MaxSessionDuration)) {
		t.Errorf("ExpiresAt %v exceeds a bound", cred.ExpiresAt)
	}
	if cred.SessionID == "" || cred.RoleVersion != 3 || cred.PermissionDigest != perms.Digest() {
		t.Errorf("credential = %+v", cred)
	}

	claims, err := iss.Verify(cred.Token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.ID != cred.SessionID || claims.Role != "deploy" || claims.SourceIssuer != "https://issuer.example.com" {
		t.Errorf("claims = %+v", claims)
	}
	if diff := cmp.Diff(perms, claims.Permissions); diff != "" {
		t.Errorf("permissions mismatch (-want +got):\n%s", diff)
	}

	if _, err := iss.Verify(cred.Token, cred.ExpiresAt); core.KindOf(err) != core.KindExpiredToken {
		t.Errorf("Verify() at expiry error = %v, want ExpiredToken", err)
	}
}

func TestIssuer_EmptyPermissionSetIsValid(t *testing.T) {
	iss := newIssuer(t, time.Hour, nil)
	role := &core.Role{ID: "nothing", MaxSessionDuration: time.Hour}

	cred, err := iss.Issue(Request{Role: role, Identity: identity(now.Add(time.Hour)), Now: now})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if len(cred.Permissions) != 0 {
		t.Errorf("permissions = %v, want empty", cred.Permissions)
	}

	_, err = iss.Authorize(cred.Token, "storage:read", "bucket/a", now)
	if got := core.KindOf(err); got != core.KindPermissionDenied {
		t.Errorf("Authorize() kind = %s, want PermissionDenied", got)
	}
}

func TestIssuer_Authorize(t *testing.T) {
	iss := newIssuer(t, time.Hour, nil)
	role := &core.Role{ID: "read", MaxSessionDuration: time.Hour}
	perms := core.NewPermissionSet(core.Permission{Action: "storage:read", Resource: "bucket/a"})

	cred, err := iss.Issue(Request{Role: role, Permissions: perms, Identity: identity(now.Add(time.Hour)), Now: now})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := iss.Authorize(cred.Token, "storage:read", "bucket/a", now); err != nil {
		t.Errorf("Authorize() granted permission error = %v", err)
	}
	if _, err := iss.Authorize(cred.Token, "storage:read", "bucket/ab", now); core.KindOf(err) != core.KindPermissionDenied {
		t.Errorf("Authorize() prefix resource error = %v, want PermissionDenied", err)
	}
}

func TestIssuer_Rejections(t *testing.T) {
	rev := revoked{}
	iss := newIssuer(t, time.Hour, rev)
	role := &core.Role{ID: "deploy", MaxSessionDuration: time.Hour}

	if _, err := iss.Issue(Request{Role: role, Identity: identity(now.Add(time.Hour)), RequestedDuration: -time.Second, Now: now}); core.KindOf(err) != core.KindMalformedRequest {
		t.Errorf("negative duration error = %v, want MalformedRequest", err)
	}
	if _, err := iss.Issue(Request{Role: role, Identity: identity(now.Add(300 * time.Millisecond)), Now: now}); core.KindOf(err) != core.KindExpiredToken {
		t.Errorf("sub-second lifetime error = %v, want ExpiredToken", err)
	}

	cred, err := iss.Issue(Request{Role: role, Identity: identity(now.Add(time.Hour)), Now: now})
	if err != nil {
		t.Fatal(err)
	}

	// tampered signature
	if _, err := iss.Verify(cred.Token[:len(cred.Token)-2]+"AA", now); core.KindOf(err) != core.KindInvalidSignature {
		t.Errorf("tampered Verify() error = %v", err)
	}

	// credential of another broker
	other := newIssuer(t, time.Hour, nil)
	other.opts.SigningKey = []byte(strings.Repeat("o", 32))
	foreign, err := other.Issue(Request{Role: role, Identity: identity(now.Add(time.Hour)), Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := iss.Verify(foreign.Token, now); !errors.Is(err, ErrInvalid) {
		t.Errorf("foreign Verify() error = %v, want ErrInvalid", err)
	}

	rev[cred.SessionID] = true
	if _, err := iss.Verify(cred.Token, now); !errors.Is(err, ErrRevoked) {
		t.Errorf("revoked Verify() error = %v, want ErrRevoked", err)
	}
}
