package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/darmiel/warrant/internal/config"
	"github.com/darmiel/warrant/internal/core"
)

func event(outcome core.Outcome, reason string) core.AuditEvent {
	return core.AuditEvent{
		Timestamp:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Action:           core.ActionExchange,
		Outcome:          outcome,
		ReasonCode:       reason,
		CorrelationID:    "c1",
		RoleID:           "deploy",
		Subject:          "workload:ns-a:svc-a",
		MatchedStatement: -1,
	}
}

func TestFileAuditor_ChainSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	ctx := context.Background()

	a, err := New(config.AuditConfig{Type: "file", Config: map[string]any{"path": path, "sync": "true"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, reason := range []string{core.ReasonGranted, "TrustPolicyDenied"} {
		if err := a.Record(ctx, event(core.OutcomeGranted, reason)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileAuditor(FileOptions{Path: path})
	if err != nil {
		t.Fatalf("NewFileAuditor() error = %v", err)
	}
	defer reopened.Close()
	if err := reopened.Record(ctx, event(core.OutcomeDenied, "AudienceMismatch")); err != nil {
		t.Fatal(err)
	}

	recent, err := reopened.GetRecent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[1].Seq != 3 || recent[1].PrevHash != recent[0].Hash {
		t.Fatalf("GetRecent() = %+v", recent)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	n, err := VerifyChain(file)
	if err != nil || n != 3 {
		t.Errorf("VerifyChain() = %d, %v; want 3, nil", n, err)
	}
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := NewFileAuditor(FileOptions{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := a.Record(context.Background(), event(core.OutcomeDenied, "TrustPolicyDenied")); err != nil {
			t.Fatal(err)
		}
	}
	_ = a.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	tests := []struct {
		name  string
		lines []string
		line  int
	}{
		{"edited outcome", []string{lines[0], strings.Replace(lines[1], `"denied"`, `"granted"`, 1), lines[2]}, 2},
		{"removed line", []string{lines[0], lines[2]}, 2},
		{"reordered", []string{lines[1], lines[0], lines[2]}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyChain(strings.NewReader(strings.Join(tt.lines, "\n")))
			var chainErr *ChainError
			if !errors.As(err, &chainErr) {
				t.Fatalf("VerifyChain() error = %v, want ChainError", err)
			}
			if chainErr.Line != tt.line {
				t.Errorf("broken at line %d, want %d", chainErr.Line, tt.line)
			}
		})
	}
}

func TestFileAuditor_FailsAfterClose(t *testing.T) {
	a, err := NewFileAuditor(FileOptions{Path: filepath.Join(t.TempDir(), "audit.jsonl")})
	if err != nil {
		t.Fatal(err)
	}
	_ = a.Close()

	if err := a.Record(context.Background(), event(core.OutcomeGranted, core.ReasonGranted)); !errors.Is(err, ErrClosed) {
		t.Errorf("Record() after close error = %v, want ErrClosed", err)
	}
}

func TestFileAuditor_RefusesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	if err := os.WriteFile(path, []byte("{not json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileAuditor(FileOptions{Path: path}); err == nil {
		t.Errorf("NewFileAuditor() accepted corrupt file")
	}
}

func TestInMemoryAuditor_FindWithFilter(t *testing.T) {
	a := NewInMemoryAuditor()
	ctx := context.Background()
	_ = a.Record(ctx, event(core.OutcomeGranted, core.ReasonGranted))
	_ = a.Record(ctx, event(core.OutcomeDenied, "TrustPolicyDenied"))
	_ = a.Record(ctx, event(core.OutcomeDenied, "AudienceMismatch"))

	filter, err := CompileFilter(`outcome == "denied" && reason in ["TrustPolicyDenied", "ExpiredToken"]`)
	if err != nil {
		t.Fatalf("CompileFilter() error = %v", err)
	}
	found, err := a.Find(filter, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ReasonCode != "TrustPolicyDenied" || found[0].Seq != 2 {
		t.Fatalf("Find() = %+v", found)
	}

	if _, err := CompileFilter(`outcome +`); err == nil {
		t.Errorf("CompileFilter() accepted invalid expression")
	}
	if _, err := CompileFilter(`seq`); err == nil {
		t.Errorf("CompileFilter() accepted non-boolean expression")
	}
	if found[0].Hash == "" || found[0].PrevHash == "" {
		t.Errorf("event is not sealed: %+v", found[0])
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint("a") == Fingerprint("b") {
		t.Errorf("fingerprints collide")
	}
	if strings.Contains(Fingerprint("secret-token"), "secret") {
		t.Errorf("fingerprint leaks token")
	}
	if got, want := Fingerprint("a"), "sha256:ca978112ca1bbdcafac231b39a23dc4d"; got != want {
		t.Errorf("Fingerprint(a) = %q, want %q", got, want)
	}
}

func TestReadEvents_Filter(t *testing.T) {
	mem := NewInMemoryAuditor()
	ctx := context.Background()
	for _, e := range []core.AuditEvent{
		event(core.OutcomeGranted, core.ReasonGranted),
		event(core.OutcomeDenied, "TrustPolicyDenied"),
		event(core.OutcomeDenied, "ExpiredToken"),
	} {
		if err := mem.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	recent, _ := mem.GetRecent(10)
	var lines []string
	for _, e := range recent {
		data, err := json.Marshal(e)
		if err != nil {
			t.Fatal(err)
		}
		lines = append(lines, string(data))
	}

	filter, err := CompileFilter(`outcome == "denied"`)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadEvents(strings.NewReader(strings.Join(lines, "\n")+"\n"), filter)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	if len(got) != 2 || got[0].ReasonCode != "TrustPolicyDenied" {
		t.Errorf("ReadEvents() = %+v", got)
	}
}
