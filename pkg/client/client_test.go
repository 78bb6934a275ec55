package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/darmiel/warrant/internal/api"
	"github.com/darmiel/warrant/internal/api/presenter"
	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/service"
)

func TestExchange_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.ExchangeRoute || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("X-Correlation-ID", "c-1")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(presenter.ErrorResponse{
			ErrorKind:     core.KindTrustPolicyDenied,
			Message:       core.KindTrustPolicyDenied.Message(),
			CorrelationID: "c-1",
		})
	}))
	defer srv.Close()

	_, correlation, err := New(srv.URL).Exchange(context.Background(), service.ExchangeRequest{Token: "t", RoleID: "r"})
	if correlation != "c-1" {
		t.Errorf("correlation = %q, want c-1", correlation)
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	want := APIError{
		Status:        http.StatusForbidden,
		Kind:          core.KindTrustPolicyDenied,
		CorrelationID: "c-1",
		Message:       core.KindTrustPolicyDenied.Message(),
	}
	if diff := cmp.Diff(want, apiErr); diff != "" {
		t.Errorf("APIError mismatch (-want +got):\n%s", diff)
	}
}

func TestListAudits_QueryAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer admin-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("X-Correlation-ID") == "" {
			t.Errorf("request carries no correlation id")
		}
		q := r.URL.Query()
		if q.Get("limit") != "5" || q.Get("subject") != "workload:ns-a:svc-a" || q.Get("filter") != `outcome == "denied"` {
			t.Errorf("query = %v", q)
		}
		_ = json.NewEncoder(w).Encode([]core.AuditEvent{{Action: core.ActionExchange, Outcome: core.OutcomeDenied}})
	}))
	defer srv.Close()

	cli := New(srv.URL, WithAuthToken("admin-token"))
	events, _, err := cli.ListAudits(context.Background(), ListAuditsOpts{
		Limit:   5,
		Subject: "workload:ns-a:svc-a",
		Filter:  `outcome == "denied"`,
	})
	if err != nil {
		t.Fatalf("ListAudits() error = %v", err)
	}
	if len(events) != 1 || events[0].Outcome != core.OutcomeDenied {
		t.Errorf("events = %+v", events)
	}
}

func TestGetTaskLogs_EscapesName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/v1/admin/tasks/jwks-refresh:https:%2F%2Fissuer.example.com/logs" {
			t.Errorf("path = %s", r.URL.EscapedPath())
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	if _, _, err := New(srv.URL).GetTaskLogs(context.Background(), "jwks-refresh:https://issuer.example.com"); err != nil {
		t.Fatalf("GetTaskLogs() error = %v", err)
	}
}

func TestReady_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Correlation-ID", "c-2")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(api.ReadinessResponse{Ready: false})
	}))
	defer srv.Close()

	_, _, err := New(srv.URL).Ready(context.Background())
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable || apiErr.CorrelationID != "c-2" {
		t.Errorf("error = %#v, want APIError with status 503", err)
	}
}
