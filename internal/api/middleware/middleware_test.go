package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/darmiel/warrant/internal/core"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	var seen string
	h := CorrelationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = core.CorrelationID(r.Context())
	}))

	tests := []struct {
		name     string
		supplied string
		keep     bool
	}{
		{"generated", "", false},
		{"kept", "req-1234", true},
		{"too long", strings.Repeat("x", maxCorrelationIDLength+1), false},
		{"whitespace", "req 1", false},
		{"line break", "req\n{\"forged\":true}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.supplied != "" {
				req.Header.Set(CorrelationIDHeader, tt.supplied)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" || rec.Header().Get(CorrelationIDHeader) != seen {
				t.Fatalf("context id = %q, header = %q", seen, rec.Header().Get(CorrelationIDHeader))
			}
			if got := seen == tt.supplied; got != tt.keep {
				t.Errorf("kept supplied id = %v, want %v (id %q)", got, tt.keep, seen)
			}
		})
	}
}

func TestLevelFor(t *testing.T) {
	tests := map[int]zerolog.Level{
		http.StatusOK:                  zerolog.InfoLevel,
		http.StatusNotModified:         zerolog.InfoLevel,
		http.StatusForbidden:           zerolog.WarnLevel,
		http.StatusServiceUnavailable:  zerolog.ErrorLevel,
		http.StatusInternalServerError: zerolog.ErrorLevel,
	}
	for status, want := range tests {
		if got := levelFor(status); got != want {
			t.Errorf("levelFor(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestLoggingMiddleware_RecordsResponse(t *testing.T) {
	var rec *responseRecorder
	h := LoggingMiddleware("/healthz")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec = w.(*responseRecorder)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.status != http.StatusTeapot || rec.written != len("short and stout") {
		t.Errorf("recorded status = %d, bytes = %d", rec.status, rec.written)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != core.KindInternalFault.Status() {
		t.Errorf("status = %d, want %d", rec.Code, core.KindInternalFault.Status())
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Errorf("panic value leaked into the response: %s", rec.Body.String())
	}
}
