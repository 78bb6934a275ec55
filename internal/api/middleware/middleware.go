package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/warrant/internal/api/presenter"
	"github.com/darmiel/warrant/internal/core"
)

// LoggingMiddleware attaches a request scoped logger to the context and logs
// every handled request. Successful requests to quiet paths (probes, scrapes)
// are not logged.
func LoggingMiddleware(quiet ...string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		skip[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			l := log.With().
				Str("correlation_id", core.CorrelationID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Logger()

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(l.WithContext(r.Context())))

			if _, ok := skip[r.URL.Path]; ok && rec.status < http.StatusBadRequest {
				return
			}
			l.WithLevel(levelFor(rec.status)).
				Int("status", rec.status).
				Int("bytes", rec.written).
				Str("user_agent", r.UserAgent()).
				Dur("duration", time.Since(start)).
				Msg("request.handled")
		})
	}
}

// levelFor logs client errors as warnings and server errors as errors.
func levelFor(status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}

func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				log.Ctx(r.Context()).Error().
					Interface("panic", v).
					Bytes("stack", debug.Stack()).
					Msg("panic.recovered")
				presenter.Err(w, r, core.NewError(core.KindInternalFault, nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *responseRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}
