package middleware

import (
	"net/http"

	"github.com/rs/xid"

	"github.com/darmiel/warrant/internal/core"
)

const CorrelationIDHeader = "X-Correlation-ID"

// maxCorrelationIDLength bounds ids supplied by callers, they end up in every audit event.
const maxCorrelationIDLength = 128

// CorrelationIDMiddleware keeps a caller supplied correlation id if it is
// usable and generates one otherwise. The id is echoed in the response header.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if !validCorrelationID(id) {
			id = xid.New().String()
		}
		w.Header().Set(CorrelationIDHeader, id)
		next.ServeHTTP(w, r.WithContext(core.WithCorrelationID(r.Context(), id)))
	})
}

// validCorrelationID accepts non-empty printable ASCII without spaces.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
