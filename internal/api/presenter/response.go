package presenter

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/warrant/internal/core"
)

// ErrorResponse is the body of every failed request. Message is fixed per
// kind and never carries internal details.
type ErrorResponse struct {
	ErrorKind     core.ErrorKind `json:"errorKind,omitempty"`
	Message       string         `json:"message"`
	CorrelationID string         `json:"correlationId"`
}

func JSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write json response")
	}
}

// Error writes an unclassified error, used by the admin surface.
func Error(w http.ResponseWriter, r *http.Request, msg string, status int) {
	JSON(w, r, ErrorResponse{
		Message:       msg,
		CorrelationID: core.CorrelationID(r.Context()),
	}, status)
}

// Err writes a classified error. Unclassified errors are reported as InternalFault.
func Err(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	JSON(w, r, ErrorResponse{
		ErrorKind:     kind,
		Message:       kind.Message(),
		CorrelationID: core.CorrelationID(r.Context()),
	}, kind.Status())
}
